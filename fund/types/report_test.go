// Copyright 2025 The alphamind Authors
// This file is part of the alphamind library.
//
// The alphamind library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The alphamind library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the alphamind library. If not, see <http://www.gnu.org/licenses/>.

package types

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/params"
)

func newSignedEmissions(t *testing.T) (*EmissionsReport, []byte) {
	hotkey, priv, err := crypto.GenerateHotkey()
	if err != nil {
		t.Fatalf("cannot generate hotkey: %v", err)
	}
	ts := time.Date(2025, 6, 1, 0, 5, 0, 0, time.UTC)
	r := &EmissionsReport{
		SchemaVersion: params.ReportSchemaVersion,
		SnapshotTs:    ts,
		EpochDay:      common.DayOfTime(ts),
		Emissions:     map[common.NetUID]float64{1: 12.5, 8: 3.25, 19: 0},
		MinerID:       "miner-a",
		Hotkey:        hotkey,
		StakeTao:      100,
		Scheme:        crypto.SchemeHotkey,
	}
	canonical, err := r.CanonicalBytes()
	assert.NoError(t, err)
	r.Signature = crypto.Sign(priv, canonical)
	return r, canonical
}

func TestEmissionsReport_SignAndVerify(t *testing.T) {
	r, _ := newSignedEmissions(t)
	assert.NoError(t, r.Validate())
	assert.NoError(t, r.VerifySignature(nil))

	// A single flipped value must break the signature.
	r.Emissions[1] = 12.6
	assert.Equal(t, ErrBadSignature, errors.Cause(r.VerifySignature(nil)))
}

func TestEmissionsReport_CanonicalRoundTrip(t *testing.T) {
	r, canonical := newSignedEmissions(t)

	wire, err := MarshalWire(r)
	assert.NoError(t, err)

	parsed, err := ParseEmissionsReport(wire)
	assert.NoError(t, err)
	assert.NoError(t, parsed.VerifySignature(nil))

	reCanonical, err := parsed.CanonicalBytes()
	assert.NoError(t, err)
	assert.Equal(t, canonical, reCanonical)
}

func TestEmissionsReport_ListShapeNormalizes(t *testing.T) {
	hotkey, priv, err := crypto.GenerateHotkey()
	assert.NoError(t, err)

	base := &EmissionsReport{
		SchemaVersion: params.ReportSchemaVersion,
		SnapshotTs:    time.Date(2025, 6, 1, 0, 5, 0, 0, time.UTC),
		EpochDay:      20240,
		Emissions:     map[common.NetUID]float64{4: 7.5},
		MinerID:       "miner-b",
		Hotkey:        hotkey,
		StakeTao:      10,
		Scheme:        crypto.SchemeHotkey,
	}
	canonical, err := base.CanonicalBytes()
	assert.NoError(t, err)
	sig := crypto.Sign(priv, canonical)

	wire := []byte(`{"schema_version":"1.0.0","snapshot_ts":"2025-06-01T00:05:00Z",` +
		`"epoch_day":20240,"emissions":[{"uid":4,"emissions_tao":7.5}],` +
		`"miner_id":"miner-b","stake_tao":10,"signature":"` + SignatureHex(sig) +
		`","signer_ss58":"` + hotkey.Hex() + `","sig_scheme":"HOTKEY"}`)

	parsed, err := ParseEmissionsReport(wire)
	assert.NoError(t, err)
	assert.Equal(t, 7.5, parsed.Emissions[4])
	assert.NoError(t, parsed.VerifySignature(nil))
}

func TestEmissionsReport_RejectsBadInput(t *testing.T) {
	r, _ := newSignedEmissions(t)

	r.SchemaVersion = "0.9.0"
	assert.Equal(t, ErrBadSchema, errors.Cause(r.Validate()))
	r.SchemaVersion = params.ReportSchemaVersion

	r.Emissions[3] = -1
	assert.Equal(t, ErrBadValue, errors.Cause(r.Validate()))
	delete(r.Emissions, 3)

	r.Hotkey = common.Hotkey{}
	assert.Equal(t, ErrMissingSigner, errors.Cause(r.Validate()))
}

func TestParseEmissionsReport_UnknownField(t *testing.T) {
	wire := []byte(`{"schema_version":"1.0.0","snapshot_ts":"2025-06-01T00:05:00Z",` +
		`"epoch_day":20240,"emissions_by_netuid":{"1":2},"miner_id":"m","stake_tao":1,` +
		`"signature":"00","signer_ss58":"0x0101010101010101010101010101010101010101010101010101010101010101",` +
		`"surprise":true}`)
	_, err := ParseEmissionsReport(wire)
	assert.Equal(t, ErrBadSchema, errors.Cause(err))
}

func TestPriceReport_Validation(t *testing.T) {
	hotkey, priv, err := crypto.GenerateHotkey()
	assert.NoError(t, err)
	r := &PriceReport{
		SchemaVersion: params.ReportSchemaVersion,
		Ts:            time.Now().UTC().Truncate(time.Second),
		Prices:        map[common.NetUID]float64{1: 0.25, 2: 1.5},
		MinerID:       "miner-c",
		Hotkey:        hotkey,
		StakeTao:      50,
		Scheme:        crypto.SchemeHotkey,
	}
	canonical, err := r.CanonicalBytes()
	assert.NoError(t, err)
	r.Signature = crypto.Sign(priv, canonical)

	assert.NoError(t, r.Validate())
	assert.NoError(t, r.VerifySignature(nil))

	// Prices must be strictly positive.
	r.Prices[3] = 0
	assert.Equal(t, ErrBadValue, errors.Cause(r.Validate()))
}

func TestPriceReport_EnrichedEntries(t *testing.T) {
	hotkey, priv, err := crypto.GenerateHotkey()
	assert.NoError(t, err)
	r := &PriceReport{
		SchemaVersion: params.ReportSchemaVersion,
		Ts:            time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Prices:        map[common.NetUID]float64{7: 0.031},
		Pools: map[common.NetUID]PoolDetail{
			7: {Token: "alpha", PoolReserveToken: 1000, PoolReserveTao: 31, Block: 500100, BlockTime: "2025-06-01T11:59:48Z", PinSource: "pool"},
		},
		MinerID:  "miner-d",
		Hotkey:   hotkey,
		StakeTao: 5,
		Scheme:   crypto.SchemeHotkey,
	}
	canonical, err := r.CanonicalBytes()
	assert.NoError(t, err)
	r.Signature = crypto.Sign(priv, canonical)

	wire, err := MarshalWire(r)
	assert.NoError(t, err)
	parsed, err := ParsePriceReport(wire)
	assert.NoError(t, err)
	assert.Equal(t, r.Pools[7], parsed.Pools[7])
	assert.NoError(t, parsed.VerifySignature(nil))

	// Enriched block_time in the future is rejected.
	r.Pools[7] = PoolDetail{BlockTime: time.Now().UTC().Add(time.Hour).Format("2006-01-02T15:04:05Z")}
	assert.Equal(t, ErrFutureBlock, errors.Cause(r.Validate()))
}

func TestNavReport_HMACScheme(t *testing.T) {
	hotkey, _, err := crypto.GenerateHotkey()
	assert.NoError(t, err)
	secret := []byte("shared-secret")

	r := &NavReport{
		SchemaVersion:  params.ReportSchemaVersion,
		Ts:             time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		NavPerTokenTao: 1.02,
		TotalSupply:    998,
		MinerID:        "miner-e",
		Hotkey:         hotkey,
		Scheme:         crypto.SchemeHMAC,
	}
	canonical, err := r.CanonicalBytes()
	assert.NoError(t, err)
	r.Signature = crypto.SignHMAC(secret, canonical)

	assert.NoError(t, r.VerifySignature(secret))
	assert.Equal(t, ErrBadSignature, errors.Cause(r.VerifySignature([]byte("wrong"))))
}
