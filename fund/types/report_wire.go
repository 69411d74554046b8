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
	"bytes"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
)

// The wire structs mirror the inbound JSON exactly. Decoding is strict:
// unknown fields reject the report before any further checks run.

type emissionsWire struct {
	SchemaVersion string             `json:"schema_version"`
	SnapshotTs    string             `json:"snapshot_ts"`
	EpochDay      int64              `json:"epoch_day"`
	ByNetuid      map[string]float64 `json:"emissions_by_netuid,omitempty"`
	List          []emissionsEntry   `json:"emissions,omitempty"`
	MinerID       string             `json:"miner_id"`
	StakeTao      float64            `json:"stake_tao"`
	Signature     string             `json:"signature"`
	SignerSS58    string             `json:"signer_ss58"`
	SigScheme     string             `json:"sig_scheme,omitempty"`
}

type emissionsEntry struct {
	UID          int64   `json:"uid"`
	EmissionsTao float64 `json:"emissions_tao"`
}

type priceWire struct {
	SchemaVersion string                `json:"schema_version"`
	Ts            string                `json:"ts"`
	ByNetuid      map[string]float64    `json:"prices_by_netuid,omitempty"`
	List          []priceEntry          `json:"prices,omitempty"`
	Pools         map[string]PoolDetail `json:"pools,omitempty"`
	MinerID       string                `json:"miner_id"`
	StakeTao      float64               `json:"stake_tao"`
	Signature     string                `json:"signature"`
	SignerSS58    string                `json:"signer_ss58"`
	SigScheme     string                `json:"sig_scheme,omitempty"`
}

type priceEntry struct {
	UID              int64   `json:"uid"`
	Token            string  `json:"token,omitempty"`
	PriceInTao       float64 `json:"price_in_tao"`
	PoolReserveToken float64 `json:"pool_reserve_token,omitempty"`
	PoolReserveTao   float64 `json:"pool_reserve_tao,omitempty"`
	Block            uint64  `json:"block,omitempty"`
	BlockTime        string  `json:"block_time,omitempty"`
	PinSource        string  `json:"pin_source,omitempty"`
}

type navWire struct {
	SchemaVersion  string  `json:"schema_version"`
	Ts             string  `json:"ts"`
	NavPerTokenTao float64 `json:"nav_per_token_tao"`
	TotalSupply    float64 `json:"total_supply"`
	MinerID        string  `json:"miner_id"`
	Signature      string  `json:"signature"`
	SignerSS58     string  `json:"signer_ss58"`
	SigScheme      string  `json:"sig_scheme,omitempty"`
}

func strictUnmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(ErrBadSchema, err.Error())
	}
	return nil
}

func parseWireTs(s string) (time.Time, error) {
	t, err := time.Parse(tsFormat, s)
	if err != nil {
		// Tolerate sub-second precision from older miners; canonical output
		// always re-renders at second precision.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrBadSchema, "timestamp %q", s)
		}
	}
	return t.UTC().Truncate(time.Second), nil
}

func parseSigner(ss58, sigHex, scheme string) (common.Hotkey, []byte, crypto.SigScheme, error) {
	if ss58 == "" {
		return common.Hotkey{}, nil, "", ErrMissingSigner
	}
	hotkey, err := common.HexToHotkey(ss58)
	if err != nil {
		return common.Hotkey{}, nil, "", errors.Wrap(ErrMissingSigner, err.Error())
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return common.Hotkey{}, nil, "", errors.Wrap(ErrBadSignature, "signature not hex")
	}
	return hotkey, sig, crypto.SigScheme(scheme), nil
}

func parseUIDMap(m map[string]float64) (map[common.NetUID]float64, error) {
	out := make(map[common.NetUID]float64, len(m))
	for k, v := range m {
		uid, err := common.ParseNetUID(k)
		if err != nil {
			return nil, errors.Wrap(ErrBadValue, err.Error())
		}
		if _, dup := out[uid]; dup {
			return nil, errors.Wrapf(ErrBadValue, "duplicate netuid %d", uid)
		}
		out[uid] = v
	}
	return out, nil
}

// ParseEmissionsReport decodes the wire JSON into the normalized form. Both
// the map shape and the list shape are accepted; the canonical rendering is
// always the map shape.
func ParseEmissionsReport(data []byte) (*EmissionsReport, error) {
	var w emissionsWire
	if err := strictUnmarshal(data, &w); err != nil {
		return nil, err
	}
	ts, err := parseWireTs(w.SnapshotTs)
	if err != nil {
		return nil, err
	}
	hotkey, sig, scheme, err := parseSigner(w.SignerSS58, w.Signature, w.SigScheme)
	if err != nil {
		return nil, err
	}

	var emissions map[common.NetUID]float64
	switch {
	case w.ByNetuid != nil && w.List != nil:
		return nil, errors.Wrap(ErrBadSchema, "both emissions shapes present")
	case w.ByNetuid != nil:
		if emissions, err = parseUIDMap(w.ByNetuid); err != nil {
			return nil, err
		}
	default:
		emissions = make(map[common.NetUID]float64, len(w.List))
		for _, e := range w.List {
			if e.UID < 0 || e.UID > 65535 {
				return nil, errors.Wrapf(ErrBadValue, "uid %d", e.UID)
			}
			uid := common.NetUID(e.UID)
			if _, dup := emissions[uid]; dup {
				return nil, errors.Wrapf(ErrBadValue, "duplicate netuid %d", uid)
			}
			emissions[uid] = e.EmissionsTao
		}
	}

	r := &EmissionsReport{
		SchemaVersion: w.SchemaVersion,
		SnapshotTs:    ts,
		EpochDay:      common.EpochDay(w.EpochDay),
		Emissions:     emissions,
		MinerID:       w.MinerID,
		Hotkey:        hotkey,
		StakeTao:      w.StakeTao,
		Signature:     sig,
		Scheme:        scheme,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParsePriceReport decodes the wire JSON into the normalized form.
func ParsePriceReport(data []byte) (*PriceReport, error) {
	var w priceWire
	if err := strictUnmarshal(data, &w); err != nil {
		return nil, err
	}
	ts, err := parseWireTs(w.Ts)
	if err != nil {
		return nil, err
	}
	hotkey, sig, scheme, err := parseSigner(w.SignerSS58, w.Signature, w.SigScheme)
	if err != nil {
		return nil, err
	}

	prices := make(map[common.NetUID]float64)
	pools := make(map[common.NetUID]PoolDetail)
	switch {
	case w.ByNetuid != nil && w.List != nil:
		return nil, errors.Wrap(ErrBadSchema, "both price shapes present")
	case w.ByNetuid != nil:
		if prices, err = parseUIDMap(w.ByNetuid); err != nil {
			return nil, err
		}
		for k, p := range w.Pools {
			uid, perr := common.ParseNetUID(k)
			if perr != nil {
				return nil, errors.Wrap(ErrBadValue, perr.Error())
			}
			pools[uid] = p
		}
	default:
		for _, e := range w.List {
			if e.UID < 0 || e.UID > 65535 {
				return nil, errors.Wrapf(ErrBadValue, "uid %d", e.UID)
			}
			uid := common.NetUID(e.UID)
			if _, dup := prices[uid]; dup {
				return nil, errors.Wrapf(ErrBadValue, "duplicate netuid %d", uid)
			}
			prices[uid] = e.PriceInTao
			if e.PoolReserveTao != 0 || e.PoolReserveToken != 0 || e.Block != 0 || e.BlockTime != "" {
				pools[uid] = PoolDetail{
					Token:            e.Token,
					PoolReserveToken: e.PoolReserveToken,
					PoolReserveTao:   e.PoolReserveTao,
					Block:            e.Block,
					BlockTime:        e.BlockTime,
					PinSource:        e.PinSource,
				}
			}
		}
	}
	if len(pools) == 0 {
		pools = nil
	}

	r := &PriceReport{
		SchemaVersion: w.SchemaVersion,
		Ts:            ts,
		Prices:        prices,
		Pools:         pools,
		MinerID:       w.MinerID,
		Hotkey:        hotkey,
		StakeTao:      w.StakeTao,
		Signature:     sig,
		Scheme:        scheme,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseNavReport decodes the wire JSON into the normalized form.
func ParseNavReport(data []byte) (*NavReport, error) {
	var w navWire
	if err := strictUnmarshal(data, &w); err != nil {
		return nil, err
	}
	ts, err := parseWireTs(w.Ts)
	if err != nil {
		return nil, err
	}
	hotkey, sig, scheme, err := parseSigner(w.SignerSS58, w.Signature, w.SigScheme)
	if err != nil {
		return nil, err
	}
	r := &NavReport{
		SchemaVersion:  w.SchemaVersion,
		Ts:             ts,
		NavPerTokenTao: w.NavPerTokenTao,
		TotalSupply:    w.TotalSupply,
		MinerID:        w.MinerID,
		Hotkey:         hotkey,
		Signature:      sig,
		Scheme:         scheme,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseReport dispatches on kind.
func ParseReport(kind ReportKind, data []byte) (Report, error) {
	switch kind {
	case EmissionsKind:
		return ParseEmissionsReport(data)
	case PricesKind:
		return ParsePriceReport(data)
	case NavKind:
		return ParseNavReport(data)
	default:
		return nil, errors.Wrapf(ErrBadSchema, "kind %q", kind)
	}
}

// MarshalWire renders a signed report back to wire JSON, signature included.
func MarshalWire(r Report) ([]byte, error) {
	var obj map[string]interface{}
	var sig []byte
	switch v := r.(type) {
	case *EmissionsReport:
		obj, sig = v.canonicalObject(), v.Signature
	case *PriceReport:
		obj, sig = v.canonicalObject(), v.Signature
	case *NavReport:
		obj, sig = v.canonicalObject(), v.Signature
	default:
		return nil, errors.Wrap(ErrBadSchema, "unknown report type")
	}
	obj["signature"] = hex.EncodeToString(sig)
	return json.Marshal(obj)
}
