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

package vn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ed25519"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/fund/epoch"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/params"
	"github.com/alexlange1/alphamind/storage/database"
)

type stubStakes struct {
	stakes map[common.Hotkey]float64
}

func (s *stubStakes) StakeOf(h common.Hotkey) float64 { return s.stakes[h] }

func (s *stubStakes) TotalActiveStake() float64 {
	var sum float64
	for _, v := range s.stakes {
		sum += v
	}
	return sum
}

func (s *stubStakes) SnapshotAge() time.Duration { return 0 }

type stubPublisher struct{ calls int }

func (p *stubPublisher) Publish(context.Context, common.EpochID, string, string) (epoch.PublishReceipt, error) {
	p.calls++
	return epoch.PublishReceipt{TxHash: "0xbeef", ChainID: "test", Status: "confirmed"}, nil
}

func (p *stubPublisher) Verify(context.Context, common.EpochID) (string, string, error) {
	return "", "confirmed", nil
}

type signer struct {
	hotkey common.Hotkey
	priv   ed25519.PrivateKey
	stake  float64
}

func newSigner(t *testing.T, stake float64) *signer {
	hotkey, priv, err := crypto.GenerateHotkey()
	assert.NoError(t, err)
	return &signer{hotkey: hotkey, priv: priv, stake: stake}
}

func (s *signer) priceWire(t *testing.T, price float64) []byte {
	r := &types.PriceReport{
		SchemaVersion: params.ReportSchemaVersion,
		Ts:            time.Now().UTC().Truncate(time.Second),
		Prices:        map[common.NetUID]float64{1: price, 2: price},
		MinerID:       "m",
		Hotkey:        s.hotkey,
		StakeTao:      s.stake,
		Scheme:        crypto.SchemeHotkey,
	}
	canonical, err := r.CanonicalBytes()
	assert.NoError(t, err)
	r.Signature = crypto.Sign(s.priv, canonical)
	wire, err := types.MarshalWire(r)
	assert.NoError(t, err)
	return wire
}

func newTestNode(t *testing.T, stakes *stubStakes, pub epoch.Publisher) *ValidatorNode {
	config := DefaultConfig
	config.DataDir = t.TempDir()
	config.DBType = database.MemoryDB
	config.Pool.Journal = ""
	config.Pool.NumHandlers = 1
	n, err := New(&config, stakes, pub)
	assert.NoError(t, err)
	assert.NoError(t, n.Start())
	t.Cleanup(func() { n.Stop() })
	return n
}

func TestValidatorNode_PricePipeline(t *testing.T) {
	m1, m2, m3 := newSigner(t, 100), newSigner(t, 50), newSigner(t, 10)
	stakes := &stubStakes{stakes: map[common.Hotkey]float64{
		m1.hotkey: 100, m2.hotkey: 50, m3.hotkey: 10,
	}}
	n := newTestNode(t, stakes, &stubPublisher{})

	assert.NoError(t, n.Pool().Enqueue(types.PricesKind, m1.priceWire(t, 10)))
	assert.NoError(t, n.Pool().Enqueue(types.PricesKind, m2.priceWire(t, 11)))
	assert.NoError(t, n.Pool().Enqueue(types.PricesKind, m3.priceWire(t, 20)))

	// Wait for the single handler to drain the queue.
	deadline := time.Now().Add(5 * time.Second)
	for len(n.Pool().Recent(types.PricesKind, params.PricesMaxAge)) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("reports not processed in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap := n.runPriceConsensus(time.Now().UTC())
	v, ok := snap.Value(1)
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	// The snapshot now backs the sanity band view and the vault prices.
	price, ok := consensusView{n.dbm}.LatestPrice(1)
	assert.True(t, ok)
	assert.Equal(t, 10.0, price)

	// With a weight set in place the vault can trade against consensus.
	n.setCurrentWeights(map[common.NetUID]uint64{1: 5000, 2: 5000})
	minted, err := n.Vault().MintViaTAO(1000, time.Now().Add(5*time.Second))
	assert.NoError(t, err)
	assert.InDelta(t, 998, minted, 1e-9)
}

func TestValidatorNode_EpochBoundary(t *testing.T) {
	m1 := newSigner(t, 100)
	stakes := &stubStakes{stakes: map[common.Hotkey]float64{m1.hotkey: 100}}
	pub := &stubPublisher{}
	n := newTestNode(t, stakes, pub)

	// Accrue 95 days of emissions continuity directly through the builder.
	now := time.Now().UTC()
	today := common.DayOfTime(now)
	for day := today - 95; day <= today; day++ {
		snap := &types.ConsensusSnapshot{
			Kind: types.EmissionsKind,
			Ts:   day.Time(),
			Entries: map[common.NetUID]types.ConsensusEntry{
				1: {Value: 30, ContributorCount: 1, ContributingStake: 100},
				2: {Value: 10, ContributorCount: 1, ContributingStake: 100},
			},
		}
		assert.NoError(t, n.builder.RecordDailySnapshot(day, snap))
	}

	n.runEpochBoundary(now)
	assert.Equal(t, 1, pub.calls)

	weights, ok := n.CurrentWeights()
	assert.True(t, ok)
	assert.Equal(t, uint64(7500), weights[1])
	assert.Equal(t, uint64(2500), weights[2])

	epochID := epoch.IndexOf(now, n.config.Fund.EpochPeriodDays)
	rec, err := n.dbm.ReadPublicationRecord(epochID)
	assert.NoError(t, err)
	assert.True(t, rec.AnchorOK)

	anchored, ok := n.dbm.ReadAnchoredEpoch()
	assert.True(t, ok)
	assert.Equal(t, epochID, anchored)
}

func TestAdminAPI_PauseResume(t *testing.T) {
	m1 := newSigner(t, 100)
	stakes := &stubStakes{stakes: map[common.Hotkey]float64{m1.hotkey: 100}}
	n := newTestNode(t, stakes, &stubPublisher{})
	api := NewAdminAPI(n)

	assert.NoError(t, api.PauseConstituent(2))
	assert.True(t, n.pausedIndex.Has(common.NetUID(2)))

	assert.NoError(t, api.ResumeConstituent(2))
	assert.False(t, n.pausedIndex.Has(common.NetUID(2)))

	api.RotateSigner("validator-2")
	assert.Equal(t, "validator-2", n.config.SignerID)
}
