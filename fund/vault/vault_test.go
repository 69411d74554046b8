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

package vault

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/params"
	"github.com/alexlange1/alphamind/storage/database"
)

type stubPrices struct {
	prices map[common.NetUID]float64
	asOf   time.Time
	ok     bool
}

func (s *stubPrices) LatestPrices() (map[common.NetUID]float64, time.Time, bool) {
	return s.prices, s.asOf, s.ok
}

type stubWeights struct {
	weights map[common.NetUID]uint64
	ok      bool
}

func (s *stubWeights) CurrentWeights() (map[common.NetUID]uint64, bool) {
	return s.weights, s.ok
}

func testConfig() *params.FundConfig {
	cfg := params.DefaultFundConfig
	return &cfg
}

// Equal-price two-asset index, 60/40.
func newTestVault(t *testing.T) (*Vault, *stubPrices, *stubWeights) {
	prices := &stubPrices{
		prices: map[common.NetUID]float64{1: 1.0, 2: 1.0},
		asOf:   time.Now(),
		ok:     true,
	}
	weights := &stubWeights{weights: map[common.NetUID]uint64{1: 6000, 2: 4000}, ok: true}
	v, err := New(testConfig(), prices, weights, database.NewMemoryDBManager())
	assert.NoError(t, err)
	assert.NoError(t, v.Start())
	t.Cleanup(v.Stop)
	return v, prices, weights
}

func deadline() time.Time { return time.Now().Add(5 * time.Second) }

// Scenario: mint a 1,000-unit basket at exact weights with a 20 bp fee,
// then redeem everything. 998 tokens exist in between; the returned basket
// is worth about 996.004 and the vault ends empty.
func TestVault_MintRedeemRoundTrip(t *testing.T) {
	v, prices, _ := newTestVault(t)

	minted, err := v.MintInKind(map[common.NetUID]float64{1: 600, 2: 400}, deadline())
	assert.NoError(t, err)
	assert.InDelta(t, 998, minted, 1e-9)

	st, err := v.StateSnapshot()
	assert.NoError(t, err)
	assert.InDelta(t, 998, st.TotalSupply, 1e-9)
	assert.InDelta(t, 2, st.AccruedTxFees, 1e-9)
	assert.NoError(t, st.CheckInvariants(prices.prices))

	nav, err := v.NAV()
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, nav, 1e-9)

	basket, err := v.RedeemInKind(998, deadline())
	assert.NoError(t, err)
	var returnedValue float64
	for uid, amount := range basket {
		returnedValue += amount * prices.prices[uid]
	}
	assert.InDelta(t, 996.004, returnedValue, 1e-6)

	st, err = v.StateSnapshot()
	assert.NoError(t, err)
	assert.Equal(t, 0.0, st.TotalSupply)
	assert.NoError(t, st.CheckInvariants(prices.prices))
	// Both fee slices accrued: 2 from the mint, ~1.996 from the redeem.
	assert.InDelta(t, 3.996, st.AccruedTxFees, 1e-6)
}

func TestVault_MintViaTAO(t *testing.T) {
	v, _, _ := newTestVault(t)

	minted, err := v.MintViaTAO(1000, deadline())
	assert.NoError(t, err)
	assert.InDelta(t, 998, minted, 1e-9)

	st, _ := v.StateSnapshot()
	assert.InDelta(t, 598.8, st.Holdings[1], 1e-9) // 998 * 0.6 / price
	assert.InDelta(t, 399.2, st.Holdings[2], 1e-9)
}

func TestVault_CompositionTolerance(t *testing.T) {
	v, _, _ := newTestVault(t)

	// 80/20 against a 60/40 target breaks the 500 bp tolerance.
	_, err := v.MintInKind(map[common.NetUID]float64{1: 800, 2: 200}, deadline())
	assert.Equal(t, ErrCompositionOutOfTolerance, errors.Cause(err))

	// 62/38 sits inside it.
	_, err = v.MintInKind(map[common.NetUID]float64{1: 620, 2: 380}, deadline())
	assert.NoError(t, err)
}

func TestVault_InsufficientSupply(t *testing.T) {
	v, _, _ := newTestVault(t)
	_, err := v.MintViaTAO(100, deadline())
	assert.NoError(t, err)
	_, err = v.RedeemInKind(1000, deadline())
	assert.Equal(t, ErrInsufficientSupply, errors.Cause(err))
}

func TestVault_PausedConstituent(t *testing.T) {
	v, _, _ := newTestVault(t)
	assert.NoError(t, v.PauseConstituent(2))

	_, err := v.MintInKind(map[common.NetUID]float64{1: 600, 2: 400}, deadline())
	assert.Equal(t, ErrPaused, errors.Cause(err))
	_, err = v.MintViaTAO(100, deadline())
	assert.Equal(t, ErrPaused, errors.Cause(err))

	// Pause then resume returns the vault to the identical observable state.
	before, _ := v.StateSnapshot()
	assert.NoError(t, v.ResumeConstituent(2))
	after, _ := v.StateSnapshot()
	assert.Equal(t, before.TotalSupply, after.TotalSupply)
	assert.Equal(t, before.AccruedTxFees, after.AccruedTxFees)

	_, err = v.MintViaTAO(100, deadline())
	assert.NoError(t, err)
}

func TestVault_PauseAll(t *testing.T) {
	v, _, _ := newTestVault(t)
	assert.NoError(t, v.PauseAll())
	_, err := v.MintViaTAO(100, deadline())
	assert.Equal(t, ErrPaused, errors.Cause(err))
	assert.NoError(t, v.ResumeAll())
	_, err = v.MintViaTAO(100, deadline())
	assert.NoError(t, err)
}

func TestVault_StalePrices(t *testing.T) {
	v, prices, _ := newTestVault(t)
	prices.asOf = time.Now().Add(-10 * time.Minute)
	_, err := v.MintViaTAO(100, deadline())
	assert.Equal(t, ErrPriceStale, errors.Cause(err))
}

func TestVault_MissingConsensus(t *testing.T) {
	v, prices, _ := newTestVault(t)
	delete(prices.prices, 2)
	_, err := v.MintViaTAO(100, deadline())
	assert.Equal(t, ErrQuorumMissing, errors.Cause(err))
}

func TestVault_OverloadedDeadline(t *testing.T) {
	v, _, _ := newTestVault(t)
	_, err := v.MintViaTAO(100, time.Now().Add(-time.Second))
	assert.Equal(t, ErrOverloaded, errors.Cause(err))
}

// Scenario: supply 1,000 at 100 bp APR over ten virtual days accrues about
// 0.274 tokens to the fee sink.
func TestState_MgmtFeeDrift(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := newState(t0)
	s.TotalSupply = 1000

	minted := s.accrueMgmtFee(t0.Add(10*24*time.Hour), 100)
	assert.InDelta(t, 0.27397, minted, 1e-4)
	assert.InDelta(t, 1000.27397, s.TotalSupply, 1e-4)
	assert.InDelta(t, 0.27397, s.AccruedMgmtFees, 1e-4)

	// Same instant again: no-op.
	assert.Equal(t, 0.0, s.accrueMgmtFee(t0.Add(10*24*time.Hour), 100))

	// Wall-clock jumping backwards clamps at zero instead of burning supply.
	assert.Equal(t, 0.0, s.accrueMgmtFee(t0, 100))
	assert.InDelta(t, 1000.27397, s.TotalSupply, 1e-4)
}

func TestState_CheckpointRoundTrip(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := newState(t0)
	s.TotalSupply = 42
	s.Holdings[7] = 21
	s.AccruedTxFees = 1.5
	s.paused.Add(common.NetUID(7))

	blob, err := s.MarshalState()
	assert.NoError(t, err)
	restored, err := UnmarshalState(blob)
	assert.NoError(t, err)
	assert.Equal(t, s.TotalSupply, restored.TotalSupply)
	assert.Equal(t, s.Holdings[7], restored.Holdings[7])
	assert.True(t, restored.isPaused(7))
}

func TestVault_RestartRestoresState(t *testing.T) {
	store := database.NewMemoryDBManager()
	prices := &stubPrices{prices: map[common.NetUID]float64{1: 1, 2: 1}, asOf: time.Now(), ok: true}
	weights := &stubWeights{weights: map[common.NetUID]uint64{1: 6000, 2: 4000}, ok: true}

	v, err := New(testConfig(), prices, weights, store)
	assert.NoError(t, err)
	assert.NoError(t, v.Start())
	_, err = v.MintViaTAO(500, deadline())
	assert.NoError(t, err)
	v.Stop()

	v2, err := New(testConfig(), prices, weights, store)
	assert.NoError(t, err)
	assert.NoError(t, v2.Start())
	defer v2.Stop()
	st, err := v2.StateSnapshot()
	assert.NoError(t, err)
	assert.InDelta(t, 499, st.TotalSupply, 1e-9)
}
