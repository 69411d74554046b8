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

package work

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/fund/types"
)

type stubObserver struct {
	emissions map[common.NetUID]float64
	prices    map[common.NetUID]float64
	day       common.EpochDay
	failFetch bool
}

func (o *stubObserver) Emissions(context.Context) (map[common.NetUID]float64, common.EpochDay, error) {
	if o.failFetch {
		return nil, 0, errors.New("rpc unreachable")
	}
	return o.emissions, o.day, nil
}

func (o *stubObserver) Prices(context.Context) (map[common.NetUID]float64, error) {
	if o.failFetch {
		return nil, errors.New("rpc unreachable")
	}
	return o.prices, nil
}

func (o *stubObserver) Stake(context.Context) (float64, error) { return 100, nil }

type stubSubmitter struct {
	mu       sync.Mutex
	payloads map[types.ReportKind][][]byte
	failN    int
	calls    int
}

func (s *stubSubmitter) Submit(_ context.Context, kind types.ReportKind, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failN {
		return errors.New("broker unavailable")
	}
	if s.payloads == nil {
		s.payloads = make(map[types.ReportKind][][]byte)
	}
	s.payloads[kind] = append(s.payloads[kind], append([]byte(nil), payload...))
	return nil
}

func (s *stubSubmitter) got(kind types.ReportKind) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[kind]
}

func newTestWorker(t *testing.T, observer ChainObserver, sub Submitter) *Worker {
	_, priv, err := crypto.GenerateHotkey()
	assert.NoError(t, err)
	agent, err := NewHotkeyAgent(priv)
	assert.NoError(t, err)
	config := DefaultWorkerConfig
	config.MinerID = "miner-test"
	return NewWorker(config, observer, agent, sub)
}

func TestWorker_EmissionsCycleProducesVerifiableReport(t *testing.T) {
	observer := &stubObserver{
		emissions: map[common.NetUID]float64{1: 12.5, 8: 3},
		day:       20240,
	}
	sub := &stubSubmitter{}
	w := newTestWorker(t, observer, sub)

	assert.NoError(t, w.ObserveOnce())
	payloads := sub.got(types.EmissionsKind)
	assert.Len(t, payloads, 1)

	r, err := types.ParseEmissionsReport(payloads[0])
	assert.NoError(t, err)
	assert.Equal(t, common.EpochDay(20240), r.EpochDay)
	assert.Equal(t, 12.5, r.Emissions[1])
	assert.NoError(t, r.VerifySignature(nil))
}

func TestWorker_PriceCycle(t *testing.T) {
	observer := &stubObserver{prices: map[common.NetUID]float64{1: 0.25}}
	sub := &stubSubmitter{}
	w := newTestWorker(t, observer, sub)

	assert.NoError(t, w.priceCycle())
	payloads := sub.got(types.PricesKind)
	assert.Len(t, payloads, 1)

	r, err := types.ParsePriceReport(payloads[0])
	assert.NoError(t, err)
	assert.Equal(t, 0.25, r.Prices[1])
	assert.Equal(t, 100.0, r.StakeTao)
	assert.NoError(t, r.VerifySignature(nil))
}

func TestWorker_FetchFailureSkipsCycle(t *testing.T) {
	observer := &stubObserver{failFetch: true}
	sub := &stubSubmitter{}
	w := newTestWorker(t, observer, sub)

	err := w.priceCycle()
	assert.Error(t, err)
	assert.NotEqual(t, ErrSignerMisconfigured, errors.Cause(err))
	assert.Len(t, sub.got(types.PricesKind), 0)
}

func TestWorker_SubmitRetriesThenSucceeds(t *testing.T) {
	observer := &stubObserver{prices: map[common.NetUID]float64{1: 0.25}}
	sub := &stubSubmitter{failN: 2}
	w := newTestWorker(t, observer, sub)

	assert.NoError(t, w.priceCycle())
	assert.Len(t, sub.got(types.PricesKind), 1)
	assert.Equal(t, 3, sub.calls)
}

func TestWorker_SubmitDropsAfterBudget(t *testing.T) {
	observer := &stubObserver{prices: map[common.NetUID]float64{1: 0.25}}
	sub := &stubSubmitter{failN: 100}
	w := newTestWorker(t, observer, sub)

	err := w.priceCycle()
	assert.Error(t, err)
	assert.Equal(t, submitRetries, sub.calls)
}

func TestNewHotkeyAgent_RejectsBadKey(t *testing.T) {
	_, err := NewHotkeyAgent(nil)
	assert.Equal(t, ErrSignerMisconfigured, errors.Cause(err))
}

func TestHMACAgent(t *testing.T) {
	hotkey, _, err := crypto.GenerateHotkey()
	assert.NoError(t, err)

	_, err = NewHMACAgent(hotkey, nil)
	assert.Equal(t, ErrSignerMisconfigured, errors.Cause(err))

	agent, err := NewHMACAgent(hotkey, []byte("secret"))
	assert.NoError(t, err)
	sig, err := agent.Sign([]byte("payload"))
	assert.NoError(t, err)
	assert.True(t, crypto.VerifyHMAC([]byte("secret"), []byte("payload"), sig))
}

func TestNextDailyTick(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 4, 0, 0, time.UTC)
	tick := nextDailyTick(now, 5*time.Minute)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 5, 0, 0, time.UTC), tick)

	now = time.Date(2025, 6, 1, 0, 6, 0, 0, time.UTC)
	tick = nextDailyTick(now, 5*time.Minute)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 5, 0, 0, time.UTC), tick)
}
