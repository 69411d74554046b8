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

package reportpool

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/params"
	"github.com/alexlange1/alphamind/storage/database"
	"golang.org/x/crypto/ed25519"
)

type stubStakes struct {
	stakes map[common.Hotkey]float64
	age    time.Duration
}

func (s *stubStakes) StakeOf(h common.Hotkey) float64 { return s.stakes[h] }
func (s *stubStakes) SnapshotAge() time.Duration      { return s.age }

type stubConsensusView struct {
	prices map[common.NetUID]float64
}

func (s *stubConsensusView) LatestPrice(uid common.NetUID) (float64, bool) {
	p, ok := s.prices[uid]
	return p, ok
}

type testMiner struct {
	hotkey common.Hotkey
	priv   ed25519.PrivateKey
}

func newTestMiner(t *testing.T) *testMiner {
	hotkey, priv, err := crypto.GenerateHotkey()
	assert.NoError(t, err)
	return &testMiner{hotkey: hotkey, priv: priv}
}

func (m *testMiner) priceWire(t *testing.T, ts time.Time, prices map[common.NetUID]float64) []byte {
	r := &types.PriceReport{
		SchemaVersion: params.ReportSchemaVersion,
		Ts:            ts,
		Prices:        prices,
		MinerID:       "m",
		Hotkey:        m.hotkey,
		StakeTao:      100,
		Scheme:        crypto.SchemeHotkey,
	}
	canonical, err := r.CanonicalBytes()
	assert.NoError(t, err)
	r.Signature = crypto.Sign(m.priv, canonical)
	wire, err := types.MarshalWire(r)
	assert.NoError(t, err)
	return wire
}

func newTestPool(t *testing.T, miner *testMiner) (*Pool, *stubStakes, *stubConsensusView) {
	stakes := &stubStakes{stakes: map[common.Hotkey]float64{miner.hotkey: 100}}
	cview := &stubConsensusView{prices: map[common.NetUID]float64{1: 10}}
	fund := params.DefaultFundConfig
	config := DefaultPoolConfig
	config.Journal = "" // journal covered separately
	p := NewPool(config, &fund, database.NewMemoryDBManager(), stakes, cview, nil)
	return p, stakes, cview
}

func TestPool_AcceptsValidReport(t *testing.T) {
	miner := newTestMiner(t)
	p, _, _ := newTestPool(t, miner)

	wire := miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{1: 10})
	r, err := p.process(queued{kind: types.PricesKind, payload: wire})
	assert.NoError(t, err)
	assert.Equal(t, miner.hotkey, r.Signer())
	assert.Len(t, p.Recent(types.PricesKind, params.PricesMaxAge), 1)
}

func TestPool_RejectsStale(t *testing.T) {
	miner := newTestMiner(t)
	p, _, _ := newTestPool(t, miner)

	wire := miner.priceWire(t, time.Now().UTC().Add(-10*time.Minute), map[common.NetUID]float64{1: 10})
	_, err := p.process(queued{kind: types.PricesKind, payload: wire})
	assert.Equal(t, ErrStaleReport, errors.Cause(err))

	wire = miner.priceWire(t, time.Now().UTC().Add(5*time.Minute), map[common.NetUID]float64{1: 10})
	_, err = p.process(queued{kind: types.PricesKind, payload: wire})
	assert.Equal(t, ErrFutureReport, errors.Cause(err))
}

func TestPool_RejectsBadSignature(t *testing.T) {
	miner := newTestMiner(t)
	p, _, _ := newTestPool(t, miner)

	wire := miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{1: 10})
	// Corrupt one digit of the reported price.
	tampered := []byte(string(wire))
	for i := range tampered {
		if tampered[i] == ':' && tampered[i+1] == '1' && tampered[i+2] == '0' {
			tampered[i+1] = '2'
			break
		}
	}
	_, err := p.process(queued{kind: types.PricesKind, payload: tampered})
	assert.Equal(t, types.ErrBadSignature, errors.Cause(err))
}

func TestPool_RejectsUnknownSigner(t *testing.T) {
	miner := newTestMiner(t)
	p, stakes, _ := newTestPool(t, miner)
	delete(stakes.stakes, miner.hotkey)

	wire := miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{1: 10})
	_, err := p.process(queued{kind: types.PricesKind, payload: wire})
	assert.Equal(t, ErrUnknownSigner, errors.Cause(err))
}

func TestPool_RejectsStaleStakeSnapshot(t *testing.T) {
	miner := newTestMiner(t)
	p, stakes, _ := newTestPool(t, miner)
	stakes.age = 15 * 24 * time.Hour

	wire := miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{1: 10})
	_, err := p.process(queued{kind: types.PricesKind, payload: wire})
	assert.Equal(t, ErrStakeSnapshotOld, errors.Cause(err))
}

func TestPool_SanityBand(t *testing.T) {
	miner := newTestMiner(t)
	p, _, _ := newTestPool(t, miner)

	// 20x the consensus price of 10 is the band edge; beyond it rejects.
	wire := miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{1: 250})
	_, err := p.process(queued{kind: types.PricesKind, payload: wire})
	assert.Equal(t, ErrOutOfSanityBand, errors.Cause(err))

	wire = miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{1: 0.01})
	_, err = p.process(queued{kind: types.PricesKind, payload: wire})
	assert.Equal(t, ErrOutOfSanityBand, errors.Cause(err))

	// A constituent without a consensus price yet is not banded.
	wire = miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{9: 1000})
	_, err = p.process(queued{kind: types.PricesKind, payload: wire})
	assert.NoError(t, err)
}

func TestPool_RejectsHMACWhenHotkeyRequired(t *testing.T) {
	miner := newTestMiner(t)
	p, _, _ := newTestPool(t, miner)
	secret := []byte("secret")
	p.config.HMACSecret = secret

	r := &types.PriceReport{
		SchemaVersion: params.ReportSchemaVersion,
		Ts:            time.Now().UTC().Truncate(time.Second),
		Prices:        map[common.NetUID]float64{1: 10},
		MinerID:       "m",
		Hotkey:        miner.hotkey,
		StakeTao:      100,
		Scheme:        crypto.SchemeHMAC,
	}
	canonical, err := r.CanonicalBytes()
	assert.NoError(t, err)
	r.Signature = crypto.SignHMAC(secret, canonical)
	wire, err := types.MarshalWire(r)
	assert.NoError(t, err)

	_, err = p.process(queued{kind: types.PricesKind, payload: wire})
	assert.Equal(t, ErrHMACNotAccepted, errors.Cause(err))

	// With the policy relaxed the same report passes.
	p.config.RequireHotkeySig = false
	_, err = p.process(queued{kind: types.PricesKind, payload: wire})
	assert.NoError(t, err)
}

func TestPool_DuplicateIsNoOp(t *testing.T) {
	miner := newTestMiner(t)
	p, _, _ := newTestPool(t, miner)

	ts := time.Now().UTC().Truncate(time.Second)
	wire := miner.priceWire(t, ts, map[common.NetUID]float64{1: 10})
	_, err := p.process(queued{kind: types.PricesKind, payload: wire})
	assert.NoError(t, err)
	_, err = p.process(queued{kind: types.PricesKind, payload: wire})
	assert.Equal(t, database.ErrDuplicateReport, errors.Cause(err))
	assert.Len(t, p.Recent(types.PricesKind, params.PricesMaxAge), 1)
}

func TestPool_EnqueueAndDrain(t *testing.T) {
	miner := newTestMiner(t)
	stakes := &stubStakes{stakes: map[common.Hotkey]float64{miner.hotkey: 100}}
	fund := params.DefaultFundConfig
	config := DefaultPoolConfig
	config.Journal = ""
	config.NumHandlers = 1

	acceptedCh := make(chan types.Report, 1)
	p := NewPool(config, &fund, database.NewMemoryDBManager(), stakes, nil, func(r types.Report) {
		acceptedCh <- r
	})
	p.Start()
	defer p.Stop()

	wire := miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{1: 10})
	assert.NoError(t, p.Enqueue(types.PricesKind, wire))

	select {
	case r := <-acceptedCh:
		assert.Equal(t, types.PricesKind, r.Kind())
	case <-time.After(5 * time.Second):
		t.Fatal("report was not processed")
	}
}

func TestPool_QueueFull(t *testing.T) {
	miner := newTestMiner(t)
	stakes := &stubStakes{stakes: map[common.Hotkey]float64{miner.hotkey: 100}}
	fund := params.DefaultFundConfig
	config := DefaultPoolConfig
	config.Journal = ""
	config.QueueSize = 1
	p := NewPool(config, &fund, database.NewMemoryDBManager(), stakes, nil, nil)
	// Not started: the queue fills immediately.
	assert.NoError(t, p.Enqueue(types.PricesKind, []byte("{}")))
	assert.Equal(t, ErrQueueFull, p.Enqueue(types.PricesKind, []byte("{}")))
}

func TestJournal_ReplayAcrossRestart(t *testing.T) {
	dir, err := ioutil.TempDir("", "alphamind-test-journal")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)
	journalPath := filepath.Join(dir, "reports.journal")

	miner := newTestMiner(t)
	stakes := &stubStakes{stakes: map[common.Hotkey]float64{miner.hotkey: 100}}
	fund := params.DefaultFundConfig
	config := DefaultPoolConfig
	config.Journal = journalPath

	p := NewPool(config, &fund, database.NewMemoryDBManager(), stakes, nil, nil)
	wire := miner.priceWire(t, time.Now().UTC(), map[common.NetUID]float64{1: 10})
	_, err = p.process(queued{kind: types.PricesKind, payload: wire})
	assert.NoError(t, err)
	assert.NoError(t, p.journal.insert(types.PricesKind, wire))
	p.journal.close()

	// A fresh pool over an empty database replays the journal.
	p2 := NewPool(config, &fund, database.NewMemoryDBManager(), stakes, nil, nil)
	assert.Len(t, p2.Recent(types.PricesKind, params.PricesMaxAge), 1)
	p2.journal.close()
}
