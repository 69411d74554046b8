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

package epoch

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/params"
	"github.com/alexlange1/alphamind/storage/database"
)

type stubPublisher struct {
	failures int
	calls    int
	verify   string
}

func (p *stubPublisher) Publish(_ context.Context, epochID common.EpochID, digestHex, _ string) (PublishReceipt, error) {
	p.calls++
	if p.calls <= p.failures {
		return PublishReceipt{}, errors.New("rpc timeout")
	}
	p.verify = digestHex
	return PublishReceipt{TxHash: "0xfeed", ChainID: "base-mainnet", Status: "confirmed"}, nil
}

func (p *stubPublisher) Verify(context.Context, common.EpochID) (string, string, error) {
	return p.verify, "confirmed", nil
}

func testWeightSet(epoch common.EpochID) *types.WeightSet {
	return &types.WeightSet{
		SchemaVersion:      params.ReportSchemaVersion,
		EpochID:            epoch,
		AsOfTs:             time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EpochIndex:         uint64(epoch),
		CutoverTs:          time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Method:             params.WeightMethod,
		EligibilityMinDays: 90,
		Constituents: []types.Constituent{
			{UID: 1, WeightBps: 7000, Emissions14d: 70},
			{UID: 2, WeightBps: 3000, Emissions14d: 30},
		},
	}
}

func newTestMachine(pub Publisher) (*Machine, database.DBManager) {
	cfg := params.DefaultFundConfig
	store := database.NewMemoryDBManager()
	m := NewMachine(&cfg, store, pub, "validator-1")
	m.sleep = func(time.Duration) {}
	return m, store
}

func TestEpochSchedule(t *testing.T) {
	genesis := common.EpochDay(params.EpochGenesisUnixDay).Time()
	assert.Equal(t, time.Sunday, genesis.Weekday())

	assert.Equal(t, common.EpochID(0), IndexOf(genesis, 14))
	assert.Equal(t, common.EpochID(0), IndexOf(genesis.Add(13*24*time.Hour), 14))
	assert.Equal(t, common.EpochID(1), IndexOf(genesis.Add(14*24*time.Hour), 14))

	next := NextBoundaryAfter(genesis.Add(3*24*time.Hour), 14)
	assert.Equal(t, genesis.Add(14*24*time.Hour), next)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestMachine_FinalizeAndAnchor(t *testing.T) {
	pub := &stubPublisher{}
	m, store := newTestMachine(pub)

	w := testWeightSet(5)
	rec, err := m.Finalize(context.Background(), w, map[string]float64{"0xaa": 1.0})
	assert.NoError(t, err)
	assert.Equal(t, types.PubPublished, rec.State)
	assert.True(t, rec.AnchorOK)
	assert.Equal(t, "0xfeed", rec.TxHash)
	assert.Equal(t, 1, rec.AttemptCount)

	artifact, digest, err := store.ReadEpochArtifact(5)
	assert.NoError(t, err)
	parsed, err := types.UnmarshalArtifact(artifact)
	assert.NoError(t, err)
	wantDigest, _ := parsed.Digest()
	assert.Equal(t, wantDigest, digest)

	anchored, ok := store.ReadAnchoredEpoch()
	assert.True(t, ok)
	assert.Equal(t, common.EpochID(5), anchored)

	scores, err := store.ReadEpochScores(5)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, scores["0xaa"])
}

func TestMachine_AnchorRetriesThenSucceeds(t *testing.T) {
	pub := &stubPublisher{failures: 2}
	m, _ := newTestMachine(pub)

	rec, err := m.Finalize(context.Background(), testWeightSet(6), nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, rec.AttemptCount)
	assert.True(t, rec.AnchorOK)
}

func TestMachine_AnchorExhaustion(t *testing.T) {
	pub := &stubPublisher{failures: 100}
	m, store := newTestMachine(pub)

	rec, err := m.Finalize(context.Background(), testWeightSet(7), nil)
	assert.Equal(t, ErrAnchorFailed, errors.Cause(err))
	assert.Equal(t, types.PubAnchorFailed, rec.State)
	assert.Equal(t, params.DefaultFundConfig.PublishMaxAttempts, rec.AttemptCount)

	// The artifact is still canonical and locally authoritative.
	_, digest, err := store.ReadEpochArtifact(7)
	assert.NoError(t, err)
	assert.Equal(t, rec.DigestHex, digest)

	// Admin retry re-arms the budget and succeeds once the chain recovers.
	pub.failures = 0
	rec, err = m.RetryAnchor(context.Background(), 7)
	assert.NoError(t, err)
	assert.True(t, rec.AnchorOK)

	_, err = m.RetryAnchor(context.Background(), 7)
	assert.Equal(t, ErrAlreadyAnchored, errors.Cause(err))
}

func TestMachine_Archive(t *testing.T) {
	pub := &stubPublisher{}
	m, store := newTestMachine(pub)
	_, err := m.Finalize(context.Background(), testWeightSet(8), nil)
	assert.NoError(t, err)

	assert.NoError(t, m.Archive(8))
	rec, err := store.ReadPublicationRecord(8)
	assert.NoError(t, err)
	assert.Equal(t, types.PubArchived, rec.State)

	assert.Equal(t, ErrUnknownEpoch, m.Archive(99))
}

func TestMachine_DigestDeterminism(t *testing.T) {
	pub := &stubPublisher{}
	m1, s1 := newTestMachine(pub)
	m2, s2 := newTestMachine(&stubPublisher{})

	_, err := m1.Finalize(context.Background(), testWeightSet(9), nil)
	assert.NoError(t, err)
	_, err = m2.Finalize(context.Background(), testWeightSet(9), nil)
	assert.NoError(t, err)

	a1, d1, _ := s1.ReadEpochArtifact(9)
	a2, d2, _ := s2.ReadEpochArtifact(9)
	assert.Equal(t, a1, a2)
	assert.Equal(t, d1, d2)
}
