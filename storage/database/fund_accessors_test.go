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

package database

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/params"
)

func newTestDBManager(t *testing.T) (DBManager, func()) {
	dir, err := ioutil.TempDir("", "alphamind-test-database")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	dbc := &DBConfig{Dir: dir, DBType: LevelDB, LevelDBCacheSize: 16, LevelDBHandles: 16, Partitioned: true}
	dbm, err := NewDBManager(dbc)
	if err != nil {
		t.Fatalf("cannot create DBManager: %v", err)
	}
	return dbm, func() {
		dbm.Close()
		os.RemoveAll(dir)
	}
}

func signedPriceReport(t *testing.T, ts time.Time, price float64) *types.PriceReport {
	hotkey, priv, err := crypto.GenerateHotkey()
	assert.NoError(t, err)
	r := &types.PriceReport{
		SchemaVersion: params.ReportSchemaVersion,
		Ts:            ts,
		Prices:        map[common.NetUID]float64{1: price},
		MinerID:       "miner",
		Hotkey:        hotkey,
		StakeTao:      10,
		Scheme:        crypto.SchemeHotkey,
	}
	canonical, err := r.CanonicalBytes()
	assert.NoError(t, err)
	r.Signature = crypto.Sign(priv, canonical)
	return r
}

func TestReportStore_WriteReadRange(t *testing.T) {
	dbm, teardown := newTestDBManager(t)
	defer teardown()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var written []*types.PriceReport
	for i := 0; i < 5; i++ {
		r := signedPriceReport(t, base.Add(time.Duration(i)*time.Minute), 1+float64(i))
		assert.NoError(t, dbm.WriteReport(r))
		written = append(written, r)
	}

	// Duplicate (kind, hotkey, ts) is a no-op.
	assert.Equal(t, ErrDuplicateReport, dbm.WriteReport(written[0]))

	got, err := dbm.ReadReportRange(types.PricesKind, base, base.Add(3*time.Minute))
	assert.NoError(t, err)
	assert.Len(t, got, 3)
	// Ordered by timestamp ascending.
	for i := 1; i < len(got); i++ {
		assert.True(t, !got[i].Timestamp().Before(got[i-1].Timestamp()))
	}
}

func TestReportStore_LatestPerSigner(t *testing.T) {
	dbm, teardown := newTestDBManager(t)
	defer teardown()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r1 := signedPriceReport(t, base, 1.0)
	r2 := signedPriceReport(t, base.Add(time.Minute), 2.0)
	assert.NoError(t, dbm.WriteReport(r1))
	assert.NoError(t, dbm.WriteReport(r2))

	latest := dbm.LatestPerSigner(types.PricesKind, base.Add(-time.Hour))
	assert.Len(t, latest, 2)
	assert.Equal(t, r1.Ts, latest[r1.Hotkey].Timestamp())

	cached, ok := dbm.LatestReportOf(types.PricesKind, r2.Hotkey)
	assert.True(t, ok)
	assert.Equal(t, r2.Ts, cached.Timestamp())
}

func TestReportStore_Evict(t *testing.T) {
	dbm, teardown := newTestDBManager(t)
	defer teardown()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		assert.NoError(t, dbm.WriteReport(signedPriceReport(t, base.Add(time.Duration(i)*time.Hour), 1)))
	}
	n, err := dbm.EvictReports(types.PricesKind, base.Add(2*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := dbm.ReadReportRange(types.PricesKind, base, base.Add(5*time.Hour))
	assert.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestConsensusSnapshot_ReadAndWrite(t *testing.T) {
	dbm, teardown := newTestDBManager(t)
	defer teardown()

	snap := &types.ConsensusSnapshot{
		Kind: types.PricesKind,
		Ts:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Entries: map[common.NetUID]types.ConsensusEntry{
			1: {Value: 10, ContributingStake: 160, ContributorCount: 3, StalenessSec: 12},
		},
	}
	assert.NoError(t, dbm.WriteConsensusSnapshot(snap))

	got, err := dbm.ReadConsensusSnapshot(types.PricesKind, snap.Ts)
	assert.NoError(t, err)
	assert.Equal(t, snap.Entries, got.Entries)

	latest, err := dbm.ReadLatestConsensusSnapshot(types.PricesKind)
	assert.NoError(t, err)
	assert.Equal(t, snap.Ts, latest.Ts)
}

func TestRollingEmissions_ReadAndWrite(t *testing.T) {
	dbm, teardown := newTestDBManager(t)
	defer teardown()

	r := &types.RollingEmissions{
		NetUID:       8,
		Entries:      []types.RollingEntry{{EpochDay: 20240, Value: 10}, {EpochDay: 20241, Value: 12}},
		FirstSeenDay: 20100,
	}
	assert.NoError(t, dbm.WriteRollingEmissions(r))

	got, err := dbm.ReadRollingEmissions(8)
	assert.NoError(t, err)
	assert.Equal(t, r, got)

	all, err := dbm.ReadAllRollingEmissions()
	assert.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = dbm.ReadRollingEmissions(9)
	assert.Equal(t, ErrNotFound, err)
}

func TestEpochArtifact_Lifecycle(t *testing.T) {
	dbm, teardown := newTestDBManager(t)
	defer teardown()

	artifact := []byte(`{"epoch_id":3}`)
	assert.NoError(t, dbm.WriteEpochArtifact(3, artifact, "abcd"))
	// Artifacts are immutable once finalized.
	assert.Error(t, dbm.WriteEpochArtifact(3, artifact, "abcd"))

	blob, digest, err := dbm.ReadEpochArtifact(3)
	assert.NoError(t, err)
	assert.Equal(t, artifact, blob)
	assert.Equal(t, "abcd", digest)

	rec := &types.PublicationRecord{EpochID: 3, State: types.PubPublished, DigestHex: "abcd", AnchorOK: true, AttemptCount: 1}
	assert.NoError(t, dbm.WritePublicationRecord(rec))
	gotRec, err := dbm.ReadPublicationRecord(3)
	assert.NoError(t, err)
	assert.Equal(t, rec.State, gotRec.State)
	assert.Equal(t, rec.DigestHex, gotRec.DigestHex)
	assert.Equal(t, rec.AttemptCount, gotRec.AttemptCount)
	assert.True(t, gotRec.AnchorOK)

	_, ok := dbm.ReadAnchoredEpoch()
	assert.False(t, ok)
	assert.NoError(t, dbm.WriteAnchoredEpoch(3))
	anchored, ok := dbm.ReadAnchoredEpoch()
	assert.True(t, ok)
	assert.Equal(t, common.EpochID(3), anchored)
}

func TestVaultState_ReadAndWrite(t *testing.T) {
	dbm, teardown := newTestDBManager(t)
	defer teardown()

	_, err := dbm.ReadVaultState()
	assert.Equal(t, ErrNotFound, err)

	blob := []byte(`{"total_supply":998}`)
	assert.NoError(t, dbm.WriteVaultState(blob))
	got, err := dbm.ReadVaultState()
	assert.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestMemoryDBManager(t *testing.T) {
	dbm := NewMemoryDBManager()
	defer dbm.Close()

	r := signedPriceReport(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), 3)
	assert.NoError(t, dbm.WriteReport(r))
	got, err := dbm.ReadReportRange(types.PricesKind, r.Ts.Add(-time.Minute), r.Ts.Add(time.Minute))
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NotNil(t, dbm.GetMemDB())
}
