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
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
)

var (
	ErrNotFound        = errors.New("entry not found")
	ErrDuplicateReport = errors.New("duplicate report")
)

func reportDBOf(kind types.ReportKind) DBEntryType {
	switch kind {
	case types.EmissionsKind:
		return EmissionsReportDB
	case types.PricesKind:
		return PriceReportDB
	default:
		return NavReportDB
	}
}

// WriteReport persists one validated report. A duplicate (kind, hotkey, ts)
// is a no-op reported as ErrDuplicateReport so callers can count it.
func (dbm *databaseManager) WriteReport(r types.Report) error {
	db := dbm.getDatabase(reportDBOf(r.Kind()))
	key := reportKey(r.Timestamp(), r.Signer())
	if has, err := db.Has(key); err != nil {
		return err
	} else if has {
		return ErrDuplicateReport
	}
	blob, err := types.MarshalWire(r)
	if err != nil {
		return err
	}
	if err := db.Put(key, blob); err != nil {
		return errors.Wrap(err, "report write failed")
	}
	dbm.cm.writeLatestReport(r)
	return nil
}

func (dbm *databaseManager) HasReport(kind types.ReportKind, hotkey common.Hotkey, ts time.Time) bool {
	db := dbm.getDatabase(reportDBOf(kind))
	has, err := db.Has(reportKey(ts, hotkey))
	return err == nil && has
}

// ReadReportRange returns the reports with t0 <= ts < t1 in timestamp order.
func (dbm *databaseManager) ReadReportRange(kind types.ReportKind, t0, t1 time.Time) ([]types.Report, error) {
	db := dbm.getDatabase(reportDBOf(kind))
	it := db.NewIteratorWithRange(encodeUnixNano(t0), encodeUnixNano(t1))
	defer it.Release()

	var out []types.Report
	for it.Next() {
		r, err := types.ParseReport(kind, it.Value())
		if err != nil {
			// One corrupt entry must not poison the range.
			logger.Error("Skipping undecodable report entry", "kind", kind, "err", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// LatestPerSigner returns the most recent report per hotkey not older than
// the given bound. It always scans the stored range from the bound to one
// day ahead; the LRU cache is not consulted.
func (dbm *databaseManager) LatestPerSigner(kind types.ReportKind, notOlderThan time.Time) map[common.Hotkey]types.Report {
	out := make(map[common.Hotkey]types.Report)
	reports, err := dbm.ReadReportRange(kind, notOlderThan, time.Now().Add(24*time.Hour))
	if err != nil {
		return out
	}
	for _, r := range reports {
		prev, ok := out[r.Signer()]
		if !ok || r.Timestamp().After(prev.Timestamp()) {
			out[r.Signer()] = r
		}
	}
	return out
}

// LatestReportOf answers "what did this signer last send" from the LRU,
// without touching disk. Misses simply return false; callers that need a
// definitive answer use LatestPerSigner.
func (dbm *databaseManager) LatestReportOf(kind types.ReportKind, hotkey common.Hotkey) (types.Report, bool) {
	if cached, ok := dbm.cm.latestReports.Get(latestReportCacheKey(kind, hotkey)); ok {
		return cached.(types.Report), true
	}
	return nil, false
}

// EvictReports deletes reports older than the bound and reports how many
// entries went away.
func (dbm *databaseManager) EvictReports(kind types.ReportKind, olderThan time.Time) (int, error) {
	db := dbm.getDatabase(reportDBOf(kind))
	it := db.NewIteratorWithRange(encodeUnixNano(time.Unix(0, 0)), encodeUnixNano(olderThan))
	batch := db.NewBatch()
	count := 0
	for it.Next() {
		if err := batch.Delete(it.Key()); err != nil {
			it.Release()
			return count, err
		}
		count++
	}
	it.Release()
	if count == 0 {
		return 0, nil
	}
	if err := batch.Write(); err != nil {
		return 0, errors.Wrap(err, "report eviction failed")
	}
	return count, nil
}

func (dbm *databaseManager) WriteConsensusSnapshot(snap *types.ConsensusSnapshot) error {
	db := dbm.getDatabase(ConsensusDB)
	blob, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := db.Put(consensusKey(snap.Kind, snap.Ts), blob); err != nil {
		return err
	}
	if err := db.Put(latestConsensusKey(snap.Kind), blob); err != nil {
		return err
	}
	dbm.cm.latestConsensus.Add(snap.Kind, snap)
	return nil
}

func (dbm *databaseManager) ReadConsensusSnapshot(kind types.ReportKind, ts time.Time) (*types.ConsensusSnapshot, error) {
	db := dbm.getDatabase(ConsensusDB)
	blob, err := db.Get(consensusKey(kind, ts))
	if err != nil {
		return nil, ErrNotFound
	}
	snap := new(types.ConsensusSnapshot)
	if err := json.Unmarshal(blob, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (dbm *databaseManager) ReadLatestConsensusSnapshot(kind types.ReportKind) (*types.ConsensusSnapshot, error) {
	if cached, ok := dbm.cm.latestConsensus.Get(kind); ok {
		return cached.(*types.ConsensusSnapshot), nil
	}
	db := dbm.getDatabase(ConsensusDB)
	blob, err := db.Get(latestConsensusKey(kind))
	if err != nil {
		return nil, ErrNotFound
	}
	snap := new(types.ConsensusSnapshot)
	if err := json.Unmarshal(blob, snap); err != nil {
		return nil, err
	}
	dbm.cm.latestConsensus.Add(kind, snap)
	return snap, nil
}

func (dbm *databaseManager) WriteRollingEmissions(r *types.RollingEmissions) error {
	db := dbm.getDatabase(IndexStateDB)
	blob, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return db.Put(rollingKey(r.NetUID), blob)
}

func (dbm *databaseManager) ReadRollingEmissions(uid common.NetUID) (*types.RollingEmissions, error) {
	db := dbm.getDatabase(IndexStateDB)
	blob, err := db.Get(rollingKey(uid))
	if err != nil {
		return nil, ErrNotFound
	}
	r := new(types.RollingEmissions)
	if err := json.Unmarshal(blob, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (dbm *databaseManager) ReadAllRollingEmissions() ([]*types.RollingEmissions, error) {
	db := dbm.getDatabase(IndexStateDB)
	it := db.NewIteratorWithPrefix([]byte("r"))
	defer it.Release()
	var out []*types.RollingEmissions
	for it.Next() {
		r := new(types.RollingEmissions)
		if err := json.Unmarshal(it.Value(), r); err != nil {
			logger.Error("Skipping undecodable rolling emissions entry", "err", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (dbm *databaseManager) WriteVaultState(blob []byte) error {
	return dbm.getDatabase(VaultDB).Put(vaultStateKey, blob)
}

func (dbm *databaseManager) ReadVaultState() ([]byte, error) {
	blob, err := dbm.getDatabase(VaultDB).Get(vaultStateKey)
	if err != nil {
		return nil, ErrNotFound
	}
	return blob, nil
}

func (dbm *databaseManager) WriteEpochScores(epoch common.EpochID, scores map[string]float64) error {
	blob, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	return dbm.getDatabase(ScoreDB).Put(scoresKey(epoch), blob)
}

func (dbm *databaseManager) ReadEpochScores(epoch common.EpochID) (map[string]float64, error) {
	blob, err := dbm.getDatabase(ScoreDB).Get(scoresKey(epoch))
	if err != nil {
		return nil, ErrNotFound
	}
	out := make(map[string]float64)
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteEpochArtifact stores a finalized artifact with its digest sidecar.
// Artifacts are immutable; a second write for the same epoch is refused.
func (dbm *databaseManager) WriteEpochArtifact(epoch common.EpochID, artifact []byte, digestHex string) error {
	db := dbm.getDatabase(EpochDB)
	if has, err := db.Has(artifactKey(epoch)); err != nil {
		return err
	} else if has {
		return errors.Errorf("artifact for epoch %d already finalized", epoch)
	}
	if err := db.Put(artifactKey(epoch), artifact); err != nil {
		return errors.Wrap(err, "artifact write failed")
	}
	return db.Put(digestKey(epoch), []byte(digestHex))
}

func (dbm *databaseManager) ReadEpochArtifact(epoch common.EpochID) ([]byte, string, error) {
	db := dbm.getDatabase(EpochDB)
	artifact, err := db.Get(artifactKey(epoch))
	if err != nil {
		return nil, "", ErrNotFound
	}
	digest, err := db.Get(digestKey(epoch))
	if err != nil {
		return nil, "", ErrNotFound
	}
	return artifact, string(digest), nil
}

func (dbm *databaseManager) WritePublicationRecord(rec *types.PublicationRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return dbm.getDatabase(EpochDB).Put(publicationKey(rec.EpochID), blob)
}

func (dbm *databaseManager) ReadPublicationRecord(epoch common.EpochID) (*types.PublicationRecord, error) {
	blob, err := dbm.getDatabase(EpochDB).Get(publicationKey(epoch))
	if err != nil {
		return nil, ErrNotFound
	}
	rec := new(types.PublicationRecord)
	if err := json.Unmarshal(blob, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// WriteAnchoredEpoch records the newest epoch whose digest completed its
// on-chain anchor call.
func (dbm *databaseManager) WriteAnchoredEpoch(epoch common.EpochID) error {
	return dbm.getDatabase(MiscDB).Put(anchoredEpochKey, encodeEpochID(epoch))
}

func (dbm *databaseManager) ReadAnchoredEpoch() (common.EpochID, bool) {
	blob, err := dbm.getDatabase(MiscDB).Get(anchoredEpochKey)
	if err != nil || len(blob) != 8 {
		return 0, false
	}
	return common.EpochID(binary.BigEndian.Uint64(blob)), true
}

func (dbm *databaseManager) WriteExportCheckpoint(epoch common.EpochID) error {
	return dbm.getDatabase(MiscDB).Put(exportCheckpointKey, encodeEpochID(epoch))
}

func (dbm *databaseManager) ReadExportCheckpoint() (common.EpochID, bool) {
	blob, err := dbm.getDatabase(MiscDB).Get(exportCheckpointKey)
	if err != nil || len(blob) != 8 {
		return 0, false
	}
	return common.EpochID(binary.BigEndian.Uint64(blob)), true
}
