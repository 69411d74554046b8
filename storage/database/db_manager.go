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
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/log"
)

var logger = log.NewModuleLogger(log.StorageDatabase)

// DBManager is the durable store behind the validator: signed reports,
// consensus snapshots, index builder state, vault checkpoints, scores and
// epoch artifacts, each in its own entry database.
type DBManager interface {
	Close()
	NewBatch(dbType DBEntryType) Batch
	GetMemDB() *MemDatabase

	// Report store operations.
	WriteReport(r types.Report) error
	HasReport(kind types.ReportKind, hotkey common.Hotkey, ts time.Time) bool
	ReadReportRange(kind types.ReportKind, t0, t1 time.Time) ([]types.Report, error)
	LatestPerSigner(kind types.ReportKind, notOlderThan time.Time) map[common.Hotkey]types.Report
	LatestReportOf(kind types.ReportKind, hotkey common.Hotkey) (types.Report, bool)
	EvictReports(kind types.ReportKind, olderThan time.Time) (int, error)

	// Consensus snapshots.
	WriteConsensusSnapshot(snap *types.ConsensusSnapshot) error
	ReadConsensusSnapshot(kind types.ReportKind, ts time.Time) (*types.ConsensusSnapshot, error)
	ReadLatestConsensusSnapshot(kind types.ReportKind) (*types.ConsensusSnapshot, error)

	// Index builder state.
	WriteRollingEmissions(r *types.RollingEmissions) error
	ReadRollingEmissions(uid common.NetUID) (*types.RollingEmissions, error)
	ReadAllRollingEmissions() ([]*types.RollingEmissions, error)

	// Vault checkpoint, one opaque blob, atomically replaced.
	WriteVaultState(blob []byte) error
	ReadVaultState() ([]byte, error)

	// Scores per epoch.
	WriteEpochScores(epoch common.EpochID, scores map[string]float64) error
	ReadEpochScores(epoch common.EpochID) (map[string]float64, error)

	// Epoch artifacts and their publication lifecycle.
	WriteEpochArtifact(epoch common.EpochID, artifact []byte, digestHex string) error
	ReadEpochArtifact(epoch common.EpochID) ([]byte, string, error)
	WritePublicationRecord(rec *types.PublicationRecord) error
	ReadPublicationRecord(epoch common.EpochID) (*types.PublicationRecord, error)
	WriteAnchoredEpoch(epoch common.EpochID) error
	ReadAnchoredEpoch() (common.EpochID, bool)

	// Exporter checkpoint.
	WriteExportCheckpoint(epoch common.EpochID) error
	ReadExportCheckpoint() (common.EpochID, bool)
}

// DBEntryType indexes the per-concern databases.
type DBEntryType uint8

const (
	EmissionsReportDB DBEntryType = iota
	PriceReportDB
	NavReportDB
	ConsensusDB
	IndexStateDB
	VaultDB
	ScoreDB
	EpochDB
	MiscDB
	// databaseEntryTypeSize should be the last item in this list!!
	databaseEntryTypeSize
)

var dbDirs = [databaseEntryTypeSize]string{
	"reports/emissions",
	"reports/prices",
	"reports/nav",
	"consensus",
	"indexstate",
	"vault",
	"scores",
	"epochs",
	"misc",
}

// DBConfig handles database related configurations.
type DBConfig struct {
	Dir         string
	DBType      DBType
	Partitioned bool

	LevelDBCacheSize int
	LevelDBHandles   int
}

type databaseManager struct {
	dbs        [databaseEntryTypeSize]Database
	cm         *cacheManager
	isMemoryDB bool
}

// NewDBManager opens the store described by dbc. With Partitioned set, each
// entry type gets its own backend directory; otherwise one shared backend is
// name-spaced with key prefixes.
func NewDBManager(dbc *DBConfig) (DBManager, error) {
	if dbc.DBType == MemoryDB {
		return NewMemoryDBManager(), nil
	}
	dbm := &databaseManager{cm: newCacheManager()}
	if !dbc.Partitioned {
		logger.Info("Single database is used for persistent storage", "DBType", dbc.DBType)
		shared, err := newDatabase(dbc, "chaindata")
		if err != nil {
			return nil, err
		}
		for i := 0; i < int(databaseEntryTypeSize); i++ {
			dbm.dbs[i] = NewTable(shared, string(rune('A'+i)))
		}
		return dbm, nil
	}
	logger.Info("Partitioned database is used for persistent storage", "DBType", dbc.DBType)
	for i := 0; i < int(databaseEntryTypeSize); i++ {
		db, err := newDatabase(dbc, dbDirs[i])
		if err != nil {
			logger.Crit("Failed while opening a database partition", "partition", dbDirs[i], "err", err)
		}
		dbm.dbs[i] = db
	}
	return dbm, nil
}

// NewMemoryDBManager returns a DBManager over a single in-memory database.
func NewMemoryDBManager() DBManager {
	dbm := &databaseManager{cm: newCacheManager(), isMemoryDB: true}
	mem := NewMemDatabase()
	for i := 0; i < int(databaseEntryTypeSize); i++ {
		dbm.dbs[i] = NewTable(mem, string(rune('A'+i)))
	}
	return dbm
}

func newDatabase(dbc *DBConfig, subdir string) (Database, error) {
	dir := filepath.Join(dbc.Dir, subdir)
	switch dbc.DBType {
	case BadgerDB:
		return NewBadgerDB(dir)
	case LevelDB:
		return NewLDBDatabase(dir, dbc.LevelDBCacheSize, dbc.LevelDBHandles)
	default:
		logger.Info("database type is not set, fall back to default LevelDB")
		return NewLDBDatabase(dir, dbc.LevelDBCacheSize, dbc.LevelDBHandles)
	}
}

func (dbm *databaseManager) getDatabase(t DBEntryType) Database {
	return dbm.dbs[t]
}

func (dbm *databaseManager) NewBatch(t DBEntryType) Batch {
	return dbm.getDatabase(t).NewBatch()
}

func (dbm *databaseManager) GetMemDB() *MemDatabase {
	if dbm.isMemoryDB {
		if t, ok := dbm.dbs[0].(*table); ok {
			if memDB, ok := t.db.(*MemDatabase); ok {
				return memDB
			}
		}
	}
	logger.Error("GetMemDB() call to non memory DBManager object.")
	return nil
}

func (dbm *databaseManager) Close() {
	if dbm.isMemoryDB {
		return
	}
	closed := make(map[Database]struct{})
	for _, db := range dbm.dbs {
		if db == nil {
			continue
		}
		if t, ok := db.(*table); ok {
			db = t.db
		}
		if _, done := closed[db]; done {
			continue
		}
		closed[db] = struct{}{}
		db.Close()
	}
}

// cacheManager keeps the hot read paths off disk: the most recent report per
// signer and kind, and the latest consensus snapshot per kind.
type cacheManager struct {
	latestReports  *lru.Cache // (kind|hotkey) -> types.Report
	latestConsensus *lru.Cache // kind -> *types.ConsensusSnapshot
}

func newCacheManager() *cacheManager {
	reports, _ := lru.New(4096)
	consensus, _ := lru.New(8)
	return &cacheManager{latestReports: reports, latestConsensus: consensus}
}

func latestReportCacheKey(kind types.ReportKind, hotkey common.Hotkey) string {
	return string(kind) + "/" + hotkey.Hex()
}

func (cm *cacheManager) writeLatestReport(r types.Report) {
	key := latestReportCacheKey(r.Kind(), r.Signer())
	if prev, ok := cm.latestReports.Get(key); ok {
		if prev.(types.Report).Timestamp().After(r.Timestamp()) {
			return
		}
	}
	cm.latestReports.Add(key, r)
}
