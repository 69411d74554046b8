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

package exporter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
)

// MySQLRepositoryConfig parameterizes the archival sink.
type MySQLRepositoryConfig struct {
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string
}

// EpochArtifactRow archives one finalized artifact.
type EpochArtifactRow struct {
	EpochID   uint64 `gorm:"primary_key;auto_increment:false"`
	DigestHex string `gorm:"type:char(64);not null"`
	Artifact  string `gorm:"type:mediumtext;not null"`
	CreatedAt time.Time
}

// MinerScoreRow archives one miner's multiplier for one epoch.
type MinerScoreRow struct {
	ID         uint64 `gorm:"primary_key;auto_increment"`
	EpochID    uint64 `gorm:"index;not null"`
	Hotkey     string `gorm:"type:char(66);not null"`
	Multiplier float64
}

// ConsensusSnapshotRow archives one snapshot, JSON-flattened.
type ConsensusSnapshotRow struct {
	ID       uint64    `gorm:"primary_key;auto_increment"`
	Kind     string    `gorm:"index;not null"`
	Ts       time.Time `gorm:"index"`
	Snapshot string    `gorm:"type:mediumtext;not null"`
}

type mysqlRepository struct {
	db *gorm.DB
}

func NewMySQLRepository(config *MySQLRepositoryConfig) (Repository, error) {
	if config == nil {
		return nil, errors.New("nil mysql repository config")
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4", config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName)
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		logger.Error("Failed to connect exporter database", "host", config.DBHost, "port", config.DBPort, "name", config.DBName, "err", err)
		return nil, errors.Wrap(err, "opening exporter database")
	}
	if err := db.AutoMigrate(&EpochArtifactRow{}, &MinerScoreRow{}, &ConsensusSnapshotRow{}).Error; err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating exporter schema")
	}
	return &mysqlRepository{db: db}, nil
}

func (r *mysqlRepository) WriteEpochArtifact(epoch common.EpochID, artifact []byte, digestHex string) error {
	row := &EpochArtifactRow{EpochID: uint64(epoch), DigestHex: digestHex, Artifact: string(artifact)}
	return r.db.Where(EpochArtifactRow{EpochID: uint64(epoch)}).Assign(row).FirstOrCreate(&EpochArtifactRow{}).Error
}

func (r *mysqlRepository) WriteEpochScores(epoch common.EpochID, scores map[string]float64) error {
	tx := r.db.Begin()
	if err := tx.Where("epoch_id = ?", uint64(epoch)).Delete(MinerScoreRow{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	for hotkey, multiplier := range scores {
		if err := tx.Create(&MinerScoreRow{EpochID: uint64(epoch), Hotkey: hotkey, Multiplier: multiplier}).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

func (r *mysqlRepository) WriteConsensusSnapshot(snap *types.ConsensusSnapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.db.Create(&ConsensusSnapshotRow{Kind: string(snap.Kind), Ts: snap.Ts, Snapshot: string(blob)}).Error
}

func (r *mysqlRepository) Close() error {
	return r.db.Close()
}
