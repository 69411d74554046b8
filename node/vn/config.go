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
	"path/filepath"
	"time"

	"github.com/alexlange1/alphamind/datasync/exporter"
	"github.com/alexlange1/alphamind/datasync/reportsync"
	"github.com/alexlange1/alphamind/fund/reportpool"
	"github.com/alexlange1/alphamind/params"
	"github.com/alexlange1/alphamind/storage/database"
)

// Config collects everything the validator node needs.
type Config struct {
	Name    string `toml:"-"`
	DataDir string

	DBType           database.DBType
	PartitionedDB    bool
	LevelDBCacheSize int
	LevelDBHandles   int

	// SignerID identifies this validator towards the on-chain publisher.
	SignerID string

	// PriceConsensusInterval drives the price/NAV consensus ticks.
	PriceConsensusInterval time.Duration

	Fund params.FundConfig
	Pool reportpool.PoolConfig

	// Kafka enables the report bus when non-nil; nil keeps ingestion
	// purely local (tests, replaying journals).
	Kafka *reportsync.KafkaConfig `toml:",omitempty"`
	// Exporter enables the downstream export service when non-nil.
	Exporter *exporter.ExporterConfig `toml:",omitempty"`
}

// DefaultConfig contains the default configurations for the validator node.
var DefaultConfig = Config{
	Name:                   "amv",
	DataDir:                "alphamind-data",
	DBType:                 database.LevelDB,
	PartitionedDB:          true,
	LevelDBCacheSize:       128,
	LevelDBHandles:         256,
	PriceConsensusInterval: time.Minute,
	Fund:                   params.DefaultFundConfig,
	Pool:                   reportpool.DefaultPoolConfig,
}

// DBConfig derives the storage configuration.
func (c *Config) DBConfig() *database.DBConfig {
	return &database.DBConfig{
		Dir:              filepath.Join(c.DataDir, "chaindata"),
		DBType:           c.DBType,
		Partitioned:      c.PartitionedDB,
		LevelDBCacheSize: c.LevelDBCacheSize,
		LevelDBHandles:   c.LevelDBHandles,
	}
}

// sanitize fixes unworkable values in place.
func (c *Config) sanitize() {
	if c.PriceConsensusInterval <= 0 {
		c.PriceConsensusInterval = DefaultConfig.PriceConsensusInterval
	}
	if c.Pool.Journal != "" && !filepath.IsAbs(c.Pool.Journal) {
		c.Pool.Journal = filepath.Join(c.DataDir, c.Pool.Journal)
	}
}
