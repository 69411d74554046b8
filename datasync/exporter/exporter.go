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

// Package exporter ships finalized epoch artifacts, score maps and
// consensus snapshots to downstream consumers. A checkpoint records the
// last exported epoch so a restart re-exports the gap instead of losing it.
package exporter

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/log"
)

var logger = log.NewModuleLogger(log.DataSyncExporter)

// Mode selects the downstream repository.
type Mode string

const (
	ModeKafka Mode = "kafka"
	ModeMySQL Mode = "mysql"
)

var ErrUnsupportedMode = errors.New("unsupported exporter mode")

var (
	exportedEpochGauge  = metrics.NewRegisteredGauge("exporter/epoch", nil)
	exportRetryGauge    = metrics.NewRegisteredGauge("exporter/retries", nil)
	exportTimeGauge     = metrics.NewRegisteredGauge("exporter/insertion_time_ms", nil)
)

// DBInsertRetryInterval throttles repository retries.
var DBInsertRetryInterval = 3 * time.Second

// Repository is one downstream sink.
type Repository interface {
	WriteEpochArtifact(epoch common.EpochID, artifact []byte, digestHex string) error
	WriteEpochScores(epoch common.EpochID, scores map[string]float64) error
	WriteConsensusSnapshot(snap *types.ConsensusSnapshot) error
	Close() error
}

// CheckpointStore is the validator database slice holding the export
// cursor.
type CheckpointStore interface {
	ReadExportCheckpoint() (common.EpochID, bool)
	WriteExportCheckpoint(epoch common.EpochID) error
	ReadEpochArtifact(epoch common.EpochID) ([]byte, string, error)
	ReadEpochScores(epoch common.EpochID) (map[string]float64, error)
}

// ExporterConfig selects and parameterizes the sink.
type ExporterConfig struct {
	Mode  Mode
	Kafka *KafkaRepositoryConfig
	MySQL *MySQLRepositoryConfig

	// RedisAddr enables the optional latest-snapshot mirror when set.
	RedisAddr     string
	RedisPassword string
}

// Exporter drives one repository plus the optional redis mirror.
type Exporter struct {
	repo   Repository
	mirror *RedisMirror
	store  CheckpointStore

	quit chan struct{}
}

// NewExporter builds the sink for the configured mode.
func NewExporter(config *ExporterConfig, store CheckpointStore) (*Exporter, error) {
	var (
		repo Repository
		err  error
	)
	switch config.Mode {
	case ModeKafka:
		repo, err = NewKafkaRepository(config.Kafka)
	case ModeMySQL:
		repo, err = NewMySQLRepository(config.MySQL)
	default:
		return nil, errors.Wrapf(ErrUnsupportedMode, "%q", config.Mode)
	}
	if err != nil {
		return nil, err
	}

	e := &Exporter{repo: repo, store: store, quit: make(chan struct{})}
	if config.RedisAddr != "" {
		e.mirror = NewRedisMirror(config.RedisAddr, config.RedisPassword)
	}
	return e, nil
}

// NewExporterWithRepository is the test seam.
func NewExporterWithRepository(repo Repository, store CheckpointStore) *Exporter {
	return &Exporter{repo: repo, store: store, quit: make(chan struct{})}
}

func (e *Exporter) Stop() {
	close(e.quit)
	if err := e.repo.Close(); err != nil {
		logger.Error("Cannot close exporter repository", "err", err)
	}
	if e.mirror != nil {
		e.mirror.Close()
	}
}

// retry keeps calling insert until it succeeds or the exporter stops.
func (e *Exporter) retry(what string, insert func() error) error {
	start := time.Now()
	retries := 0
	for err := insert(); err != nil; err = insert() {
		select {
		case <-e.quit:
			return err
		default:
			retries++
			exportRetryGauge.Update(int64(retries))
			logger.Warn("Retrying export", "what", what, "retryCount", retries, "err", err)
			time.Sleep(DBInsertRetryInterval)
		}
	}
	exportTimeGauge.Update(time.Since(start).Milliseconds())
	return nil
}

// ExportEpoch ships one epoch's artifact and scores, then advances the
// checkpoint.
func (e *Exporter) ExportEpoch(epoch common.EpochID, artifact []byte, digestHex string, scores map[string]float64) error {
	if err := e.retry("artifact", func() error {
		return e.repo.WriteEpochArtifact(epoch, artifact, digestHex)
	}); err != nil {
		return err
	}
	if err := e.retry("scores", func() error {
		return e.repo.WriteEpochScores(epoch, scores)
	}); err != nil {
		return err
	}
	if err := e.store.WriteExportCheckpoint(epoch); err != nil {
		return err
	}
	exportedEpochGauge.Update(int64(epoch))
	logger.Info("Epoch exported", "epoch", epoch, "digest", digestHex)
	return nil
}

// CatchUp re-exports every finalized epoch past the checkpoint, the
// restart path.
func (e *Exporter) CatchUp(latest common.EpochID) error {
	from := common.EpochID(0)
	if cp, ok := e.store.ReadExportCheckpoint(); ok {
		from = cp + 1
	}
	for epoch := from; epoch <= latest; epoch++ {
		artifact, digest, err := e.store.ReadEpochArtifact(epoch)
		if err != nil {
			// Gaps are legitimate: an epoch may predate this validator.
			continue
		}
		scores, err := e.store.ReadEpochScores(epoch)
		if err != nil {
			scores = nil
		}
		if err := e.ExportEpoch(epoch, artifact, digest, scores); err != nil {
			return err
		}
	}
	return nil
}

// ExportSnapshot mirrors one consensus snapshot. Snapshot export is
// best-effort: a failure is logged, never retried, since the next minute
// replaces it anyway.
func (e *Exporter) ExportSnapshot(snap *types.ConsensusSnapshot) {
	if err := e.repo.WriteConsensusSnapshot(snap); err != nil {
		logger.Warn("Snapshot export failed", "kind", snap.Kind, "err", err)
	}
	if e.mirror != nil {
		if err := e.mirror.PublishSnapshot(snap); err != nil {
			logger.Warn("Snapshot mirror failed", "kind", snap.Kind, "err", err)
		}
	}
}

// ExportNav mirrors the derived NAV for external dashboards.
func (e *Exporter) ExportNav(nav float64, supply float64, asOf time.Time) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.PublishNav(nav, supply, asOf); err != nil {
		logger.Warn("NAV mirror failed", "err", err)
	}
}
