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

// Package vn assembles the validator node: report ingestion through the
// pool, the per-minute and per-day consensus tasks, the index builder, the
// vault actor, the scoring registry, the epoch machine and the exporter,
// all wired over one database manager.
package vn

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"gopkg.in/fatih/set.v0"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/datasync/exporter"
	"github.com/alexlange1/alphamind/datasync/reportsync"
	fundconsensus "github.com/alexlange1/alphamind/fund/consensus"
	"github.com/alexlange1/alphamind/fund/epoch"
	"github.com/alexlange1/alphamind/fund/index"
	"github.com/alexlange1/alphamind/fund/reportpool"
	"github.com/alexlange1/alphamind/fund/scoring"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/fund/vault"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/params"
	"github.com/alexlange1/alphamind/storage/database"
)

var logger = log.NewModuleLogger(log.NodeVN)

var (
	navGauge             = metrics.NewRegisteredGaugeFloat64("vn/nav", nil)
	navAdvisoryDevGauge  = metrics.NewRegisteredGaugeFloat64("vn/nav/advisory_deviation", nil)
	snapshotDimGauge     = metrics.NewRegisteredGauge("vn/consensus/dimensions", nil)
)

// StakeSource is the external-chain stake view the node consumes; the
// production implementation polls the chain and caches a snapshot.
type StakeSource interface {
	StakeOf(hotkey common.Hotkey) float64
	TotalActiveStake() float64
	SnapshotAge() time.Duration
}

// ValidatorNode owns the validator process's long-lived tasks.
type ValidatorNode struct {
	config *Config

	dbm      database.DBManager
	registry *scoring.Registry
	pool     *reportpool.Pool
	engine   *fundconsensus.Engine
	builder  *index.Builder
	vlt      *vault.Vault
	machine  *epoch.Machine
	stakes   StakeSource

	broker *reportsync.Broker
	exp    *exporter.Exporter

	// pausedIndex holds constituents excluded from the next weight set;
	// the vault carries its own paused set for trading.
	pausedIndex *set.Set

	currentWeightsMu sync.RWMutex
	currentWeights   map[common.NetUID]uint64

	lastArchived common.EpochID

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	wg     sync.WaitGroup
}

// consensusView adapts the node for the pool's sanity band.
type consensusView struct{ dbm database.DBManager }

func (v consensusView) LatestPrice(uid common.NetUID) (float64, bool) {
	snap, err := v.dbm.ReadLatestConsensusSnapshot(types.PricesKind)
	if err != nil {
		return 0, false
	}
	return snap.Value(uid)
}

// priceSource adapts the node for the vault actor.
type priceSource struct{ dbm database.DBManager }

func (p priceSource) LatestPrices() (map[common.NetUID]float64, time.Time, bool) {
	snap, err := p.dbm.ReadLatestConsensusSnapshot(types.PricesKind)
	if err != nil {
		return nil, time.Time{}, false
	}
	out := make(map[common.NetUID]float64, len(snap.Entries))
	for uid, entry := range snap.Entries {
		out[uid] = entry.Value
	}
	return out, snap.Ts, true
}

// New constructs the node without starting any task.
func New(config *Config, stakes StakeSource, publisher epoch.Publisher) (*ValidatorNode, error) {
	config.sanitize()

	dbm, err := database.NewDBManager(config.DBConfig())
	if err != nil {
		return nil, err
	}

	n := &ValidatorNode{
		config:      config,
		dbm:         dbm,
		registry:    scoring.NewRegistry(&config.Fund),
		engine:      fundconsensus.NewEngine(&config.Fund),
		stakes:      stakes,
		pausedIndex: set.New(),
		quit:        make(chan struct{}),
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())

	n.builder, err = index.NewBuilder(&config.Fund, dbm)
	if err != nil {
		dbm.Close()
		return nil, err
	}

	n.vlt, err = vault.New(&config.Fund, priceSource{dbm}, n, dbm)
	if err != nil {
		dbm.Close()
		return nil, err
	}

	n.machine = epoch.NewMachine(&config.Fund, dbm, publisher, config.SignerID)

	n.pool = reportpool.NewPool(config.Pool, &config.Fund, dbm, stakes, consensusView{dbm}, n.onAcceptedReport)

	if config.Kafka != nil {
		n.broker, err = reportsync.NewBroker(config.Kafka)
		if err != nil {
			dbm.Close()
			return nil, err
		}
	}
	if config.Exporter != nil {
		n.exp, err = exporter.NewExporter(config.Exporter, dbm)
		if err != nil {
			dbm.Close()
			return nil, err
		}
	}

	// Resume the published weight set after a restart.
	if anchored, ok := dbm.ReadAnchoredEpoch(); ok {
		if artifact, _, err := dbm.ReadEpochArtifact(anchored); err == nil {
			if w, err := types.UnmarshalArtifact(artifact); err == nil {
				n.setCurrentWeights(w.Weights())
				logger.Info("Resumed current weight set", "epoch", anchored)
			}
		}
	}
	return n, nil
}

// CurrentWeights implements vault.WeightSource.
func (n *ValidatorNode) CurrentWeights() (map[common.NetUID]uint64, bool) {
	n.currentWeightsMu.RLock()
	defer n.currentWeightsMu.RUnlock()
	if n.currentWeights == nil {
		return nil, false
	}
	out := make(map[common.NetUID]uint64, len(n.currentWeights))
	for uid, bps := range n.currentWeights {
		out[uid] = bps
	}
	return out, true
}

func (n *ValidatorNode) setCurrentWeights(w map[common.NetUID]uint64) {
	n.currentWeightsMu.Lock()
	n.currentWeights = w
	n.currentWeightsMu.Unlock()
}

// Vault exposes the actor handle for admin surfaces and tests.
func (n *ValidatorNode) Vault() *vault.Vault { return n.vlt }

// Pool exposes the ingestion gate.
func (n *ValidatorNode) Pool() *reportpool.Pool { return n.pool }

// Registry exposes the miner records.
func (n *ValidatorNode) Registry() *scoring.Registry { return n.registry }

func (n *ValidatorNode) onAcceptedReport(r types.Report) {
	minerID := ""
	switch v := r.(type) {
	case *types.EmissionsReport:
		minerID = v.MinerID
	case *types.PriceReport:
		minerID = v.MinerID
	case *types.NavReport:
		minerID = v.MinerID
	}
	n.registry.Observe(minerID, r.Signer(), n.stakes.StakeOf(r.Signer()))
}

// Start launches every task.
func (n *ValidatorNode) Start() error {
	n.pool.Start()
	if err := n.vlt.Start(); err != nil {
		return err
	}
	if n.broker != nil {
		if err := n.broker.SubscribeReports(n.ctx, n.pool.Enqueue); err != nil {
			return err
		}
	}
	if n.exp != nil {
		if anchored, ok := n.dbm.ReadAnchoredEpoch(); ok {
			if err := n.exp.CatchUp(anchored); err != nil {
				logger.Error("Exporter catch-up failed", "err", err)
			}
		}
	}

	n.wg.Add(3)
	go n.priceConsensusLoop()
	go n.dailyLoop()
	go n.epochLoop()
	logger.Info("Validator node started", "signer", n.config.SignerID)
	return nil
}

// Stop winds the tasks down in dependency order and checkpoints state.
func (n *ValidatorNode) Stop() error {
	n.cancel()
	close(n.quit)
	n.wg.Wait()
	if n.broker != nil {
		n.broker.Close()
	}
	n.pool.Stop()
	n.vlt.Stop()
	if n.exp != nil {
		n.exp.Stop()
	}
	n.dbm.Close()
	logger.Info("Validator node stopped")
	return nil
}

func (n *ValidatorNode) priceConsensusLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.config.PriceConsensusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			n.runPriceConsensus(time.Now().UTC())
			n.runNavAdvisory(time.Now().UTC())
		}
	}
}

func (n *ValidatorNode) dailyLoop() {
	defer n.wg.Done()
	for {
		now := time.Now().UTC()
		next := common.DayOfTime(now).Time().Add(n.config.Fund.SnapshotTimeUTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-n.quit:
			timer.Stop()
			return
		case <-timer.C:
			n.runDailySnapshot(time.Now().UTC())
		}
	}
}

func (n *ValidatorNode) epochLoop() {
	defer n.wg.Done()
	for {
		next := epoch.NextBoundaryAfter(time.Now().UTC(), n.config.Fund.EpochPeriodDays)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-n.quit:
			timer.Stop()
			return
		case <-timer.C:
			n.runEpochBoundary(time.Now().UTC())
		}
	}
}

// runPriceConsensus produces one price snapshot: collect fresh reports,
// aggregate, persist, score contributors, export.
func (n *ValidatorNode) runPriceConsensus(now time.Time) *types.ConsensusSnapshot {
	reports := n.pool.Recent(types.PricesKind, params.PricesMaxAge)
	byDim := fundconsensus.SamplesFromReports(types.PricesKind, reports, params.PricesMaxAge, now,
		func(h common.Hotkey) bool { return n.registry.IsSuspended(h, now) },
		n.stakes.StakeOf)
	snap := n.engine.Snapshot(types.PricesKind, byDim, n.stakes.TotalActiveStake(), now)
	if err := n.dbm.WriteConsensusSnapshot(snap); err != nil {
		logger.Error("Cannot persist price snapshot", "err", err)
		return snap
	}
	snapshotDimGauge.Update(int64(len(snap.Entries)))
	n.registry.EvaluateSnapshot(snap, reports, now)
	if n.exp != nil {
		n.exp.ExportSnapshot(snap)
	}
	if nav, err := n.vlt.NAV(); err == nil {
		navGauge.Update(nav)
		if n.exp != nil {
			if st, serr := n.vlt.StateSnapshot(); serr == nil {
				n.exp.ExportNav(nav, st.TotalSupply, now)
			}
		}
	}
	return snap
}

// runNavAdvisory compares the NAV reports miners send against the vault's
// own derivation. Advisory only: it moves a gauge, never state.
func (n *ValidatorNode) runNavAdvisory(now time.Time) {
	reports := n.pool.Recent(types.NavKind, params.NavMaxAge)
	if len(reports) == 0 {
		return
	}
	byDim := fundconsensus.NavSamples(reports, params.NavMaxAge, now,
		func(h common.Hotkey) bool { return n.registry.IsSuspended(h, now) },
		n.stakes.StakeOf)
	snap := n.engine.Snapshot(types.NavKind, byDim, n.stakes.TotalActiveStake(), now)
	entry, ok := snap.Entries[0]
	if !ok {
		return
	}
	nav, err := n.vlt.NAV()
	if err != nil {
		return
	}
	navAdvisoryDevGauge.Update(math.Abs(nav-entry.Value) / math.Max(nav, 1e-12))
}

// runDailySnapshot aggregates the day's emissions reports, feeds the index
// builder and evicts reports past retention.
func (n *ValidatorNode) runDailySnapshot(now time.Time) *types.ConsensusSnapshot {
	reports := n.pool.Recent(types.EmissionsKind, params.EmissionsMaxAge)
	byDim := fundconsensus.SamplesFromReports(types.EmissionsKind, reports, params.EmissionsMaxAge, now,
		func(h common.Hotkey) bool { return n.registry.IsSuspended(h, now) },
		n.stakes.StakeOf)
	snap := n.engine.Snapshot(types.EmissionsKind, byDim, n.stakes.TotalActiveStake(), now)
	if err := n.dbm.WriteConsensusSnapshot(snap); err != nil {
		logger.Error("Cannot persist emissions snapshot", "err", err)
		return snap
	}
	n.registry.EvaluateSnapshot(snap, reports, now)
	if err := n.builder.RecordDailySnapshot(common.DayOfTime(now), snap); err != nil {
		logger.Error("Cannot record daily emissions", "err", err)
	}
	if n.exp != nil {
		n.exp.ExportSnapshot(snap)
	}

	// Bounded retention, scheduled with the daily task.
	if _, err := n.dbm.EvictReports(types.PricesKind, now.Add(-n.config.Fund.PriceRetention)); err != nil {
		logger.Error("Price report eviction failed", "err", err)
	}
	retention := time.Duration(n.config.Fund.ReportRetentionDays) * 24 * time.Hour
	if _, err := n.dbm.EvictReports(types.EmissionsKind, now.Add(-retention)); err != nil {
		logger.Error("Emissions report eviction failed", "err", err)
	}
	return snap
}

// runEpochBoundary freezes the window, builds and finalizes the weight set,
// publishes, rolls scores, and archives the predecessor.
func (n *ValidatorNode) runEpochBoundary(now time.Time) {
	epochID := epoch.IndexOf(now, n.config.Fund.EpochPeriodDays)
	cutover := epoch.BoundaryOf(epochID+1, n.config.Fund.EpochPeriodDays)

	w, err := n.builder.BuildWeightSet(epochID, now, cutover, common.DayOfTime(now),
		func(uid common.NetUID) bool { return n.pausedIndex.Has(uid) })
	if err != nil {
		logger.Error("Cannot build weight set; epoch advances without artifact", "epoch", epochID, "err", err)
		return
	}

	n.registry.EpochRollover(now)
	scores := n.registry.ScoreMap()

	rec, err := n.machine.Finalize(n.ctx, w, scores)
	if err != nil {
		// The artifact stays canonical; the anchor is retriable by admin.
		logger.Error("Epoch publish failed", "epoch", epochID, "err", err)
	}
	n.setCurrentWeights(w.Weights())

	if n.exp != nil && rec != nil {
		if artifact, digest, rerr := n.dbm.ReadEpochArtifact(epochID); rerr == nil {
			if eerr := n.exp.ExportEpoch(epochID, artifact, digest, scores); eerr != nil {
				logger.Error("Epoch export failed", "epoch", epochID, "err", eerr)
			}
		}
	}

	if epochID > 0 && n.lastArchived < epochID-1 {
		if err := n.machine.Archive(epochID - 1); err == nil {
			n.lastArchived = epochID - 1
		}
	}
}
