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

// Package scoring maintains the per-miner reliability record that drives
// reward distribution and the slashing signal: deviation strikes against the
// consensus value, suspension windows, and a score multiplier in [0, 1].
package scoring

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/params"
)

var logger = log.NewModuleLogger(log.FundScoring)

var (
	strikeCounter     = metrics.NewRegisteredCounter("scoring/strikes", nil)
	suspensionCounter = metrics.NewRegisteredCounter("scoring/suspensions", nil)
)

const (
	softPenalty   = 0.05
	hardPenalty   = 0.20
	epochRecovery = 0.02
	consensusEps  = 1e-12
)

// MinerRecord is the registry's view of one hotkey. Records are created on
// first accepted report and never deleted; suspension is a soft state.
type MinerRecord struct {
	MinerID          string          `json:"miner_id"`
	Hotkey           common.Hotkey   `json:"hotkey"`
	Stake            float64         `json:"stake"`
	ScoreMultiplier  float64         `json:"score_multiplier"`
	StrikeCount      int             `json:"strike_count"`
	SuspendedUntilTs *time.Time      `json:"suspended_until_ts,omitempty"`
	// violatedEpoch blocks the end-of-epoch recovery credit.
	violatedEpoch bool
}

// Registry owns every MinerRecord. Only the scoring task mutates it; reads
// from the consensus path go through the RWMutex.
type Registry struct {
	cfg *params.FundConfig

	mu      sync.RWMutex
	records map[common.Hotkey]*MinerRecord
}

func NewRegistry(cfg *params.FundConfig) *Registry {
	return &Registry{
		cfg:     cfg,
		records: make(map[common.Hotkey]*MinerRecord),
	}
}

// Observe creates or refreshes the record behind an accepted report.
func (reg *Registry) Observe(minerID string, hotkey common.Hotkey, stake float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.records[hotkey]
	if !ok {
		rec = &MinerRecord{MinerID: minerID, Hotkey: hotkey, ScoreMultiplier: 1.0}
		reg.records[hotkey] = rec
	}
	if minerID != "" {
		rec.MinerID = minerID
	}
	rec.Stake = stake
}

// IsSuspended reports whether the hotkey sits in a suspension window. An
// expired window resets the strike counter on first observation.
func (reg *Registry) IsSuspended(hotkey common.Hotkey, now time.Time) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.records[hotkey]
	if !ok || rec.SuspendedUntilTs == nil {
		return false
	}
	if now.Before(*rec.SuspendedUntilTs) {
		return true
	}
	rec.SuspendedUntilTs = nil
	rec.StrikeCount = 0
	return false
}

// Record returns a copy of the record for a hotkey.
func (reg *Registry) Record(hotkey common.Hotkey) (MinerRecord, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rec, ok := reg.records[hotkey]
	if !ok {
		return MinerRecord{}, false
	}
	return *rec, true
}

// TotalActiveStake sums the stake of every non-suspended record.
func (reg *Registry) TotalActiveStake(now time.Time) float64 {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var sum float64
	for _, rec := range reg.records {
		if rec.SuspendedUntilTs != nil && now.Before(*rec.SuspendedUntilTs) {
			continue
		}
		sum += rec.Stake
	}
	return sum
}

// EvaluateSnapshot scores every contributor of a consensus snapshot: the
// relative deviation of the reported value from the consensus value decides
// between no change, a soft penalty, and a hard penalty with a strike.
func (reg *Registry) EvaluateSnapshot(snap *types.ConsensusSnapshot, reports []types.Report, now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, r := range reports {
		rec, ok := reg.records[r.Signer()]
		if !ok {
			continue
		}
		if rec.SuspendedUntilTs != nil && now.Before(*rec.SuspendedUntilTs) {
			continue
		}
		worst := reg.worstDeviation(snap, r)
		if math.IsNaN(worst) {
			continue
		}
		switch {
		case worst <= reg.cfg.SoftDeviation:
			// Within tolerance.
		case worst <= reg.cfg.HardDeviation:
			rec.ScoreMultiplier = math.Max(0, rec.ScoreMultiplier-softPenalty)
			rec.violatedEpoch = true
		default:
			rec.ScoreMultiplier = math.Max(0, rec.ScoreMultiplier-hardPenalty)
			rec.StrikeCount++
			rec.violatedEpoch = true
			strikeCounter.Inc(1)
			logger.Warn("Hard deviation strike", "miner", rec.MinerID, "strikes", rec.StrikeCount, "deviation", worst)
			if rec.StrikeCount >= reg.cfg.StrikeLimit {
				until := now.Add(reg.cfg.SuspensionDuration)
				rec.SuspendedUntilTs = &until
				suspensionCounter.Inc(1)
				logger.Warn("Miner suspended", "miner", rec.MinerID, "until", until)
			}
		}
	}
}

// worstDeviation returns the largest relative deviation of the report's
// values against the snapshot, NaN when nothing overlaps.
func (reg *Registry) worstDeviation(snap *types.ConsensusSnapshot, r types.Report) float64 {
	var values map[common.NetUID]float64
	switch v := r.(type) {
	case *types.EmissionsReport:
		values = v.Emissions
	case *types.PriceReport:
		values = v.Prices
	case *types.NavReport:
		if entry, ok := snap.Entries[0]; ok {
			return math.Abs(v.NavPerTokenTao-entry.Value) / math.Max(entry.Value, consensusEps)
		}
		return math.NaN()
	}
	worst := math.NaN()
	for uid, reported := range values {
		entry, ok := snap.Entries[uid]
		if !ok {
			continue
		}
		dev := math.Abs(reported-entry.Value) / math.Max(entry.Value, consensusEps)
		if math.IsNaN(worst) || dev > worst {
			worst = dev
		}
	}
	return worst
}

// EpochRollover credits every violation-free miner with the recovery bonus
// and rearms the per-epoch violation flags.
func (reg *Registry) EpochRollover(now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, rec := range reg.records {
		if rec.SuspendedUntilTs != nil && !now.Before(*rec.SuspendedUntilTs) {
			rec.SuspendedUntilTs = nil
			rec.StrikeCount = 0
		}
		if !rec.violatedEpoch {
			rec.ScoreMultiplier = math.Min(1, rec.ScoreMultiplier+epochRecovery)
		}
		rec.violatedEpoch = false
	}
}

// ScoreMap snapshots hotkey -> multiplier for the epoch artifact metadata.
func (reg *Registry) ScoreMap() map[string]float64 {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make(map[string]float64, len(reg.records))
	for hk, rec := range reg.records {
		out[hk.Hex()] = rec.ScoreMultiplier
	}
	return out
}

// Records returns copies of all records ordered by hotkey, for the admin
// surface and tests.
func (reg *Registry) Records() []MinerRecord {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]MinerRecord, 0, len(reg.records))
	for _, rec := range reg.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hotkey.Cmp(out[j].Hotkey) < 0 })
	return out
}
