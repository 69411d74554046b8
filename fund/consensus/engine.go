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

// Package consensus reduces recent validated reports to one canonical value
// per dimension: a stake-weighted median hardened by a MAD outlier filter
// and a quorum floor. The whole package is pure; identical inputs produce
// identical snapshots.
package consensus

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/params"
)

var ErrNoQuorum = errors.New("insufficient contributing stake")

// Sample is one signer's value for one dimension.
type Sample struct {
	Hotkey common.Hotkey
	Stake  float64
	Value  float64
	Ts     time.Time
}

// sortSamples orders by value ascending; equal values order by hotkey bytes
// so that stake ties resolve the same way on every machine.
func sortSamples(samples []Sample) {
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Value != samples[j].Value {
			return samples[i].Value < samples[j].Value
		}
		return samples[i].Hotkey.Cmp(samples[j].Hotkey) < 0
	})
}

// WeightedMedian returns the smallest value whose cumulative stake reaches
// half the total (the half-weights rule). Value ties pick the smaller value
// by construction of the ordering.
func WeightedMedian(samples []Sample) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sortSamples(sorted)

	var total float64
	for _, s := range sorted {
		total += s.Stake
	}
	half := total / 2
	var cum float64
	for _, s := range sorted {
		cum += s.Stake
		if cum >= half {
			return s.Value
		}
	}
	return sorted[len(sorted)-1].Value
}

// Engine aggregates dimensions under one configuration.
type Engine struct {
	cfg *params.FundConfig
}

func NewEngine(cfg *params.FundConfig) *Engine {
	return &Engine{cfg: cfg}
}

// quorumOf picks the per-kind quorum fraction.
func (e *Engine) quorumOf(kind types.ReportKind) float64 {
	if kind == types.EmissionsKind {
		return e.cfg.EmissionsQuorum
	}
	return e.cfg.PricesQuorum
}

// AggregateDimension reduces one dimension's samples to a consensus entry.
// Callers have already restricted samples to fresh, non-suspended signers.
func (e *Engine) AggregateDimension(kind types.ReportKind, samples []Sample, totalActiveStake float64, now time.Time) (types.ConsensusEntry, error) {
	var stake float64
	for _, s := range samples {
		stake += s.Stake
	}
	if totalActiveStake > 0 && stake < e.quorumOf(kind)*totalActiveStake {
		return types.ConsensusEntry{}, errors.Wrapf(ErrNoQuorum, "stake %.4f of %.4f", stake, totalActiveStake)
	}
	if len(samples) == 0 {
		return types.ConsensusEntry{}, errors.Wrap(ErrNoQuorum, "no samples")
	}

	m := WeightedMedian(samples)

	// Stake-weighted median of absolute deviations.
	devs := make([]Sample, len(samples))
	for i, s := range samples {
		devs[i] = Sample{Hotkey: s.Hotkey, Stake: s.Stake, Value: math.Abs(s.Value - m)}
	}
	mad := WeightedMedian(devs)

	filtered := samples
	kept := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if math.Abs(s.Value-m) <= e.cfg.MadK*mad {
			kept = append(kept, s)
		}
	}
	// Too aggressive a cut falls back to the full sample set.
	if len(kept) >= e.cfg.MinAfterFilter {
		filtered = kept
	}

	value := WeightedMedian(filtered)

	var contributingStake float64
	oldest := filtered[0].Ts
	for _, s := range filtered {
		contributingStake += s.Stake
		if s.Ts.Before(oldest) {
			oldest = s.Ts
		}
	}

	return types.ConsensusEntry{
		Value:             value,
		ContributingStake: contributingStake,
		ContributorCount:  len(filtered),
		StalenessSec:      now.Sub(oldest).Seconds(),
	}, nil
}

// Snapshot aggregates every dimension present in the sample map and returns
// the consensus snapshot for the kind. Dimensions without quorum are listed
// in NoQuorum and omitted from the entries.
func (e *Engine) Snapshot(kind types.ReportKind, byDim map[common.NetUID][]Sample, totalActiveStake float64, now time.Time) *types.ConsensusSnapshot {
	snap := &types.ConsensusSnapshot{
		Kind:    kind,
		Ts:      now.UTC(),
		Entries: make(map[common.NetUID]types.ConsensusEntry),
	}

	dims := make([]common.NetUID, 0, len(byDim))
	for uid := range byDim {
		dims = append(dims, uid)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })

	for _, uid := range dims {
		entry, err := e.AggregateDimension(kind, byDim[uid], totalActiveStake, now)
		if err != nil {
			snap.NoQuorum = append(snap.NoQuorum, uid)
			continue
		}
		snap.Entries[uid] = entry
	}
	return snap
}

// SamplesFromReports explodes per-signer reports into per-dimension sample
// lists. Suspended signers are filtered by the caller-provided predicate;
// stale reports by the freshness window.
func SamplesFromReports(kind types.ReportKind, reports []types.Report, maxAge time.Duration, now time.Time, suspended func(common.Hotkey) bool, stakeOf func(common.Hotkey) float64) map[common.NetUID][]Sample {
	byDim := make(map[common.NetUID][]Sample)
	for _, r := range reports {
		if now.Sub(r.Timestamp()) > maxAge {
			continue
		}
		if suspended != nil && suspended(r.Signer()) {
			continue
		}
		stake := stakeOf(r.Signer())
		if stake <= 0 {
			continue
		}
		var values map[common.NetUID]float64
		switch v := r.(type) {
		case *types.EmissionsReport:
			values = v.Emissions
		case *types.PriceReport:
			values = v.Prices
		default:
			continue
		}
		for uid, value := range values {
			byDim[uid] = append(byDim[uid], Sample{
				Hotkey: r.Signer(),
				Stake:  stake,
				Value:  value,
				Ts:     r.Timestamp(),
			})
		}
	}
	return byDim
}

// NavSamples is the single-dimension analogue for NAV reports; the one
// dimension is keyed 0.
func NavSamples(reports []types.Report, maxAge time.Duration, now time.Time, suspended func(common.Hotkey) bool, stakeOf func(common.Hotkey) float64) map[common.NetUID][]Sample {
	byDim := make(map[common.NetUID][]Sample)
	for _, r := range reports {
		nav, ok := r.(*types.NavReport)
		if !ok || now.Sub(r.Timestamp()) > maxAge {
			continue
		}
		if suspended != nil && suspended(r.Signer()) {
			continue
		}
		stake := stakeOf(r.Signer())
		if stake <= 0 {
			continue
		}
		byDim[0] = append(byDim[0], Sample{Hotkey: r.Signer(), Stake: stake, Value: nav.NavPerTokenTao, Ts: r.Timestamp()})
	}
	return byDim
}
