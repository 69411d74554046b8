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

// Package index turns the sequence of daily emissions consensus snapshots
// into the canonical per-epoch weight set: a 14-day rolling average feeds a
// continuity-gated top-N selection whose weights are normalized to integer
// basis points.
package index

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/params"
)

var logger = log.NewModuleLogger(log.FundIndex)

var (
	ErrNoEligible = errors.New("no eligible constituents")
)

// Store is the slice of the database the builder needs.
type Store interface {
	WriteRollingEmissions(r *types.RollingEmissions) error
	ReadAllRollingEmissions() ([]*types.RollingEmissions, error)
}

// Builder owns the rolling emission windows and derives weight sets from
// them. It is driven by the validator's daily snapshot and the epoch timer;
// neither path runs concurrently with the other.
type Builder struct {
	cfg   *params.FundConfig
	store Store

	rolling map[common.NetUID]*types.RollingEmissions
}

func NewBuilder(cfg *params.FundConfig, store Store) (*Builder, error) {
	b := &Builder{
		cfg:     cfg,
		store:   store,
		rolling: make(map[common.NetUID]*types.RollingEmissions),
	}
	persisted, err := store.ReadAllRollingEmissions()
	if err != nil {
		return nil, err
	}
	for _, r := range persisted {
		b.rolling[r.NetUID] = r
	}
	if len(persisted) > 0 {
		logger.Info("Recovered rolling emission windows", "constituents", len(persisted))
	}
	return b, nil
}

// RecordDailySnapshot appends one day of consensus emissions to the rolling
// windows, evicting entries older than the window. first_seen_day is set
// once and never rewritten.
func (b *Builder) RecordDailySnapshot(day common.EpochDay, snap *types.ConsensusSnapshot) error {
	for uid, entry := range snap.Entries {
		r, ok := b.rolling[uid]
		if !ok {
			r = &types.RollingEmissions{NetUID: uid, FirstSeenDay: day}
			b.rolling[uid] = r
		}
		// Snapshots arrive in day order; a replay of the same day replaces
		// the value rather than duplicating the entry.
		if n := len(r.Entries); n > 0 && r.Entries[n-1].EpochDay == day {
			r.Entries[n-1].Value = entry.Value
		} else {
			r.Entries = append(r.Entries, types.RollingEntry{EpochDay: day, Value: entry.Value})
		}
		b.evictOld(r, day)
		if err := b.store.WriteRollingEmissions(r); err != nil {
			return errors.Wrapf(err, "persisting rolling emissions for netuid %d", uid)
		}
	}
	// Constituents absent from today's snapshot still age out.
	for uid, r := range b.rolling {
		if _, present := snap.Entries[uid]; present {
			continue
		}
		before := len(r.Entries)
		b.evictOld(r, day)
		if len(r.Entries) != before {
			if err := b.store.WriteRollingEmissions(r); err != nil {
				return errors.Wrapf(err, "persisting rolling emissions for netuid %d", uid)
			}
		}
	}
	return nil
}

func (b *Builder) evictOld(r *types.RollingEmissions, today common.EpochDay) {
	cutoff := today - common.EpochDay(b.cfg.RollingWindowDays) + 1
	idx := 0
	for idx < len(r.Entries) && r.Entries[idx].EpochDay < cutoff {
		idx++
	}
	if idx > 0 {
		r.Entries = append(r.Entries[:0:0], r.Entries[idx:]...)
	}
}

// rollingAverage divides the in-window sum by the window length: days the
// constituent existed but did not report count as zero.
func (b *Builder) rollingAverage(r *types.RollingEmissions, today common.EpochDay) float64 {
	if len(r.Entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range r.Entries {
		if e.EpochDay > today {
			continue
		}
		sum += e.Value
	}
	window := int64(b.cfg.RollingWindowDays)
	if age := int64(today-r.FirstSeenDay) + 1; age < window {
		window = age
	}
	if window <= 0 {
		return 0
	}
	return sum / float64(window)
}

func (b *Builder) latestValue(r *types.RollingEmissions) float64 {
	if len(r.Entries) == 0 {
		return 0
	}
	return r.Entries[len(r.Entries)-1].Value
}

type candidate struct {
	uid    common.NetUID
	avg    float64
	latest float64
}

// BuildWeightSet produces the canonical weight set for the epoch. It is a
// pure function of the rolling windows, the paused set and the config.
func (b *Builder) BuildWeightSet(epochID common.EpochID, asOf time.Time, cutover time.Time, today common.EpochDay, paused func(common.NetUID) bool) (*types.WeightSet, error) {
	var eligible []candidate
	for uid, r := range b.rolling {
		if int(today-r.FirstSeenDay) < b.cfg.EligibilityMinDays {
			continue
		}
		avg := b.rollingAverage(r, today)
		if !(avg > 0) {
			continue
		}
		if paused != nil && paused(uid) {
			continue
		}
		eligible = append(eligible, candidate{uid: uid, avg: avg, latest: b.latestValue(r)})
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligible
	}

	// Rolling average descending; ties prefer the higher latest-day value,
	// then the lower netuid.
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].avg != eligible[j].avg {
			return eligible[i].avg > eligible[j].avg
		}
		if eligible[i].latest != eligible[j].latest {
			return eligible[i].latest > eligible[j].latest
		}
		return eligible[i].uid < eligible[j].uid
	})
	if len(eligible) > b.cfg.TopN {
		eligible = eligible[:b.cfg.TopN]
	}

	bps := hamiltonBps(eligible, params.BpsTotal)
	if b.cfg.WeightCapBps > 0 {
		bps = applyCap(eligible, bps, b.cfg.WeightCapBps, b.cfg.CapRedistributeIters)
	}

	w := &types.WeightSet{
		SchemaVersion:      params.ReportSchemaVersion,
		EpochID:            epochID,
		AsOfTs:             asOf.UTC(),
		EpochIndex:         uint64(epochID),
		CutoverTs:          cutover.UTC(),
		Method:             params.WeightMethod,
		EligibilityMinDays: b.cfg.EligibilityMinDays,
	}
	for i, c := range eligible {
		w.Constituents = append(w.Constituents, types.Constituent{
			UID:          c.uid,
			WeightBps:    bps[i],
			Emissions14d: c.avg,
		})
	}
	if err := w.CheckInvariants(); err != nil {
		return nil, err
	}
	return w, nil
}

// hamiltonBps normalizes raw averages to integer basis points summing to
// exactly total: floor everything, then hand the residue to the largest
// fractional remainders, ties to the lower netuid.
func hamiltonBps(cands []candidate, total uint64) []uint64 {
	var sum float64
	for _, c := range cands {
		sum += c.avg
	}

	type remainder struct {
		idx  int
		frac float64
	}
	bps := make([]uint64, len(cands))
	rems := make([]remainder, len(cands))
	var floorSum uint64
	for i, c := range cands {
		exact := float64(total) * c.avg / sum
		floor := uint64(exact)
		bps[i] = floor
		floorSum += floor
		rems[i] = remainder{idx: i, frac: exact - float64(floor)}
	}

	residue := total - floorSum
	sort.Slice(rems, func(i, j int) bool {
		if rems[i].frac != rems[j].frac {
			return rems[i].frac > rems[j].frac
		}
		return cands[rems[i].idx].uid < cands[rems[j].idx].uid
	})
	for i := uint64(0); i < residue; i++ {
		bps[rems[i%uint64(len(rems))].idx]++
	}

	// Every selected constituent carries at least one basis point; donors
	// are the heaviest entries.
	for i := range bps {
		for bps[i] < 1 {
			maxIdx := 0
			for j := range bps {
				if bps[j] > bps[maxIdx] {
					maxIdx = j
				}
			}
			bps[maxIdx]--
			bps[i]++
		}
	}
	return bps
}

// applyCap enforces the optional per-constituent ceiling, redistributing the
// overflow proportionally over the uncapped rest. The loop stabilizes or
// stops after maxIters passes.
func applyCap(cands []candidate, bps []uint64, cap uint64, maxIters int) []uint64 {
	for iter := 0; iter < maxIters; iter++ {
		var overflow uint64
		capped := make([]bool, len(bps))
		var uncappedSum uint64
		for i := range bps {
			if bps[i] > cap {
				overflow += bps[i] - cap
				bps[i] = cap
				capped[i] = true
			}
		}
		if overflow == 0 {
			return bps
		}
		for i := range bps {
			if !capped[i] {
				uncappedSum += bps[i]
			}
		}
		if uncappedSum == 0 {
			// Everything is at the cap; the residue has nowhere to go.
			logger.Warn("Weight cap unsatisfiable, leaving residue on heaviest entries", "overflow", overflow)
			for i := range bps {
				if overflow == 0 {
					break
				}
				bps[i]++
				overflow--
			}
			return bps
		}
		distributed := uint64(0)
		for i := range bps {
			if capped[i] {
				continue
			}
			share := overflow * bps[i] / uncappedSum
			bps[i] += share
			distributed += share
		}
		// Integer-division dust goes one basis point at a time to the
		// uncapped entries in selection order (highest average first).
		for i := range bps {
			if distributed == overflow {
				break
			}
			if !capped[i] {
				bps[i]++
				distributed++
			}
		}
	}
	return bps
}
