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

package types

import (
	"time"

	"github.com/alexlange1/alphamind/common"
)

// ConsensusEntry is the agreed value for one dimension plus the coverage
// that produced it.
type ConsensusEntry struct {
	Value             float64 `json:"value"`
	ContributingStake float64 `json:"contributing_stake"`
	ContributorCount  int     `json:"contributor_count"`
	StalenessSec      float64 `json:"staleness_sec"`
}

// ConsensusSnapshot is the output of one consensus invocation for one report
// kind. Dimensions that missed quorum or freshness simply do not appear.
type ConsensusSnapshot struct {
	Kind    ReportKind                        `json:"kind"`
	Ts      time.Time                         `json:"ts"`
	Entries map[common.NetUID]ConsensusEntry  `json:"entries"`
	// NoQuorum lists the dimensions skipped for insufficient stake, for
	// observability and dependents that distinguish "no value" from "no
	// coverage".
	NoQuorum []common.NetUID `json:"no_quorum,omitempty"`
}

// Value returns the consensus value for a dimension, with presence.
func (s *ConsensusSnapshot) Value(uid common.NetUID) (float64, bool) {
	e, ok := s.Entries[uid]
	return e.Value, ok
}

// RollingEntry is one day of consensus emissions for a constituent.
type RollingEntry struct {
	EpochDay common.EpochDay `json:"epoch_day"`
	Value    float64         `json:"value"`
}

// RollingEmissions is the bounded per-constituent window the index builder
// maintains. Entries are ordered by day ascending and never exceed the
// configured window.
type RollingEmissions struct {
	NetUID       common.NetUID   `json:"netuid"`
	Entries      []RollingEntry  `json:"entries"`
	FirstSeenDay common.EpochDay `json:"first_seen_day"`
}
