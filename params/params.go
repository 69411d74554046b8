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

package params

import "time"

const (
	// ReportSchemaVersion is the only wire schema currently accepted.
	ReportSchemaVersion = "1.0.0"

	// WeightMethod tags how canonical weight sets are derived.
	WeightMethod = "emissions_weighted_14d"

	// BpsTotal is the fixed weight-set denominator.
	BpsTotal = 10000

	// EpochGenesisUnixDay is Sunday 2025-01-05 00:00 UTC, the anchor from
	// which biweekly epoch boundaries are counted.
	EpochGenesisUnixDay = 20093
)

// Freshness windows per report kind.
const (
	PricesMaxAge    = 300 * time.Second
	EmissionsMaxAge = 26 * time.Hour
	NavMaxAge       = 10 * time.Minute
	MaxClockSkew    = 30 * time.Second
)

// FundConfig carries every tunable of the consensus, index, vault, scoring
// and epoch machinery. Zero values are never used directly; callers start
// from DefaultFundConfig.
type FundConfig struct {
	// Consensus.
	EmissionsQuorum float64 // fraction of total active stake
	PricesQuorum    float64
	MadK            float64 // outlier cut at MadK x MAD
	MinAfterFilter  int     // below this, the MAD filter falls back to all samples
	SanityBand      float64 // accept prices within [1/P, P] x consensus

	// Fees, in basis points except the APR which is annualized bps.
	TxFeeBps     uint64
	RedeemFeeBps uint64
	MgmtAprBps   uint64

	// Vault.
	CompositionToleranceBps uint64
	VaultMailboxSize        int

	// Scoring.
	SoftDeviation      float64
	HardDeviation      float64
	StrikeLimit        int
	SuspensionDuration time.Duration

	// Index construction.
	TopN               int
	EligibilityMinDays int
	RollingWindowDays  int
	EpochPeriodDays    int
	// WeightCapBps caps any single constituent when non-zero; overflow is
	// redistributed proportionally, iterating at most CapRedistributeIters.
	WeightCapBps         uint64
	CapRedistributeIters int

	// Publishing.
	PublishMaxAttempts   int
	PublishAttemptWait   time.Duration // per-attempt RPC budget
	PublishBackoffCap    time.Duration
	SnapshotTimeUTC      time.Duration // offset into the day for the emissions snapshot
	ReportRetentionDays  int           // emissions report retention
	PriceRetention       time.Duration // price report retention
	ArtifactRetention    time.Duration
}

// DefaultFundConfig mirrors the documented protocol defaults.
var DefaultFundConfig = FundConfig{
	EmissionsQuorum: 0.33,
	PricesQuorum:    0.33,
	MadK:            3.5,
	MinAfterFilter:  3,
	SanityBand:      20,

	TxFeeBps:     20,
	RedeemFeeBps: 20,
	MgmtAprBps:   100,

	CompositionToleranceBps: 500,
	VaultMailboxSize:        1024,

	SoftDeviation:      0.05,
	HardDeviation:      0.10,
	StrikeLimit:        3,
	SuspensionDuration: 24 * time.Hour,

	TopN:                 20,
	EligibilityMinDays:   90,
	RollingWindowDays:    14,
	EpochPeriodDays:      14,
	WeightCapBps:         0,
	CapRedistributeIters: 8,

	PublishMaxAttempts:  5,
	PublishAttemptWait:  30 * time.Second,
	PublishBackoffCap:   time.Hour,
	SnapshotTimeUTC:     5 * time.Minute,
	ReportRetentionDays: 30,
	PriceRetention:      24 * time.Hour,
	ArtifactRetention:   365 * 24 * time.Hour,
}
