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
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/params"
)

// Constituent is one selected subnet with its weight and the rolling average
// that earned it.
type Constituent struct {
	UID          common.NetUID `json:"uid"`
	WeightBps    uint64        `json:"weight_bps"`
	Emissions14d float64       `json:"emissions_14d"`
}

// WeightSet is the canonical per-epoch index composition. Weights are basis
// points summing to exactly params.BpsTotal; Constituents preserves the
// deterministic selection order (rolling average descending with the
// documented tie-breaks).
type WeightSet struct {
	SchemaVersion      string        `json:"schema_version"`
	EpochID            common.EpochID `json:"epoch_id"`
	AsOfTs             time.Time     `json:"as_of_ts"`
	EpochIndex         uint64        `json:"epoch_index"`
	CutoverTs          time.Time     `json:"cutover_ts"`
	Method             string        `json:"method"`
	EligibilityMinDays int           `json:"eligibility_min_days"`
	Constituents       []Constituent `json:"constituents"`
}

var ErrBadWeightSet = errors.New("weight set violates its invariants")

// CheckInvariants verifies the structural guarantees every consumer relies
// on: exact bps total, nothing below one bp, no duplicate constituents.
func (w *WeightSet) CheckInvariants() error {
	if len(w.Constituents) == 0 {
		return errors.Wrap(ErrBadWeightSet, "empty")
	}
	seen := make(map[common.NetUID]struct{}, len(w.Constituents))
	var total uint64
	for _, c := range w.Constituents {
		if c.WeightBps < 1 {
			return errors.Wrapf(ErrBadWeightSet, "netuid %d below 1 bp", c.UID)
		}
		if _, dup := seen[c.UID]; dup {
			return errors.Wrapf(ErrBadWeightSet, "duplicate netuid %d", c.UID)
		}
		seen[c.UID] = struct{}{}
		total += c.WeightBps
	}
	if total != params.BpsTotal {
		return errors.Wrapf(ErrBadWeightSet, "bps total %d", total)
	}
	return nil
}

// Weights returns the uid → bps mapping.
func (w *WeightSet) Weights() map[common.NetUID]uint64 {
	out := make(map[common.NetUID]uint64, len(w.Constituents))
	for _, c := range w.Constituents {
		out[c.UID] = c.WeightBps
	}
	return out
}

// CanonicalBytes is the reduced hashable object: epoch id, timestamp and the
// integer weights, key-sorted and compact. This is the byte string the
// digest and the on-chain anchor commit to.
func (w *WeightSet) CanonicalBytes() ([]byte, error) {
	weights := make(map[string]uint64, len(w.Constituents))
	for _, c := range w.Constituents {
		weights[c.UID.String()] = c.WeightBps
	}
	return json.Marshal(map[string]interface{}{
		"epoch_id": uint64(w.EpochID),
		"as_of_ts": w.AsOfTs.UTC().Format(tsFormat),
		"weights":  weights,
	})
}

// Digest is the hex SHA-256 of the canonical form.
func (w *WeightSet) Digest() (string, error) {
	canonical, err := w.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return crypto.Sha256Hex(canonical), nil
}

// artifactWire is the full outbound artifact shape.
type artifactWire struct {
	SchemaVersion      string            `json:"schema_version"`
	EpochID            uint64            `json:"epoch_id"`
	AsOfTs             string            `json:"as_of_ts"`
	Weights            map[string]uint64 `json:"weights"`
	EpochIndex         uint64            `json:"epoch_index"`
	CutoverTs          string            `json:"cutover_ts"`
	Method             string            `json:"method"`
	EligibilityMinDays int               `json:"eligibility_min_days"`
	Constituents       []Constituent     `json:"constituents"`
}

// MarshalArtifact renders the full epoch artifact JSON.
func (w *WeightSet) MarshalArtifact() ([]byte, error) {
	weights := make(map[string]uint64, len(w.Constituents))
	for _, c := range w.Constituents {
		weights[c.UID.String()] = c.WeightBps
	}
	return json.Marshal(&artifactWire{
		SchemaVersion:      w.SchemaVersion,
		EpochID:            uint64(w.EpochID),
		AsOfTs:             w.AsOfTs.UTC().Format(tsFormat),
		Weights:            weights,
		EpochIndex:         w.EpochIndex,
		CutoverTs:          w.CutoverTs.UTC().Format(tsFormat),
		Method:             w.Method,
		EligibilityMinDays: w.EligibilityMinDays,
		Constituents:       w.Constituents,
	})
}

// UnmarshalArtifact parses an artifact produced by MarshalArtifact.
func UnmarshalArtifact(data []byte) (*WeightSet, error) {
	var a artifactWire
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(ErrBadWeightSet, err.Error())
	}
	asOf, err := time.Parse(tsFormat, a.AsOfTs)
	if err != nil {
		return nil, errors.Wrap(ErrBadWeightSet, err.Error())
	}
	cutover, err := time.Parse(tsFormat, a.CutoverTs)
	if err != nil {
		return nil, errors.Wrap(ErrBadWeightSet, err.Error())
	}
	w := &WeightSet{
		SchemaVersion:      a.SchemaVersion,
		EpochID:            common.EpochID(a.EpochID),
		AsOfTs:             asOf,
		EpochIndex:         a.EpochIndex,
		CutoverTs:          cutover,
		Method:             a.Method,
		EligibilityMinDays: a.EligibilityMinDays,
		Constituents:       a.Constituents,
	}
	if err := w.CheckInvariants(); err != nil {
		return nil, err
	}
	return w, nil
}

// PublicationState tracks the anchor lifecycle of one epoch artifact.
type PublicationState string

const (
	PubCollecting   PublicationState = "collecting"
	PubFinalizing   PublicationState = "finalizing"
	PubPublished    PublicationState = "published"
	PubAnchorFailed PublicationState = "published-anchor-failed"
	PubArchived     PublicationState = "archived"
)

// PublicationRecord is the only mutable companion of a finalized artifact.
type PublicationRecord struct {
	EpochID      common.EpochID   `json:"epoch_id"`
	State        PublicationState `json:"state"`
	DigestHex    string           `json:"digest_hex"`
	TxHash       string           `json:"tx_hash,omitempty"`
	ChainID      string           `json:"chain_id,omitempty"`
	AnchorOK     bool             `json:"anchor_ok"`
	AttemptCount int              `json:"attempt_count"`
	LastAttempt  time.Time        `json:"last_attempt,omitempty"`
}
