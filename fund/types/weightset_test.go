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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alexlange1/alphamind/params"
)

func testWeightSet() *WeightSet {
	return &WeightSet{
		SchemaVersion:      params.ReportSchemaVersion,
		EpochID:            7,
		AsOfTs:             time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EpochIndex:         7,
		CutoverTs:          time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Method:             params.WeightMethod,
		EligibilityMinDays: 90,
		Constituents: []Constituent{
			{UID: 8, WeightBps: 6000, Emissions14d: 120},
			{UID: 1, WeightBps: 3000, Emissions14d: 60},
			{UID: 21, WeightBps: 1000, Emissions14d: 20},
		},
	}
}

func TestWeightSet_Invariants(t *testing.T) {
	w := testWeightSet()
	assert.NoError(t, w.CheckInvariants())

	w.Constituents[0].WeightBps = 5999
	assert.Error(t, w.CheckInvariants())
	w.Constituents[0].WeightBps = 6000

	w.Constituents = append(w.Constituents, Constituent{UID: 8, WeightBps: 0})
	assert.Error(t, w.CheckInvariants())
}

func TestWeightSet_CanonicalBytes(t *testing.T) {
	w := testWeightSet()
	canonical, err := w.CanonicalBytes()
	assert.NoError(t, err)
	// Keys sorted, compact, integers only in weights.
	assert.Equal(t,
		`{"as_of_ts":"2025-06-01T00:00:00Z","epoch_id":7,"weights":{"1":3000,"21":1000,"8":6000}}`,
		string(canonical))

	digest, err := w.Digest()
	assert.NoError(t, err)
	assert.Len(t, digest, 64)

	// Byte-identical across invocations.
	again, err := w.CanonicalBytes()
	assert.NoError(t, err)
	assert.Equal(t, canonical, again)
}

func TestWeightSet_ArtifactRoundTrip(t *testing.T) {
	w := testWeightSet()
	blob, err := w.MarshalArtifact()
	assert.NoError(t, err)

	parsed, err := UnmarshalArtifact(blob)
	assert.NoError(t, err)
	assert.Equal(t, w.EpochID, parsed.EpochID)
	assert.Equal(t, w.Constituents, parsed.Constituents)

	d1, _ := w.Digest()
	d2, _ := parsed.Digest()
	assert.Equal(t, d1, d2)
}
