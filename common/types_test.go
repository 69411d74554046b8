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

package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHotkeyHexRoundTrip(t *testing.T) {
	var h Hotkey
	for i := range h {
		h[i] = byte(i)
	}
	parsed, err := HexToHotkey(h.Hex())
	assert.NoError(t, err)
	assert.Equal(t, h, parsed)

	// Bare hex without the 0x prefix parses too.
	parsed, err = HexToHotkey(h.Hex()[2:])
	assert.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = HexToHotkey("0xdead")
	assert.Error(t, err)
	_, err = HexToHotkey("zz")
	assert.Error(t, err)
}

func TestHotkeyCmp(t *testing.T) {
	var a, b Hotkey
	b[31] = 1
	assert.True(t, a.Cmp(b) < 0)
	assert.True(t, b.Cmp(a) > 0)
	assert.Equal(t, 0, a.Cmp(a))
	assert.True(t, EmptyHotkey(a))
	assert.False(t, EmptyHotkey(b))
}

func TestParseNetUID(t *testing.T) {
	uid, err := ParseNetUID("19")
	assert.NoError(t, err)
	assert.Equal(t, NetUID(19), uid)

	_, err = ParseNetUID("-1")
	assert.Error(t, err)
	_, err = ParseNetUID("70000")
	assert.Error(t, err)
	_, err = ParseNetUID("abc")
	assert.Error(t, err)
}

func TestEpochDay(t *testing.T) {
	ts := time.Date(2025, 1, 5, 13, 45, 0, 0, time.UTC)
	day := DayOfTime(ts)
	assert.Equal(t, EpochDay(20093), day)
	assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), day.Time())
}
