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
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	// HotkeyLength is the byte length of a miner signing identity.
	HotkeyLength = 32
)

// NetUID identifies a constituent subnet on the external chain.
type NetUID uint16

func (u NetUID) String() string {
	return strconv.FormatUint(uint64(u), 10)
}

// ParseNetUID parses the stringified integer keys used by the report wire
// format. Values outside [0, 65535] are rejected.
func ParseNetUID(s string) (NetUID, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid netuid %q: %v", s, err)
	}
	return NetUID(v), nil
}

// EpochID is the monotonic counter of published weight-set epochs.
type EpochID uint64

// Hotkey is the 32-byte public key identifying a miner signing identity.
type Hotkey [HotkeyLength]byte

// BytesToHotkey copies b into a Hotkey, left-truncating oversized input the
// way fixed-size chain types do.
func BytesToHotkey(b []byte) Hotkey {
	var h Hotkey
	if len(b) > HotkeyLength {
		b = b[len(b)-HotkeyLength:]
	}
	copy(h[HotkeyLength-len(b):], b)
	return h
}

// HexToHotkey decodes a 0x-prefixed or bare hex string into a Hotkey.
func HexToHotkey(s string) (Hotkey, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hotkey{}, fmt.Errorf("invalid hotkey hex: %v", err)
	}
	if len(b) != HotkeyLength {
		return Hotkey{}, fmt.Errorf("invalid hotkey length %d, want %d", len(b), HotkeyLength)
	}
	return BytesToHotkey(b), nil
}

func (h Hotkey) Bytes() []byte { return h[:] }

func (h Hotkey) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hotkey) String() string { return h.Hex() }

// Cmp orders hotkeys byte-lexicographically, the ordering used for every
// deterministic tie-break involving signers.
func (h Hotkey) Cmp(other Hotkey) int {
	return bytes.Compare(h[:], other[:])
}

// EmptyHotkey reports whether h is the zero value.
func EmptyHotkey(h Hotkey) bool {
	return h == Hotkey{}
}
