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

package database

import (
	"encoding/binary"
	"time"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
)

// Key layouts. Reports sort by timestamp first so range scans and eviction
// walk in submission-time order; one entry per report.
//
//   report key    = unix-nano (8B BE) || hotkey (32B)
//   consensus key = kind byte || unix-nano (8B BE)
//   epoch keys    = tag byte || epoch id (8B BE)

var (
	vaultStateKey      = []byte("vault-state")
	anchoredEpochKey   = []byte("anchored-epoch")
	exportCheckpointKey = []byte("export-checkpoint")

	artifactPrefix    = []byte("a")
	digestPrefix      = []byte("d")
	publicationPrefix = []byte("p")
	scoresPrefix      = []byte("s")
	latestConsensusPrefix = []byte("l")
)

func encodeUnixNano(t time.Time) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, uint64(t.UTC().UnixNano()))
	return enc
}

func encodeEpochID(e common.EpochID) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, uint64(e))
	return enc
}

func reportKey(ts time.Time, hotkey common.Hotkey) []byte {
	return append(encodeUnixNano(ts), hotkey.Bytes()...)
}

func consensusKey(kind types.ReportKind, ts time.Time) []byte {
	return append([]byte{kindByte(kind)}, encodeUnixNano(ts)...)
}

func latestConsensusKey(kind types.ReportKind) []byte {
	return append(latestConsensusPrefix, kindByte(kind))
}

func kindByte(kind types.ReportKind) byte {
	switch kind {
	case types.EmissionsKind:
		return 'e'
	case types.PricesKind:
		return 'p'
	case types.NavKind:
		return 'n'
	}
	return '?'
}

func rollingKey(uid common.NetUID) []byte {
	enc := make([]byte, 3)
	enc[0] = 'r'
	binary.BigEndian.PutUint16(enc[1:], uint16(uid))
	return enc
}

func artifactKey(e common.EpochID) []byte    { return append(artifactPrefix, encodeEpochID(e)...) }
func digestKey(e common.EpochID) []byte      { return append(digestPrefix, encodeEpochID(e)...) }
func publicationKey(e common.EpochID) []byte { return append(publicationPrefix, encodeEpochID(e)...) }
func scoresKey(e common.EpochID) []byte      { return append(scoresPrefix, encodeEpochID(e)...) }
