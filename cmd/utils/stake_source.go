// Copyright 2025 The alphamind Authors
// This file is part of alphamind.
//
// alphamind is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// alphamind is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with alphamind. If not, see <http://www.gnu.org/licenses/>.

package utils

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
)

// StakeFileSource serves stake lookups from a JSON snapshot file the chain
// syncer (an external process) refreshes. The file's modification time is
// the snapshot age.
type StakeFileSource struct {
	path string

	mu      sync.RWMutex
	stakes  map[common.Hotkey]float64
	total   float64
	modTime time.Time
}

type stakeFile struct {
	Stakes map[string]float64 `json:"stakes"`
}

func NewStakeFileSource(path string) (*StakeFileSource, error) {
	s := &StakeFileSource{path: path, stakes: make(map[common.Hotkey]float64)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	go s.watch()
	return s, nil
}

// Reload re-reads the snapshot file.
func (s *StakeFileSource) Reload() error {
	fi, err := os.Stat(s.path)
	if err != nil {
		return errors.Wrap(err, "stat stake file")
	}
	blob, err := ioutil.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "read stake file")
	}
	var parsed stakeFile
	if err := json.Unmarshal(blob, &parsed); err != nil {
		return errors.Wrap(err, "parse stake file")
	}

	stakes := make(map[common.Hotkey]float64, len(parsed.Stakes))
	var total float64
	for hex, stake := range parsed.Stakes {
		hotkey, herr := common.HexToHotkey(hex)
		if herr != nil {
			logger.Warn("Skipping invalid hotkey in stake file", "hotkey", hex, "err", herr)
			continue
		}
		if stake <= 0 {
			continue
		}
		stakes[hotkey] = stake
		total += stake
	}

	s.mu.Lock()
	s.stakes = stakes
	s.total = total
	s.modTime = fi.ModTime()
	s.mu.Unlock()
	logger.Info("Loaded stake snapshot", "hotkeys", len(stakes), "totalStake", total)
	return nil
}

// watch polls the file for refreshes.
func (s *StakeFileSource) watch() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		fi, err := os.Stat(s.path)
		if err != nil {
			continue
		}
		s.mu.RLock()
		stale := fi.ModTime().After(s.modTime)
		s.mu.RUnlock()
		if stale {
			if err := s.Reload(); err != nil {
				logger.Error("Stake snapshot reload failed", "err", err)
			}
		}
	}
}

func (s *StakeFileSource) StakeOf(hotkey common.Hotkey) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stakes[hotkey]
}

func (s *StakeFileSource) TotalActiveStake() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

func (s *StakeFileSource) SnapshotAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.modTime)
}
