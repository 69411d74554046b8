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

package exporter

import (
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/alexlange1/alphamind/fund/types"
)

// Mirror keys. External dashboards read these; nothing in the core does.
const (
	redisKeySnapshotPrefix = "alphamind:consensus:"
	redisKeyNav            = "alphamind:nav"
	redisSnapshotTTL       = 10 * time.Minute
)

// RedisMirror keeps the newest consensus snapshot and NAV in a cache for
// external dashboards.
type RedisMirror struct {
	client *redis.Client
}

func NewRedisMirror(addr, password string) *RedisMirror {
	return &RedisMirror{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

func (m *RedisMirror) PublishSnapshot(snap *types.ConsensusSnapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return m.client.Set(redisKeySnapshotPrefix+string(snap.Kind), blob, redisSnapshotTTL).Err()
}

type navRecord struct {
	NavPerTokenTao float64   `json:"nav_per_token_tao"`
	TotalSupply    float64   `json:"total_supply"`
	AsOf           time.Time `json:"as_of"`
}

func (m *RedisMirror) PublishNav(nav, supply float64, asOf time.Time) error {
	blob, err := json.Marshal(&navRecord{NavPerTokenTao: nav, TotalSupply: supply, AsOf: asOf})
	if err != nil {
		return err
	}
	return m.client.Set(redisKeyNav, blob, redisSnapshotTTL).Err()
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
