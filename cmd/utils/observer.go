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
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
)

// HTTPObserver polls the external-chain observer service for emissions,
// prices and the miner's registered stake. The observer service itself
// (the raw chain fetcher) lives outside this repository.
type HTTPObserver struct {
	url    string
	hotkey common.Hotkey
	client *http.Client
}

func NewHTTPObserver(url string, hotkey common.Hotkey) *HTTPObserver {
	return &HTTPObserver{url: url, hotkey: hotkey, client: &http.Client{}}
}

func (o *HTTPObserver) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, o.url+path, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("observer returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseUIDValues(raw map[string]float64) (map[common.NetUID]float64, error) {
	out := make(map[common.NetUID]float64, len(raw))
	for k, v := range raw {
		uid, err := common.ParseNetUID(k)
		if err != nil {
			return nil, err
		}
		out[uid] = v
	}
	return out, nil
}

func (o *HTTPObserver) Emissions(ctx context.Context) (map[common.NetUID]float64, common.EpochDay, error) {
	var parsed struct {
		EpochDay int64              `json:"epoch_day"`
		Values   map[string]float64 `json:"emissions_by_netuid"`
	}
	if err := o.get(ctx, "/emissions", &parsed); err != nil {
		return nil, 0, err
	}
	values, err := parseUIDValues(parsed.Values)
	if err != nil {
		return nil, 0, err
	}
	return values, common.EpochDay(parsed.EpochDay), nil
}

func (o *HTTPObserver) Prices(ctx context.Context) (map[common.NetUID]float64, error) {
	var parsed struct {
		Values map[string]float64 `json:"prices_by_netuid"`
	}
	if err := o.get(ctx, "/prices", &parsed); err != nil {
		return nil, err
	}
	return parseUIDValues(parsed.Values)
}

func (o *HTTPObserver) Stake(ctx context.Context) (float64, error) {
	var parsed struct {
		Stake float64 `json:"stake_tao"`
	}
	if err := o.get(ctx, "/stake/"+o.hotkey.Hex(), &parsed); err != nil {
		return 0, err
	}
	return parsed.Stake, nil
}
