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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/epoch"
)

// HTTPPublisher drives the external anchor service over its JSON endpoint.
// With no URL configured, anchors are recorded locally only and reported as
// accepted; operators running the on-chain driver point publisher.url at it.
type HTTPPublisher struct {
	url    string
	client *http.Client
}

func NewHTTPPublisher(url string) *HTTPPublisher {
	return &HTTPPublisher{url: url, client: &http.Client{}}
}

type publishRequest struct {
	EpochID   uint64 `json:"epoch_id"`
	DigestHex string `json:"digest_hex"`
	SignerID  string `json:"signer_id"`
}

type publishResponse struct {
	TxHash  string `json:"tx_hash"`
	ChainID string `json:"chain_id"`
	Status  string `json:"status"`
}

func (p *HTTPPublisher) Publish(ctx context.Context, epochID common.EpochID, digestHex, signerID string) (epoch.PublishReceipt, error) {
	if p.url == "" {
		logger.Warn("No publisher endpoint configured; anchor recorded locally only", "epoch", epochID, "digest", digestHex)
		return epoch.PublishReceipt{TxHash: "", ChainID: "local", Status: "local-only"}, nil
	}

	body, err := json.Marshal(&publishRequest{EpochID: uint64(epochID), DigestHex: digestHex, SignerID: signerID})
	if err != nil {
		return epoch.PublishReceipt{}, err
	}
	req, err := http.NewRequest(http.MethodPost, p.url+"/publish", bytes.NewReader(body))
	if err != nil {
		return epoch.PublishReceipt{}, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return epoch.PublishReceipt{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return epoch.PublishReceipt{}, errors.Errorf("publisher returned status %d", resp.StatusCode)
	}
	var parsed publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return epoch.PublishReceipt{}, err
	}
	return epoch.PublishReceipt{TxHash: parsed.TxHash, ChainID: parsed.ChainID, Status: parsed.Status}, nil
}

func (p *HTTPPublisher) Verify(ctx context.Context, epochID common.EpochID) (string, string, error) {
	if p.url == "" {
		return "", "local-only", nil
	}
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/verify/%d", p.url, epochID), nil)
	if err != nil {
		return "", "", err
	}
	req = req.WithContext(ctx)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	var parsed struct {
		DigestHex string `json:"digest_hex"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", err
	}
	return parsed.DigestHex, parsed.Status, nil
}
