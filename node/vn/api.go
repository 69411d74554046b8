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

package vn

import (
	"time"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/scoring"
	"github.com/alexlange1/alphamind/fund/types"
)

// AdminAPI is the authenticated operator surface: pause/resume, forced
// snapshots, forced publication. No business-logic override exists.
type AdminAPI struct {
	node *ValidatorNode
}

func NewAdminAPI(node *ValidatorNode) *AdminAPI {
	return &AdminAPI{node: node}
}

// PauseConstituent stops trading the constituent and drops it from the
// next weight set.
func (api *AdminAPI) PauseConstituent(uid common.NetUID) error {
	api.node.pausedIndex.Add(uid)
	return api.node.vlt.PauseConstituent(uid)
}

func (api *AdminAPI) ResumeConstituent(uid common.NetUID) error {
	api.node.pausedIndex.Remove(uid)
	return api.node.vlt.ResumeConstituent(uid)
}

func (api *AdminAPI) PauseAll() error {
	return api.node.vlt.PauseAll()
}

func (api *AdminAPI) ResumeAll() error {
	return api.node.vlt.ResumeAll()
}

// ForceSnapshot runs a price consensus round immediately.
func (api *AdminAPI) ForceSnapshot() *types.ConsensusSnapshot {
	return api.node.runPriceConsensus(time.Now().UTC())
}

// ForcePublish re-arms the anchor attempts for an epoch whose publish
// previously failed.
func (api *AdminAPI) ForcePublish(epochID common.EpochID) (*types.PublicationRecord, error) {
	return api.node.machine.RetryAnchor(api.node.ctx, epochID)
}

// RotateSigner swaps the identity used for future anchor calls.
func (api *AdminAPI) RotateSigner(signerID string) {
	api.node.config.SignerID = signerID
	api.node.machine.SetSignerID(signerID)
}

// MinerRecords lists the scoring registry for operator inspection.
func (api *AdminAPI) MinerRecords() []scoring.MinerRecord {
	return api.node.registry.Records()
}
