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

package log

// ModuleID tags each logger with the subsystem it belongs to.
type ModuleID int

const (
	BaseLogger ModuleID = iota
	StorageDatabase
	FundTypes
	FundReportPool
	FundConsensus
	FundIndex
	FundVault
	FundScoring
	FundEpoch
	Work
	DataSyncReportSync
	DataSyncExporter
	NodeVN
	CMDAMV
	CMDAMM
)

var moduleNames = [...]string{
	"base",
	"storage/database",
	"fund/types",
	"fund/reportpool",
	"fund/consensus",
	"fund/index",
	"fund/vault",
	"fund/scoring",
	"fund/epoch",
	"work",
	"datasync/reportsync",
	"datasync/exporter",
	"node/vn",
	"cmd/amv",
	"cmd/amm",
}

func (mi ModuleID) String() string {
	if mi < 0 || int(mi) >= len(moduleNames) {
		return "unknown"
	}
	return moduleNames[mi]
}
