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
	"strings"

	"gopkg.in/urfave/cli.v1"
)

var (
	// General flags shared by both daemons.
	DataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the databases, journals and epoch artifacts",
		Value: "alphamind-data",
	}
	DBTypeFlag = cli.StringFlag{
		Name:  "dbtype",
		Usage: `Backing database type ("leveldb", "badger", "memory")`,
		Value: "leveldb",
	}
	ConfigFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	VerbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error)",
		Value: "info",
	}

	// Kafka report bus.
	KafkaBrokersFlag = cli.StringFlag{
		Name:  "kafka.brokers",
		Usage: "Comma separated Kafka broker URLs of the report bus",
	}
	KafkaTopicPrefixFlag = cli.StringFlag{
		Name:  "kafka.topicprefix",
		Usage: "Topic prefix on the report bus",
		Value: "alphamind",
	}
	KafkaGroupIDFlag = cli.StringFlag{
		Name:  "kafka.groupid",
		Usage: "Consumer group id of the validator ingest",
		Value: "alphamind-validator",
	}

	// Validator flags.
	StakeFileFlag = cli.StringFlag{
		Name:  "stakefile",
		Usage: "JSON snapshot of registered hotkey stakes, refreshed by the chain syncer",
		Value: "stakes.json",
	}
	PublisherURLFlag = cli.StringFlag{
		Name:  "publisher.url",
		Usage: "Endpoint of the external on-chain publisher driver; empty records anchors locally only",
	}
	SignerIDFlag = cli.StringFlag{
		Name:  "signerid",
		Usage: "Identity used towards the on-chain publisher",
		Value: "alphamind-validator",
	}
	ExporterModeFlag = cli.StringFlag{
		Name:  "exporter",
		Usage: `Downstream exporter mode ("", "kafka", "mysql")`,
	}
	ExporterMySQLDSNFlags = []cli.Flag{
		cli.StringFlag{Name: "exporter.mysql.user", Usage: "Exporter MySQL user"},
		cli.StringFlag{Name: "exporter.mysql.password", Usage: "Exporter MySQL password"},
		cli.StringFlag{Name: "exporter.mysql.host", Usage: "Exporter MySQL host", Value: "127.0.0.1"},
		cli.StringFlag{Name: "exporter.mysql.port", Usage: "Exporter MySQL port", Value: "3306"},
		cli.StringFlag{Name: "exporter.mysql.name", Usage: "Exporter MySQL database name", Value: "alphamind"},
	}
	RedisAddrFlag = cli.StringFlag{
		Name:  "redis.addr",
		Usage: "Optional redis address mirroring the latest snapshots",
	}

	// Miner flags.
	MinerIDFlag = cli.StringFlag{
		Name:  "minerid",
		Usage: "Stable operator label attached to every report",
		Value: "alphamind-miner",
	}
	HotkeyFileFlag = cli.StringFlag{
		Name:  "hotkeyfile",
		Usage: "File holding the hex ed25519 private key of the miner hotkey",
	}
	HMACSecretFlag = cli.StringFlag{
		Name:  "hmacsecret",
		Usage: "Legacy shared secret; enables the HMAC signing scheme",
	}
	ObserverURLFlag = cli.StringFlag{
		Name:  "observer.url",
		Usage: "Endpoint of the external-chain observer the miner polls",
		Value: "http://127.0.0.1:9944",
	}

	// Metrics.
	MetricsEnabledFlag = cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection and reporting",
	}
	PrometheusExporterPortFlag = cli.IntFlag{
		Name:  "metrics.port",
		Usage: "Prometheus exporter listening port",
		Value: 61001,
	}
)

// SplitAndTrim splits a comma separated flag value into its parts.
func SplitAndTrim(input string) []string {
	result := strings.Split(input, ",")
	for i, r := range result {
		result[i] = strings.TrimSpace(r)
	}
	return result
}
