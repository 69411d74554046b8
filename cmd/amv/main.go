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

// amv is the validator daemon: it ingests signed miner reports from the
// bus, runs the consensus pipeline, maintains the simulated vault and
// publishes canonical epoch artifacts.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/alexlange1/alphamind/cmd/utils"
	"github.com/alexlange1/alphamind/datasync/exporter"
	"github.com/alexlange1/alphamind/datasync/reportsync"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/node"
	"github.com/alexlange1/alphamind/node/vn"
	"github.com/alexlange1/alphamind/storage/database"
)

var (
	logger = log.NewModuleLogger(log.CMDAMV)

	app = utils.NewApp("", "The alphamind validator daemon")

	nodeFlags = []cli.Flag{
		utils.DataDirFlag,
		utils.DBTypeFlag,
		utils.ConfigFileFlag,
		utils.VerbosityFlag,
		utils.SignerIDFlag,
		utils.KafkaBrokersFlag,
		utils.KafkaTopicPrefixFlag,
		utils.KafkaGroupIDFlag,
		utils.StakeFileFlag,
		utils.PublisherURLFlag,
		utils.ExporterModeFlag,
		utils.RedisAddrFlag,
		utils.MetricsEnabledFlag,
		utils.PrometheusExporterPortFlag,
	}
)

func init() {
	app.Action = runValidator
	app.HideVersion = true
	app.Copyright = "Copyright 2025 The alphamind Authors"
	app.Flags = append(app.Flags, nodeFlags...)
	app.Flags = append(app.Flags, utils.ExporterMySQLDSNFlags...)
	app.Commands = []cli.Command{
		dumpConfigCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Before = func(ctx *cli.Context) error {
		utils.SetupLogging(ctx)
		utils.StartMetrics(ctx)
		return nil
	}
}

var dumpConfigCommand = cli.Command{
	Name:  "dumpconfig",
	Usage: "Show the effective configuration",
	Action: func(ctx *cli.Context) error {
		cfg := makeConfig(ctx)
		return utils.DumpTOMLConfig(cfg)
	},
	Flags: nodeFlags,
}

func makeConfig(ctx *cli.Context) *vn.Config {
	cfg := vn.DefaultConfig
	if err := utils.LoadTOMLConfig(ctx, &cfg); err != nil {
		logger.Crit("Cannot load config file", "err", err)
	}
	if ctx.GlobalIsSet(utils.DataDirFlag.Name) {
		cfg.DataDir = ctx.GlobalString(utils.DataDirFlag.Name)
	}
	if ctx.GlobalIsSet(utils.DBTypeFlag.Name) {
		cfg.DBType = database.DBType(ctx.GlobalString(utils.DBTypeFlag.Name))
	}
	if ctx.GlobalIsSet(utils.SignerIDFlag.Name) {
		cfg.SignerID = ctx.GlobalString(utils.SignerIDFlag.Name)
	}
	if brokers := ctx.GlobalString(utils.KafkaBrokersFlag.Name); brokers != "" {
		kafka := reportsync.GetDefaultKafkaConfig()
		kafka.Brokers = utils.SplitAndTrim(brokers)
		kafka.TopicPrefix = ctx.GlobalString(utils.KafkaTopicPrefixFlag.Name)
		kafka.GroupID = ctx.GlobalString(utils.KafkaGroupIDFlag.Name)
		cfg.Kafka = kafka
	}
	switch exporter.Mode(ctx.GlobalString(utils.ExporterModeFlag.Name)) {
	case exporter.ModeKafka:
		if cfg.Kafka == nil {
			logger.Crit("Kafka exporter requires --kafka.brokers")
		}
		cfg.Exporter = &exporter.ExporterConfig{
			Mode: exporter.ModeKafka,
			Kafka: &exporter.KafkaRepositoryConfig{
				Brokers:     cfg.Kafka.Brokers,
				TopicPrefix: cfg.Kafka.TopicPrefix,
				Replicas:    cfg.Kafka.Replicas,
				Partitions:  cfg.Kafka.Partitions,
			},
		}
	case exporter.ModeMySQL:
		cfg.Exporter = &exporter.ExporterConfig{
			Mode: exporter.ModeMySQL,
			MySQL: &exporter.MySQLRepositoryConfig{
				DBUser: ctx.GlobalString("exporter.mysql.user"),
				DBPass: ctx.GlobalString("exporter.mysql.password"),
				DBHost: ctx.GlobalString("exporter.mysql.host"),
				DBPort: ctx.GlobalString("exporter.mysql.port"),
				DBName: ctx.GlobalString("exporter.mysql.name"),
			},
		}
	}
	if cfg.Exporter != nil {
		cfg.Exporter.RedisAddr = ctx.GlobalString(utils.RedisAddrFlag.Name)
	}
	return &cfg
}

func runValidator(ctx *cli.Context) error {
	cfg := makeConfig(ctx)

	stakes, err := utils.NewStakeFileSource(ctx.GlobalString(utils.StakeFileFlag.Name))
	if err != nil {
		logger.Crit("Cannot load stake snapshot", "err", err)
	}
	publisher := utils.NewHTTPPublisher(ctx.GlobalString(utils.PublisherURLFlag.Name))

	validator, err := vn.New(cfg, stakes, publisher)
	if err != nil {
		return err
	}
	stack := new(node.Stack)
	stack.Register(validator)
	if err := stack.Start(); err != nil {
		return err
	}
	logger.Info("Validator daemon running", "datadir", cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutting down...")
	return stack.Stop()
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
