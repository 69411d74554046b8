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

// amm is the miner daemon: it observes the external chain, signs emission
// and price reports with its hotkey, and submits them onto the report bus.
package main

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/crypto/ed25519"
	"gopkg.in/urfave/cli.v1"

	"github.com/alexlange1/alphamind/cmd/utils"
	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/datasync/reportsync"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/work"
)

// Exit codes. The signer code is distinct so operators can alert on it.
const (
	exitFailure            = 1
	exitSignerMisconfigured = 78
)

var (
	logger = log.NewModuleLogger(log.CMDAMM)

	app = utils.NewApp("", "The alphamind miner daemon")

	minerFlags = []cli.Flag{
		utils.MinerIDFlag,
		utils.HotkeyFileFlag,
		utils.HMACSecretFlag,
		utils.ObserverURLFlag,
		utils.KafkaBrokersFlag,
		utils.KafkaTopicPrefixFlag,
		utils.VerbosityFlag,
		utils.MetricsEnabledFlag,
		utils.PrometheusExporterPortFlag,
	}
)

func init() {
	app.Action = runMiner
	app.HideVersion = true
	app.Copyright = "Copyright 2025 The alphamind Authors"
	app.Flags = append(app.Flags, minerFlags...)
	app.Before = func(ctx *cli.Context) error {
		utils.SetupLogging(ctx)
		utils.StartMetrics(ctx)
		return nil
	}
}

// makeAgent builds the signing agent from the flags; a broken key is fatal
// with the signer exit code.
func makeAgent(ctx *cli.Context) (work.SignAgent, error) {
	if keyFile := ctx.GlobalString(utils.HotkeyFileFlag.Name); keyFile != "" {
		blob, err := ioutil.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(strings.TrimSpace(string(blob)))
		if err != nil {
			return nil, err
		}
		return work.NewHotkeyAgent(ed25519.PrivateKey(raw))
	}
	if secret := ctx.GlobalString(utils.HMACSecretFlag.Name); secret != "" {
		// Legacy scheme: the hotkey only identifies, the secret signs.
		hotkey := common.BytesToHotkey([]byte(ctx.GlobalString(utils.MinerIDFlag.Name)))
		return work.NewHMACAgent(hotkey, []byte(secret))
	}
	return nil, work.ErrSignerMisconfigured
}

func runMiner(ctx *cli.Context) error {
	agent, err := makeAgent(ctx)
	if err != nil {
		logger.Error("Signer configuration broken", "err", err)
		os.Exit(exitSignerMisconfigured)
	}

	brokers := ctx.GlobalString(utils.KafkaBrokersFlag.Name)
	if brokers == "" {
		return fmt.Errorf("--%s is required", utils.KafkaBrokersFlag.Name)
	}
	kafkaConfig := reportsync.GetDefaultKafkaConfig()
	kafkaConfig.Brokers = utils.SplitAndTrim(brokers)
	kafkaConfig.TopicPrefix = ctx.GlobalString(utils.KafkaTopicPrefixFlag.Name)
	broker, err := reportsync.NewBroker(kafkaConfig)
	if err != nil {
		return err
	}
	defer broker.Close()

	observer := utils.NewHTTPObserver(ctx.GlobalString(utils.ObserverURLFlag.Name), agent.Hotkey())

	config := work.DefaultWorkerConfig
	config.MinerID = ctx.GlobalString(utils.MinerIDFlag.Name)
	worker := work.NewWorker(config, observer, agent, broker)
	worker.Start()
	logger.Info("Miner daemon running", "miner", config.MinerID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("Shutting down...")
		worker.Stop()
		return nil
	case err := <-worker.Fatal():
		worker.Stop()
		logger.Error("Fatal worker error", "err", err)
		os.Exit(exitSignerMisconfigured)
		return err
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}
