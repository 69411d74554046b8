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
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/naoina/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
	"gopkg.in/urfave/cli.v1"

	"github.com/alexlange1/alphamind/log"
	prometheusmetrics "github.com/alexlange1/alphamind/metrics/prometheus"
)

var logger = log.NewModuleLogger(log.BaseLogger)

const clientIdentifier = "alphamind"

// NewApp creates an app with sane defaults.
func NewApp(gitCommit, usage string) *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Author = ""
	app.Email = ""
	app.Version = "1.0.0"
	if len(gitCommit) >= 8 {
		app.Version += "-" + gitCommit[:8]
	}
	app.Usage = usage
	return app
}

// SetupLogging applies the verbosity flag.
func SetupLogging(ctx *cli.Context) {
	log.SetLevel(ctx.GlobalString(VerbosityFlag.Name))
}

// StartMetrics exposes the go-metrics registry through the Prometheus
// exporter when metrics are enabled.
func StartMetrics(ctx *cli.Context) {
	if !ctx.GlobalBool(MetricsEnabledFlag.Name) {
		return
	}
	logger.Info("Enabling metrics collection")
	pClient := prometheusmetrics.NewPrometheusProvider(metrics.DefaultRegistry, clientIdentifier,
		"", prometheus.DefaultRegisterer, 3*time.Second)
	go pClient.UpdatePrometheusMetrics()
	http.Handle("/metrics", promhttp.Handler())
	port := ctx.GlobalInt(PrometheusExporterPortFlag.Name)
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), nil); err != nil {
			logger.Error("PrometheusExporter starting failed:", "port", port, "err", err)
		}
	}()
}

// LoadTOMLConfig decodes the --config file into cfg when the flag is set.
func LoadTOMLConfig(ctx *cli.Context, cfg interface{}) error {
	path := ctx.GlobalString(ConfigFileFlag.Name)
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewDecoder(f).Decode(cfg)
}

// DumpTOMLConfig writes the effective configuration to stdout, the
// dumpconfig command body.
func DumpTOMLConfig(cfg interface{}) error {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
