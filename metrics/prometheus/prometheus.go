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

// Package prometheusmetrics republishes the go-metrics registry as
// Prometheus gauges so the daemons can expose /metrics.
package prometheusmetrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
)

// PrometheusProvider periodically walks a go-metrics registry and updates
// matching Prometheus gauges.
type PrometheusProvider struct {
	namespace     string
	registry      metrics.Registry
	subsystem     string
	promRegistry  prometheus.Registerer
	flushInterval time.Duration

	mu     sync.Mutex
	gauges map[string]prometheus.Gauge
}

func NewPrometheusProvider(r metrics.Registry, namespace, subsystem string, promRegistry prometheus.Registerer, flushInterval time.Duration) *PrometheusProvider {
	return &PrometheusProvider{
		namespace:     namespace,
		subsystem:     subsystem,
		registry:      r,
		promRegistry:  promRegistry,
		flushInterval: flushInterval,
		gauges:        make(map[string]prometheus.Gauge),
	}
}

func (c *PrometheusProvider) flattenKey(key string) string {
	key = strings.Replace(key, " ", "_", -1)
	key = strings.Replace(key, ".", "_", -1)
	key = strings.Replace(key, "-", "_", -1)
	key = strings.Replace(key, "/", "_", -1)
	return key
}

func (c *PrometheusProvider) gaugeFromNameAndValue(name string, val float64) {
	key := fmt.Sprintf("%s_%s_%s", c.namespace, c.subsystem, c.flattenKey(name))
	c.mu.Lock()
	g, ok := c.gauges[key]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: c.flattenKey(c.namespace),
			Subsystem: c.flattenKey(c.subsystem),
			Name:      c.flattenKey(name),
			Help:      name,
		})
		if err := c.promRegistry.Register(g); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				g = already.ExistingCollector.(prometheus.Gauge)
			} else {
				c.mu.Unlock()
				return
			}
		}
		c.gauges[key] = g
	}
	c.mu.Unlock()
	g.Set(val)
}

// UpdatePrometheusMetrics runs the flush loop; callers start it in its own
// goroutine.
func (c *PrometheusProvider) UpdatePrometheusMetrics() {
	for range time.Tick(c.flushInterval) {
		c.UpdatePrometheusMetricsOnce()
	}
}

func (c *PrometheusProvider) UpdatePrometheusMetricsOnce() error {
	c.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			c.gaugeFromNameAndValue(name, float64(m.Count()))
		case metrics.Gauge:
			c.gaugeFromNameAndValue(name, float64(m.Value()))
		case metrics.GaugeFloat64:
			c.gaugeFromNameAndValue(name, m.Value())
		case metrics.Meter:
			c.gaugeFromNameAndValue(name, m.Rate1())
		case metrics.Timer:
			c.gaugeFromNameAndValue(name, m.Rate1())
		case metrics.Histogram:
			c.gaugeFromNameAndValue(name, m.Mean())
		}
	})
	return nil
}
