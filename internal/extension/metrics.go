// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package extension

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks extension lifecycle activity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registered      prometheus.Gauge
	pingFailures    prometheus.Counter
	deregistrations prometheus.Counter
}

// NewMetrics creates and registers extension metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "querymesh_extensions_registered",
			Help: "Number of currently registered extensions",
		}),
		pingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "querymesh_extension_ping_failures_total",
			Help: "Total number of failed extension heartbeat probes",
		}),
		deregistrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "querymesh_extension_deregistrations_total",
			Help: "Total number of extensions deregistered by the watcher",
		}),
	}

	reg.MustRegister(m.registered, m.pingFailures, m.deregistrations)
	return m
}

// RecordRegistered adjusts the registered-extension gauge.
func (m *Metrics) RecordRegistered(delta float64) {
	if m == nil {
		return
	}
	m.registered.Add(delta)
}

// RecordPingFailure counts one failed heartbeat probe.
func (m *Metrics) RecordPingFailure() {
	if m == nil {
		return
	}
	m.pingFailures.Inc()
}

// RecordDeregistration counts one watcher-driven deregistration.
func (m *Metrics) RecordDeregistration() {
	if m == nil {
		return
	}
	m.deregistrations.Inc()
}
