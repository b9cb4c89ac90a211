// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the server's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	PluginsLoaded          prometheus.Counter
	ControllersConstructed *prometheus.CounterVec
	MigrationsApplied      *prometheus.CounterVec
	ReloadsTotal           *prometheus.CounterVec
	BootDuration           prometheus.Gauge
	BootState              *prometheus.GaugeVec
}

// NewMetrics creates and registers the server metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PluginsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nfive_plugins_loaded_total",
			Help: "Total number of plugins loaded at boot",
		}),
		ControllersConstructed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfive_controllers_constructed_total",
				Help: "Total number of controllers constructed by plugin",
			},
			[]string{"plugin"},
		),
		MigrationsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfive_migrations_applied_total",
				Help: "Total number of migration steps applied by plugin",
			},
			[]string{"plugin"},
		),
		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfive_reloads_total",
				Help: "Total number of reload commands by outcome",
			},
			[]string{"outcome"},
		),
		BootDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nfive_boot_duration_seconds",
			Help: "Duration of the last boot",
		}),
		BootState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nfive_boot_state",
				Help: "1 for the current boot state, 0 otherwise",
			},
			[]string{"state"},
		),
	}

	reg.MustRegister(
		m.PluginsLoaded,
		m.ControllersConstructed,
		m.MigrationsApplied,
		m.ReloadsTotal,
		m.BootDuration,
		m.BootState,
	)
	return m
}

// PluginLoaded records one loaded plugin.
func (m *Metrics) PluginLoaded() {
	if m == nil {
		return
	}
	m.PluginsLoaded.Inc()
}

// ControllerConstructed records one constructed controller of plugin.
func (m *Metrics) ControllerConstructed(plugin string) {
	if m == nil {
		return
	}
	m.ControllersConstructed.WithLabelValues(plugin).Inc()
}

// MigrationApplied records n applied migration steps of plugin.
func (m *Metrics) MigrationApplied(plugin string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MigrationsApplied.WithLabelValues(plugin).Add(float64(n))
}

// ReloadCompleted records a reload command outcome.
func (m *Metrics) ReloadCompleted(outcome string) {
	if m == nil {
		return
	}
	m.ReloadsTotal.WithLabelValues(outcome).Inc()
}

// BootFinished records the boot duration.
func (m *Metrics) BootFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.BootDuration.Set(d.Seconds())
}

// StateChanged marks state as the current boot state among states.
func (m *Metrics) StateChanged(state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.BootState.WithLabelValues(s).Set(v)
	}
}
