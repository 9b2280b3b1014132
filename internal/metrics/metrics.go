// Package metrics exposes flow accounting and enforcement counters for
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flowgraph"

// Metrics holds the instruments updated by the engine and the enforcer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	communications prometheus.Counter
	bytes          *prometheus.CounterVec
	enforcements   *prometheus.CounterVec
	kills          *prometheus.CounterVec
	ticks          prometheus.Counter
	violations     *prometheus.CounterVec
	counters       prometheus.Gauge
	principals     prometheus.Gauge
	processes      prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		communications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "communications_total",
			Help:      "Communication events received.",
		}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounted_bytes_total",
			Help:      "Bytes accounted per taint tag.",
		}, []string{"tag"}),
		enforcements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enforcements_total",
			Help:      "Threshold violations that triggered enforcement, per tag.",
		}, []string{"tag", "mode"}),
		kills: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kills_total",
			Help:      "Process termination requests by result.",
		}, []string{"result"}),
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Maintenance ticks applied.",
		}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_violations_total",
			Help:      "Ignored events referencing unknown processes or invalid sizes.",
		}, []string{"op"}),
		counters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_counters",
			Help:      "Live (flow, tag) counters.",
		}),
		principals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_principals",
			Help:      "Principals with at least one running process.",
		}),
		processes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_processes",
			Help:      "Registered processes.",
		}),
	}
}

// Registry returns the underlying registry, for tests and custom exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Communication records one communication event.
func (m *Metrics) Communication() {
	if m == nil {
		return
	}
	m.communications.Inc()
}

// Accounted records bytes attributed to tag.
func (m *Metrics) Accounted(tag string, bytes uint64) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(tag).Add(float64(bytes))
}

// Enforcement records a threshold violation.
func (m *Metrics) Enforcement(tag, mode string) {
	if m == nil {
		return
	}
	m.enforcements.WithLabelValues(tag, mode).Inc()
}

// Kill records a termination attempt; err nil counts as success.
func (m *Metrics) Kill(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.kills.WithLabelValues(result).Inc()
}

// Tick records a maintenance tick.
func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

// Violation records an ignored malformed event.
func (m *Metrics) Violation(op string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(op).Inc()
}

// Live sets the size gauges.
func (m *Metrics) Live(counters, principals, processes int) {
	if m == nil {
		return
	}
	m.counters.Set(float64(counters))
	m.principals.Set(float64(principals))
	m.processes.Set(float64(processes))
}
