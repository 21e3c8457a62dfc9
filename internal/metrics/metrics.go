// Package metrics exposes relay counters in Prometheus format.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invocation outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeCached  = "cached"
	OutcomeInvalid = "invalid"
)

// Metrics holds the relay collectors and their registry.
type Metrics struct {
	registry      *prometheus.Registry
	sessionsOpen  prometheus.Gauge
	sessionsTotal prometheus.Counter
	invocations   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	rejected      *prometheus.CounterVec
}

// New registers relay collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_open",
			Help: "Number of open push-channel sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_total",
			Help: "Total number of sessions opened.",
		}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_invocations_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_invocation_duration_seconds",
			Help:    "Execution unit wall time.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_rejected_total",
			Help: "Correlated requests rejected before dispatch, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.sessionsOpen,
		m.sessionsTotal,
		m.invocations,
		m.duration,
		m.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SessionOpened records a new session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpen.Inc()
	m.sessionsTotal.Inc()
}

// SessionClosed records a session release.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsOpen.Dec()
}

// Invocation records one finished invocation.
func (m *Metrics) Invocation(tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(tool, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeError {
		m.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
	}
}

// Rejected records a request rejected before dispatch.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
