// Package metrics holds the Prometheus collectors for the SSE server. A nil
// *Metrics is valid and records nothing, so callers never need to check.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcp_sse"

// Message outcomes recorded by the router.
const (
	OutcomeAccepted       = "accepted"
	OutcomeMissingSession = "missing_session"
	OutcomeUnknownSession = "unknown_session"
	OutcomeRejected       = "rejected"
	OutcomeFailed         = "failed"
)

// Metrics is the collector set for one server.
type Metrics struct {
	registry *prometheus.Registry

	sessionsOpen   prometheus.Gauge
	sessionsOpened prometheus.Counter
	messages       *prometheus.CounterVec
	dispatches     *prometheus.CounterVec
	dispatchTime   *prometheus.HistogramVec
}

// New creates the collectors on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Number of currently open SSE sessions",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total SSE sessions opened",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages POSTed to the message endpoint by outcome",
		}, []string{"outcome"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "JSON-RPC requests dispatched by method and outcome",
		}, []string{"method", "outcome"}),
		dispatchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling JSON-RPC requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsOpen,
		m.sessionsOpened,
		m.messages,
		m.dispatches,
		m.dispatchTime,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:          m.registry,
		EnableOpenMetrics: false,
	})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpen.Inc()
	m.sessionsOpened.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsOpen.Dec()
}

func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

// Dispatch records one handled request. Unknown method names are folded
// into a single label value to keep cardinality bounded.
func (m *Metrics) Dispatch(method string, known bool, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	if !known {
		method = "unknown"
	}
	m.dispatches.WithLabelValues(method, outcome).Inc()
	m.dispatchTime.WithLabelValues(method).Observe(dur.Seconds())
}
