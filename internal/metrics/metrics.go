// Package metrics collects Prometheus metrics for a single CLI run.
//
// A run is short-lived, so nothing is served over HTTP; the registry is written to a
// node_exporter textfile when a metrics file is configured. All methods are safe on a nil
// *Metrics, which is what callers get when metrics are disabled.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "emf_tenancy"

// Poll outcomes.
const (
	OutcomeReady    = "ready"
	OutcomeTimeout  = "timeout"
	OutcomeAborted  = "aborted"
	OutcomeCanceled = "canceled"
)

// Metrics holds the collectors for one run.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	polls        *prometheus.CounterVec
	pollAttempts *prometheus.HistogramVec
	pollDuration *prometheus.HistogramVec
	assignments  *prometheus.CounterVec
}

// New creates a metrics collector with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests issued to the identity and orchestration services",
			},
			[]string{"service", "method", "code"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Completed poll loops by outcome",
			},
			[]string{"outcome"},
		),
		pollAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_attempts",
				Help:      "Attempts made by a poll loop before it finished",
				Buckets:   []float64{1, 2, 3, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Wall time spent in a poll loop",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 9),
			},
			[]string{"outcome"},
		),
		assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "group_assignments_total",
				Help:      "Group assignment attempts by status",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(m.requests, m.polls, m.pollAttempts, m.pollDuration, m.assignments)
	return m
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest counts one HTTP exchange. A code of 0 means the request never got a response.
func (m *Metrics) ObserveRequest(service, method string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(service, method, strconv.Itoa(code)).Inc()
}

// ObservePoll records a finished poll loop.
func (m *Metrics) ObservePoll(outcome string, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome).Inc()
	m.pollAttempts.WithLabelValues(outcome).Observe(float64(attempts))
	m.pollDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveAssignment counts one group assignment result.
func (m *Metrics) ObserveAssignment(status string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(status).Inc()
}

// WriteTextfile writes the registry in the text exposition format. It is a no-op when
// metrics are disabled or path is empty.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
