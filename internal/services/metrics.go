package services

import (
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics counts request outcomes. Register it on a service with [WithObserver]([Metrics.Observe]).
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	invalidations prometheus.Counter
}

// NewMetrics creates the client metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgx_client_requests_total",
				Help: "Requests that reached a terminal state.",
			},
			[]string{"method", "tier", "outcome", "status"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgx_client_retries_total",
				Help: "Attempts that failed in transport and were retried.",
			},
			[]string{"method", "tier"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgx_client_request_duration_seconds",
				Help:    "Time from first attempt to terminal state, including backoff.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "tier"},
		),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imgx_client_credential_rejections_total",
			Help: "Responses with status 401.",
		}),
	}
	m.registry.MustRegister(m.requests, m.retries, m.duration, m.invalidations)
	return m
}

// Observe records a transition. It satisfies [Observer].
func (m *Metrics) Observe(t Transition) {
	tier := t.Tier.String()

	switch t.To {
	case StateFailedRetryable:
		m.retries.WithLabelValues(t.Method, tier).Inc()
	case StateSucceeded, StateFailedTerminal:
		outcome := "success"
		if t.To == StateFailedTerminal {
			outcome = "failure"
		}
		m.requests.WithLabelValues(t.Method, tier, outcome, strconv.Itoa(t.Status)).Inc()
		m.duration.WithLabelValues(t.Method, tier).Observe(t.Elapsed.Seconds())
		if t.Status == 401 {
			m.invalidations.Inc()
		}
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteText writes every metric in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
