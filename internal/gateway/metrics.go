package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline outcomes recorded against the outcome metric label. They
// describe how far a request travelled: rejected at authentication,
// denied by policy, forwarded, or failed on the way to the backend.
const (
	OutcomeForwarded       = "forwarded"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeDenied          = "denied"
	OutcomeError           = "error"
)

// Metrics holds Prometheus metrics for the request pipeline. The
// per-stage packages carry their own collectors; these record the
// request-level outcome the stages cannot see individually.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	registerer      prometheus.Registerer
}

// NewMetrics creates a new Metrics instance registered with
// prometheus.DefaultRegisterer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. This is useful for testing where a private registry is
// preferred.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer: registerer,
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total number of requests by pipeline outcome",
		},
		[]string{"outcome"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "request_duration_seconds",
			Help:      "Full pipeline duration in seconds by outcome",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// Use Register instead of MustRegister to handle duplicate registration
	// gracefully. If the metric is already registered (e.g., in tests), we
	// ignore the error.
	for _, c := range []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// Init pre-initializes common label combinations with zero values so that
// metrics appear in /metrics output immediately after startup. Prometheus
// *Vec types only emit metric lines after WithLabelValues() is called at
// least once. This method is idempotent and safe to call multiple times.
func (m *Metrics) Init() {
	for _, outcome := range []string{
		OutcomeForwarded,
		OutcomeUnauthenticated,
		OutcomeDenied,
		OutcomeError,
	} {
		m.requestsTotal.WithLabelValues(outcome)
	}
}

// RecordRequest records a completed pipeline pass.
func (m *Metrics) RecordRequest(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
