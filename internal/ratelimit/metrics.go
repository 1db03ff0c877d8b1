package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Decision labels recorded against the decision metric.
const (
	outcomeAllowed = "allowed"
	outcomeLimited = "limited"
)

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	decisionsTotal *prometheus.CounterVec
	storeFailures  prometheus.Counter
	registerer     prometheus.Registerer
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

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total number of rate limit decisions",
		},
		[]string{"outcome"},
	)

	m.storeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_failures_total",
			Help:      "Total number of rate limit store failures",
		},
	)

	// Use Register instead of MustRegister to handle duplicate registration
	// gracefully. If the metric is already registered (e.g., in tests), we
	// ignore the error.
	for _, c := range []prometheus.Collector{
		m.decisionsTotal,
		m.storeFailures,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// Init pre-initializes label combinations with zero values so the
// metrics appear in /metrics output immediately after startup.
func (m *Metrics) Init() {
	for _, outcome := range []string{outcomeAllowed, outcomeLimited} {
		m.decisionsTotal.WithLabelValues(outcome)
	}
}

// RecordDecision records an allow or limit decision.
func (m *Metrics) RecordDecision(allowed bool) {
	if m == nil {
		return
	}

	outcome := outcomeAllowed
	if !allowed {
		outcome = outcomeLimited
	}
	m.decisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordStoreFailure records a store operation failure.
func (m *Metrics) RecordStoreFailure() {
	if m == nil {
		return
	}
	m.storeFailures.Inc()
}
