package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Validation outcomes recorded against the outcome metric label.
const (
	OutcomeSuccess       = "success"
	OutcomeMissing       = "missing_header"
	OutcomeMalformed     = "malformed_header"
	OutcomeInvalidToken  = "invalid_token"
	OutcomeProviderError = "provider_error"
)

// Metrics holds Prometheus metrics for credential validation.
type Metrics struct {
	validationsTotal   *prometheus.CounterVec
	validationDuration prometheus.Histogram
	registerer         prometheus.Registerer
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

	m.validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "validations_total",
			Help:      "Total number of credential validations",
		},
		[]string{"outcome"},
	)

	m.validationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "validation_duration_seconds",
			Help:      "Credential validation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Use Register instead of MustRegister to handle duplicate registration
	// gracefully. If the metric is already registered (e.g., in tests), we
	// ignore the error.
	for _, c := range []prometheus.Collector{
		m.validationsTotal,
		m.validationDuration,
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
		OutcomeSuccess,
		OutcomeMissing,
		OutcomeMalformed,
		OutcomeInvalidToken,
		OutcomeProviderError,
	} {
		m.validationsTotal.WithLabelValues(outcome)
	}
}

// RecordValidation records a credential validation.
func (m *Metrics) RecordValidation(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.validationsTotal.WithLabelValues(outcome).Inc()
	m.validationDuration.Observe(duration.Seconds())
}
