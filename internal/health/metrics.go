package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for dependency checks.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	dependencyUp  *prometheus.GaugeVec
	checkDuration *prometheus.HistogramVec
	registerer    prometheus.Registerer
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

	m.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Total number of dependency checks",
		},
		[]string{"check", "outcome"},
	)

	m.dependencyUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "dependency_up",
			Help:      "Last observed dependency state (1=up, 0=down)",
		},
		[]string{"check"},
	)

	m.checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Dependency check duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"check"},
	)

	// Use Register instead of MustRegister to handle duplicate registration
	// gracefully. If the metric is already registered (e.g., in tests), we
	// ignore the error.
	for _, c := range []prometheus.Collector{
		m.checksTotal,
		m.dependencyUp,
		m.checkDuration,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordCheck records one dependency check run.
func (m *Metrics) RecordCheck(check string, healthy bool, duration time.Duration) {
	if m == nil {
		return
	}

	outcome := "ok"
	up := 1.0
	if !healthy {
		outcome = "error"
		up = 0
	}

	m.checksTotal.WithLabelValues(check, outcome).Inc()
	m.dependencyUp.WithLabelValues(check).Set(up)
	m.checkDuration.WithLabelValues(check).Observe(duration.Seconds())
}
