package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MiddlewareMetrics holds Prometheus metrics for middleware
// operations.
type MiddlewareMetrics struct {
	panicsRecovered   prometheus.Counter
	rateLimitRejected prometheus.Counter
	opsAuthRejected   prometheus.Counter
}

var (
	middlewareMetrics     *MiddlewareMetrics
	middlewareMetricsOnce sync.Once
)

// GetMiddlewareMetrics returns the singleton middleware metrics
// instance.
func GetMiddlewareMetrics() *MiddlewareMetrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = newMiddlewareMetrics()
	})
	return middlewareMetrics
}

func newMiddlewareMetrics() *MiddlewareMetrics {
	return &MiddlewareMetrics{
		panicsRecovered: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
		),
		rateLimitRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "middleware",
				Name:      "rate_limit_rejected_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),
		opsAuthRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "middleware",
				Name:      "ops_auth_rejected_total",
				Help:      "Total number of requests rejected by the ops API-key guard",
			},
		),
	}
}

// MustRegister registers the middleware collectors with an additional
// registry. promauto already registers them with the default registry;
// this makes them visible on the registry serving /metrics.
func (m *MiddlewareMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.panicsRecovered,
		m.rateLimitRejected,
		m.opsAuthRejected,
	)
}

// Init pre-populates the counters so they are exported before the
// first event.
func (m *MiddlewareMetrics) Init() {
	m.panicsRecovered.Add(0)
	m.rateLimitRejected.Add(0)
	m.opsAuthRejected.Add(0)
}
