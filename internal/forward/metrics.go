package forward

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Forward outcomes recorded against the outcome metric label.
const (
	outcomeSuccess       = "success"
	outcomeBadGateway    = "bad_gateway"
	outcomeNotConfigured = "not_configured"
	outcomeDecodeError   = "decode_error"
	outcomeError         = "error"
)

// Metrics holds Prometheus metrics for forwarding.
type Metrics struct {
	forwardsTotal   *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
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

	m.forwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "requests_total",
			Help:      "Total number of forwarded requests",
		},
		[]string{"target", "outcome"},
	)

	m.forwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "request_duration_seconds",
			Help:      "Forward duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"target"},
	)

	m.inFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "in_flight_requests",
			Help:      "Number of forwards currently in flight",
		},
		[]string{"target"},
	)

	// Use Register instead of MustRegister to handle duplicate registration
	// gracefully. If the metric is already registered (e.g., in tests), we
	// ignore the error.
	for _, c := range []prometheus.Collector{
		m.forwardsTotal,
		m.forwardDuration,
		m.inFlight,
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
	for _, target := range []string{"protected", "default"} {
		for _, outcome := range []string{
			outcomeSuccess,
			outcomeBadGateway,
			outcomeNotConfigured,
			outcomeDecodeError,
			outcomeError,
		} {
			m.forwardsTotal.WithLabelValues(target, outcome)
		}
		m.forwardDuration.WithLabelValues(target)
		m.inFlight.WithLabelValues(target)
	}
}

// RecordForward records a completed forward.
func (m *Metrics) RecordForward(target, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.forwardsTotal.WithLabelValues(target, outcome).Inc()
	m.forwardDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// ForwardStarted increments the in-flight gauge.
func (m *Metrics) ForwardStarted(target string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(target).Inc()
}

// ForwardFinished decrements the in-flight gauge.
func (m *Metrics) ForwardFinished(target string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(target).Dec()
}
