package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Metrics holds Prometheus metrics for circuit breakers.
type Metrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	registerer  prometheus.Registerer
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

	m.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuitbreaker",
			Name:      "state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	m.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuitbreaker",
			Name:      "transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Use Register instead of MustRegister to handle duplicate registration
	// gracefully. If the metric is already registered (e.g., in tests), we
	// ignore the error.
	for _, c := range []prometheus.Collector{
		m.state,
		m.transitions,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// SetState records the current state of a breaker.
func (m *Metrics) SetState(name string, state gobreaker.State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(name).Set(float64(state))
}

// RecordTransition records a state transition.
func (m *Metrics) RecordTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name, from, to).Inc()
}
