package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the audit trail.
type Metrics struct {
	eventsTotal   *prometheus.CounterVec
	droppedTotal  prometheus.Counter
	writeFailures prometheus.Counter
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

	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events written",
		},
		[]string{"decision"},
	)

	m.droppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_events_total",
			Help:      "Total number of audit events dropped because the buffer was full",
		},
	)

	m.writeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Total number of audit events that could not be written",
		},
	)

	// Use Register instead of MustRegister to handle duplicate registration
	// gracefully. If the metric is already registered (e.g., in tests), we
	// ignore the error.
	for _, c := range []prometheus.Collector{
		m.eventsTotal,
		m.droppedTotal,
		m.writeFailures,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// Init pre-initializes label combinations with zero values so the
// metrics appear in /metrics output immediately after startup.
func (m *Metrics) Init() {
	for _, decision := range []Decision{
		DecisionAllow,
		DecisionDeny,
		DecisionUnauthenticated,
		DecisionError,
	} {
		m.eventsTotal.WithLabelValues(string(decision))
	}
}

// RecordEvent records a successfully written event.
func (m *Metrics) RecordEvent(decision Decision) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(decision)).Inc()
}

// RecordDropped records an event dropped because the buffer was full.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.droppedTotal.Inc()
}

// RecordWriteFailure records an event that could not be serialized or
// written.
func (m *Metrics) RecordWriteFailure() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}
