package policy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decision labels recorded against the decision metric.
const (
	decisionAllow = "allow"
	decisionDeny  = "deny"
)

// Metrics holds Prometheus metrics for policy evaluation.
type Metrics struct {
	decisionsTotal     *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
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

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "decisions_total",
			Help:      "Total number of policy decisions",
		},
		[]string{"rule", "decision", "reason"},
	)

	m.evaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluation_duration_seconds",
			Help:      "Policy evaluation duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
	)

	// Use Register instead of MustRegister to handle duplicate registration
	// gracefully. If the metric is already registered (e.g., in tests), we
	// ignore the error.
	for _, c := range []prometheus.Collector{
		m.decisionsTotal,
		m.evaluationDuration,
	} {
		_ = m.registerer.Register(c)
	}

	return m
}

// Init pre-initializes the catch-all rule labels with zero values so the
// decision metric appears in /metrics output immediately after startup.
func (m *Metrics) Init() {
	m.decisionsTotal.WithLabelValues(DefaultRuleName, decisionAllow, "")
	for _, reason := range []string{ReasonInsufficientGroup, ReasonUntrustedDevice, ReasonConditionFailed} {
		m.decisionsTotal.WithLabelValues(DefaultRuleName, decisionDeny, reason)
	}
}

// RecordDecision records a policy decision.
func (m *Metrics) RecordDecision(rule, decision, reason string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(rule, decision, reason).Inc()
}

// RecordEvaluation records an evaluation duration.
func (m *Metrics) RecordEvaluation(duration time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(duration.Seconds())
}
