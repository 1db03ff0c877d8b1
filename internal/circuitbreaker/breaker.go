// Package circuitbreaker wraps sony/gobreaker with logging and metrics
// for the outbound forwarding path. A breaker trips on sustained backend
// failure and rejects calls immediately while open; it never retries on
// behalf of the caller.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// Config holds circuit breaker settings.
type Config struct {
	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval is the closed-state counting window. Zero keeps counts for
	// the lifetime of the closed state.
	Interval time.Duration

	// Timeout is how long the breaker stays open before half-opening.
	Timeout time.Duration

	// FailureThreshold is the failure ratio that trips the breaker.
	FailureThreshold float64

	// MinRequests is the minimum number of requests in the window before
	// the threshold is considered.
	MinRequests uint32
}

// DefaultConfig returns the default breaker settings.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      5,
	}
}

// Breaker is a named circuit breaker.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
}

// BreakerOption is a functional option for the breaker.
type BreakerOption func(*Breaker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) BreakerOption {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) BreakerOption {
	return func(b *Breaker) {
		b.metrics = metrics
	}
}

// New creates a named breaker with the given settings.
func New(name string, cfg Config, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(b)
	}

	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = DefaultConfig().MinRequests
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			b.metrics.RecordTransition(name, from.String(), to.String())
			b.metrics.SetState(name, to)
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	b.metrics.SetState(name, b.cb.State())

	return b
}

// Execute runs fn under the breaker. While the breaker is open the call
// is rejected without running fn.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// IsOpen reports whether the error is a breaker rejection rather than a
// failure of the protected call itself.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
