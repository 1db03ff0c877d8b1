package ratelimit

import (
	"context"
	"time"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow reports whether the request identified by key is within the
	// configured rate. A non-nil error means the limiter could not
	// decide; callers choose their own failure policy.
	Allow(ctx context.Context, key string) (bool, error)
}

// NoopLimiter allows every request. It is used when rate limiting is
// disabled so callers never have to branch on a nil limiter.
type NoopLimiter struct{}

var _ Limiter = (*NoopLimiter)(nil)

// NewNoopLimiter creates a limiter that always allows.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

// options holds shared construction options for limiters.
type options struct {
	logger          observability.Logger
	metrics         *Metrics
	janitorInterval time.Duration
	entryTTL        time.Duration
}

// Option configures a limiter.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithJanitorInterval sets how often the token bucket limiter sweeps
// idle per-key buckets.
func WithJanitorInterval(interval time.Duration) Option {
	return func(o *options) {
		o.janitorInterval = interval
	}
}

// WithEntryTTL sets how long an idle per-key bucket survives before
// the janitor removes it.
func WithEntryTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.entryTTL = ttl
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger:          observability.NopLogger(),
		janitorInterval: defaultJanitorInterval,
		entryTTL:        defaultEntryTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
