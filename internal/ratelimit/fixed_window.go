package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// windowGrace pads counter expiration past the window end so a counter
// never disappears while its window is still being read.
const windowGrace = time.Second

var _ Limiter = (*FixedWindowLimiter)(nil)

// FixedWindowLimiter counts requests per key in fixed time windows
// backed by a Store. With a redis store the count is shared across
// gateway instances. The limiter does not own the store; the caller
// closes it.
type FixedWindowLimiter struct {
	store   Store
	limit   int64
	window  time.Duration
	logger  observability.Logger
	metrics *Metrics
}

// NewFixedWindow creates a fixed-window limiter allowing limit requests
// per window for each key.
func NewFixedWindow(store Store, limit int64, window time.Duration, opts ...Option) (*FixedWindowLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if limit < 1 {
		return nil, fmt.Errorf("limit must be at least 1, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", window)
	}

	o := applyOptions(opts)

	return &FixedWindowLimiter{
		store:   store,
		limit:   limit,
		window:  window,
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowStart := time.Now().Truncate(l.window)
	counterKey := fmt.Sprintf("%s:%d", key, windowStart.UnixMilli())

	count, err := l.store.IncrementWindow(ctx, counterKey, l.window+windowGrace)
	if err != nil {
		l.metrics.RecordStoreFailure()
		return false, fmt.Errorf("rate limit store: %w", err)
	}

	allowed := count <= l.limit
	l.metrics.RecordDecision(allowed)

	return allowed, nil
}
