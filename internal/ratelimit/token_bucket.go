package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

const (
	defaultJanitorInterval = 5 * time.Minute
	defaultEntryTTL        = 10 * time.Minute
)

// Ensure TokenBucketLimiter implements io.Closer so callers stop the
// janitor goroutine on shutdown.
var (
	_ Limiter   = (*TokenBucketLimiter)(nil)
	_ io.Closer = (*TokenBucketLimiter)(nil)
)

// TokenBucketLimiter keeps an independent token bucket per key. Tokens
// refill at a fixed per-second rate up to the burst size. State lives
// in process memory, so limits apply per gateway instance.
type TokenBucketLimiter struct {
	rate    rate.Limit
	burst   int
	logger  observability.Logger
	metrics *Metrics

	buckets sync.Map // key -> *bucketEntry

	janitorInterval time.Duration
	entryTTL        time.Duration
	stopJanitor     chan struct{}
	closeOnce       sync.Once
}

// bucketEntry pairs a per-key limiter with its last-use timestamp so
// the janitor can drop idle entries.
type bucketEntry struct {
	limiter *rate.Limiter

	mu       sync.Mutex
	lastSeen time.Time
}

// NewTokenBucket creates a token bucket limiter allowing rps requests
// per second with the given burst per key. A background janitor sweeps
// idle buckets; call Close when the limiter is no longer needed.
func NewTokenBucket(rps float64, burst int, opts ...Option) *TokenBucketLimiter {
	o := applyOptions(opts)

	if burst < 1 {
		burst = 1
	}

	l := &TokenBucketLimiter{
		rate:            rate.Limit(rps),
		burst:           burst,
		logger:          o.logger,
		metrics:         o.metrics,
		janitorInterval: o.janitorInterval,
		entryTTL:        o.entryTTL,
		stopJanitor:     make(chan struct{}),
	}

	go l.runJanitor()

	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	value, _ := l.buckets.LoadOrStore(key, &bucketEntry{
		limiter:  rate.NewLimiter(l.rate, l.burst),
		lastSeen: time.Now(),
	})
	entry := value.(*bucketEntry)

	entry.mu.Lock()
	entry.lastSeen = time.Now()
	entry.mu.Unlock()

	allowed := entry.limiter.Allow()
	l.metrics.RecordDecision(allowed)

	return allowed, nil
}

// Close stops the janitor goroutine. Safe to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopJanitor)
	})
	return nil
}

// runJanitor periodically removes buckets that have not been used for
// longer than the entry TTL.
func (l *TokenBucketLimiter) runJanitor() {
	ticker := time.NewTicker(l.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-l.stopJanitor:
			return
		}
	}
}

// sweep removes entries idle since before now minus the TTL.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	removed := 0

	l.buckets.Range(func(key, value interface{}) bool {
		entry := value.(*bucketEntry)

		entry.mu.Lock()
		idle := now.Sub(entry.lastSeen) > l.entryTTL
		entry.mu.Unlock()

		if idle {
			l.buckets.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		l.logger.Debug("swept idle rate limit buckets",
			observability.Int("removed", removed),
		)
	}
}
