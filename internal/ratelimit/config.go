package ratelimit

import (
	"fmt"
	"math"
	"time"

	"github.com/vyrodovalexey/avauthgw/internal/config"
)

// FromConfig builds a limiter from configuration. The returned Store is
// non-nil only for store-backed limiters; the caller owns it and closes
// it on shutdown (it also serves as a readiness probe target).
func FromConfig(cfg *config.RateLimitConfig, opts ...Option) (Limiter, Store, error) {
	if cfg == nil || !cfg.Enabled {
		return NewNoopLimiter(), nil, nil
	}

	if cfg.RequestsPerSecond <= 0 {
		return nil, nil, fmt.Errorf("requestsPerSecond must be positive, got %v", cfg.RequestsPerSecond)
	}

	switch cfg.Store {
	case "", StoreMemory:
		burst := cfg.Burst
		if burst < 1 {
			burst = perSecondLimit(cfg.RequestsPerSecond)
		}
		return NewTokenBucket(cfg.RequestsPerSecond, burst, opts...), nil, nil

	case StoreRedis:
		if cfg.Redis == nil || cfg.Redis.Address == "" {
			return nil, nil, fmt.Errorf("redis store requires an address")
		}

		o := applyOptions(opts)
		store, err := NewRedisStore(RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Logger:   o.logger,
		})
		if err != nil {
			return nil, nil, err
		}

		limiter, err := NewFixedWindow(store, int64(perSecondLimit(cfg.RequestsPerSecond)), time.Second, opts...)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return limiter, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown rate limit store %q", cfg.Store)
	}
}

// KeyFuncFromConfig resolves the configured key strategy: empty or
// "ip" keys by client IP, any other value names a request header.
func KeyFuncFromConfig(keyBy string) KeyFunc {
	switch keyBy {
	case "", "ip":
		return ClientIPKey
	default:
		return HeaderKey(keyBy)
	}
}

func perSecondLimit(rps float64) int {
	limit := int(math.Ceil(rps))
	if limit < 1 {
		limit = 1
	}
	return limit
}
