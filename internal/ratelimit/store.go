package ratelimit

import (
	"context"
	"time"
)

// Store is the counter storage used by the fixed-window limiter.
type Store interface {
	// IncrementWindow increments the counter for key by one and returns
	// the new value. The expiration is applied when the counter is
	// created so the window expires on its own.
	IncrementWindow(ctx context.Context, key string, expiration time.Duration) (int64, error)

	// Reset removes the counter for key.
	Reset(ctx context.Context, key string) error

	// Ping verifies the store is reachable. Used by readiness probes.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// Store type names accepted in configuration.
const (
	// StoreMemory keeps counters in process memory.
	StoreMemory = "memory"

	// StoreRedis keeps counters in redis, shared across instances.
	StoreRedis = "redis"
)
