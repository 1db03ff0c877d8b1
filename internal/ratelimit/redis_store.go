package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// incrementWindowScript atomically increments a window counter and
// attaches the expiration on first use.
// KEYS[1] = counter key, ARGV[1] = expiration in milliseconds.
var incrementWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on a redis server so several gateway
// instances share one rate limit budget.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger

	mu     sync.Mutex
	closed bool
}

// RedisOptions holds redis connection settings for the store.
type RedisOptions struct {
	Address  string
	Password string
	DB       int

	// Prefix namespaces all counter keys. Defaults to "authgw:rl:".
	Prefix string

	// DialTimeout bounds the initial connectivity check. Defaults to
	// 5 seconds.
	DialTimeout time.Duration

	Logger observability.Logger
}

// NewRedisStore creates a redis-backed store and verifies connectivity
// with a single ping. Connection management afterwards is handled by
// the redis client's pool.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "authgw:rl:"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Address, err)
	}

	logger.Info("connected to redis rate limit store",
		observability.String("address", opts.Address),
		observability.Int("db", opts.DB),
	)

	return &RedisStore{
		client: client,
		prefix: opts.Prefix,
		logger: logger,
	}, nil
}

// IncrementWindow implements Store.
func (s *RedisStore) IncrementWindow(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	expireMs := expiration.Milliseconds()
	if expireMs < 1 {
		expireMs = 1
	}

	result, err := incrementWindowScript.Run(ctx, s.client, []string{s.prefix + key}, expireMs).Result()
	if err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("redis increment returned unexpected type %T", result)
	}

	return count, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close implements Store. Safe to call multiple times.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.client.Close()
}
