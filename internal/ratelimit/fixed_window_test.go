package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// failingStore always errors, standing in for an unreachable redis.
type failingStore struct{}

func (s *failingStore) IncrementWindow(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store unavailable")
}

func (s *failingStore) Reset(context.Context, string) error { return errors.New("store unavailable") }
func (s *failingStore) Ping(context.Context) error          { return errors.New("store unavailable") }
func (s *failingStore) Close() error                        { return nil }

func newTestFixedWindow(t *testing.T, store Store, limit int64, window time.Duration) *FixedWindowLimiter {
	t.Helper()

	l, err := NewFixedWindow(store, limit, window,
		WithLogger(observability.NopLogger()),
		WithMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())),
	)
	require.NoError(t, err)

	return l
}

func TestNewFixedWindow(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	tests := []struct {
		name    string
		store   Store
		limit   int64
		window  time.Duration
		wantErr string
	}{
		{
			name:   "valid",
			store:  store,
			limit:  10,
			window: time.Second,
		},
		{
			name:    "nil store",
			store:   nil,
			limit:   10,
			window:  time.Second,
			wantErr: "store is required",
		},
		{
			name:    "zero limit",
			store:   store,
			limit:   0,
			window:  time.Second,
			wantErr: "limit must be at least 1",
		},
		{
			name:    "zero window",
			store:   store,
			limit:   10,
			window:  0,
			wantErr: "window must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := NewFixedWindow(tt.store, tt.limit, tt.window)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, l)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, l)
			}
		})
	}
}

func TestFixedWindowLimiter_Allow(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	// A one-hour window keeps the whole test inside a single window.
	l := newTestFixedWindow(t, store, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within limit", i+1)
	}

	allowed, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, allowed, "limit exhausted")

	// Keys count independently.
	allowed, err = l.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestFixedWindowLimiter_WindowRollover(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	l := newTestFixedWindow(t, store, 1, 50*time.Millisecond)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	require.False(t, allowed)

	// Give the window time to roll over.
	time.Sleep(120 * time.Millisecond)

	allowed, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestFixedWindowLimiter_StoreFailure(t *testing.T) {
	t.Parallel()

	l := newTestFixedWindow(t, &failingStore{}, 10, time.Second)

	allowed, err := l.Allow(context.Background(), "client")
	require.Error(t, err)
	assert.False(t, allowed)
	assert.Contains(t, err.Error(), "rate limit store")
}
