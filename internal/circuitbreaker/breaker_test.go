package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

func newTestBreaker(t *testing.T, cfg Config) *Breaker {
	t.Helper()

	return New("test", cfg,
		WithLogger(observability.NopLogger()),
		WithMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())),
	)
}

func TestBreaker_Execute_Success(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, DefaultConfig())

	result, err := b.Execute(func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_Execute_PassesError(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, DefaultConfig())
	boom := errors.New("backend down")

	_, err := b.Execute(func() (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsOpen(err))
}

func TestBreaker_TripsAfterFailures(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      3,
	})

	boom := errors.New("backend down")
	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (interface{}, error) {
			return nil, boom
		})
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())

	var called bool
	_, err := b.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.False(t, called)
}

func TestBreaker_Name(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, DefaultConfig())
	assert.Equal(t, "test", b.Name())
}

func TestIsOpen(t *testing.T) {
	t.Parallel()

	assert.True(t, IsOpen(gobreaker.ErrOpenState))
	assert.True(t, IsOpen(gobreaker.ErrTooManyRequests))
	assert.False(t, IsOpen(errors.New("other")))
	assert.False(t, IsOpen(nil))
}
