package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

func newTestChecker(t *testing.T, opts ...CheckerOption) *Checker {
	t.Helper()

	allOpts := append([]CheckerOption{
		WithLogger(observability.NopLogger()),
		WithMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())),
	}, opts...)

	return NewChecker("1.2.3", allOpts...)
}

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	c := newTestChecker(t)

	resp := c.Health(context.Background())
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.Uptime)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus Status
	}{
		{
			name:       "no checks registered",
			checks:     nil,
			wantStatus: StatusOK,
		},
		{
			name: "all checks pass",
			checks: map[string]CheckFunc{
				"idp":   func(context.Context) error { return nil },
				"store": func(context.Context) error { return nil },
			},
			wantStatus: StatusOK,
		},
		{
			name: "one check fails",
			checks: map[string]CheckFunc{
				"idp":   func(context.Context) error { return nil },
				"store": func(context.Context) error { return errors.New("connection refused") },
			},
			wantStatus: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestChecker(t)
			for name, fn := range tt.checks {
				c.Register(name, fn)
			}

			resp := c.Readiness(context.Background())
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))

			if tt.wantStatus == StatusError {
				assert.Equal(t, StatusError, resp.Checks["store"].Status)
				assert.Contains(t, resp.Checks["store"].Error, "connection refused")
				assert.Equal(t, StatusOK, resp.Checks["idp"].Status)
			}
		})
	}
}

func TestChecker_Readiness_Timeout(t *testing.T) {
	t.Parallel()

	c := newTestChecker(t, WithProbeTimeout(50*time.Millisecond))
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	resp := c.Readiness(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, StatusError, resp.Status)
	assert.Less(t, elapsed, time.Second)
}

func TestChecker_RegisterReplacesAndUnregisters(t *testing.T) {
	t.Parallel()

	c := newTestChecker(t)

	c.Register("dep", func(context.Context) error { return errors.New("down") })
	assert.Equal(t, StatusError, c.Readiness(context.Background()).Status)

	// Re-registering replaces the failing check.
	c.Register("dep", func(context.Context) error { return nil })
	assert.Equal(t, StatusOK, c.Readiness(context.Background()).Status)

	c.Unregister("dep")
	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusOK, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestChecker_Handlers(t *testing.T) {
	t.Parallel()

	c := newTestChecker(t)
	c.Register("dep", func(context.Context) error { return errors.New("down") })

	t.Run("liveness ignores failing checks", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		c.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, StatusOK, resp.Status)
	})

	t.Run("readiness reports 503", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, StatusError, resp.Status)
		require.Contains(t, resp.Checks, "dep")
		assert.Equal(t, "down", resp.Checks["dep"].Error)
	})

	t.Run("health carries version and uptime", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "1.2.3", resp.Version)
		assert.NotEmpty(t, resp.Uptime)
	})
}

func TestHTTPCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "200 is reachable", status: http.StatusOK, wantErr: false},
		{name: "404 is still reachable", status: http.StatusNotFound, wantErr: false},
		{name: "500 is unhealthy", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(server.Close)

			err := HTTPCheck(server.URL, time.Second)(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("unreachable server", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		deadURL := server.URL
		server.Close()

		err := HTTPCheck(deadURL, time.Second)(context.Background())
		assert.Error(t, err)
	})
}

func TestTCPCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	t.Cleanup(server.Close)

	address := server.Listener.Addr().String()
	assert.NoError(t, TCPCheck(address, time.Second)(context.Background()))

	assert.Error(t, TCPCheck("127.0.0.1:1", 200*time.Millisecond)(context.Background()))
}
