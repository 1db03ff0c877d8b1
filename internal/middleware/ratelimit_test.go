package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/ratelimit"
)

// stubLimiter returns a fixed decision and records the key it saw.
type stubLimiter struct {
	allowed bool
	err     error
	gotKey  string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.gotKey = key
	return s.allowed, s.err
}

func TestRateLimit_NilLimiterDisablesMiddleware(t *testing.T) {
	t.Parallel()

	handler := RateLimit(nil, nil, observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/protectedPath", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_Allowed(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{allowed: true}
	handler := RateLimit(limiter, ratelimit.ClientIPKey, observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/protectedPath", nil)
	req.RemoteAddr = "203.0.113.9:41000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "203.0.113.9", limiter.gotKey)
}

func TestRateLimit_Denied(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{allowed: false}
	var handlerCalled bool
	handler := RateLimit(limiter, ratelimit.ClientIPKey, observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/protectedPath", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.False(t, handlerCalled)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))
	assert.Equal(t, "1", rec.Header().Get(HeaderRetryAfter))
	assert.JSONEq(t, ErrRateLimitExceeded, rec.Body.String())
}

func TestRateLimit_StoreFailureFailsOpen(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{allowed: false, err: assert.AnError}
	handler := RateLimit(limiter, ratelimit.ClientIPKey, observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/protectedPath", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_HeaderKey(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{allowed: true}
	handler := RateLimit(limiter, ratelimit.HeaderKey("X-Client-Id"), observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/protectedPath", nil)
	req.Header.Set("X-Client-Id", "tenant-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "tenant-42", limiter.gotKey)
}

func TestRateLimit_DefaultsToClientIPKey(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{allowed: true}
	handler := RateLimit(limiter, nil, observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/protectedPath", nil)
	req.RemoteAddr = "198.51.100.7:55001"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "198.51.100.7", limiter.gotKey)
}
