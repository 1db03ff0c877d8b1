package middleware

import (
	"io"
	"net/http"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/ratelimit"
)

// RateLimit returns a middleware enforcing the given limiter, keyed by
// keyFunc. A nil limiter disables the middleware. A limiter failure
// (e.g. an unreachable store) lets the request through: availability
// is preferred over strict limiting when the budget cannot be checked.
func RateLimit(
	limiter ratelimit.Limiter,
	keyFunc ratelimit.KeyFunc,
	logger observability.Logger,
) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	if keyFunc == nil {
		keyFunc = ratelimit.ClientIPKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limit check failed, allowing request",
					observability.String("key", key),
					observability.String("path", r.URL.Path),
					observability.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				logger.Warn("rate limit exceeded",
					observability.String("key", key),
					observability.String("path", r.URL.Path),
				)

				GetMiddlewareMetrics().rateLimitRejected.Inc()

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.Header().Set(HeaderRetryAfter, "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
