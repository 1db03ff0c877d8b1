package middleware

import (
	"io"
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// Recovery returns a middleware that recovers from panics, logs the
// stack, and responds with a 500 in the gateway error envelope.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						observability.String("method", r.Method),
						observability.String("path", r.URL.Path),
						observability.String("request_id", observability.RequestIDFromContext(r.Context())),
						observability.Any("error", err),
						observability.String("stack", string(debug.Stack())),
					)

					GetMiddlewareMetrics().panicsRecovered.Inc()

					w.Header().Set(HeaderContentType, ContentTypeJSON)
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = io.WriteString(w, ErrInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
