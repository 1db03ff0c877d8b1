package middleware

import (
	"io"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// OpsAPIKey returns a middleware guarding the ops surface with an API
// key checked against a bcrypt hash. An empty hash disables the guard.
func OpsAPIKey(hash string, logger observability.Logger) func(http.Handler) http.Handler {
	if hash == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	hashBytes := []byte(hash)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderAPIKey)

			if err := bcrypt.CompareHashAndPassword(hashBytes, []byte(key)); err != nil {
				logger.Warn("ops api key rejected",
					observability.String("path", r.URL.Path),
					observability.String("remote_addr", r.RemoteAddr),
				)

				GetMiddlewareMetrics().opsAuthRejected.Inc()

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, ErrInvalidAPIKey)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
