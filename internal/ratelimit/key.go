package ratelimit

import (
	"net/http"
	"strings"
)

// KeyFunc extracts the rate limit key for a request.
type KeyFunc func(r *http.Request) string

// ClientIPKey keys requests by client IP.
func ClientIPKey(r *http.Request) string {
	return ClientIP(r)
}

// HeaderKey keys requests by the named header, falling back to the
// client IP when the header is absent.
func HeaderKey(name string) KeyFunc {
	return func(r *http.Request) string {
		if value := r.Header.Get(name); value != "" {
			return value
		}
		return ClientIP(r)
	}
}

// ClientIP extracts the client IP from a request, honoring the
// standard proxy headers before falling back to the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			xff = xff[:idx]
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	// IPv6 addresses arrive bracketed in RemoteAddr.
	ip = strings.TrimPrefix(ip, "[")
	ip = strings.TrimSuffix(ip, "]")

	return ip
}
