package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/avauthgw/internal/config"
)

// corsHeaders holds pre-computed CORS header values.
type corsHeaders struct {
	allowOrigins     map[string]bool
	wildcardPatterns []string // patterns like "*.example.com"
	allowAllOrigins  bool
	allowMethods     string
	allowHeaders     string
	maxAge           string
	allowCredentials bool
	hasMaxAge        bool
}

func newCORSHeaders(cfg *config.CORSConfig) *corsHeaders {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader}
	}

	h := &corsHeaders{
		allowOrigins:     make(map[string]bool),
		allowMethods:     strings.Join(methods, ", "),
		allowHeaders:     strings.Join(headers, ", "),
		maxAge:           strconv.Itoa(cfg.MaxAge),
		allowCredentials: cfg.AllowCredentials,
		hasMaxAge:        cfg.MaxAge > 0,
	}

	for _, origin := range origins {
		switch {
		case origin == "*":
			h.allowAllOrigins = true
		case strings.HasPrefix(origin, "*."):
			h.wildcardPatterns = append(h.wildcardPatterns, origin)
		default:
			h.allowOrigins[origin] = true
		}
	}

	return h
}

func (h *corsHeaders) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}

	if h.allowAllOrigins || h.allowOrigins[origin] {
		return true
	}

	for _, pattern := range h.wildcardPatterns {
		if matchWildcardOrigin(origin, pattern) {
			return true
		}
	}

	return false
}

// matchWildcardOrigin checks if an origin matches a wildcard pattern.
// Pattern format: "*.example.com" matches "sub.example.com",
// "api.example.com", etc.
func matchWildcardOrigin(origin, pattern string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}

	suffix := pattern[1:] // ".example.com"

	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	// Require at least one character of subdomain before the suffix.
	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

func (h *corsHeaders) set(w http.ResponseWriter, origin string) {
	if h.isOriginAllowed(origin) {
		// Echo the specific origin; required when credentials are
		// allowed and harmless otherwise.
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", HeaderOrigin)
	}

	w.Header().Set("Access-Control-Allow-Methods", h.allowMethods)
	w.Header().Set("Access-Control-Allow-Headers", h.allowHeaders)

	if h.allowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	if h.hasMaxAge {
		w.Header().Set("Access-Control-Max-Age", h.maxAge)
	}
}

// CORS returns a middleware applying the configured CORS policy. A nil
// configuration disables the middleware entirely.
func CORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	headers := newCORSHeaders(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers.set(w, r.Header.Get(HeaderOrigin))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
