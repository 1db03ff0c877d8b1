package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderOrigin is the Origin header name.
	HeaderOrigin = "Origin"

	// HeaderAPIKey is the header carrying the ops API key.
	HeaderAPIKey = "X-Api-Key"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json"

// Pre-rendered error bodies in the gateway error envelope.
const (
	// ErrRateLimitExceeded is the 429 response body.
	ErrRateLimitExceeded = `{"error":{"status":429,"message":"rate limit exceeded"}}`

	// ErrInternalServerError is the 500 response body.
	ErrInternalServerError = `{"error":{"status":500,"message":"internal server error"}}`

	// ErrInvalidAPIKey is the 401 response body for the ops surface.
	ErrInvalidAPIKey = `{"error":{"status":401,"message":"invalid api key"}}`
)
