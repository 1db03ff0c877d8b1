package forward

import (
	"errors"
	"fmt"
)

// Sentinel errors for forwarding operations.
var (
	// ErrTargetNotConfigured indicates the selected target has no base URL.
	// It is returned before any request is built or sent.
	ErrTargetNotConfigured = errors.New("target backend is not configured")

	// ErrBodyDecode indicates a transport-encoded request body failed to
	// decode. This is a client error, not a backend failure.
	ErrBodyDecode = errors.New("failed to decode transport-encoded body")
)

// BadGatewayError represents a failure to obtain a response from the
// target backend: connection failures, timeouts, truncated responses,
// and open circuit breakers. The message always carries the underlying
// error text.
type BadGatewayError struct {
	// Target is the backend target name.
	Target string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *BadGatewayError) Error() string {
	return fmt.Sprintf("forward to %s backend failed: %v", e.Target, e.Cause)
}

// Unwrap returns the underlying error.
func (e *BadGatewayError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *BadGatewayError) Is(target error) bool {
	_, ok := target.(*BadGatewayError)
	return ok
}

// NewBadGatewayError wraps a backend communication failure.
func NewBadGatewayError(target string, cause error) *BadGatewayError {
	return &BadGatewayError{
		Target: target,
		Cause:  cause,
	}
}
