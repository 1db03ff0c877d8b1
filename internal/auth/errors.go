package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential validation.
var (
	// ErrMissingAuthHeader indicates the request carried no Authorization header.
	ErrMissingAuthHeader = errors.New("authorization header is missing")

	// ErrMalformedAuthHeader indicates the Authorization header is not a
	// well-formed bearer credential.
	ErrMalformedAuthHeader = errors.New("invalid authorization header format")

	// ErrInvalidToken indicates the identity provider rejected the token.
	ErrInvalidToken = errors.New("invalid token")
)

// ProviderError indicates the identity provider could not be consulted or
// answered with an unexpected failure. It is distinct from a definitive
// token rejection: the credential may well be valid, the gateway just
// could not find out.
type ProviderError struct {
	// Message is the provider failure text surfaced to the caller.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProviderError) Is(target error) bool {
	_, ok := target.(*ProviderError)
	return ok
}

// NewProviderError wraps a provider failure.
func NewProviderError(cause error) *ProviderError {
	return &ProviderError{
		Message: cause.Error(),
		Cause:   cause,
	}
}
