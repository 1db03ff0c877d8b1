package idp

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity-provider operations.
var (
	// ErrTokenRejected indicates the provider definitively rejected the token.
	ErrTokenRejected = errors.New("token rejected by identity provider")

	// ErrPrincipalNotFound indicates the provider does not know the principal.
	ErrPrincipalNotFound = errors.New("principal not found")
)

// APIError represents a non-2xx response from the identity provider that
// is not a definitive token rejection.
type APIError struct {
	// Operation is the provider operation that failed (introspect, groups).
	Operation string

	// Status is the HTTP status code returned by the provider.
	Status int

	// Body is the raw response body.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("identity provider %s returned status %d: %s", e.Operation, e.Status, e.Body)
}

// Is checks if the error matches the target.
func (e *APIError) Is(target error) bool {
	_, ok := target.(*APIError)
	return ok
}
