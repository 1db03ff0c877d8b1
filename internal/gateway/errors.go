package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Sentinel errors for gateway lifecycle operations.
var (
	// ErrGatewayNotStopped indicates that the gateway is not in
	// stopped state when a start operation is attempted.
	ErrGatewayNotStopped = errors.New("gateway is not in stopped state")

	// ErrGatewayNotRunning indicates that the gateway is not
	// running when a stop operation is attempted.
	ErrGatewayNotRunning = errors.New("gateway is not running")

	// ErrNilConfig indicates that a nil configuration was provided.
	ErrNilConfig = errors.New("configuration is required")
)

// ErrorBody is the payload of an error response.
type ErrorBody struct {
	// Status repeats the HTTP status code.
	Status int `json:"status"`

	// Message describes the failure.
	Message string `json:"message"`
}

// ErrorResponse is the envelope every error response is wrapped in.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorBody{
			Status:  status,
			Message: message,
		},
	})
}
