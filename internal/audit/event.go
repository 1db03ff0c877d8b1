package audit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// Decision classifies the outcome of a gateway request.
type Decision string

// Decisions recorded in the trail.
const (
	// DecisionAllow means a rule matched and the request was forwarded.
	DecisionAllow Decision = "allow"

	// DecisionDeny means policy evaluation refused the request.
	DecisionDeny Decision = "deny"

	// DecisionUnauthenticated means credential validation failed before
	// policy evaluation was reached.
	DecisionUnauthenticated Decision = "unauthenticated"

	// DecisionError means the gateway failed internally (identity
	// provider outage, unconfigured backend, upstream failure).
	DecisionError Decision = "error"
)

// Event is a single entry in the decision trail.
type Event struct {
	// Time is when the decision was made.
	Time time.Time `json:"time"`

	// RequestID correlates the event with request logs and traces.
	RequestID string `json:"request_id,omitempty"`

	// TraceID is the OpenTelemetry trace ID, when tracing is active.
	TraceID string `json:"trace_id,omitempty"`

	// Principal is the authenticated subject, empty when
	// authentication failed.
	Principal string `json:"principal,omitempty"`

	// Groups are the subject's groups as reported by the identity
	// provider.
	Groups []string `json:"groups,omitempty"`

	// Method and Path describe the incoming request.
	Method string `json:"method"`
	Path   string `json:"path"`

	// DeviceID is the declared device identifier, when present.
	DeviceID string `json:"device_id,omitempty"`

	// Decision is the outcome class.
	Decision Decision `json:"decision"`

	// Reason names the rule or failure that produced the decision.
	Reason string `json:"reason,omitempty"`

	// Target is the backend the request was routed to, empty when no
	// forward happened.
	Target string `json:"target,omitempty"`

	// Status is the HTTP status returned to the client.
	Status int `json:"status"`

	// Duration is the total request handling time.
	Duration time.Duration `json:"duration,omitempty"`
}

// normalize fills fields derivable from the request context so call
// sites only set what they know.
func (e *Event) normalize(ctx context.Context) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.RequestID == "" {
		e.RequestID = observability.RequestIDFromContext(ctx)
	}
	if e.TraceID == "" {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.HasTraceID() {
			e.TraceID = spanCtx.TraceID().String()
		}
	}
}
