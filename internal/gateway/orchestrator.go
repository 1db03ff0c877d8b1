package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthgw/internal/audit"
	"github.com/vyrodovalexey/avauthgw/internal/auth"
	"github.com/vyrodovalexey/avauthgw/internal/forward"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/policy"
)

// gatewayTracer is the OpenTelemetry tracer for the request pipeline.
var gatewayTracer = otel.Tracer("avauthgw/gateway")

// Request header names consumed by the pipeline.
const (
	// HeaderAuthorization carries the bearer credential.
	HeaderAuthorization = "Authorization"

	// HeaderDeviceID carries the caller's device identifier. Matching is
	// case-insensitive per the usual header canonicalization.
	HeaderDeviceID = "X-Device-Id"
)

// responseSkipHeaders are backend response headers never relayed to the
// client: the hop-by-hop set plus Content-Length, which is recomputed
// from the buffered body.
var responseSkipHeaders = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Content-Length":      {},
}

// Orchestrator drives every request through authentication,
// authorization, and forwarding, in that order, and renders the
// response. It holds no per-request state; a single instance serves all
// requests concurrently.
type Orchestrator struct {
	validator auth.Validator
	provider  *policy.Provider
	forwarder forward.Forwarder
	logger    observability.Logger
	metrics   *Metrics
	audit     audit.Logger
	tracer    trace.Tracer
}

// OrchestratorOption is a functional option for the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger observability.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithOrchestratorMetrics sets the metrics.
func WithOrchestratorMetrics(metrics *Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithOrchestratorAudit sets the audit logger.
func WithOrchestratorAudit(sink audit.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.audit = sink
	}
}

// WithOrchestratorTracer sets the tracer.
func WithOrchestratorTracer(tracer trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// NewOrchestrator creates an orchestrator over the given pipeline
// stages. The validator, provider, and forwarder are required.
func NewOrchestrator(
	validator auth.Validator,
	provider *policy.Provider,
	forwarder forward.Forwarder,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("policy provider is required")
	}
	if forwarder == nil {
		return nil, fmt.Errorf("forwarder is required")
	}

	o := &Orchestrator{
		validator: validator,
		provider:  provider,
		forwarder: forwarder,
		logger:    observability.NopLogger(),
		audit:     audit.NewNoopLogger(),
		tracer:    gatewayTracer,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.metrics == nil {
		o.metrics = NewMetrics("gateway")
	}

	return o, nil
}

// ServeHTTP implements http.Handler.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, span := o.tracer.Start(r.Context(), "gateway.pipeline",
		trace.WithAttributes(
			attribute.String("gateway.method", r.Method),
			attribute.String("gateway.path", r.URL.Path),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	event := &audit.Event{
		Method:   r.Method,
		Path:     r.URL.Path,
		DeviceID: r.Header.Get(HeaderDeviceID),
	}

	status := o.handle(w, r, event)

	duration := time.Since(start)
	event.Status = status
	event.Duration = duration

	span.SetAttributes(
		attribute.String("gateway.decision", string(event.Decision)),
		attribute.Int("gateway.status", status),
	)

	o.metrics.RecordRequest(outcomeFor(event.Decision), duration)
	o.audit.Record(ctx, event)
}

// handle runs the pipeline stages and writes the response, returning the
// status code it wrote. The audit event is filled in as stages resolve.
func (o *Orchestrator) handle(w http.ResponseWriter, r *http.Request, event *audit.Event) int {
	ctx := r.Context()

	// Authenticating.
	principal, err := o.validator.Validate(ctx, r.Header.Get(HeaderAuthorization))
	if err != nil {
		return o.rejectAuthentication(w, r, event, err)
	}
	event.Principal = principal.Name
	event.Groups = principal.Groups

	// Authorizing.
	decision := o.provider.Engine().Evaluate(ctx, &policy.Input{
		Path:     r.URL.Path,
		Method:   r.Method,
		Groups:   principal.Groups,
		DeviceID: r.Header.Get(HeaderDeviceID),
		Headers:  r.Header,
	})
	observability.SetRoute(ctx, decision.Rule)

	if !decision.Allowed {
		event.Decision = audit.DecisionDeny
		event.Reason = decision.Reason

		o.logger.Info("access denied",
			observability.String("principal", principal.Name),
			observability.String("path", r.URL.Path),
			observability.String("rule", decision.Rule),
			observability.String("reason", decision.Reason),
		)

		writeError(w, http.StatusForbidden, "access denied: "+decision.Reason)
		return http.StatusForbidden
	}
	event.Target = string(decision.Target)

	// Forwarding.
	resp, err := o.forwarder.Forward(ctx, r, decision.Target)
	if err != nil {
		return o.rejectForward(w, r, event, err)
	}

	event.Decision = audit.DecisionAllow
	return writeBackendResponse(w, resp)
}

// rejectAuthentication renders an authentication failure. Credential
// problems are the caller's fault; identity-provider failures and
// anything unexpected are the gateway's.
func (o *Orchestrator) rejectAuthentication(
	w http.ResponseWriter,
	r *http.Request,
	event *audit.Event,
	err error,
) int {
	event.Reason = err.Error()

	switch {
	case errors.Is(err, auth.ErrMissingAuthHeader),
		errors.Is(err, auth.ErrMalformedAuthHeader),
		errors.Is(err, auth.ErrInvalidToken):
		event.Decision = audit.DecisionUnauthenticated

		o.logger.Debug("authentication rejected",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)

		writeError(w, http.StatusUnauthorized, err.Error())
		return http.StatusUnauthorized

	default:
		event.Decision = audit.DecisionError

		o.logger.Error("authentication failed",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)

		writeError(w, http.StatusInternalServerError, err.Error())
		return http.StatusInternalServerError
	}
}

// rejectForward renders a forwarding failure.
func (o *Orchestrator) rejectForward(
	w http.ResponseWriter,
	r *http.Request,
	event *audit.Event,
	err error,
) int {
	event.Decision = audit.DecisionError
	event.Reason = err.Error()

	status := forwardStatus(err)

	o.logger.Warn("forwarding failed",
		observability.String("principal", event.Principal),
		observability.String("path", r.URL.Path),
		observability.String("target", event.Target),
		observability.Int("status", status),
		observability.Error(err),
	)

	writeError(w, status, err.Error())
	return status
}

// forwardStatus maps a forwarding error to a response status. Backend
// communication failures are bad gateways; an undecodable body is the
// caller's fault; a missing target configuration and anything
// unexpected are internal errors.
func forwardStatus(err error) int {
	var badGateway *forward.BadGatewayError

	switch {
	case errors.Is(err, forward.ErrBodyDecode):
		return http.StatusBadRequest
	case errors.Is(err, forward.ErrTargetNotConfigured):
		return http.StatusInternalServerError
	case errors.As(err, &badGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeBackendResponse relays the buffered backend response unchanged,
// minus connection-scoped headers.
func writeBackendResponse(w http.ResponseWriter, resp *forward.BackendResponse) int {
	h := w.Header()
	for name, values := range resp.Header {
		if _, skip := responseSkipHeaders[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		for _, value := range values {
			h.Add(name, value)
		}
	}

	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)

	return resp.StatusCode
}

// outcomeFor maps an audit decision to the pipeline outcome label.
func outcomeFor(decision audit.Decision) string {
	switch decision {
	case audit.DecisionAllow:
		return OutcomeForwarded
	case audit.DecisionDeny:
		return OutcomeDenied
	case audit.DecisionUnauthenticated:
		return OutcomeUnauthenticated
	default:
		return OutcomeError
	}
}

// Ensure Orchestrator implements http.Handler.
var _ http.Handler = (*Orchestrator)(nil)
