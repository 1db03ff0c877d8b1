package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthgw/internal/idp"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// authTracer is the OpenTelemetry tracer for credential validation.
var authTracer = otel.Tracer("avauthgw/auth")

// Principal is an authenticated caller.
type Principal struct {
	// Name is the principal name reported by the identity provider.
	Name string

	// Groups are the provider-side group memberships.
	Groups []string
}

// Validator validates the bearer credential of a request.
type Validator interface {
	// Validate parses the Authorization header value and checks the token
	// against the identity provider. It returns the authenticated principal
	// with group memberships, or one of the package's error classes.
	Validate(ctx context.Context, authorizationHeader string) (*Principal, error)
}

// idpValidator implements Validator against an identity-provider client.
type idpValidator struct {
	client  idp.Client
	logger  observability.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*idpValidator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ValidatorOption {
	return func(v *idpValidator) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) ValidatorOption {
	return func(v *idpValidator) {
		v.metrics = metrics
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) ValidatorOption {
	return func(v *idpValidator) {
		v.tracer = tracer
	}
}

// NewValidator creates a validator backed by the given identity-provider
// client.
func NewValidator(client idp.Client, opts ...ValidatorOption) (Validator, error) {
	if client == nil {
		return nil, fmt.Errorf("identity provider client is required")
	}

	v := &idpValidator{
		client: client,
		logger: observability.NopLogger(),
		tracer: authTracer,
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.metrics == nil {
		v.metrics = NewMetrics("gateway")
	}

	return v, nil
}

// Validate checks the bearer credential. Each request is validated
// independently against the provider; results are never cached.
func (v *idpValidator) Validate(ctx context.Context, authorizationHeader string) (*Principal, error) {
	start := time.Now()

	ctx, span := v.tracer.Start(ctx, "auth.validate")
	defer span.End()

	token, err := ExtractBearer(authorizationHeader)
	if err != nil {
		outcome := OutcomeMissing
		if errors.Is(err, ErrMalformedAuthHeader) {
			outcome = OutcomeMalformed
		}
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		v.metrics.RecordValidation(outcome, time.Since(start))
		return nil, err
	}

	name, err := v.client.Introspect(ctx, token)
	if err != nil {
		if errors.Is(err, idp.ErrTokenRejected) {
			span.SetAttributes(attribute.String("auth.outcome", OutcomeInvalidToken))
			v.metrics.RecordValidation(OutcomeInvalidToken, time.Since(start))
			v.logger.Debug("token rejected by identity provider")
			return nil, ErrInvalidToken
		}

		span.SetAttributes(
			attribute.String("auth.outcome", OutcomeProviderError),
			attribute.String("auth.error", err.Error()),
		)
		v.metrics.RecordValidation(OutcomeProviderError, time.Since(start))
		v.logger.Error("token introspection failed", observability.Error(err))
		return nil, NewProviderError(err)
	}

	groups, err := v.client.ListGroups(ctx, name)
	if err != nil {
		span.SetAttributes(
			attribute.String("auth.outcome", OutcomeProviderError),
			attribute.String("auth.error", err.Error()),
		)
		v.metrics.RecordValidation(OutcomeProviderError, time.Since(start))
		v.logger.Error("group listing failed",
			observability.String("principal", name),
			observability.Error(err),
		)
		return nil, NewProviderError(err)
	}

	span.SetAttributes(
		attribute.String("auth.outcome", OutcomeSuccess),
		attribute.String("auth.principal", name),
		attribute.Int("auth.groups", len(groups)),
	)
	v.metrics.RecordValidation(OutcomeSuccess, time.Since(start))
	v.logger.Debug("credential validated",
		observability.String("principal", name),
		observability.Strings("groups", groups),
	)

	return &Principal{Name: name, Groups: groups}, nil
}

// Ensure idpValidator implements Validator.
var _ Validator = (*idpValidator)(nil)
