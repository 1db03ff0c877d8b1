package forward

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/policy"
)

// forwardTracer is the OpenTelemetry tracer for forwarding.
var forwardTracer = otel.Tracer("avauthgw/forward")

// Default per-target timeouts. The protected backend sits close to the
// gateway and answers fast; the default backend is an external service
// and gets more headroom.
const (
	DefaultProtectedTimeout = 5 * time.Second
	DefaultDefaultTimeout   = 15 * time.Second
)

// BackendResponse is a fully buffered backend answer.
type BackendResponse struct {
	// StatusCode is the backend's HTTP status, passed through unchanged.
	StatusCode int

	// Header are the backend's response headers.
	Header http.Header

	// Body is the buffered response body.
	Body []byte
}

// Forwarder sends a request to the backend selected by policy.
type Forwarder interface {
	// Forward sends the request to the given target and returns the
	// buffered backend response. The attempt is made exactly once.
	Forward(ctx context.Context, r *http.Request, target policy.Target) (*BackendResponse, error)
}

// TargetConfig describes one forwarding target.
type TargetConfig struct {
	// BaseURL is the backend base URL. Empty means the target is not
	// configured; forwards to it fail with ErrTargetNotConfigured.
	BaseURL string

	// Timeout bounds the whole forward, connection setup through body
	// read. Zero selects the per-target default.
	Timeout time.Duration

	// Headers is the optional outbound header decoration.
	Headers *HeaderDecoration
}

// Config holds the forwarding target set.
type Config struct {
	Protected TargetConfig
	Default   TargetConfig
}

// targetClient is the per-target forwarding state.
type targetClient struct {
	name      string
	baseURL   string
	timeout   time.Duration
	client    *http.Client
	breaker   *circuitbreaker.Breaker
	decorator *headerDecorator
}

// forwarder implements Forwarder.
type forwarder struct {
	targets map[policy.Target]*targetClient
	logger  observability.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// ForwarderOption is a functional option for the forwarder.
type ForwarderOption func(*forwarder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ForwarderOption {
	return func(f *forwarder) {
		f.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) ForwarderOption {
	return func(f *forwarder) {
		f.metrics = metrics
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) ForwarderOption {
	return func(f *forwarder) {
		f.tracer = tracer
	}
}

// WithBreaker attaches a circuit breaker to one target.
func WithBreaker(target policy.Target, breaker *circuitbreaker.Breaker) ForwarderOption {
	return func(f *forwarder) {
		if tc, ok := f.targets[target]; ok {
			tc.breaker = breaker
		}
	}
}

// NewForwarder creates a forwarder for the configured targets. Non-empty
// base URLs must parse; an empty base URL is legal and fails per request
// instead.
func NewForwarder(cfg *Config, opts ...ForwarderOption) (Forwarder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	protected, err := newTargetClient(string(policy.TargetProtected), cfg.Protected, DefaultProtectedTimeout)
	if err != nil {
		return nil, err
	}
	defaultTarget, err := newTargetClient(string(policy.TargetDefault), cfg.Default, DefaultDefaultTimeout)
	if err != nil {
		return nil, err
	}

	f := &forwarder{
		targets: map[policy.Target]*targetClient{
			policy.TargetProtected: protected,
			policy.TargetDefault:   defaultTarget,
		},
		logger: observability.NopLogger(),
		tracer: forwardTracer,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.metrics == nil {
		f.metrics = NewMetrics("gateway")
	}

	return f, nil
}

// newTargetClient validates one target configuration.
func newTargetClient(name string, cfg TargetConfig, defaultTimeout time.Duration) (*targetClient, error) {
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("target %s: invalid base URL: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("target %s: base URL scheme must be http or https", name)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("target %s: base URL host is required", name)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	decorator, err := newHeaderDecorator(cfg.Headers)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", name, err)
	}

	return &targetClient{
		name:      name,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:   timeout,
		client:    &http.Client{},
		decorator: decorator,
	}, nil
}

// Forward sends the request to the selected target.
func (f *forwarder) Forward(ctx context.Context, r *http.Request, target policy.Target) (*BackendResponse, error) {
	start := time.Now()

	tc, ok := f.targets[target]
	if !ok {
		return nil, fmt.Errorf("unknown forwarding target %q", target)
	}

	if tc.baseURL == "" {
		f.metrics.RecordForward(tc.name, outcomeNotConfigured, time.Since(start))
		return nil, fmt.Errorf("target %s: %w", tc.name, ErrTargetNotConfigured)
	}

	ctx, span := f.tracer.Start(ctx, "forward.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("forward.target", tc.name),
			attribute.String("forward.method", r.Method),
			attribute.String("forward.path", r.URL.Path),
		),
	)
	defer span.End()

	f.metrics.ForwardStarted(tc.name)
	defer f.metrics.ForwardFinished(tc.name)

	body, bodyDecoded, err := transportDecodedBody(r)
	if err != nil {
		span.SetAttributes(attribute.String("forward.outcome", outcomeDecodeError))
		f.metrics.RecordForward(tc.name, outcomeDecodeError, time.Since(start))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, tc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, buildTargetURL(tc.baseURL, r.URL), bytes.NewReader(body))
	if err != nil {
		span.SetAttributes(attribute.String("forward.outcome", outcomeError))
		f.metrics.RecordForward(tc.name, outcomeError, time.Since(start))
		return nil, fmt.Errorf("failed to build forward request: %w", err)
	}

	req.Header = sanitizeHeaders(r.Header, bodyDecoded)
	if err := tc.decorator.apply(req.Header, DecorationData{
		RequestID: observability.RequestIDFromContext(ctx),
		Target:    tc.name,
		Method:    r.Method,
		Path:      r.URL.Path,
	}); err != nil {
		span.SetAttributes(attribute.String("forward.outcome", outcomeError))
		f.metrics.RecordForward(tc.name, outcomeError, time.Since(start))
		return nil, err
	}

	observability.InjectTraceContext(ctx, req)

	resp, err := tc.do(req)
	if err != nil {
		span.SetAttributes(
			attribute.String("forward.outcome", outcomeBadGateway),
			attribute.String("forward.error", err.Error()),
		)
		f.metrics.RecordForward(tc.name, outcomeBadGateway, time.Since(start))
		f.logger.Warn("forward failed",
			observability.String("target", tc.name),
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		return nil, NewBadGatewayError(tc.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetAttributes(
			attribute.String("forward.outcome", outcomeBadGateway),
			attribute.String("forward.error", err.Error()),
		)
		f.metrics.RecordForward(tc.name, outcomeBadGateway, time.Since(start))
		return nil, NewBadGatewayError(tc.name, fmt.Errorf("failed to read backend response: %w", err))
	}

	span.SetAttributes(
		attribute.String("forward.outcome", outcomeSuccess),
		attribute.Int("forward.status", resp.StatusCode),
	)
	f.metrics.RecordForward(tc.name, outcomeSuccess, time.Since(start))
	f.logger.Debug("request forwarded",
		observability.String("target", tc.name),
		observability.String("path", r.URL.Path),
		observability.Int("status", resp.StatusCode),
	)

	return &BackendResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       respBody,
	}, nil
}

// do executes the outbound request, through the breaker when one is
// attached. Only transport failures count against the breaker; backend
// error statuses pass through as regular responses.
func (tc *targetClient) do(req *http.Request) (*http.Response, error) {
	if tc.breaker == nil {
		return tc.client.Do(req)
	}

	result, err := tc.breaker.Execute(func() (interface{}, error) {
		return tc.client.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// transportDecodedBody reads the request body, decoding it when flagged
// with Content-Transfer-Encoding: base64. The second return reports
// whether decoding happened.
func transportDecodedBody(r *http.Request) ([]byte, bool, error) {
	if r.Body == nil {
		return nil, false, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read request body: %w", err)
	}
	_ = r.Body.Close()

	if !strings.EqualFold(r.Header.Get(HeaderContentTransferEncoding), TransferEncodingBase64) {
		return raw, false, nil
	}

	// MIME-style base64 bodies wrap lines; strip whitespace before decoding.
	cleaned := bytes.Map(func(c rune) rune {
		switch c {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return c
	}, raw)

	decoded, err := base64.StdEncoding.DecodeString(string(cleaned))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBodyDecode, err)
	}

	return decoded, true, nil
}

// buildTargetURL joins the target base URL with the original path and
// query string.
func buildTargetURL(baseURL string, u *url.URL) string {
	target := baseURL + u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

// Ensure forwarder implements Forwarder.
var _ Forwarder = (*forwarder)(nil)
