package policy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// policyTracer is the OpenTelemetry tracer for policy evaluation.
var policyTracer = otel.Tracer("avauthgw/policy")

// Engine evaluates requests against an ordered rule set.
type Engine interface {
	// Evaluate runs the request attributes through the rule set and
	// returns the decision of the first rule whose path prefix matches.
	// The appended catch-all rule guarantees a decision for every input.
	Evaluate(ctx context.Context, input *Input) *Decision

	// Rules returns the effective rule set, including the appended
	// catch-all rule.
	Rules() []Rule
}

// engine implements Engine. It is immutable after construction; reload
// builds a new engine and swaps it through a Provider.
type engine struct {
	rules    []Rule
	programs []cel.Program
	logger   observability.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// EngineOption is a functional option for the engine.
type EngineOption func(*engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the metrics.
func WithEngineMetrics(metrics *Metrics) EngineOption {
	return func(e *engine) {
		e.metrics = metrics
	}
}

// WithEngineTracer sets the tracer.
func WithEngineTracer(tracer trace.Tracer) EngineOption {
	return func(e *engine) {
		e.tracer = tracer
	}
}

// NewEngine creates an engine from the ordered rule set. Rules are
// validated and their CEL conditions compiled up front; a rule that does
// not validate or compile fails construction. The catch-all default rule
// is appended last.
func NewEngine(rules []Rule, opts ...EngineOption) (Engine, error) {
	e := &engine{
		logger: observability.NopLogger(),
		tracer: policyTracer,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics("gateway")
	}

	env, err := newCELEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	effective := make([]Rule, 0, len(rules)+1)
	effective = append(effective, rules...)
	effective = append(effective, defaultRule())

	e.rules = effective
	e.programs = make([]cel.Program, len(effective))

	for i := range e.rules {
		rule := &e.rules[i]
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if rule.Condition == "" {
			continue
		}

		ast, issues := env.Compile(rule.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: failed to compile condition: %w", rule.Name, issues.Err())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: failed to create program: %w", rule.Name, err)
		}
		e.programs[i] = program
	}

	return e, nil
}

// newCELEnvironment creates the CEL environment rule conditions are
// compiled in.
func newCELEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("groups", cel.ListType(cel.StringType)),
		cel.Variable("deviceId", cel.StringType),
		cel.Variable("header", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// Evaluate runs the input through the rule set.
func (e *engine) Evaluate(ctx context.Context, input *Input) *Decision {
	start := time.Now()

	_, span := e.tracer.Start(ctx, "policy.evaluate",
		trace.WithAttributes(
			attribute.String("policy.path", input.Path),
			attribute.String("policy.method", input.Method),
		),
	)
	defer span.End()

	decision := e.evaluate(input)

	span.SetAttributes(
		attribute.String("policy.rule", decision.Rule),
		attribute.Bool("policy.allowed", decision.Allowed),
	)
	if decision.Allowed {
		span.SetAttributes(attribute.String("policy.target", string(decision.Target)))
		e.metrics.RecordDecision(decision.Rule, decisionAllow, "")
	} else {
		span.SetAttributes(attribute.String("policy.reason", decision.Reason))
		e.metrics.RecordDecision(decision.Rule, decisionDeny, decision.Reason)
	}
	e.metrics.RecordEvaluation(time.Since(start))

	return decision
}

// evaluate walks the rules in order and decides on the first prefix match.
func (e *engine) evaluate(input *Input) *Decision {
	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.Matches(input.Path) {
			continue
		}

		if len(rule.RequiredGroups) > 0 && !matchesAny(rule.RequiredGroups, input.Groups) {
			e.logger.Debug("policy denied: insufficient group",
				observability.String("rule", rule.Name),
				observability.String("path", input.Path),
				observability.Strings("groups", input.Groups),
			)
			return Deny(rule.Name, ReasonInsufficientGroup)
		}

		if rule.RequiredDeviceID != "" && input.DeviceID != rule.RequiredDeviceID {
			e.logger.Debug("policy denied: untrusted device",
				observability.String("rule", rule.Name),
				observability.String("path", input.Path),
			)
			return Deny(rule.Name, ReasonUntrustedDevice)
		}

		if e.programs[i] != nil && !e.evaluateCondition(rule.Name, e.programs[i], input) {
			return Deny(rule.Name, ReasonConditionFailed)
		}

		return Allow(rule.Name, rule.Target)
	}

	// Unreachable: the appended catch-all rule matches every path.
	return Allow(DefaultRuleName, TargetDefault)
}

// evaluateCondition runs a compiled rule condition. An evaluation error
// or a non-boolean result counts as false, so a broken condition fails
// closed.
func (e *engine) evaluateCondition(ruleName string, program cel.Program, input *Input) bool {
	result, _, err := program.Eval(map[string]interface{}{
		"path":     input.Path,
		"method":   input.Method,
		"groups":   input.Groups,
		"deviceId": input.DeviceID,
		"header":   headerMap(input.Headers),
	})
	if err != nil {
		e.logger.Warn("CEL evaluation error",
			observability.String("rule", ruleName),
			observability.Error(err),
		)
		return false
	}

	boolResult, ok := result.Value().(bool)
	return ok && boolResult
}

// Rules returns a copy of the effective rule set.
func (e *engine) Rules() []Rule {
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	return rules
}

// matchesAny reports whether any required entry is present in actual.
func matchesAny(required, actual []string) bool {
	for _, r := range required {
		for _, a := range actual {
			if r == a {
				return true
			}
		}
	}
	return false
}

// headerMap flattens request headers to lowercase keys and first values
// for CEL conditions.
func headerMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			m[strings.ToLower(k)] = vs[0]
		}
	}
	return m
}

// Ensure engine implements Engine.
var _ Engine = (*engine)(nil)
