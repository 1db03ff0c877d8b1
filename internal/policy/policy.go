package policy

import (
	"fmt"
	"net/http"
	"strings"
)

// Target identifies the backend an allowed request is forwarded to.
type Target string

// Forwarding targets.
const (
	// TargetProtected routes to the protected backend.
	TargetProtected Target = "protected"

	// TargetDefault routes to the default backend.
	TargetDefault Target = "default"
)

// Valid reports whether the target names a known backend.
func (t Target) Valid() bool {
	return t == TargetProtected || t == TargetDefault
}

// DefaultRuleName is the name of the appended catch-all rule.
const DefaultRuleName = "default"

// Rule is one entry of the ordered rule set.
type Rule struct {
	// Name identifies the rule in logs, metrics, and the audit trail.
	Name string `yaml:"name" json:"name"`

	// PathPrefix selects the requests this rule decides. An empty prefix
	// matches every path.
	PathPrefix string `yaml:"pathPrefix" json:"pathPrefix"`

	// RequiredGroups, when non-empty, requires the caller to be a member
	// of at least one listed group.
	RequiredGroups []string `yaml:"requiredGroups,omitempty" json:"requiredGroups,omitempty"`

	// RequiredDeviceID, when set, requires the caller's device header to
	// equal this value exactly.
	RequiredDeviceID string `yaml:"requiredDeviceID,omitempty" json:"requiredDeviceID,omitempty"`

	// Condition is an optional CEL expression over the request. It is
	// compiled at engine construction and must evaluate to true for the
	// rule to allow.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Target is the backend allowed requests are forwarded to.
	Target Target `yaml:"target" json:"target"`
}

// Validate checks the rule shape.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.PathPrefix != "" && !strings.HasPrefix(r.PathPrefix, "/") {
		return fmt.Errorf("rule %q: path prefix must start with /", r.Name)
	}
	if !r.Target.Valid() {
		return fmt.Errorf("rule %q: unknown target %q", r.Name, r.Target)
	}
	return nil
}

// Matches reports whether the rule decides the given path.
func (r *Rule) Matches(path string) bool {
	return strings.HasPrefix(path, r.PathPrefix)
}

// defaultRule is the catch-all appended to every rule set.
func defaultRule() Rule {
	return Rule{
		Name:   DefaultRuleName,
		Target: TargetDefault,
	}
}

// Denial reasons.
const (
	// ReasonInsufficientGroup denies a caller outside the required groups.
	ReasonInsufficientGroup = "insufficient_group"

	// ReasonUntrustedDevice denies a caller without the required device id.
	ReasonUntrustedDevice = "untrusted_device"

	// ReasonConditionFailed denies a caller failing the rule condition.
	ReasonConditionFailed = "condition_failed"
)

// Input carries the request attributes evaluation runs over.
type Input struct {
	// Path is the request path.
	Path string

	// Method is the HTTP method.
	Method string

	// Groups are the caller's group memberships.
	Groups []string

	// DeviceID is the caller's device identifier header value, empty when
	// the header is absent.
	DeviceID string

	// Headers are the inbound request headers.
	Headers http.Header
}

// Decision is the outcome of evaluating a request against the rule set.
type Decision struct {
	// Allowed indicates whether the request may be forwarded.
	Allowed bool

	// Rule is the name of the deciding rule.
	Rule string

	// Target is the backend to forward to. Only set when allowed.
	Target Target

	// Reason explains a denial. Only set when denied.
	Reason string
}

// Allow builds an allow decision for the given rule and target.
func Allow(rule string, target Target) *Decision {
	return &Decision{
		Allowed: true,
		Rule:    rule,
		Target:  target,
	}
}

// Deny builds a deny decision for the given rule and reason.
func Deny(rule, reason string) *Decision {
	return &Decision{
		Allowed: false,
		Rule:    rule,
		Reason:  reason,
	}
}
