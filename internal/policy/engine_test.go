package policy

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

func newTestEngine(t *testing.T, rules []Rule) Engine {
	t.Helper()

	engine, err := NewEngine(rules,
		WithEngineLogger(observability.NopLogger()),
		WithEngineMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())),
	)
	require.NoError(t, err)
	return engine
}

func protectedRules() []Rule {
	return []Rule{
		{
			Name:           "protected-path",
			PathPrefix:     "/protectedPath",
			RequiredGroups: []string{"admin"},
			Target:         TargetProtected,
		},
		{
			Name:             "admin-panel",
			PathPrefix:       "/admin-panel",
			RequiredGroups:   []string{"admin"},
			RequiredDeviceID: "trusted-device-123",
			Target:           TargetProtected,
		},
	}
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rules   []Rule
		wantErr string
	}{
		{
			name:  "empty rule set",
			rules: nil,
		},
		{
			name:  "valid rules",
			rules: protectedRules(),
		},
		{
			name: "missing rule name",
			rules: []Rule{
				{PathPrefix: "/x", Target: TargetDefault},
			},
			wantErr: "rule name is required",
		},
		{
			name: "prefix without leading slash",
			rules: []Rule{
				{Name: "bad", PathPrefix: "x", Target: TargetDefault},
			},
			wantErr: "path prefix must start with /",
		},
		{
			name: "unknown target",
			rules: []Rule{
				{Name: "bad", PathPrefix: "/x", Target: "upstream"},
			},
			wantErr: "unknown target",
		},
		{
			name: "invalid condition",
			rules: []Rule{
				{Name: "bad", PathPrefix: "/x", Condition: "method ==", Target: TargetDefault},
			},
			wantErr: "failed to compile condition",
		},
		{
			name: "condition over unknown variable",
			rules: []Rule{
				{Name: "bad", PathPrefix: "/x", Condition: "unknownVar == 1", Target: TargetDefault},
			},
			wantErr: "failed to compile condition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine, err := NewEngine(tt.rules, WithEngineLogger(observability.NopLogger()),
				WithEngineMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, engine)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, engine)
			}
		})
	}
}

func TestEngine_Evaluate_Groups(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, protectedRules())

	tests := []struct {
		name        string
		input       *Input
		wantAllowed bool
		wantTarget  Target
		wantRule    string
		wantReason  string
	}{
		{
			name: "admin reaches protected path",
			input: &Input{
				Path:   "/protectedPath/reports",
				Method: http.MethodGet,
				Groups: []string{"admin"},
			},
			wantAllowed: true,
			wantTarget:  TargetProtected,
			wantRule:    "protected-path",
		},
		{
			name: "non-admin denied on protected path",
			input: &Input{
				Path:   "/protectedPath",
				Method: http.MethodGet,
				Groups: []string{"users"},
			},
			wantAllowed: false,
			wantRule:    "protected-path",
			wantReason:  ReasonInsufficientGroup,
		},
		{
			name: "no groups denied on protected path",
			input: &Input{
				Path:   "/protectedPath",
				Method: http.MethodGet,
			},
			wantAllowed: false,
			wantRule:    "protected-path",
			wantReason:  ReasonInsufficientGroup,
		},
		{
			name: "one of several groups suffices",
			input: &Input{
				Path:   "/protectedPath",
				Method: http.MethodGet,
				Groups: []string{"users", "admin", "auditors"},
			},
			wantAllowed: true,
			wantTarget:  TargetProtected,
			wantRule:    "protected-path",
		},
		{
			name: "unmatched path allowed to default target",
			input: &Input{
				Path:   "/search",
				Method: http.MethodGet,
				Groups: []string{"users"},
			},
			wantAllowed: true,
			wantTarget:  TargetDefault,
			wantRule:    DefaultRuleName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision := engine.Evaluate(context.Background(), tt.input)
			require.NotNil(t, decision)
			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			assert.Equal(t, tt.wantRule, decision.Rule)
			if tt.wantAllowed {
				assert.Equal(t, tt.wantTarget, decision.Target)
				assert.Empty(t, decision.Reason)
			} else {
				assert.Equal(t, tt.wantReason, decision.Reason)
			}
		})
	}
}

func TestEngine_Evaluate_DeviceID(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, protectedRules())

	tests := []struct {
		name        string
		deviceID    string
		wantAllowed bool
		wantReason  string
	}{
		{
			name:        "trusted device allowed",
			deviceID:    "trusted-device-123",
			wantAllowed: true,
		},
		{
			name:       "different device denied",
			deviceID:   "rogue-device-999",
			wantReason: ReasonUntrustedDevice,
		},
		{
			name:       "absent device denied",
			deviceID:   "",
			wantReason: ReasonUntrustedDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision := engine.Evaluate(context.Background(), &Input{
				Path:     "/admin-panel",
				Method:   http.MethodGet,
				Groups:   []string{"admin"},
				DeviceID: tt.deviceID,
			})
			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			if tt.wantAllowed {
				assert.Equal(t, TargetProtected, decision.Target)
			} else {
				assert.Equal(t, tt.wantReason, decision.Reason)
			}
		})
	}
}

func TestEngine_Evaluate_FirstMatchWins(t *testing.T) {
	t.Parallel()

	// Both rules match /api/admin; the first one decides.
	engine := newTestEngine(t, []Rule{
		{
			Name:           "api-admin",
			PathPrefix:     "/api/admin",
			RequiredGroups: []string{"admin"},
			Target:         TargetProtected,
		},
		{
			Name:       "api",
			PathPrefix: "/api",
			Target:     TargetDefault,
		},
	})

	decision := engine.Evaluate(context.Background(), &Input{
		Path:   "/api/admin/settings",
		Method: http.MethodGet,
		Groups: []string{"users"},
	})
	assert.False(t, decision.Allowed)
	assert.Equal(t, "api-admin", decision.Rule)
	assert.Equal(t, ReasonInsufficientGroup, decision.Reason)

	decision = engine.Evaluate(context.Background(), &Input{
		Path:   "/api/public",
		Method: http.MethodGet,
		Groups: []string{"users"},
	})
	assert.True(t, decision.Allowed)
	assert.Equal(t, "api", decision.Rule)
	assert.Equal(t, TargetDefault, decision.Target)
}

func TestEngine_Evaluate_Conditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		condition   string
		input       *Input
		wantAllowed bool
	}{
		{
			name:      "method condition holds",
			condition: `method == "GET"`,
			input: &Input{
				Path:   "/api/data",
				Method: http.MethodGet,
			},
			wantAllowed: true,
		},
		{
			name:      "method condition fails",
			condition: `method == "GET"`,
			input: &Input{
				Path:   "/api/data",
				Method: http.MethodDelete,
			},
			wantAllowed: false,
		},
		{
			name:      "group membership condition",
			condition: `"auditors" in groups`,
			input: &Input{
				Path:   "/api/data",
				Method: http.MethodGet,
				Groups: []string{"auditors"},
			},
			wantAllowed: true,
		},
		{
			name:      "header condition",
			condition: `header["x-env"] == "staging"`,
			input: &Input{
				Path:    "/api/data",
				Method:  http.MethodGet,
				Headers: http.Header{"X-Env": []string{"staging"}},
			},
			wantAllowed: true,
		},
		{
			name:      "device condition",
			condition: `deviceId.startsWith("trusted-")`,
			input: &Input{
				Path:     "/api/data",
				Method:   http.MethodGet,
				DeviceID: "trusted-device-123",
			},
			wantAllowed: true,
		},
		{
			name:      "missing header key fails closed",
			condition: `header["x-env"] == "staging"`,
			input: &Input{
				Path:   "/api/data",
				Method: http.MethodGet,
			},
			wantAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine := newTestEngine(t, []Rule{
				{
					Name:       "conditional",
					PathPrefix: "/api",
					Condition:  tt.condition,
					Target:     TargetProtected,
				},
			})

			decision := engine.Evaluate(context.Background(), tt.input)
			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			if !tt.wantAllowed {
				assert.Equal(t, ReasonConditionFailed, decision.Reason)
			}
		})
	}
}

func TestEngine_Rules_IncludesDefault(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, protectedRules())

	rules := engine.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, "protected-path", rules[0].Name)
	assert.Equal(t, "admin-panel", rules[1].Name)
	assert.Equal(t, DefaultRuleName, rules[2].Name)
	assert.Equal(t, TargetDefault, rules[2].Target)
	assert.Empty(t, rules[2].PathPrefix)
}

func TestEngine_Evaluate_AlwaysDecides(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	for _, path := range []string{"/", "", "/anything/at/all", "/search"} {
		decision := engine.Evaluate(context.Background(), &Input{Path: path, Method: http.MethodGet})
		require.NotNil(t, decision)
		assert.True(t, decision.Allowed)
		assert.Equal(t, TargetDefault, decision.Target)
	}
}

func TestMatchesAny(t *testing.T) {
	t.Parallel()

	assert.True(t, matchesAny([]string{"admin"}, []string{"users", "admin"}))
	assert.False(t, matchesAny([]string{"admin"}, []string{"users"}))
	assert.False(t, matchesAny([]string{"admin"}, nil))
	assert.False(t, matchesAny(nil, []string{"admin"}))
}

func TestHeaderMap(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("X-Device-Id", "trusted-device-123")
	h.Add("Accept", "application/json")
	h.Add("Accept", "text/plain")

	m := headerMap(h)
	assert.Equal(t, "trusted-device-123", m["x-device-id"])
	assert.Equal(t, "application/json", m["accept"])
}
