package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Environment variables that override file configuration. These form the
// minimal surface needed to run the gateway without a config file.
const (
	EnvIDPPoolID           = "GATEWAY_IDP_POOL_ID"
	EnvIDPClientID         = "GATEWAY_IDP_CLIENT_ID"
	EnvIDPBaseURL          = "GATEWAY_IDP_BASE_URL"
	EnvProtectedBackendURL = "GATEWAY_PROTECTED_BACKEND_URL"
	EnvDefaultBackendURL   = "GATEWAY_DEFAULT_BACKEND_URL"
)

// DefaultExternalBackendURL is the fallback default-backend base URL used
// when neither the config file nor the environment provides one.
const DefaultExternalBackendURL = "https://www.external-service.example"

// Target names accepted in policy rules.
const (
	TargetProtected = "protected"
	TargetDefault   = "default"
)

// Config is the root gateway configuration.
type Config struct {
	Server           ServerConfig         `json:"server" yaml:"server"`
	IdentityProvider IDPConfig            `json:"identityProvider" yaml:"identityProvider"`
	Backends         BackendsConfig       `json:"backends" yaml:"backends"`
	Policy           PolicyConfig         `json:"policy" yaml:"policy"`
	RateLimit        *RateLimitConfig     `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	CircuitBreaker   *CircuitBreakerConfig `json:"circuitBreaker,omitempty" yaml:"circuitBreaker,omitempty"`
	CORS             *CORSConfig          `json:"cors,omitempty" yaml:"cors,omitempty"`
	Audit            *AuditConfig         `json:"audit,omitempty" yaml:"audit,omitempty"`
	Observability    *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"`
	Ops              *OpsConfig           `json:"ops,omitempty" yaml:"ops,omitempty"`
}

// ServerConfig holds the inbound listener configuration.
type ServerConfig struct {
	Listeners       []Listener `json:"listeners" yaml:"listeners"`
	ShutdownTimeout Duration   `json:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// Listener describes a single inbound HTTP listener.
type Listener struct {
	Name string `json:"name" yaml:"name"`
	Bind string `json:"bind" yaml:"bind"`
	Port int    `json:"port" yaml:"port"`
}

// IDPConfig holds the identity-provider connection settings.
type IDPConfig struct {
	BaseURL         string   `json:"baseURL" yaml:"baseURL"`
	PoolID          string   `json:"poolID" yaml:"poolID"`
	ClientID        string   `json:"clientID" yaml:"clientID"`
	ClientSecretRef string   `json:"clientSecretRef" yaml:"clientSecretRef"`
	Timeout         Duration `json:"timeout" yaml:"timeout"`
}

// BackendsConfig holds the per-target backend settings.
type BackendsConfig struct {
	Protected BackendConfig `json:"protected" yaml:"protected"`
	Default   BackendConfig `json:"default" yaml:"default"`
}

// BackendConfig describes one forwarding target. An empty BaseURL is a
// legal configuration state: requests routed to that target fail with an
// internal error at request time rather than preventing startup.
type BackendConfig struct {
	BaseURL string            `json:"baseURL" yaml:"baseURL"`
	Timeout Duration          `json:"timeout" yaml:"timeout"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// PolicyConfig holds the ordered rule list.
type PolicyConfig struct {
	Rules []RuleConfig `json:"rules" yaml:"rules"`
}

// RuleConfig describes one policy rule. Rules are evaluated in file order,
// first match wins; the engine appends an always-matching default rule.
type RuleConfig struct {
	Name             string   `json:"name" yaml:"name"`
	PathPrefix       string   `json:"pathPrefix" yaml:"pathPrefix"`
	RequiredGroups   []string `json:"requiredGroups,omitempty" yaml:"requiredGroups,omitempty"`
	RequiredDeviceID string   `json:"requiredDeviceID,omitempty" yaml:"requiredDeviceID,omitempty"`
	Condition        string   `json:"condition,omitempty" yaml:"condition,omitempty"`
	Target           string   `json:"target" yaml:"target"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool         `json:"enabled" yaml:"enabled"`
	RequestsPerSecond float64      `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	Burst             int          `json:"burst" yaml:"burst"`
	KeyBy             string       `json:"keyBy" yaml:"keyBy"`
	Store             string       `json:"store" yaml:"store"`
	Redis             *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig holds redis connection settings for the distributed
// rate-limit store.
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
}

// CircuitBreakerConfig holds per-target circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	MaxRequests      uint32   `json:"maxRequests" yaml:"maxRequests"`
	Interval         Duration `json:"interval" yaml:"interval"`
	Timeout          Duration `json:"timeout" yaml:"timeout"`
	FailureThreshold float64  `json:"failureThreshold" yaml:"failureThreshold"`
	MinRequests      uint32   `json:"minRequests" yaml:"minRequests"`
}

// CORSConfig holds CORS settings for the inbound surface.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowedOrigins" yaml:"allowedOrigins"`
	AllowedMethods   []string `json:"allowedMethods" yaml:"allowedMethods"`
	AllowedHeaders   []string `json:"allowedHeaders" yaml:"allowedHeaders"`
	AllowCredentials bool     `json:"allowCredentials" yaml:"allowCredentials"`
	MaxAge           int      `json:"maxAge" yaml:"maxAge"`
}

// AuditConfig holds decision audit trail settings.
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Output     string `json:"output" yaml:"output"`
	BufferSize int    `json:"bufferSize" yaml:"bufferSize"`
}

// ObservabilityConfig holds logging, metrics, and tracing settings.
type ObservabilityConfig struct {
	Logging *LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig holds metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	ServiceName  string  `json:"serviceName" yaml:"serviceName"`
	OTLPEndpoint string  `json:"otlpEndpoint" yaml:"otlpEndpoint"`
	SamplingRate float64 `json:"samplingRate" yaml:"samplingRate"`
}

// OpsConfig holds settings for the operational (metrics/health) server.
type OpsConfig struct {
	APIKeyHashRef string `json:"apiKeyHashRef,omitempty" yaml:"apiKeyHashRef,omitempty"`
}

// DefaultConfig returns a configuration with all defaults applied. It is
// runnable without a config file once the identity-provider settings come
// from the environment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listeners: []Listener{
				{Name: "http", Bind: "0.0.0.0", Port: 8080},
			},
			ShutdownTimeout: Duration(30 * time.Second),
		},
		IdentityProvider: IDPConfig{
			Timeout: Duration(5 * time.Second),
		},
		Backends: BackendsConfig{
			Protected: BackendConfig{
				Timeout: Duration(5 * time.Second),
			},
			Default: BackendConfig{
				BaseURL: DefaultExternalBackendURL,
				Timeout: Duration(15 * time.Second),
			},
		},
		Policy: PolicyConfig{
			Rules: []RuleConfig{
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
			},
		},
	}
}

// ApplyEnvOverrides overlays the well-known environment variables onto the
// configuration. File values lose to explicitly set environment values.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvIDPPoolID); v != "" {
		cfg.IdentityProvider.PoolID = v
	}
	if v := os.Getenv(EnvIDPClientID); v != "" {
		cfg.IdentityProvider.ClientID = v
	}
	if v := os.Getenv(EnvIDPBaseURL); v != "" {
		cfg.IdentityProvider.BaseURL = v
	}
	if v := os.Getenv(EnvProtectedBackendURL); v != "" {
		cfg.Backends.Protected.BaseURL = v
	}
	if v := os.Getenv(EnvDefaultBackendURL); v != "" {
		cfg.Backends.Default.BaseURL = v
	}
}

// ValidateConfig validates the configuration. A missing protected backend
// URL is deliberately not an error here: the status contract maps it to an
// internal error on the first request routed there.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if len(cfg.Server.Listeners) == 0 {
		return fmt.Errorf("at least one listener is required")
	}

	seen := make(map[string]bool, len(cfg.Server.Listeners))
	for _, l := range cfg.Server.Listeners {
		if l.Name == "" {
			return fmt.Errorf("listener name is required")
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate listener name: %s", l.Name)
		}
		seen[l.Name] = true
		if l.Port < 1 || l.Port > 65535 {
			return fmt.Errorf("listener %s: invalid port %d", l.Name, l.Port)
		}
	}

	if err := validateBackend("protected", cfg.Backends.Protected); err != nil {
		return err
	}
	if err := validateBackend("default", cfg.Backends.Default); err != nil {
		return err
	}

	if err := validateRules(cfg.Policy.Rules); err != nil {
		return err
	}

	if rl := cfg.RateLimit; rl != nil && rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			return fmt.Errorf("rateLimit: requestsPerSecond must be positive")
		}
		if rl.Store == "redis" && (rl.Redis == nil || rl.Redis.Address == "") {
			return fmt.Errorf("rateLimit: redis store requires an address")
		}
	}

	if cb := cfg.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.FailureThreshold < 0 || cb.FailureThreshold > 1 {
			return fmt.Errorf("circuitBreaker: failureThreshold must be in [0, 1]")
		}
	}

	return nil
}

// validateBackend checks one backend target. The base URL must parse when
// present; absence is allowed.
func validateBackend(name string, b BackendConfig) error {
	if b.BaseURL != "" {
		u, err := url.Parse(b.BaseURL)
		if err != nil {
			return fmt.Errorf("backend %s: invalid baseURL: %w", name, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend %s: baseURL must be absolute", name)
		}
	}
	if b.Timeout < 0 {
		return fmt.Errorf("backend %s: negative timeout", name)
	}
	return nil
}

// validateRules checks the policy rule list.
func validateRules(rules []RuleConfig) error {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return fmt.Errorf("policy rule %d: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("policy rule %s: duplicate name", r.Name)
		}
		seen[r.Name] = true

		switch r.Target {
		case TargetProtected, TargetDefault:
		case "":
			return fmt.Errorf("policy rule %s: target is required", r.Name)
		default:
			return fmt.Errorf("policy rule %s: unknown target %q", r.Name, r.Target)
		}
	}
	return nil
}
