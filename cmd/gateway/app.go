package main

import (
	"net/http"

	"github.com/vyrodovalexey/avauthgw/internal/audit"
	"github.com/vyrodovalexey/avauthgw/internal/auth"
	"github.com/vyrodovalexey/avauthgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/forward"
	"github.com/vyrodovalexey/avauthgw/internal/gateway"
	"github.com/vyrodovalexey/avauthgw/internal/health"
	"github.com/vyrodovalexey/avauthgw/internal/idp"
	"github.com/vyrodovalexey/avauthgw/internal/middleware"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/policy"
	"github.com/vyrodovalexey/avauthgw/internal/ratelimit"
	"github.com/vyrodovalexey/avauthgw/internal/secrets"
)

// application holds all application components.
type application struct {
	gateway       *gateway.Gateway
	provider      *policy.Provider
	healthChecker *health.Checker
	metrics       *observability.Metrics
	reloadMetrics *reloadMetrics
	opsServer     *http.Server
	tracer        *observability.Tracer
	config        *config.Config
	limiter       ratelimit.Limiter
	limitStore    ratelimit.Store
	auditLogger   audit.Logger
	idpClient     idp.Client
	resolver      secrets.Resolver
	opsAPIKeyHash string
}

// initApplication initializes all application components.
//
//nolint:funlen // component wiring is one linear sequence
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	metrics := observability.NewMetrics("gateway")
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	tracer := initTracer(cfg, logger)

	registerSubsystemMetrics(metrics)

	healthChecker := health.NewChecker(version,
		health.WithLogger(logger),
		health.WithMetrics(health.NewMetricsWithRegisterer("gateway", metrics.Registry())),
	)

	resolver := initSecretsResolver(cfg, logger)
	clientSecret := resolveSecret(resolver, cfg.IdentityProvider.ClientSecretRef, "idp_client_secret", logger)

	var opsAPIKeyHash string
	if cfg.Ops != nil {
		opsAPIKeyHash = resolveSecret(resolver, cfg.Ops.APIKeyHashRef, "ops_api_key_hash", logger)
	}

	// Shared metric instances are registered with the gateway's custom
	// registry so they appear on the /metrics endpoint; subsystem
	// constructors otherwise fall back to the default registerer.
	idpMetrics := idp.NewMetricsWithRegisterer("gateway", metrics.Registry())
	idpMetrics.Init()
	idpClient, err := idp.NewClient(&idp.Config{
		BaseURL:      cfg.IdentityProvider.BaseURL,
		PoolID:       cfg.IdentityProvider.PoolID,
		ClientID:     cfg.IdentityProvider.ClientID,
		ClientSecret: clientSecret,
		Timeout:      cfg.IdentityProvider.Timeout.Duration(),
	}, idp.WithLogger(logger), idp.WithMetrics(idpMetrics))
	if err != nil {
		fatalWithSync(logger, "failed to create identity provider client", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	authMetrics := auth.NewMetricsWithRegisterer("gateway", metrics.Registry())
	authMetrics.Init()
	validator, err := auth.NewValidator(idpClient,
		auth.WithLogger(logger),
		auth.WithMetrics(authMetrics),
	)
	if err != nil {
		fatalWithSync(logger, "failed to create token validator", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	policyMetrics := policy.NewMetricsWithRegisterer("gateway", metrics.Registry())
	policyMetrics.Init()
	rules, err := policy.RulesFromConfig(cfg.Policy.Rules)
	if err != nil {
		fatalWithSync(logger, "invalid policy rules", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}
	engine, err := policy.NewEngine(rules,
		policy.WithEngineLogger(logger),
		policy.WithEngineMetrics(policyMetrics),
	)
	if err != nil {
		fatalWithSync(logger, "failed to build policy engine", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}
	provider := policy.NewProvider(engine)

	forwarder, err := initForwarder(cfg, logger, metrics)
	if err != nil {
		fatalWithSync(logger, "failed to create forwarder", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	limitMetrics := ratelimit.NewMetricsWithRegisterer("gateway", metrics.Registry())
	limitMetrics.Init()
	limiter, limitStore, err := ratelimit.FromConfig(cfg.RateLimit,
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(limitMetrics),
	)
	if err != nil {
		fatalWithSync(logger, "failed to create rate limiter", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	auditMetrics := audit.NewMetricsWithRegisterer("gateway", metrics.Registry())
	auditMetrics.Init()
	auditLogger := initAuditLogger(cfg, logger,
		audit.WithLogger(logger),
		audit.WithMetrics(auditMetrics),
	)

	pipelineMetrics := gateway.NewMetricsWithRegisterer("gateway", metrics.Registry())
	pipelineMetrics.Init()
	orchestrator, err := gateway.NewOrchestrator(validator, provider, forwarder,
		gateway.WithOrchestratorLogger(logger),
		gateway.WithOrchestratorMetrics(pipelineMetrics),
		gateway.WithOrchestratorAudit(auditLogger),
	)
	if err != nil {
		fatalWithSync(logger, "failed to create request pipeline", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	handler := buildMiddlewareChain(orchestrator, cfg, logger, metrics, tracer, limiter)

	registerHealthChecks(healthChecker, cfg, limitStore)

	gw, err := gateway.New(cfg,
		gateway.WithLogger(logger),
		gateway.WithHandler(handler),
		gateway.WithPolicyProvider(provider),
	)
	if err != nil {
		fatalWithSync(logger, "failed to create gateway", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	return &application{
		gateway:       gw,
		provider:      provider,
		healthChecker: healthChecker,
		metrics:       metrics,
		reloadMetrics: newReloadMetrics(metrics),
		tracer:        tracer,
		config:        cfg,
		limiter:       limiter,
		limitStore:    limitStore,
		auditLogger:   auditLogger,
		idpClient:     idpClient,
		resolver:      resolver,
		opsAPIKeyHash: opsAPIKeyHash,
	}
}

// registerSubsystemMetrics registers singleton metric instances created
// through promauto with the gateway's custom registry. promauto binds
// them to the default global registry; the /metrics endpoint is served
// from the custom one.
func registerSubsystemMetrics(metrics *observability.Metrics) {
	mwMetrics := middleware.GetMiddlewareMetrics()
	mwMetrics.MustRegister(metrics.Registry())
	mwMetrics.Init()
}

// initForwarder builds the forwarder from the backend configuration,
// attaching per-target circuit breakers when enabled.
func initForwarder(
	cfg *config.Config,
	logger observability.Logger,
	metrics *observability.Metrics,
) (forward.Forwarder, error) {
	forwardMetrics := forward.NewMetricsWithRegisterer("gateway", metrics.Registry())
	forwardMetrics.Init()
	opts := []forward.ForwarderOption{
		forward.WithLogger(logger),
		forward.WithMetrics(forwardMetrics),
	}

	if cfg.CircuitBreaker != nil && cfg.CircuitBreaker.Enabled {
		breakerCfg := breakerConfigFromConfig(cfg.CircuitBreaker)
		breakerMetrics := circuitbreaker.NewMetricsWithRegisterer("gateway", metrics.Registry())

		for _, target := range []policy.Target{policy.TargetProtected, policy.TargetDefault} {
			breaker := circuitbreaker.New(string(target), breakerCfg,
				circuitbreaker.WithLogger(logger),
				circuitbreaker.WithMetrics(breakerMetrics),
			)
			opts = append(opts, forward.WithBreaker(target, breaker))
		}
	}

	return forward.NewForwarder(&forward.Config{
		Protected: targetConfigFromBackend(cfg.Backends.Protected),
		Default:   targetConfigFromBackend(cfg.Backends.Default),
	}, opts...)
}

// targetConfigFromBackend maps one backend config section onto the
// forwarder's target settings.
func targetConfigFromBackend(cfg config.BackendConfig) forward.TargetConfig {
	tc := forward.TargetConfig{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout.Duration(),
	}
	if len(cfg.Headers) > 0 {
		tc.Headers = &forward.HeaderDecoration{Add: cfg.Headers}
	}
	return tc
}

// breakerConfigFromConfig maps the circuit breaker config section onto
// breaker settings, falling back to defaults for unset fields.
func breakerConfigFromConfig(cfg *config.CircuitBreakerConfig) circuitbreaker.Config {
	breakerCfg := circuitbreaker.DefaultConfig()

	if cfg.MaxRequests > 0 {
		breakerCfg.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval.Duration() > 0 {
		breakerCfg.Interval = cfg.Interval.Duration()
	}
	if cfg.Timeout.Duration() > 0 {
		breakerCfg.Timeout = cfg.Timeout.Duration()
	}
	if cfg.FailureThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.MinRequests > 0 {
		breakerCfg.MinRequests = cfg.MinRequests
	}

	return breakerCfg
}

// registerHealthChecks wires readiness probes for the gateway's
// dependencies: identity provider reachability and, when the rate
// limiter uses redis, store connectivity.
func registerHealthChecks(checker *health.Checker, cfg *config.Config, store ratelimit.Store) {
	if cfg.IdentityProvider.BaseURL != "" {
		checker.Register("identity_provider", health.HTTPCheck(
			cfg.IdentityProvider.BaseURL,
			cfg.IdentityProvider.Timeout.OrDefault(idp.DefaultTimeout),
		))
	}

	if store != nil {
		checker.Register("ratelimit_store", store.Ping)
	}
}
