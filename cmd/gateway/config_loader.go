package main

import (
	"github.com/vyrodovalexey/avauthgw/internal/audit"
	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// loadAndValidateConfig loads and validates the configuration.
// LoadConfig expands ${VAR} references in the YAML text and overlays
// the well-known environment overrides on the parsed result.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting avauthgw",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatalWithSync(logger, "invalid configuration", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	logger.Info("configuration loaded",
		observability.Int("listeners", len(cfg.Server.Listeners)),
		observability.Int("policy_rules", len(cfg.Policy.Rules)),
		observability.Bool("protected_backend_configured", cfg.Backends.Protected.BaseURL != ""),
		observability.String("default_backend", cfg.Backends.Default.BaseURL),
	)

	return cfg
}

// initTracer initializes the tracer from the observability section.
// Tracing defaults to disabled; a disabled tracer still yields usable
// no-op spans.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracerCfg := observability.TracerConfig{
		ServiceName:  "avauthgw",
		Enabled:      false,
		SamplingRate: 1.0,
	}

	if cfg.Observability != nil && cfg.Observability.Tracing != nil {
		tracerCfg.Enabled = cfg.Observability.Tracing.Enabled
		tracerCfg.SamplingRate = cfg.Observability.Tracing.SamplingRate
		tracerCfg.OTLPEndpoint = cfg.Observability.Tracing.OTLPEndpoint
		if cfg.Observability.Tracing.ServiceName != "" {
			tracerCfg.ServiceName = cfg.Observability.Tracing.ServiceName
		}
	}

	tracer, err := observability.NewTracer(tracerCfg)
	if err != nil {
		fatalWithSync(logger, "failed to initialize tracer", observability.Error(err))
		return nil // unreachable in production; allows test to continue
	}

	return tracer
}

// initAuditLogger creates the decision audit logger from configuration.
// A broken audit setup degrades to a no-op logger rather than refusing
// to start: serving traffic ranks above recording it.
func initAuditLogger(cfg *config.Config, logger observability.Logger, opts ...audit.Option) audit.Logger {
	auditLogger, err := audit.FromConfig(cfg.Audit, opts...)
	if err != nil {
		logger.Warn("failed to create audit logger, using noop", observability.Error(err))
		return audit.NewNoopLogger()
	}

	if cfg.Audit != nil && cfg.Audit.Enabled {
		logger.Info("audit logging enabled",
			observability.String("output", cfg.Audit.Output),
		)
	} else {
		logger.Info("audit logging disabled")
	}

	return auditLogger
}
