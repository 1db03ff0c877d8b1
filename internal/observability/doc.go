// Package observability provides logging, metrics, and tracing
// functionality for the access-control gateway.
//
// This package implements the three pillars of observability:
// structured logging via zap, Prometheus metrics collection, and
// distributed tracing via OpenTelemetry with OTLP export.
//
// # Logging
//
// The Logger interface provides structured logging:
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request processed",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Prometheus metrics for the HTTP surface live on a private registry;
// pipeline packages (auth, policy, forward) register their collectors on
// the same registry:
//
//	metrics := observability.NewMetrics("gateway")
//	handler := metrics.Handler()
//
// # Tracing
//
// OpenTelemetry distributed tracing with OTLP gRPC export:
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    ServiceName: "avauthgw",
//	    Enabled:     true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
