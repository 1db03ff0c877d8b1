package main

import (
	"net/http"

	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/middleware"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/ratelimit"
)

// buildMiddlewareChain builds the inbound middleware chain.
// The execution order (outermost executes first):
// Recovery -> RequestID -> Logging -> Tracing -> Metrics -> CORS ->
// RateLimit -> [pipeline]
//
// Tracing runs before Metrics so the active span is set when the
// request is measured. Rate limiting runs innermost so rejected
// requests are still logged and counted.
func buildMiddlewareChain(
	handler http.Handler,
	cfg *config.Config,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	limiter ratelimit.Limiter,
) http.Handler {
	h := handler

	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		keyFunc := ratelimit.KeyFuncFromConfig(cfg.RateLimit.KeyBy)
		h = middleware.RateLimit(limiter, keyFunc, logger)(h)
	}

	if cfg.CORS != nil {
		h = middleware.CORS(cfg.CORS)(h)
	}

	h = observability.MetricsMiddleware(metrics)(h)
	h = observability.TracingMiddleware(tracer)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID()(h)
	h = middleware.Recovery(logger)(h)

	return h
}
