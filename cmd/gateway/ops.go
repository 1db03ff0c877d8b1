package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avauthgw/internal/middleware"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// createOpsServer creates the ops HTTP server exposing the metrics
// endpoint and the health probes. When an API-key hash is configured
// the whole mux sits behind the key guard.
func createOpsServer(port int, metricsPath string, app *application, logger observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, app.metrics.Handler())
	mux.Handle("/health", app.healthChecker.HealthHandler())
	mux.Handle("/ready", app.healthChecker.ReadinessHandler())
	mux.Handle("/live", app.healthChecker.LivenessHandler())

	handler := middleware.OpsAPIKey(app.opsAPIKeyHash, logger)(mux)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting ops server",
		observability.String("address", addr),
		observability.String("metrics_path", metricsPath),
		observability.Bool("api_key_guard", app.opsAPIKeyHash != ""),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// runOpsServer runs the ops HTTP server.
func runOpsServer(server *http.Server, logger observability.Logger) {
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ops server error", observability.Error(err))
	}
}

// startOpsServerIfEnabled starts the ops server when metrics are
// enabled in the configuration.
func startOpsServerIfEnabled(app *application, logger observability.Logger) {
	obs := app.config.Observability
	if obs == nil || obs.Metrics == nil || !obs.Metrics.Enabled {
		return
	}

	metricsPath := obs.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	metricsPort := obs.Metrics.Port
	if metricsPort == 0 {
		metricsPort = 9090
	}

	app.opsServer = createOpsServer(metricsPort, metricsPath, app, logger)
	go runOpsServer(app.opsServer, logger)
}
