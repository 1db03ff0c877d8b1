package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// runGateway starts the gateway and blocks until shutdown.
func runGateway(app *application, configPath string, logger observability.Logger) {
	ctx := context.Background()

	if err := app.gateway.Start(ctx); err != nil {
		fatalWithSync(logger, "failed to start gateway", observability.Error(err))
		return // unreachable in production; allows test to continue
	}

	startOpsServerIfEnabled(app, logger)
	watcher := startConfigWatcher(ctx, app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

// waitForShutdown waits for a shutdown signal and performs graceful
// shutdown.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if app.opsServer != nil {
		logger.Info("stopping ops server")
		if err := app.opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop ops server gracefully", observability.Error(err))
		}
	}

	if err := app.gateway.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	// Close the audit logger after the gateway stops so in-flight
	// requests can still record their decisions.
	if app.auditLogger != nil {
		if err := app.auditLogger.Close(); err != nil {
			logger.Error("failed to close audit logger", observability.Error(err))
		}
	}

	// The in-memory limiter runs a janitor goroutine; the redis-backed
	// one holds a client connection.
	if closer, ok := app.limiter.(io.Closer); ok {
		_ = closer.Close()
	}
	if app.limitStore != nil {
		if err := app.limitStore.Close(); err != nil {
			logger.Error("failed to close rate limit store", observability.Error(err))
		}
	}

	if app.idpClient != nil {
		if err := app.idpClient.Close(); err != nil {
			logger.Error("failed to close identity provider client", observability.Error(err))
		}
	}

	if app.resolver != nil {
		if err := app.resolver.Close(); err != nil {
			logger.Error("failed to close secret resolver", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("gateway stopped")
}
