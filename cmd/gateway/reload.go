package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// reloadMetrics holds Prometheus metrics for configuration reload
// operations. All collectors are registered with the gateway's custom
// registry so they appear on the /metrics endpoint.
type reloadMetrics struct {
	configReloadTotal       *prometheus.CounterVec
	configReloadDuration    prometheus.Histogram
	configReloadLastSuccess prometheus.Gauge
	configWatcherStatus     prometheus.Gauge
}

// newReloadMetrics creates reload metrics and registers them with the
// provided gateway Metrics instance's custom registry.
func newReloadMetrics(m *observability.Metrics) *reloadMetrics {
	rm := &reloadMetrics{
		configReloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "config_reload_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),
		configReloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "config_reload_duration_seconds",
				Help:      "Duration of configuration reload operations",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		configReloadLastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_reload_last_success_timestamp",
				Help:      "Timestamp of last successful config reload",
			},
		),
		configWatcherStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_watcher_running",
				Help:      "Whether the config file watcher is running (1=running, 0=stopped)",
			},
		),
	}

	collectors := []prometheus.Collector{
		rm.configReloadTotal,
		rm.configReloadDuration,
		rm.configReloadLastSuccess,
		rm.configWatcherStatus,
	}
	for _, c := range collectors {
		// Ignore duplicate registration errors (safe because descriptors
		// are identical when re-registered).
		_ = m.RegisterCollector(c)
	}

	return rm
}

// ensureReloadMetrics returns the application's reload metrics, lazily
// initializing them when the application was constructed without going
// through initApplication (e.g. in tests).
func ensureReloadMetrics(app *application) *reloadMetrics {
	if app.reloadMetrics != nil {
		return app.reloadMetrics
	}
	app.reloadMetrics = newReloadMetrics(observability.NewMetrics("gateway"))
	return app.reloadMetrics
}

// startConfigWatcher starts the configuration watcher. A watcher
// failure is not fatal: the gateway keeps serving with the startup
// configuration.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	rm := ensureReloadMetrics(app)

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		logger.Info("configuration changed, reloading")
		reloadComponents(app, newCfg, logger)
	}, config.WithWatcherLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		return watcher
	}

	rm.configWatcherStatus.Set(1)
	return watcher
}

// reloadComponents applies a changed configuration file. Only the
// policy rule set is hot-swapped; listeners, backends, the middleware
// chain, and the rate limiter are fixed at startup and require a
// restart to change.
func reloadComponents(
	app *application,
	newCfg *config.Config,
	logger observability.Logger,
) {
	start := time.Now()
	rm := ensureReloadMetrics(app)

	if err := app.gateway.Reload(newCfg); err != nil {
		logger.Error("failed to reload configuration", observability.Error(err))
		rm.configReloadTotal.WithLabelValues("error").Inc()
		rm.configReloadDuration.Observe(time.Since(start).Seconds())
		return
	}

	warnOnStaticSectionChanges(app.config, newCfg, logger)

	app.config = newCfg

	rm.configReloadTotal.WithLabelValues("success").Inc()
	rm.configReloadDuration.Observe(time.Since(start).Seconds())
	rm.configReloadLastSuccess.SetToCurrentTime()

	logger.Info("policy rules reloaded",
		observability.Int("rules", len(newCfg.Policy.Rules)),
	)
}

// warnOnStaticSectionChanges logs a warning for each changed
// configuration section that is not hot-reloadable.
func warnOnStaticSectionChanges(oldCfg, newCfg *config.Config, logger observability.Logger) {
	static := []struct {
		name     string
		old, new interface{}
	}{
		{"server", oldCfg.Server, newCfg.Server},
		{"identityProvider", oldCfg.IdentityProvider, newCfg.IdentityProvider},
		{"backends", oldCfg.Backends, newCfg.Backends},
		{"rateLimit", oldCfg.RateLimit, newCfg.RateLimit},
		{"circuitBreaker", oldCfg.CircuitBreaker, newCfg.CircuitBreaker},
		{"cors", oldCfg.CORS, newCfg.CORS},
		{"audit", oldCfg.Audit, newCfg.Audit},
		{"observability", oldCfg.Observability, newCfg.Observability},
		{"ops", oldCfg.Ops, newCfg.Ops},
	}

	for _, s := range static {
		if configSectionChanged(s.old, s.new) {
			logger.Warn("configuration section changed but is not hot-reloaded; restart the gateway to apply",
				observability.String("section", s.name),
			)
		}
	}
}

// configSectionHash computes a SHA-256 hash of a configuration section
// for fast change detection.
func configSectionHash(v interface{}) ([sha256.Size]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(data), true
}

// configSectionChanged compares two configuration sections by SHA-256
// hash, falling back to reflect.DeepEqual when hashing fails.
func configSectionChanged(oldSection, newSection interface{}) bool {
	oldHash, oldOK := configSectionHash(oldSection)
	newHash, newOK := configSectionHash(newSection)
	if oldOK && newOK {
		return oldHash != newHash
	}
	return !reflect.DeepEqual(oldSection, newSection)
}
