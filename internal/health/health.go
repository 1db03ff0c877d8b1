// Package health provides liveness and readiness probes for the
// gateway's operational endpoint. Liveness reports the process is up;
// readiness additionally runs registered dependency checks (identity
// provider reachability, rate limit store) in parallel under a probe
// timeout.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// Status is an overall or per-check probe status.
type Status string

const (
	// StatusOK indicates the probe passed.
	StatusOK Status = "ok"

	// StatusError indicates at least one check failed.
	StatusError Status = "error"
)

// DefaultProbeTimeout bounds one readiness probe run.
const DefaultProbeTimeout = 5 * time.Second

// CheckFunc probes a single dependency.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Response is the JSON body served by the probe handlers.
type Response struct {
	Status    Status                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// Checker runs registered dependency checks and serves probe endpoints.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    observability.Logger
	metrics   *Metrics

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *Metrics) CheckerOption {
	return func(c *Checker) {
		c.metrics = metrics
	}
}

// WithProbeTimeout sets the per-run readiness timeout.
func WithProbeTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewChecker creates a health checker carrying the build version.
func NewChecker(version string, opts ...CheckerOption) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultProbeTimeout,
		logger:    observability.NopLogger(),
		checks:    make(map[string]CheckFunc),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register adds a named dependency check. Registering the same name
// again replaces the previous check.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Unregister removes a dependency check.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Health reports version, uptime, and the state of every check.
func (c *Checker) Health(ctx context.Context) Response {
	resp := c.Readiness(ctx)
	resp.Version = c.version
	resp.Uptime = time.Since(c.startTime).Round(time.Second).String()
	return resp
}

// Readiness runs all registered checks in parallel under the probe
// timeout and aggregates the outcome.
func (c *Checker) Readiness(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	resp := Response{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
	}

	if len(checks) == 0 {
		return resp
	}

	resp.Checks = make(map[string]*CheckResult, len(checks))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()

			start := time.Now()
			err := fn(ctx)
			duration := time.Since(start)

			result := &CheckResult{
				Status:   StatusOK,
				Duration: duration.String(),
			}

			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()

				c.logger.Warn("dependency check failed",
					observability.String("check", name),
					observability.Error(err),
					observability.Duration("duration", duration),
				)
			}

			c.metrics.RecordCheck(name, err == nil, duration)

			mu.Lock()
			resp.Checks[name] = result
			if err != nil {
				resp.Status = StatusError
			}
			mu.Unlock()
		}(name, fn)
	}

	wg.Wait()
	return resp
}

// LivenessHandler serves the liveness probe. It answers OK for as long
// as the process can serve HTTP at all.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Response{
			Status:    StatusOK,
			Timestamp: time.Now().UTC(),
		})
	})
}

// ReadinessHandler serves the readiness probe: 200 when every
// dependency check passes, 503 otherwise.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.Readiness(r.Context())
		writeJSON(w, statusCode(resp.Status), resp)
	})
}

// HealthHandler serves the detailed health endpoint including version
// and uptime.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.Health(r.Context())
		writeJSON(w, statusCode(resp.Status), resp)
	})
}

func statusCode(s Status) int {
	if s != StatusOK {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
