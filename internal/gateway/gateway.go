package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/policy"
)

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway owns the serving surface: the gin engine carrying the request
// handler and the listeners it serves on. Lifecycle transitions go
// through an atomic state machine so concurrent Start/Stop calls cannot
// interleave.
type Gateway struct {
	config    *config.Config
	logger    observability.Logger
	engine    *gin.Engine
	listeners []*Listener
	provider  *policy.Provider
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex

	// handler is the request pipeline served on every route.
	handler http.Handler

	// Shutdown
	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// WithHandler sets the request handler served on every route.
func WithHandler(handler http.Handler) Option {
	return func(g *Gateway) {
		g.handler = handler
	}
}

// WithPolicyProvider sets the policy provider whose engine Reload swaps.
func WithPolicyProvider(provider *policy.Provider) Option {
	return func(g *Gateway) {
		g.provider = provider
	}
}

// New creates a new Gateway instance.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	g := &Gateway{
		config:          cfg,
		logger:          observability.NopLogger(),
		shutdownTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(g)
	}

	if timeout := cfg.Server.ShutdownTimeout.Duration(); timeout > 0 {
		g.shutdownTimeout = timeout
	}

	g.state.Store(int32(StateStopped))

	return g, nil
}

// Start starts the gateway.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	g.logger.Info("starting gateway",
		observability.Int("listeners", len(g.config.Server.Listeners)),
	)

	// Initialize gin engine
	gin.SetMode(gin.ReleaseMode)
	g.engine = gin.New()

	g.setupRoutes()

	g.createListeners()

	for _, listener := range g.listeners {
		if err := listener.Start(ctx); err != nil {
			// Stop already started listeners
			g.stopListeners(ctx)
			g.state.Store(int32(StateStopped))
			return fmt.Errorf("failed to start listener %s: %w", listener.Name(), err)
		}
	}

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.Int("listeners", len(g.listeners)),
	)

	return nil
}

// Stop stops the gateway gracefully. In-flight requests are given until
// the shutdown timeout to complete.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway")

	// Create timeout context if not already set
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	g.stopListeners(ctx)

	g.state.Store(int32(StateStopped))

	g.logger.Info("gateway stopped")

	return nil
}

// Reload applies a new configuration to the running gateway. Only the
// policy rule set is hot-swapped; listener and backend changes require
// a restart. The new rules are validated and compiled before the swap,
// so a broken rule set leaves the active engine untouched.
func (g *Gateway) Reload(cfg *config.Config) error {
	if cfg == nil {
		return ErrNilConfig
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("reloading gateway configuration")

	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if g.provider != nil {
		rules, err := policy.RulesFromConfig(cfg.Policy.Rules)
		if err != nil {
			return fmt.Errorf("invalid policy rules: %w", err)
		}

		engine, err := policy.NewEngine(rules,
			policy.WithEngineLogger(g.logger),
		)
		if err != nil {
			return fmt.Errorf("failed to build policy engine: %w", err)
		}

		g.provider.Swap(engine)
	}

	g.config = cfg

	g.logger.Info("gateway configuration reloaded",
		observability.Int("policy_rules", len(cfg.Policy.Rules)),
	)

	return nil
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Config returns the current configuration.
func (g *Gateway) Config() *config.Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Engine returns the gin engine.
func (g *Gateway) Engine() *gin.Engine {
	return g.engine
}

// setupRoutes sets up the gin routes. The pipeline handler is not bound
// to a route table: every path goes through it.
func (g *Gateway) setupRoutes() {
	g.engine.Use(gin.Recovery())

	if g.handler != nil {
		g.engine.NoRoute(gin.WrapH(g.handler))
	}
}

// createListeners creates listeners from configuration.
func (g *Gateway) createListeners() {
	g.listeners = make([]*Listener, 0, len(g.config.Server.Listeners))

	for _, listenerCfg := range g.config.Server.Listeners {
		g.listeners = append(g.listeners, NewListener(listenerCfg, g.engine,
			WithListenerLogger(g.logger),
		))
	}
}

// stopListeners stops all listeners.
func (g *Gateway) stopListeners(ctx context.Context) {
	var wg sync.WaitGroup

	for _, listener := range g.listeners {
		wg.Add(1)
		go func(l *Listener) {
			defer wg.Done()
			if err := l.Stop(ctx); err != nil {
				g.logger.Error("failed to stop listener",
					observability.String("name", l.Name()),
					observability.Error(err),
				)
			}
		}(listener)
	}

	wg.Wait()
}

// Listeners returns all listeners.
func (g *Gateway) Listeners() []*Listener {
	return g.listeners
}
