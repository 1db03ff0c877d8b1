//go:build functional
// +build functional

/*
Package functional provides functional tests for the access gateway.
These tests run the full authenticate -> authorize -> forward pipeline
over real listeners, with the identity provider and the backends
simulated by httptest servers.
*/
package functional

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthgw/internal/auth"
	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/forward"
	"github.com/vyrodovalexey/avauthgw/internal/gateway"
	"github.com/vyrodovalexey/avauthgw/internal/idp"
	"github.com/vyrodovalexey/avauthgw/internal/middleware"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/policy"
)

// TestSuite holds shared test resources for one functional test.
type TestSuite struct {
	t        *testing.T
	logger   observability.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	idp      *httptest.Server
	backends []*MockBackend
	gateway  *gateway.Gateway
	provider *policy.Provider
	cfg      *config.Config
	baseURL  string
	client   *http.Client
	mu       sync.Mutex
}

// NewTestSuite creates a new test suite.
func NewTestSuite(t *testing.T) *TestSuite {
	ctx, cancel := context.WithCancel(context.Background())

	return &TestSuite{
		t:      t,
		logger: observability.NopLogger(),
		ctx:    ctx,
		cancel: cancel,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Cleanup tears down every resource the suite started.
func (s *TestSuite) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gateway != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.gateway.Stop(stopCtx)
		stopCancel()
	}
	for _, b := range s.backends {
		b.Close()
	}
	if s.idp != nil {
		s.idp.Close()
	}
	s.cancel()
}

// StartIDP starts a mock identity provider. tokens maps access tokens
// to principal names; groups maps principal names to their groups.
func (s *TestSuite) StartIDP(tokens map[string]string, groups map[string][]string) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/introspect", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		username, ok := tokens[req.Token]
		writeJSON(w, map[string]interface{}{
			"active":   ok,
			"username": username,
		})
	})

	mux.HandleFunc("/groups", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		writeJSON(w, map[string]interface{}{
			"groups": groups[req.Username],
		})
	})

	s.idp = httptest.NewServer(mux)
	return s.idp
}

// StartIDPWithHandler starts a mock identity provider with a custom
// handler, for failure-injection tests.
func (s *TestSuite) StartIDPWithHandler(handler http.Handler) *httptest.Server {
	s.idp = httptest.NewServer(handler)
	return s.idp
}

// StartBackend starts a mock backend and registers it for cleanup.
func (s *TestSuite) StartBackend(name string) *MockBackend {
	backend := NewMockBackend(name)

	s.mu.Lock()
	s.backends = append(s.backends, backend)
	s.mu.Unlock()

	return backend
}

// GatewayConfig describes the gateway under test.
type GatewayConfig struct {
	ProtectedURL     string
	DefaultURL       string
	ProtectedTimeout time.Duration
	Rules            []config.RuleConfig
}

// defaultRules returns the rule set most tests run against.
func defaultRules() []config.RuleConfig {
	return []config.RuleConfig{
		{
			Name:           "protected-path",
			PathPrefix:     "/protectedPath",
			RequiredGroups: []string{"admin"},
			Target:         config.TargetProtected,
		},
		{
			Name:             "admin-panel",
			PathPrefix:       "/admin-panel",
			RequiredGroups:   []string{"admin"},
			RequiredDeviceID: "trusted-device-123",
			Target:           config.TargetProtected,
		},
	}
}

// StartGateway wires the full pipeline and starts it on a loopback
// listener. The suite's mock identity provider must be running.
func (s *TestSuite) StartGateway(gc GatewayConfig) string {
	require.NotNil(s.t, s.idp, "StartIDP must be called before StartGateway")

	rules := gc.Rules
	if rules == nil {
		rules = defaultRules()
	}

	port := GetFreePort(s.t)

	cfg := config.DefaultConfig()
	cfg.Server.Listeners = []config.Listener{
		{Name: "http", Bind: "127.0.0.1", Port: port},
	}
	cfg.IdentityProvider.BaseURL = s.idp.URL
	cfg.IdentityProvider.PoolID = "pool-functional"
	cfg.IdentityProvider.ClientID = "client-functional"
	cfg.Backends.Protected.BaseURL = gc.ProtectedURL
	cfg.Backends.Default.BaseURL = gc.DefaultURL
	if gc.ProtectedTimeout > 0 {
		cfg.Backends.Protected.Timeout = config.Duration(gc.ProtectedTimeout)
	}
	cfg.Policy.Rules = rules

	idpClient, err := idp.NewClient(&idp.Config{
		BaseURL:  cfg.IdentityProvider.BaseURL,
		PoolID:   cfg.IdentityProvider.PoolID,
		ClientID: cfg.IdentityProvider.ClientID,
		Timeout:  5 * time.Second,
	}, idp.WithLogger(s.logger))
	require.NoError(s.t, err)

	validator, err := auth.NewValidator(idpClient, auth.WithLogger(s.logger))
	require.NoError(s.t, err)

	compiled, err := policy.RulesFromConfig(cfg.Policy.Rules)
	require.NoError(s.t, err)

	engine, err := policy.NewEngine(compiled, policy.WithEngineLogger(s.logger))
	require.NoError(s.t, err)

	s.provider = policy.NewProvider(engine)

	forwarder, err := forward.NewForwarder(&forward.Config{
		Protected: forward.TargetConfig{
			BaseURL: cfg.Backends.Protected.BaseURL,
			Timeout: cfg.Backends.Protected.Timeout.Duration(),
		},
		Default: forward.TargetConfig{
			BaseURL: cfg.Backends.Default.BaseURL,
			Timeout: cfg.Backends.Default.Timeout.Duration(),
		},
	}, forward.WithLogger(s.logger))
	require.NoError(s.t, err)

	orchestrator, err := gateway.NewOrchestrator(validator, s.provider, forwarder,
		gateway.WithOrchestratorLogger(s.logger))
	require.NoError(s.t, err)

	var handler http.Handler = orchestrator
	handler = middleware.RequestID()(handler)
	handler = middleware.Recovery(s.logger)(handler)

	gw, err := gateway.New(cfg,
		gateway.WithLogger(s.logger),
		gateway.WithHandler(handler),
		gateway.WithPolicyProvider(s.provider),
	)
	require.NoError(s.t, err)
	require.NoError(s.t, gw.Start(s.ctx))

	s.mu.Lock()
	s.gateway = gw
	s.cfg = cfg
	s.mu.Unlock()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	WaitForServer(s.t, addr, 5*time.Second)

	s.baseURL = "http://" + addr
	return s.baseURL
}

// Reload mutates the running configuration and applies it to the
// gateway, swapping the policy engine.
func (s *TestSuite) Reload(mutate func(*config.Config)) error {
	mutate(s.cfg)
	return s.gateway.Reload(s.cfg)
}

// Request performs one request against the running gateway.
func (s *TestSuite) Request(method, path, token string, headers map[string]string, body io.Reader) *http.Response {
	req, err := http.NewRequest(method, s.baseURL+path, body)
	require.NoError(s.t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	return resp
}

// GetFreePort returns a free loopback port.
func GetFreePort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

// WaitForServer waits for a server to accept connections.
func WaitForServer(t *testing.T, addr string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server at %s did not become ready within %v", addr, timeout)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
