package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"

	introspectPath = "/introspect"
	groupsPath     = "/groups"

	operationIntrospect = "introspect"
	operationGroups     = "groups"
)

// DefaultTimeout is the default timeout for identity-provider requests.
const DefaultTimeout = 5 * time.Second

// Client is a client for the identity provider.
type Client interface {
	// Introspect validates an access token and returns the principal name.
	Introspect(ctx context.Context, token string) (string, error)

	// ListGroups returns the groups the principal belongs to.
	ListGroups(ctx context.Context, principal string) ([]string, error)

	// Close closes the client.
	Close() error
}

// Config holds identity-provider connection settings.
type Config struct {
	// BaseURL is the provider base URL.
	BaseURL string

	// PoolID identifies the user pool to validate tokens against.
	PoolID string

	// ClientID identifies this gateway to the provider.
	ClientID string

	// ClientSecret is the optional client secret. When set, requests are
	// authenticated with HTTP basic auth (client id / client secret).
	ClientSecret string

	// Timeout bounds each provider request. Zero means DefaultTimeout.
	Timeout time.Duration
}

// introspectRequest is the wire form of an introspection call.
type introspectRequest struct {
	PoolID   string `json:"poolId"`
	ClientID string `json:"clientId"`
	Token    string `json:"token"`
}

// introspectResponse is the wire form of an introspection result.
type introspectResponse struct {
	Active   bool   `json:"active"`
	Username string `json:"username"`
}

// groupsRequest is the wire form of a group listing call.
type groupsRequest struct {
	PoolID   string `json:"poolId"`
	ClientID string `json:"clientId"`
	Username string `json:"username"`
}

// groupsResponse is the wire form of a group listing result.
type groupsResponse struct {
	Groups []string `json:"groups"`
}

// httpClient implements Client against an HTTP identity provider.
type httpClient struct {
	config   *Config
	httpDoer *http.Client
	logger   observability.Logger
	metrics  *Metrics
}

// ClientOption is a functional option for the identity-provider client.
type ClientOption func(*httpClient)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *httpClient) {
		c.httpDoer = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ClientOption {
	return func(c *httpClient) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *httpClient) {
		c.metrics = metrics
	}
}

// NewClient creates a new identity-provider client.
func NewClient(config *Config, opts ...ClientOption) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("identity provider base URL is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &httpClient{
		config: config,
		httpDoer: &http.Client{
			Timeout: timeout,
		},
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = NewMetrics("gateway")
	}

	return c, nil
}

// Introspect validates an access token with the provider. The provider
// answering 401 or 403, or reporting the token inactive, maps to
// ErrTokenRejected; other failures surface as-is. The call is made once
// and never retried.
func (c *httpClient) Introspect(ctx context.Context, token string) (string, error) {
	start := time.Now()

	body := introspectRequest{
		PoolID:   c.config.PoolID,
		ClientID: c.config.ClientID,
		Token:    token,
	}

	var result introspectResponse
	if err := c.post(ctx, operationIntrospect, introspectPath, body, &result); err != nil {
		outcome := outcomeForError(err)
		c.metrics.RecordRequest(operationIntrospect, outcome, time.Since(start))
		return "", err
	}

	if !result.Active || result.Username == "" {
		c.metrics.RecordRequest(operationIntrospect, outcomeRejected, time.Since(start))
		return "", ErrTokenRejected
	}

	c.metrics.RecordRequest(operationIntrospect, outcomeSuccess, time.Since(start))
	c.logger.Debug("token introspected",
		observability.String("principal", result.Username),
	)

	return result.Username, nil
}

// ListGroups returns the groups the principal belongs to. The call is
// made once and never retried.
func (c *httpClient) ListGroups(ctx context.Context, principal string) ([]string, error) {
	start := time.Now()

	body := groupsRequest{
		PoolID:   c.config.PoolID,
		ClientID: c.config.ClientID,
		Username: principal,
	}

	var result groupsResponse
	if err := c.post(ctx, operationGroups, groupsPath, body, &result); err != nil {
		c.metrics.RecordRequest(operationGroups, outcomeForError(err), time.Since(start))
		return nil, err
	}

	c.metrics.RecordRequest(operationGroups, outcomeSuccess, time.Since(start))
	c.logger.Debug("groups listed",
		observability.String("principal", principal),
		observability.Int("count", len(result.Groups)),
	)

	return result.Groups, nil
}

// post performs a single JSON POST against the provider and decodes the
// response into out.
func (c *httpClient) post(ctx context.Context, operation, path string, in, out interface{}) error {
	bodyBytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	if c.config.ClientSecret != "" {
		req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	}

	resp, err := c.httpDoer.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrTokenRejected
	case resp.StatusCode != http.StatusOK:
		return &APIError{
			Operation: operation,
			Status:    resp.StatusCode,
			Body:      string(respBody),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// Close closes the client.
func (c *httpClient) Close() error {
	c.httpDoer.CloseIdleConnections()
	return nil
}

// Ensure httpClient implements Client.
var _ Client = (*httpClient)(nil)
