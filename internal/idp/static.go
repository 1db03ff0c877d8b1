package idp

import (
	"context"
	"sync"
)

// StaticClient is an in-memory Client backed by fixed token and group
// tables. It is intended for tests and local development.
type StaticClient struct {
	mu     sync.RWMutex
	tokens map[string]string
	groups map[string][]string
}

// NewStaticClient creates an empty StaticClient.
func NewStaticClient() *StaticClient {
	return &StaticClient{
		tokens: make(map[string]string),
		groups: make(map[string][]string),
	}
}

// AddToken registers a token as belonging to the given principal.
func (c *StaticClient) AddToken(token, principal string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[token] = principal
}

// SetGroups sets the group memberships of a principal.
func (c *StaticClient) SetGroups(principal string, groups ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[principal] = append([]string(nil), groups...)
}

// RemoveToken revokes a previously registered token.
func (c *StaticClient) RemoveToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, token)
}

// Introspect resolves the token against the in-memory table.
func (c *StaticClient) Introspect(_ context.Context, token string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, ok := c.tokens[token]
	if !ok {
		return "", ErrTokenRejected
	}
	return principal, nil
}

// ListGroups returns the configured groups of the principal. A principal
// without configured groups is valid and has no groups.
func (c *StaticClient) ListGroups(_ context.Context, principal string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	groups, ok := c.groups[principal]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), groups...), nil
}

// Close closes the client.
func (c *StaticClient) Close() error {
	return nil
}

// Ensure StaticClient implements Client.
var _ Client = (*StaticClient)(nil)
