// Package secrets resolves secret references from the environment, local
// files, or HashiCorp Vault.
//
// References use a scheme prefix:
//
//	env:GATEWAY_IDP_CLIENT_SECRET    environment variable
//	file:/run/secrets/idp-secret     file contents, trimmed
//	vault:secret/gateway/idp#key     KV v2: mount/path#field
//
// A reference without a scheme resolves to itself, which keeps inline
// development configs working.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// Resolution errors.
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrInvalidRef     = errors.New("invalid secret reference")
)

// Resolver resolves secret references to their values. Resolution happens
// at startup, not on the request path.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// resolver dispatches on the reference scheme.
type resolver struct {
	logger observability.Logger
	vault  *VaultProvider
}

var _ Resolver = (*resolver)(nil)

// Option is a functional option for the resolver.
type Option func(*resolver)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *resolver) {
		r.logger = logger
	}
}

// WithVault attaches a Vault provider for vault: references.
func WithVault(v *VaultProvider) Option {
	return func(r *resolver) {
		r.vault = v
	}
}

// NewResolver creates a resolver. Without a Vault provider, vault:
// references fail with ErrInvalidRef.
func NewResolver(opts ...Option) Resolver {
	r := &resolver{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves one reference.
func (r *resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case ref == "":
		return "", nil

	case strings.HasPrefix(ref, "env:"):
		return r.resolveEnv(strings.TrimPrefix(ref, "env:"))

	case strings.HasPrefix(ref, "file:"):
		return r.resolveFile(strings.TrimPrefix(ref, "file:"))

	case strings.HasPrefix(ref, "vault:"):
		if r.vault == nil {
			return "", fmt.Errorf("%w: vault reference %q without a vault provider", ErrInvalidRef, ref)
		}
		return r.vault.Resolve(ctx, strings.TrimPrefix(ref, "vault:"))

	default:
		// Literal value.
		return ref, nil
	}
}

// resolveEnv reads an environment variable.
func (r *resolver) resolveEnv(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty env reference", ErrInvalidRef)
	}

	value, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, name)
	}

	r.logger.Debug("resolved secret from environment",
		observability.String("env_var", name),
	)

	return value, nil
}

// resolveFile reads a file and trims surrounding whitespace.
func (r *resolver) resolveFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty file reference", ErrInvalidRef)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator-controlled config
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	r.logger.Debug("resolved secret from file",
		observability.String("path", path),
	)

	return strings.TrimSpace(string(data)), nil
}

// Close releases provider resources.
func (r *resolver) Close() error {
	if r.vault != nil {
		return r.vault.Close()
	}
	return nil
}
