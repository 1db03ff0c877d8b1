package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avauthgw/internal/observability"
)

// VaultConfig holds connection settings for the Vault provider.
type VaultConfig struct {
	// Address is the Vault server address.
	Address string
	// Token is the Vault token. Token auth only; the gateway resolves its
	// few secrets once at startup.
	Token string
	// Namespace is the Vault namespace (Enterprise only).
	Namespace string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// VaultProvider resolves vault: references against a KV v2 engine.
type VaultProvider struct {
	client *vaultapi.Client
	logger observability.Logger
}

// NewVaultProvider creates a Vault provider.
func NewVaultProvider(cfg VaultConfig, logger observability.Logger) (*VaultProvider, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrInvalidRef)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	if cfg.Timeout > 0 {
		apiConfig.Timeout = cfg.Timeout
	}
	// Secrets are resolved once at startup; a failure should surface, not
	// be retried by the client.
	apiConfig.MaxRetries = 0

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &VaultProvider{
		client: client,
		logger: logger,
	}, nil
}

// Resolve reads one field from a KV v2 secret. The reference has the form
// mount/path/to/secret#field.
func (p *VaultProvider) Resolve(ctx context.Context, ref string) (string, error) {
	mount, secretPath, field, err := parseVaultRef(ref)
	if err != nil {
		return "", err
	}

	secret, err := p.client.KVv2(mount).Get(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("vault read %s/%s: %w", mount, secretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: vault secret %s/%s", ErrSecretNotFound, mount, secretPath)
	}

	value, ok := secret.Data[field]
	if !ok {
		return "", fmt.Errorf("%w: field %s in vault secret %s/%s", ErrSecretNotFound, field, mount, secretPath)
	}

	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %s is not a string", ErrInvalidRef, field)
	}

	p.logger.Debug("resolved secret from vault",
		observability.String("mount", mount),
		observability.String("path", secretPath),
		observability.String("field", field),
	)

	return str, nil
}

// parseVaultRef splits mount/path#field.
func parseVaultRef(ref string) (mount, secretPath, field string, err error) {
	path, field, found := strings.Cut(ref, "#")
	if !found || field == "" {
		return "", "", "", fmt.Errorf("%w: vault reference %q needs a #field suffix", ErrInvalidRef, ref)
	}

	mount, secretPath, found = strings.Cut(path, "/")
	if !found || mount == "" || secretPath == "" {
		return "", "", "", fmt.Errorf("%w: vault reference %q needs mount/path", ErrInvalidRef, ref)
	}

	return mount, secretPath, field, nil
}

// HealthCheck verifies connectivity to the Vault server.
func (p *VaultProvider) HealthCheck(ctx context.Context) error {
	health, err := p.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check: %w", err)
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("vault not ready: initialized=%v sealed=%v", health.Initialized, health.Sealed)
	}
	return nil
}

// Close releases client resources.
func (p *VaultProvider) Close() error {
	return nil
}
