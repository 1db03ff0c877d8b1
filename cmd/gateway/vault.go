package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/vyrodovalexey/avauthgw/internal/config"
	"github.com/vyrodovalexey/avauthgw/internal/observability"
	"github.com/vyrodovalexey/avauthgw/internal/secrets"
)

// resolveTimeout bounds startup secret resolution.
const resolveTimeout = 10 * time.Second

// needsVault reports whether any configured secret reference uses the
// vault: scheme.
func needsVault(cfg *config.Config) bool {
	refs := []string{cfg.IdentityProvider.ClientSecretRef}
	if cfg.Ops != nil {
		refs = append(refs, cfg.Ops.APIKeyHashRef)
	}

	for _, ref := range refs {
		if strings.HasPrefix(ref, "vault:") {
			return true
		}
	}
	return false
}

// initSecretsResolver creates the secret resolver. A Vault provider is
// attached only when the configuration references vault: secrets; it is
// configured from the standard Vault environment variables VAULT_ADDR,
// VAULT_TOKEN, and VAULT_NAMESPACE.
func initSecretsResolver(cfg *config.Config, logger observability.Logger) secrets.Resolver {
	opts := []secrets.Option{secrets.WithLogger(logger)}

	if needsVault(cfg) {
		provider, err := secrets.NewVaultProvider(secrets.VaultConfig{
			Address:   os.Getenv("VAULT_ADDR"),
			Token:     os.Getenv("VAULT_TOKEN"),
			Namespace: os.Getenv("VAULT_NAMESPACE"),
		}, logger)
		if err != nil {
			fatalWithSync(logger, "failed to create vault provider", observability.Error(err))
			return nil // unreachable in production; allows test to continue
		}

		logger.Info("vault secret provider initialized",
			observability.String("address", os.Getenv("VAULT_ADDR")),
		)
		opts = append(opts, secrets.WithVault(provider))
	}

	return secrets.NewResolver(opts...)
}

// resolveSecret resolves one secret reference with a startup timeout.
// Resolution failures are fatal: starting without a configured secret
// turns into opaque request-time failures otherwise.
func resolveSecret(resolver secrets.Resolver, ref, name string, logger observability.Logger) string {
	if ref == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	value, err := resolver.Resolve(ctx, ref)
	if err != nil {
		fatalWithSync(logger, "failed to resolve secret",
			observability.String("secret", name),
			observability.Error(err),
		)
		return "" // unreachable in production; allows test to continue
	}

	return value
}
