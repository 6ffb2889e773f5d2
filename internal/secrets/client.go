// Package secrets builds the Vault-backed SecretsRepository used by
// internal/config.Loader, grounded on the teacher's
// internal/runtime.WithSecretStorage dependency option and
// internal/adapters/repos/vault_repository.go.
package secrets

import (
	"fmt"

	"github.com/architeacher/amqp-topology/internal/adapters/repos"
	"github.com/architeacher/amqp-topology/internal/config"
	"github.com/architeacher/amqp-topology/internal/ports"
	"github.com/hashicorp/vault/api"
)

// NewRepository dials Vault per cfg and wraps it in a
// ports.SecretsRepository. Called even when SecretStorage is disabled so
// callers always have a (possibly unauthenticated) repository to pass to
// config.Loader.
func NewRepository(cfg config.SecretStorageConfig) (ports.SecretsRepository, error) {
	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address
	vaultCfg.MaxRetries = cfg.MaxRetries

	if cfg.Timeout > 0 {
		vaultCfg.Timeout = cfg.Timeout
	}

	if cfg.TLSSkipVerify {
		if err := vaultCfg.ConfigureTLS(&api.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("secrets: failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: failed to create vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return repos.NewVaultRepository(client), nil
}
