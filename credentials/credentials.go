// Package credentials resolves named secrets by (config_name, field). Two
// concrete providers ship alongside the contract: an environment-variable
// provider (credentials/envprovider) and a secret-store-backed provider
// (credentials/infisical).
package credentials

import "context"

// Provider resolves a secret field for a named configuration. Implementations
// must never cache secrets across processes; an in-process cache is fine.
type Provider interface {
	GetCredential(ctx context.Context, configName, field string) (string, error)
}
