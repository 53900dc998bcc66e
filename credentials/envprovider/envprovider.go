// Package envprovider resolves credentials from environment variables,
// using an optional prefix plus an upper-cased key.
package envprovider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ocfetch/fetcher/model"
)

// Provider looks up "<Prefix>_<CONFIG_NAME>_<FIELD>" (upper-cased).
type Provider struct {
	Prefix string
}

// New creates an env-backed credentials.Provider.
func New(prefix string) *Provider {
	return &Provider{Prefix: prefix}
}

func (p *Provider) GetCredential(_ context.Context, configName, field string) (string, error) {
	key := strings.ToUpper(strings.Join(nonEmpty(p.Prefix, configName, field), "_"))
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", model.ErrCredentialMissing, key)
	}
	return v, nil
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
