// Package infisical implements a long-lived credentials.Provider backed by
// Infisical: it authenticates once, lists the project's secrets into an
// in-process cache, and answers (configName, field) lookups against
// "<CONFIG_NAME>_<FIELD>" secret keys.
package infisical

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sdk "github.com/infisical/go-sdk"

	"github.com/ocfetch/fetcher/model"
)

// Config configures the secret-store connection.
type Config struct {
	Host         string // e.g. "app.infisical.com"
	ClientID     string
	ClientSecret string
	ProjectID    string
	Environment  string
}

// Provider is a credentials.Provider backed by Infisical project secrets.
// Secrets are fetched once on first use and cached only in-process, per the
// contract's "never cache across processes" rule.
type Provider struct {
	cfg Config

	once    sync.Once
	loadErr error
	secrets map[string]string
	mu      sync.RWMutex
}

// New creates an Infisical-backed credentials.Provider.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

func (p *Provider) ensureLoaded(ctx context.Context) error {
	p.once.Do(func() {
		client := sdk.NewInfisicalClient(ctx, sdk.Config{
			SiteUrl:          "https://" + p.cfg.Host,
			AutoTokenRefresh: false,
		})

		if _, err := client.Auth().UniversalAuthLogin(p.cfg.ClientID, p.cfg.ClientSecret); err != nil {
			p.loadErr = fmt.Errorf("infisical authentication: %w", err)
			return
		}

		secs, err := client.Secrets().List(sdk.ListSecretsOptions{
			AttachToProcessEnv: false,
			Environment:        p.cfg.Environment,
			ProjectID:          p.cfg.ProjectID,
			SecretPath:         "/",
			IncludeImports:     true,
		})
		if err != nil {
			p.loadErr = fmt.Errorf("infisical list secrets: %w", err)
			return
		}

		p.mu.Lock()
		p.secrets = make(map[string]string, len(secs))
		for _, sec := range secs {
			p.secrets[sec.SecretKey] = sec.SecretValue
		}
		p.mu.Unlock()
	})
	return p.loadErr
}

func (p *Provider) GetCredential(ctx context.Context, configName, field string) (string, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return "", err
	}
	key := strings.ToUpper(configName + "_" + field)
	p.mu.RLock()
	v, ok := p.secrets[key]
	p.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrCredentialMissing, key)
	}
	return v, nil
}
