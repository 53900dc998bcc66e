package authn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// OAuth2ClientCredentials performs an RFC 6749 §4.4 client-credentials
// exchange against TokenURL using golang.org/x/oauth2/clientcredentials
// (used directly here instead of hand-rolling the form-encoded POST). The
// resulting token is cached until
// now + expires_in - SafetyMargin; concurrent refreshes coalesce into one
// exchange via singleflight.
type OAuth2ClientCredentials struct {
	TokenURL       string
	ConsumerKey    string
	ConsumerSecret string
	SafetyMargin   time.Duration // defaults to 30s

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

func (o *OAuth2ClientCredentials) config() *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     o.ConsumerKey,
		ClientSecret: o.ConsumerSecret,
		TokenURL:     o.TokenURL,
	}
}

func (o *OAuth2ClientCredentials) safetyMargin() time.Duration {
	if o.SafetyMargin > 0 {
		return o.SafetyMargin
	}
	return 30 * time.Second
}

func (o *OAuth2ClientCredentials) cachedToken() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token == "" || time.Now().After(o.expiresAt) {
		return "", false
	}
	return o.token, true
}

// Token returns a valid access token, refreshing it via a single coalesced
// exchange if the cached one is missing or within its safety margin of
// expiring. Testable property: K concurrent callers with no cached token
// result in exactly one call to TokenURL.
func (o *OAuth2ClientCredentials) Token(ctx context.Context) (string, error) {
	if tok, ok := o.cachedToken(); ok {
		return tok, nil
	}

	v, err, _ := o.group.Do("token", func() (any, error) {
		if tok, ok := o.cachedToken(); ok {
			return tok, nil
		}

		tokenSource := o.config().TokenSource(ctx)
		tok, err := tokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("oauth2 client_credentials exchange: %w", err)
		}

		expiresAt := tok.Expiry
		if !expiresAt.IsZero() {
			expiresAt = expiresAt.Add(-o.safetyMargin())
		}

		o.mu.Lock()
		o.token = tok.AccessToken
		o.expiresAt = expiresAt
		o.mu.Unlock()

		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (o *OAuth2ClientCredentials) AuthenticateRequest(ctx context.Context, headers http.Header) (http.Header, error) {
	tok, err := o.Token(ctx)
	if err != nil {
		return nil, err
	}
	out := cloneHeader(headers)
	out.Set("Authorization", "Bearer "+tok)
	return out, nil
}
