package authn

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCredentialSource struct{ values map[string]string }

func (f fakeCredentialSource) GetCredential(_ context.Context, _, field string) (string, error) {
	v, ok := f.values[field]
	if !ok {
		return "", assert.AnError
	}
	return v, nil
}

func TestNone_PassesHeadersThrough(t *testing.T) {
	h := http.Header{"X-Foo": []string{"bar"}}
	out, err := None{}.AuthenticateRequest(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "bar", out.Get("X-Foo"))
}

func TestBasic_SetsAuthorizationHeader(t *testing.T) {
	b := Basic{Provider: fakeCredentialSource{values: map[string]string{
		"username": "alice",
		"password": "secret",
	}}}
	out, err := b.AuthenticateRequest(context.Background(), http.Header{"X-Foo": []string{"bar"}})
	require.NoError(t, err)
	assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", out.Get("Authorization"))
	assert.Equal(t, "bar", out.Get("X-Foo"), "must not clobber unrelated headers")
}

func TestBasic_CustomFieldNames(t *testing.T) {
	b := Basic{
		Provider:      fakeCredentialSource{values: map[string]string{"user": "alice", "pass": "secret"}},
		UsernameField: "user",
		PasswordField: "pass",
	}
	out, err := b.AuthenticateRequest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", out.Get("Authorization"))
}

func TestBearer_SetsAuthorizationHeader(t *testing.T) {
	b := Bearer{Provider: fakeCredentialSource{values: map[string]string{"token": "tok123"}}}
	out, err := b.AuthenticateRequest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", out.Get("Authorization"))
}

func TestBearer_MissingCredentialErrors(t *testing.T) {
	b := Bearer{Provider: fakeCredentialSource{values: map[string]string{}}}
	_, err := b.AuthenticateRequest(context.Background(), nil)
	assert.Error(t, err)
}
