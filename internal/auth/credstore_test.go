package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/credstore"
)

func TestFromCredentialBasic(t *testing.T) {
	cfg := FromCredential(credstore.Credential{
		Host: "github.com", Username: "u", Secret: "p",
	})
	assert.Equal(t, config.AuthTypeBasic, cfg.Type)
	assert.Equal(t, "u", cfg.Username)
	assert.Equal(t, "p", cfg.Password)
}

func TestFromCredentialTokenWhenNoUsername(t *testing.T) {
	cfg := FromCredential(credstore.Credential{Host: "github.com", Secret: "tok"})
	assert.Equal(t, config.AuthTypeToken, cfg.Type)
	assert.Equal(t, "tok", cfg.Token)
}

func TestResolverPrefersStoredCredentialOverStatic(t *testing.T) {
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Add(credstore.Credential{
		Host: "github.com", Username: "stored", Secret: "s",
	}))
	static := &config.AuthConfig{Type: config.AuthTypeBasic, Username: "static", Password: "p"}
	r := NewResolver(store, static)

	method, err := r.Resolve("github.com")
	require.NoError(t, err)
	basic, ok := method.(*githttp.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "stored", basic.Username)

	// No stored credential for this host: the static method applies.
	method, err = r.Resolve("gitlab.com")
	require.NoError(t, err)
	basic, ok = method.(*githttp.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "static", basic.Username)
}

func TestResolverAnonymousWhenNothingConfigured(t *testing.T) {
	r := NewResolver(nil, nil)
	method, err := r.Resolve("github.com")
	require.NoError(t, err)
	assert.Nil(t, method)

	var nilResolver *Resolver
	method, err = nilResolver.Resolve("github.com")
	require.NoError(t, err)
	assert.Nil(t, method)
}

func TestForHost(t *testing.T) {
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Add(credstore.Credential{
		Host: "github.com", Username: "u", Secret: "p",
	}))

	method, err := ForHost(store, "GitHub.com ")
	require.NoError(t, err)
	basic, ok := method.(*githttp.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "u", basic.Username)

	method, err = ForHost(store, "unknown.example.com")
	require.NoError(t, err)
	assert.Nil(t, method)

	method, err = ForHost(nil, "github.com")
	require.NoError(t, err)
	assert.Nil(t, method)
}
