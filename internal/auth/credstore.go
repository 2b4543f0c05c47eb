package auth

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/credstore"
)

// Resolver resolves per-host authentication: a stored credential for the
// host wins, the static config method is the fallback, and neither means
// anonymous access.
type Resolver struct {
	store  credstore.Store
	static *config.AuthConfig
}

// NewResolver builds a Resolver. Both arguments may be nil.
func NewResolver(store credstore.Store, static *config.AuthConfig) *Resolver {
	return &Resolver{store: store, static: static}
}

// Resolve returns the auth method for host, consulting the credential
// store first and falling back to the static configuration.
func (r *Resolver) Resolve(host string) (transport.AuthMethod, error) {
	if r == nil {
		return nil, nil
	}
	method, err := ForHost(r.store, host)
	if err != nil || method != nil {
		return method, err
	}
	return MethodFor(r.static)
}

// FromCredential maps a stored credential onto an AuthConfig. A credential
// without a username is treated as a bearer token for the host.
func FromCredential(cred credstore.Credential) *config.AuthConfig {
	if cred.Username == "" {
		return &config.AuthConfig{Type: config.AuthTypeToken, Token: cred.Secret}
	}
	return &config.AuthConfig{
		Type:     config.AuthTypeBasic,
		Username: cred.Username,
		Password: cred.Secret,
	}
}

// ForHost looks up the best stored credential for host and returns the
// go-git auth method for it. (nil, nil) means no credential is stored.
func ForHost(store credstore.Store, host string) (transport.AuthMethod, error) {
	if store == nil || host == "" {
		return nil, nil
	}
	cred, ok, err := store.Get(normalizeHost(host), "")
	if err != nil || !ok {
		return nil, err
	}
	return MethodFor(FromCredential(cred))
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
