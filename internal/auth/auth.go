// Package auth turns stored credentials (the credential store) or static
// configuration into go-git transport auth methods. Resolution is
// credential-store-first: a credential looked up for the task's remote
// host wins over the statically configured method, and a host with
// neither yields anonymous access.
package auth

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/config"
)

// MethodFor builds the go-git auth method for cfg. A nil cfg or
// AuthTypeNone yields (nil, nil): anonymous access. Errors carry the Auth
// category so a misconfigured method surfaces on the task like any other
// credential failure.
func MethodFor(cfg *config.AuthConfig) (transport.AuthMethod, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Type {
	case config.AuthTypeNone, "":
		return nil, nil
	case config.AuthTypeBasic:
		if cfg.Username == "" || cfg.Password == "" {
			return nil, classerr.AuthError("basic authentication requires username and password").Build()
		}
		return &githttp.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
	case config.AuthTypeToken:
		if cfg.Token == "" {
			return nil, classerr.AuthError("token authentication requires a token").Build()
		}
		// Git hosting services accept the token as a basic-auth password
		// under the fixed username "token".
		return &githttp.BasicAuth{Username: "token", Password: cfg.Token}, nil
	case config.AuthTypeSSH:
		keys, err := gitssh.NewPublicKeysFromFile("git", sshKeyPath(cfg), "")
		if err != nil {
			return nil, classerr.WrapError(err, classerr.CategoryAuth, "failed to load SSH key").
				WithContext("key_path", sshKeyPath(cfg)).Build()
		}
		return keys, nil
	default:
		return nil, classerr.AuthError("unsupported authentication type").
			WithContext("type", string(cfg.Type)).Build()
	}
}

// Validate checks cfg without building the method (no key file is read
// beyond an existence check).
func Validate(cfg *config.AuthConfig) error {
	if cfg == nil {
		return nil
	}
	switch cfg.Type {
	case config.AuthTypeNone, "":
		return nil
	case config.AuthTypeBasic:
		if cfg.Username == "" {
			return classerr.AuthError("basic authentication requires a username").Build()
		}
		if cfg.Password == "" {
			return classerr.AuthError("basic authentication requires a password").Build()
		}
		return nil
	case config.AuthTypeToken:
		if cfg.Token == "" {
			return classerr.AuthError("token authentication requires a token").Build()
		}
		return nil
	case config.AuthTypeSSH:
		if _, err := os.Stat(sshKeyPath(cfg)); err != nil {
			return classerr.AuthError("SSH key file does not exist").
				WithContext("key_path", sshKeyPath(cfg)).Build()
		}
		return nil
	default:
		return classerr.AuthError("unsupported authentication type").
			WithContext("type", string(cfg.Type)).Build()
	}
}

func sshKeyPath(cfg *config.AuthConfig) string {
	if cfg.KeyPath != "" {
		return cfg.KeyPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".ssh", "id_rsa")
}
