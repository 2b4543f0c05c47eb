package auth

import (
	"os"
	"path/filepath"
	"testing"

	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/config"
)

func TestMethodForNilAndNone(t *testing.T) {
	m, err := MethodFor(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = MethodFor(&config.AuthConfig{Type: config.AuthTypeNone})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMethodForBasic(t *testing.T) {
	m, err := MethodFor(&config.AuthConfig{
		Type: config.AuthTypeBasic, Username: "u", Password: "p",
	})
	require.NoError(t, err)
	basic, ok := m.(*githttp.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "u", basic.Username)
	assert.Equal(t, "p", basic.Password)

	_, err = MethodFor(&config.AuthConfig{Type: config.AuthTypeBasic, Username: "u"})
	require.Error(t, err)
	assert.True(t, classerr.HasCategory(err, classerr.CategoryAuth))
}

func TestMethodForToken(t *testing.T) {
	m, err := MethodFor(&config.AuthConfig{Type: config.AuthTypeToken, Token: "tok"})
	require.NoError(t, err)
	basic, ok := m.(*githttp.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "token", basic.Username)
	assert.Equal(t, "tok", basic.Password)

	_, err = MethodFor(&config.AuthConfig{Type: config.AuthTypeToken})
	require.Error(t, err)
	assert.True(t, classerr.HasCategory(err, classerr.CategoryAuth))
}

func TestMethodForUnsupportedType(t *testing.T) {
	_, err := MethodFor(&config.AuthConfig{Type: config.AuthType("kerberos")})
	require.Error(t, err)
	assert.True(t, classerr.HasCategory(err, classerr.CategoryAuth))
}

func TestMethodForSSHMissingKey(t *testing.T) {
	_, err := MethodFor(&config.AuthConfig{
		Type: config.AuthTypeSSH, KeyPath: filepath.Join(t.TempDir(), "absent"),
	})
	require.Error(t, err)
	assert.True(t, classerr.HasCategory(err, classerr.CategoryAuth))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(nil))
	assert.NoError(t, Validate(&config.AuthConfig{Type: config.AuthTypeNone}))
	assert.NoError(t, Validate(&config.AuthConfig{Type: config.AuthTypeBasic, Username: "u", Password: "p"}))
	assert.Error(t, Validate(&config.AuthConfig{Type: config.AuthTypeBasic, Password: "p"}))
	assert.Error(t, Validate(&config.AuthConfig{Type: config.AuthTypeBasic, Username: "u"}))
	assert.NoError(t, Validate(&config.AuthConfig{Type: config.AuthTypeToken, Token: "t"}))
	assert.Error(t, Validate(&config.AuthConfig{Type: config.AuthTypeToken}))
	assert.Error(t, Validate(&config.AuthConfig{Type: config.AuthType("bogus")}))

	// SSH validation only requires the key file to exist.
	key := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(key, []byte("not-a-real-key"), 0o600))
	assert.NoError(t, Validate(&config.AuthConfig{Type: config.AuthTypeSSH, KeyPath: key}))
	assert.Error(t, Validate(&config.AuthConfig{Type: config.AuthTypeSSH, KeyPath: key + ".missing"}))
}
