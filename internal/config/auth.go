package config

// AuthType selects how a Git operation authenticates against its remote.
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeToken AuthType = "token"
	AuthTypeBasic AuthType = "basic"
)

// AuthConfig carries the fields internal/auth needs to build a
// go-git transport.AuthMethod. It is produced either from static config or,
// more commonly, from a internal/credstore.Credential looked up for the
// task's remote host.
type AuthConfig struct {
	Type     AuthType
	Username string
	Password string
	Token    string
	KeyPath  string
}
