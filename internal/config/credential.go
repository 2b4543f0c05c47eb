package config

// Argon2id parameters used by the encrypted credential store (C6), matching
// original_source/.../credential/file_store.rs (m_cost=64MiB, t_cost=3, p_cost=1).
const (
	Argon2MemoryKiB  = 65536
	Argon2Iterations = 3
	Argon2Threads    = 1
	Argon2KeyLenBytes = 32
)

// CredentialConfig is the runtime configuration for C6.
type CredentialConfig struct {
	StorePath          string `yaml:"storePath"`
	KeyCacheTTLSeconds int    `yaml:"keyCacheTtlSeconds"`
	UseSystemKeyring   bool   `yaml:"useSystemKeyring"`
}

// DefaultCredentialConfig returns the defaults used by the original
// implementation: a file-backed store at "credentials.enc" (relative to the
// working directory) with a 5-minute derived-key cache.
func DefaultCredentialConfig() CredentialConfig {
	return CredentialConfig{
		StorePath:          "credentials.enc",
		KeyCacheTTLSeconds: 300,
		UseSystemKeyring:   false,
	}
}
