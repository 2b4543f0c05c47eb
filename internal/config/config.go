// Package config holds the base configuration for the adaptive transport,
// IP pool, proxy, credential, and retry subsystems, loaded from YAML with
// an optional .env overlay (see env.go) and hot-reloaded via fsnotify
// (see watcher.go).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document (config.yaml).
type Config struct {
	HTTP              HTTPConfig              `yaml:"http"`
	TLS               TLSConfig               `yaml:"tls"`
	Retry             RetryConfig             `yaml:"retry"`
	IPPool            IPPoolConfig            `yaml:"ipPool"`
	Proxy             ProxyConfig             `yaml:"proxy"`
	Credential        CredentialConfig        `yaml:"credential"`
	Metrics           MetricsConfig           `yaml:"metrics"`
	AdaptiveTransport AdaptiveTransportConfig `yaml:"adaptiveTransport"`
}

// HTTPConfig controls the HTTP-level behavior of the adaptive transport.
type HTTPConfig struct {
	FollowRedirects bool `yaml:"followRedirects"`
	MaxRedirects    int  `yaml:"maxRedirects"`
}

// TLSConfig controls certificate verification behavior for C1.
type TLSConfig struct {
	InsecureSkipVerify    bool     `yaml:"insecureSkipVerify"`
	SkipSANWhitelist      bool     `yaml:"skipSanWhitelist"`
	SANWhitelist          []string `yaml:"sanWhitelist"`
	RealHostVerifyEnabled bool     `yaml:"realHostVerifyEnabled"`
	SPKIPins              []string `yaml:"spkiPins"`
}

// RetryConfig is the base retry plan before any per-task strategy override.
type RetryConfig struct {
	Max     int     `yaml:"max"`
	BaseMs  int     `yaml:"baseMs"`
	Factor  float64 `yaml:"factor"`
	Jitter  bool    `yaml:"jitter"`
}

// MetricsConfig controls the C9 metrics runtime.
type MetricsConfig struct {
	// ListenAddr serves the Prometheus scrape endpoint in daemon mode;
	// empty disables the listener.
	ListenAddr        string `yaml:"listenAddr,omitempty"`
	Debug             bool   `yaml:"debug"`
	IPMaskMode        string `yaml:"ipMaskMode"` // mask|classify|full
	BatchCapacity     int    `yaml:"batchCapacity"`
	BatchFlushMs      int    `yaml:"batchFlushMs"`
	MaxMemoryBytes    int64  `yaml:"maxMemoryBytes"`
	TLSSampleRate     int    `yaml:"tlsSampleRate"`
	NATSPublishURL    string `yaml:"natsPublishUrl,omitempty"`
	NATSSubjectPrefix string `yaml:"natsSubjectPrefix,omitempty"`
}

// DefaultConfig returns the baseline configuration applied before any file
// or environment overrides.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			FollowRedirects: true,
			MaxRedirects:    5,
		},
		TLS: TLSConfig{
			RealHostVerifyEnabled: true,
		},
		Retry: RetryConfig{
			Max:    6,
			BaseMs: 300,
			Factor: 1.6,
			Jitter: true,
		},
		IPPool:            DefaultIPPoolConfig(),
		Proxy:             DefaultProxyConfig(),
		Credential:        DefaultCredentialConfig(),
		AdaptiveTransport: DefaultAdaptiveTransportConfig(),
		Metrics: MetricsConfig{
			IPMaskMode:     "mask",
			BatchCapacity:  256,
			BatchFlushMs:   2000,
			MaxMemoryBytes: 64 << 20,
			TLSSampleRate:  10,
		},
	}
}

// Load reads a YAML config file, applying environment variable expansion
// and a .env overlay (see LoadDotEnv) before parsing. A missing file is not
// an error: the caller receives DefaultConfig().
func Load(path string) (*Config, error) {
	LoadDotEnv()

	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the same numeric ranges accepted for strategy override
// fields, applied here to the base configuration as well.
func (c *Config) Validate() error {
	if c.HTTP.MaxRedirects < 0 || c.HTTP.MaxRedirects > 20 {
		return fmt.Errorf("http.maxRedirects must be in [0,20], got %d", c.HTTP.MaxRedirects)
	}
	if c.Retry.Max < 1 || c.Retry.Max > 20 {
		return fmt.Errorf("retry.max must be in [1,20], got %d", c.Retry.Max)
	}
	if c.Retry.BaseMs < 10 || c.Retry.BaseMs > 60000 {
		return fmt.Errorf("retry.baseMs must be in [10,60000], got %d", c.Retry.BaseMs)
	}
	if c.Retry.Factor < 0.5 || c.Retry.Factor > 10.0 {
		return fmt.Errorf("retry.factor must be in [0.5,10.0], got %f", c.Retry.Factor)
	}
	if len(c.TLS.SPKIPins) > 10 {
		return fmt.Errorf("tls.spkiPins must contain at most 10 entries, got %d", len(c.TLS.SPKIPins))
	}
	return nil
}
