package config

// ProxyMode selects the upstream proxy protocol for C4/C5.
type ProxyMode string

const (
	ProxyModeOff    ProxyMode = "off"
	ProxyModeHTTP   ProxyMode = "http"
	ProxyModeSocks5 ProxyMode = "socks5"
)

// RecoveryStrategy controls how C5 transitions Fallback -> Recovering -> Enabled.
type RecoveryStrategy string

const (
	RecoveryStrategyConsecutive RecoveryStrategy = "consecutive" // N consecutive probe successes
	RecoveryStrategyImmediate   RecoveryStrategy = "immediate"   // first successful probe after cooldown
)

// ProxyConfig is the runtime configuration for C4/C5, grounded on
// original_source/.../proxy/{detector,health_checker}.rs defaults.
type ProxyConfig struct {
	Mode     ProxyMode `yaml:"mode"`
	URL      string    `yaml:"url,omitempty"`
	Username string    `yaml:"username,omitempty"`
	Password string    `yaml:"password,omitempty"`

	FailureWindowSeconds   int     `yaml:"failureWindowSeconds"`
	FailureRateThreshold   float64 `yaml:"failureRateThreshold"`
	MinSamplesInWindow     int     `yaml:"minSamplesInWindow"`

	HealthCheckIntervalSeconds int              `yaml:"healthCheckIntervalSeconds"`
	RecoveryCooldownSeconds    int              `yaml:"recoveryCooldownSeconds"`
	ProbeTarget                string           `yaml:"probeTarget"`
	ProbeTimeoutSeconds        int              `yaml:"probeTimeoutSeconds"`
	RecoveryStrategy           RecoveryStrategy `yaml:"recoveryStrategy"`
	RecoveryConsecutiveProbes  int              `yaml:"recoveryConsecutiveProbes"`

	DisableCustomTransport bool `yaml:"disableCustomTransport"`
}

// DefaultProxyConfig returns the defaults used by the original implementation.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		Mode: ProxyModeOff,

		FailureWindowSeconds: 300,
		FailureRateThreshold: 0.2,
		MinSamplesInWindow:   5,

		HealthCheckIntervalSeconds: 60,
		RecoveryCooldownSeconds:    300,
		ProbeTarget:                "www.github.com:443",
		ProbeTimeoutSeconds:        10,
		RecoveryStrategy:           RecoveryStrategyConsecutive,
		RecoveryConsecutiveProbes:  3,
	}
}
