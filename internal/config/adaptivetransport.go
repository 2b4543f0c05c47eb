package config

// AdaptiveTransportConfig is the runtime configuration for C3, covering
// Fake-SNI policy, the auto-disable safeguard, and the URL-rewrite rollout.
type AdaptiveTransportConfig struct {
	FakeSNIEnabled          bool     `yaml:"fakeSniEnabled"`
	FakeSNIHost             string   `yaml:"fakeSniHost"`
	TCPConnectTimeoutMs     int      `yaml:"tcpConnectTimeoutMs"`
	SystemResolverTimeoutMs int      `yaml:"systemResolverTimeoutMs"`
	AutoDisableWindowSize   int      `yaml:"autoDisableWindowSize"`
	AutoDisableThresholdPct int      `yaml:"autoDisableThresholdPct"`
	AutoDisableCooldownSec  int      `yaml:"autoDisableCooldownSec"`
	RolloutPercent          int      `yaml:"rolloutPercent"`
	CustomScheme            string   `yaml:"customScheme"`
	SANWhitelist            []string `yaml:"sanWhitelist,omitempty"`
}

// DefaultAdaptiveTransportConfig returns the baseline C3 configuration.
func DefaultAdaptiveTransportConfig() AdaptiveTransportConfig {
	return AdaptiveTransportConfig{
		FakeSNIEnabled:          true,
		FakeSNIHost:             "www.bing.com",
		TCPConnectTimeoutMs:     500,
		SystemResolverTimeoutMs: 5000,
		AutoDisableWindowSize:   20,
		AutoDisableThresholdPct: 60,
		AutoDisableCooldownSec:  300,
		RolloutPercent:          100,
		CustomScheme:            "gitcollab+https",
	}
}
