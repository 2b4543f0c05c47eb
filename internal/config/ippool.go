package config

// ProbeMethod selects the latency-probing strategy used by the IP pool (C2).
type ProbeMethod string

const (
	ProbeMethodHTTP ProbeMethod = "http"
	ProbeMethodTCP  ProbeMethod = "tcp"
)

// IPPoolSourceToggle enables/disables each candidate source independently.
type IPPoolSourceToggle struct {
	Builtin    bool `yaml:"builtin"`
	DNS        bool `yaml:"dns"`
	History    bool `yaml:"history"`
	UserStatic bool `yaml:"userStatic"`
	Fallback   bool `yaml:"fallback"`
}

// DNSResolverProtocol is the transport used to reach a DNS resolver.
type DNSResolverProtocol string

const (
	DNSProtocolUDP DNSResolverProtocol = "udp"
	DNSProtocolDoH DNSResolverProtocol = "doh"
	DNSProtocolDoT DNSResolverProtocol = "dot"
)

// DNSResolverPreset is a named, well-known DoH/DoT/UDP resolver entry.
// See dns_presets.go for the built-in catalog.
type DNSResolverPreset struct {
	Server      string `yaml:"server"`
	Type        string `yaml:"type,omitempty"`
	SNI         string `yaml:"sni,omitempty"`
	CacheSize   int    `yaml:"cacheSize,omitempty"`
	Description string `yaml:"desc,omitempty"`
}

// DNSRuntimeConfig configures the DNS candidate source.
type DNSRuntimeConfig struct {
	UseSystem      bool                         `yaml:"useSystem"`
	Presets        map[string]DNSResolverPreset `yaml:"presets,omitempty"`
	EnabledPresets []string                     `yaml:"enabledPresets,omitempty"`
}

// PreheatDomain exempts a host from cache pruning/eviction and makes it
// eligible for proactive probing.
type PreheatDomain struct {
	Host  string   `yaml:"host"`
	Ports []uint16 `yaml:"ports"`
}

// UserStaticEntry is an operator-supplied static candidate.
type UserStaticEntry struct {
	Host  string   `yaml:"host"`
	IP    string   `yaml:"ip"`
	Ports []uint16 `yaml:"ports"`
}

// IPPoolConfig is the runtime configuration for C2, mirroring the
// ip-config.json schema consumed by the pool's file-backed sources.
type IPPoolConfig struct {
	Enabled                 bool                `yaml:"enabled"`
	Sources                 IPPoolSourceToggle  `yaml:"sources"`
	DNS                     DNSRuntimeConfig    `yaml:"dns"`
	MaxParallelProbes       int                 `yaml:"maxParallelProbes"`
	ProbeTimeoutMs          int                 `yaml:"probeTimeoutMs"`
	ProbeMethod             ProbeMethod         `yaml:"probeMethod"`
	ProbePath               string              `yaml:"probePath"`
	HistoryPath             string              `yaml:"historyPath,omitempty"`
	CachePruneIntervalSecs  int                 `yaml:"cachePruneIntervalSecs"`
	MaxCacheEntries         int                 `yaml:"maxCacheEntries"`
	SingleflightTimeoutMs   int                 `yaml:"singleflightTimeoutMs"`
	FailureThreshold        int                 `yaml:"failureThreshold"`
	FailureRateThreshold    float64             `yaml:"failureRateThreshold"`
	FailureWindowSeconds    int                 `yaml:"failureWindowSeconds"`
	MinSamplesInWindow      int                 `yaml:"minSamplesInWindow"`
	CooldownSeconds         int                 `yaml:"cooldownSeconds"`
	CircuitBreakerEnabled   bool                `yaml:"circuitBreakerEnabled"`
	ScoreTTLSeconds         int                 `yaml:"scoreTtlSeconds"`
	PreheatDomains          []PreheatDomain     `yaml:"preheatDomains,omitempty"`
	UserStatic              []UserStaticEntry   `yaml:"userStatic,omitempty"`
	Blacklist               []string            `yaml:"blacklist,omitempty"`
	Whitelist               []string            `yaml:"whitelist,omitempty"`
	DisabledBuiltinPreheat  []string            `yaml:"disabledBuiltinPreheat,omitempty"`
}

// DefaultIPPoolConfig returns the defaults used by the original implementation
// (see original_source/.../ip_pool/config.rs).
func DefaultIPPoolConfig() IPPoolConfig {
	return IPPoolConfig{
		Enabled: true,
		Sources: IPPoolSourceToggle{
			Builtin: true, DNS: true, History: true, UserStatic: true, Fallback: true,
		},
		DNS:                    DNSRuntimeConfig{UseSystem: true, Presets: DefaultDNSPresets()},
		MaxParallelProbes:      4,
		ProbeTimeoutMs:         1500,
		ProbeMethod:            ProbeMethodHTTP,
		ProbePath:              "/",
		CachePruneIntervalSecs: 60,
		MaxCacheEntries:        256,
		SingleflightTimeoutMs:  10_000,
		FailureThreshold:       3,
		FailureRateThreshold:   0.5,
		FailureWindowSeconds:   60,
		MinSamplesInWindow:     5,
		CooldownSeconds:        300,
		CircuitBreakerEnabled:  true,
		ScoreTTLSeconds:        300,
	}
}
