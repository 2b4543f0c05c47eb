package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// IPConfigFile is the on-disk ip-config.json document operators edit to
// steer the IP pool without touching the main config: preheat domains,
// static candidates, address allow/deny lists, and the score TTL.
type IPConfigFile struct {
	PreheatDomains         []IPConfigPreheat    `json:"preheatDomains,omitempty"`
	ScoreTTLSeconds        int                  `json:"scoreTtlSeconds,omitempty"`
	UserStatic             []IPConfigUserStatic `json:"userStatic,omitempty"`
	Blacklist              []string             `json:"blacklist,omitempty"`
	Whitelist              []string             `json:"whitelist,omitempty"`
	DisabledBuiltinPreheat []string             `json:"disabledBuiltinPreheat,omitempty"`
}

// IPConfigPreheat is one preheat entry of ip-config.json.
type IPConfigPreheat struct {
	Host  string   `json:"host"`
	Ports []uint16 `json:"ports"`
}

// IPConfigUserStatic is one operator-supplied static candidate.
type IPConfigUserStatic struct {
	Host  string   `json:"host"`
	IP    string   `json:"ip"`
	Ports []uint16 `json:"ports"`
}

// LoadIPConfig reads ip-config.json. A missing file yields an empty
// document, not an error, so the pool runs on built-ins alone.
func LoadIPConfig(path string) (IPConfigFile, error) {
	var doc IPConfigFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read ip config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse ip config %s: %w", path, err)
	}
	return doc, nil
}

// ApplyTo overlays the file's entries onto an IPPoolConfig. List fields
// replace wholesale; a zero ScoreTTLSeconds leaves the existing value.
func (f IPConfigFile) ApplyTo(cfg *IPPoolConfig) {
	if f.ScoreTTLSeconds > 0 {
		cfg.ScoreTTLSeconds = f.ScoreTTLSeconds
	}
	if f.PreheatDomains != nil {
		cfg.PreheatDomains = cfg.PreheatDomains[:0]
		for _, p := range f.PreheatDomains {
			cfg.PreheatDomains = append(cfg.PreheatDomains, PreheatDomain{Host: p.Host, Ports: p.Ports})
		}
	}
	if f.UserStatic != nil {
		cfg.UserStatic = cfg.UserStatic[:0]
		for _, u := range f.UserStatic {
			cfg.UserStatic = append(cfg.UserStatic, UserStaticEntry{Host: u.Host, IP: u.IP, Ports: u.Ports})
		}
	}
	if f.Blacklist != nil {
		cfg.Blacklist = f.Blacklist
	}
	if f.Whitelist != nil {
		cfg.Whitelist = f.Whitelist
	}
	if f.DisabledBuiltinPreheat != nil {
		cfg.DisabledBuiltinPreheat = f.DisabledBuiltinPreheat
	}
}
