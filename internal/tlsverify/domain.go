// Package tlsverify implements C1: chain/SAN/SPKI certificate verification
// with Real-Host binding under a camouflaged (fake) SNI.
package tlsverify

import (
	"strings"

	"golang.org/x/net/idna"
)

// normalizeHost lowercases and, for internationalized names, converts to
// the punycode form certificates actually carry in their SANs.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

// MatchDomain reports whether host matches pattern, where pattern is either
// an exact hostname or a single-label "*.suffix" glob.
func MatchDomain(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	host = normalizeHost(host)
	if pattern == "" || host == "" {
		return false
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		label, rest, cut := strings.Cut(host, ".")
		return cut && label != "" && rest == normalizeHost(suffix)
	}
	return normalizeHost(pattern) == host
}

// MatchAny reports whether host matches any entry in whitelist.
func MatchAny(whitelist []string, host string) bool {
	if len(whitelist) == 0 {
		return false
	}
	for _, p := range whitelist {
		if MatchDomain(p, host) {
			return true
		}
	}
	return false
}
