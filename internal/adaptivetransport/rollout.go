package adaptivetransport

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
)

// ShouldRewrite decides, deterministically per host and the configured
// rollout percent, whether an incoming https:// URL should be rewritten to
// the custom adaptive-transport scheme.
// The same host always yields the same decision for a fixed percent.
func ShouldRewrite(cfg config.AdaptiveTransportConfig, host string, sink events.Sink) bool {
	if sink == nil {
		sink = events.NopSink{}
	}
	pct := cfg.RolloutPercent
	rewrite := pct >= 100 || (pct > 0 && bucket(host) < uint32(pct))
	sink.Publish(events.AdaptiveTLSRollout{Host: host, Percent: pct, Rewrote: rewrite})
	return rewrite
}

// bucket maps a host deterministically into [0,100) via the first 4 bytes
// of its SHA-256 digest.
func bucket(host string) uint32 {
	sum := sha256.Sum256([]byte(strings.ToLower(host)))
	return binary.BigEndian.Uint32(sum[:4]) % 100
}

// RewriteURL swaps the https:// scheme for the configured custom scheme
// when ShouldRewrite decides to enable the adaptive path for host.
func RewriteURL(rawURL, host string, cfg config.AdaptiveTransportConfig, sink events.Sink) string {
	if !strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	if !ShouldRewrite(cfg, host, sink) {
		return rawURL
	}
	scheme := cfg.CustomScheme
	if scheme == "" {
		return rawURL
	}
	return scheme + "://" + strings.TrimPrefix(rawURL, "https://")
}
