package proxymgr

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/proxyconn"
)

// ProbeOutcome is the result of one health-check probe.
type ProbeOutcome struct {
	Success   bool
	LatencyMs int64
	Err       error
}

// ProbeSkipped is the error Probe returns while the recovery cooldown has
// not yet elapsed; RemainingSeconds is the time left.
type ProbeSkipped struct {
	RemainingSeconds int
}

func (s *ProbeSkipped) Error() string {
	return "health probe skipped, cooldown remaining: " + strconv.Itoa(s.RemainingSeconds) + "s"
}

// HealthChecker enforces a post-fallback cooldown, then probes the target
// through the configured proxy connector and tracks consecutive
// successes/failures to decide recovery.
type HealthChecker struct {
	mu sync.Mutex

	cfg           config.ProxyConfig
	connector     proxyconn.Connector
	fallbackAt    time.Time
	consecSucc    int
	consecFail    int
	sink          events.Sink
	now           func() time.Time
}

// NewHealthChecker builds a checker bound to the proxy connector used for
// probe_target connections.
func NewHealthChecker(cfg config.ProxyConfig, connector proxyconn.Connector, sink events.Sink) *HealthChecker {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &HealthChecker{cfg: cfg, connector: connector, sink: sink, now: time.Now}
}

// RecordFallback starts the recovery cooldown clock.
func (h *HealthChecker) RecordFallback(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallbackAt = at
	h.consecSucc = 0
	h.consecFail = 0
}

// Probe attempts one health check against probe_target via the proxy
// connector. While the cooldown has not elapsed it returns (ProbeOutcome{},
// *ProbeSkipped) without touching the network.
func (h *HealthChecker) Probe(ctx context.Context) (ProbeOutcome, error) {
	h.mu.Lock()
	cooldown := time.Duration(h.cfg.RecoveryCooldownSeconds) * time.Second
	remaining := cooldown - h.now().Sub(h.fallbackAt)
	if remaining > 0 {
		h.mu.Unlock()
		return ProbeOutcome{}, &ProbeSkipped{RemainingSeconds: int(remaining.Seconds()) + 1}
	}
	h.mu.Unlock()

	host, portStr, err := net.SplitHostPort(h.cfg.ProbeTarget)
	if err != nil {
		return ProbeOutcome{}, classerr.ProtocolError("invalid proxy probe target").WithContext("target", h.cfg.ProbeTarget).Build()
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return ProbeOutcome{}, classerr.ProtocolError("invalid proxy probe target port").WithContext("target", h.cfg.ProbeTarget).Build()
	}

	timeout := time.Duration(h.cfg.ProbeTimeoutSeconds) * time.Second
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := h.now()
	conn, err := h.connector.Connect(pctx, host, uint16(port))
	latency := time.Since(start).Milliseconds()

	outcome := ProbeOutcome{LatencyMs: latency}
	if err != nil {
		outcome.Err = err
		h.recordOutcome(false)
		h.sink.Publish(events.ProxyHealthCheck{Success: false, LatencyMs: latency, Error: err.Error()})
		return outcome, nil
	}
	_ = conn.Close()
	outcome.Success = true
	h.recordOutcome(true)
	h.sink.Publish(events.ProxyHealthCheck{Success: true, LatencyMs: latency})
	return outcome, nil
}

func (h *HealthChecker) recordOutcome(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if success {
		h.consecSucc++
		h.consecFail = 0
	} else {
		h.consecFail++
		h.consecSucc = 0
	}
}

// ShouldRecover reports whether enough consecutive successes have
// accumulated to complete recovery, per the configured RecoveryStrategy.
// "exponential-backoff" is reserved and currently aliases "consecutive",
// the strategy enum stays the single source of truth for that decision.
func (h *HealthChecker) ShouldRecover() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.cfg.RecoveryStrategy {
	case config.RecoveryStrategyImmediate:
		return h.consecSucc >= 1
	default: // consecutive, exponential-backoff (aliased)
		threshold := h.cfg.RecoveryConsecutiveProbes
		if threshold < 1 {
			threshold = 1
		}
		return h.consecSucc >= threshold
	}
}

// ConsecutiveFailures reports the current consecutive-failure count.
func (h *HealthChecker) ConsecutiveFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecFail
}

// ParseProxyURL extracts host/port/credentials from a proxy URL, accepting
// http:// and socks5:// schemes.
func ParseProxyURL(raw string) (scheme, host string, port uint16, username, password string, err error) {
	rest := raw
	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme = rest[:idx]
		rest = rest[idx+3:]
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		cred := rest[:at]
		rest = rest[at+1:]
		if colon := strings.Index(cred, ":"); colon >= 0 {
			username, password = cred[:colon], cred[colon+1:]
		} else {
			username = cred
		}
	}
	h, p, splitErr := net.SplitHostPort(rest)
	if splitErr != nil {
		err = classerr.ProtocolError("invalid proxy URL").WithContext("url", raw).Build()
		return
	}
	host = h
	portVal, convErr := strconv.ParseUint(p, 10, 16)
	if convErr != nil {
		err = classerr.ProtocolError("invalid proxy URL port").WithContext("url", raw).Build()
		return
	}
	port = uint16(portVal)
	return
}
