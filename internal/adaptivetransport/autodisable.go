package adaptivetransport

import (
	"sync"
	"time"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
)

// hostState is one host's rolling Fake-stage outcome window plus its
// runtime disable state.
type hostState struct {
	outcomes []bool // true = success, most recent last, capped at window size
	disabled bool
	disabledAt time.Time
}

// AutoDisable implements the C3 auto-disable safeguard: when the Fake-stage
// failure ratio over a rolling window exceeds a threshold, Fake is
// suppressed for a cooldown.
type AutoDisable struct {
	mu    sync.Mutex
	cfg   config.AdaptiveTransportConfig
	sink  events.Sink
	now   func() time.Time
	byHost map[string]*hostState
}

// NewAutoDisable builds the accumulator from the adaptive-transport config.
func NewAutoDisable(cfg config.AdaptiveTransportConfig, sink events.Sink) *AutoDisable {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &AutoDisable{cfg: cfg, sink: sink, now: time.Now, byHost: make(map[string]*hostState)}
}

// IsFakeDisabled reports whether Fake-SNI is currently runtime-disabled for
// host, lifting the suppression once the cooldown has elapsed.
func (a *AutoDisable) IsFakeDisabled(host string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.byHost[host]
	if st == nil || !st.disabled {
		return false
	}
	cooldown := time.Duration(a.cfg.AutoDisableCooldownSec) * time.Second
	if a.now().Sub(st.disabledAt) >= cooldown {
		st.disabled = false
		st.outcomes = nil
		a.sink.Publish(events.AdaptiveTLSAutoDisable{Host: host, Enabled: false})
		return false
	}
	return true
}

// RecordFakeAttempt records a Fake-stage attempt outcome and trips the
// safeguard if the failure ratio over the rolling window exceeds
// auto_disable_fake_threshold_pct.
func (a *AutoDisable) RecordFakeAttempt(host string, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.byHost[host]
	if st == nil {
		st = &hostState{}
		a.byHost[host] = st
	}
	window := a.cfg.AutoDisableWindowSize
	if window < 1 {
		window = 1
	}
	st.outcomes = append(st.outcomes, success)
	if len(st.outcomes) > window {
		st.outcomes = st.outcomes[len(st.outcomes)-window:]
	}

	if st.disabled {
		return
	}
	failures := 0
	for _, ok := range st.outcomes {
		if !ok {
			failures++
		}
	}
	pct := (failures * 100) / len(st.outcomes)
	if pct > a.cfg.AutoDisableThresholdPct {
		st.disabled = true
		st.disabledAt = a.now()
		a.sink.Publish(events.AdaptiveTLSAutoDisable{Host: host, Enabled: true, ThresholdPct: a.cfg.AutoDisableThresholdPct})
	}
}
