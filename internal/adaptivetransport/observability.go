package adaptivetransport

import "time"

// Timing records the phase durations of one connection attempt.
type Timing struct {
	ConnectMs   int64
	TLSMs       int64
	FirstByteMs int64
	TotalMs     int64
}

// FallbackEvent is one recorded stage Transition or AutoDisable toggle
// observed during a single connection's lifecycle.
type FallbackEvent struct {
	Kind   string // "Transition" or "AutoDisable"
	From   string
	To     string
	Reason string
}

// ConnectionObservability accumulates the per-thread transport state for
// one connection attempt, reset at the start of each Dial call.
type ConnectionObservability struct {
	UsedFake      bool
	FallbackStage Stage
	IPStrategy    string
	IPSource      string
	IPLatencyMs   int64
	CertFPChanged bool
	Timing        Timing
	Events        []FallbackEvent

	start time.Time
}

func newObservability() *ConnectionObservability {
	return &ConnectionObservability{start: time.Now()}
}

func (o *ConnectionObservability) recordTransition(from, to Stage, reason string) {
	o.Events = append(o.Events, FallbackEvent{Kind: "Transition", From: string(from), To: string(to), Reason: reason})
}

func (o *ConnectionObservability) recordAutoDisable(enabled bool) {
	kind := "disabled"
	if !enabled {
		kind = "recovered"
	}
	o.Events = append(o.Events, FallbackEvent{Kind: "AutoDisable", To: kind})
}
