package ippool

import (
	"sync"
	"time"
)

type attempt struct {
	at      time.Time
	success bool
}

type addrState struct {
	history       []attempt
	consecutive   int
	trippedUntil  time.Time
}

// CircuitBreaker trips an address out of candidate selection after
// consecutive failures or a high failure rate within a rolling window,
// only outcomes from cached selections feed the breaker.
type CircuitBreaker struct {
	mu      sync.Mutex
	state   map[string]*addrState
	enabled bool

	failureThreshold     int
	failureRateThreshold float64
	windowSeconds        int
	minSamples           int
	cooldownSeconds      int
}

func NewCircuitBreaker(enabled bool, failureThreshold int, failureRateThreshold float64, windowSeconds, minSamples, cooldownSeconds int) *CircuitBreaker {
	return &CircuitBreaker{
		state:                 make(map[string]*addrState),
		enabled:               enabled,
		failureThreshold:      failureThreshold,
		failureRateThreshold:  failureRateThreshold,
		windowSeconds:         windowSeconds,
		minSamples:            minSamples,
		cooldownSeconds:       cooldownSeconds,
	}
}

// Tripped reports whether addr is currently excluded from selection.
func (b *CircuitBreaker) Tripped(addr string, now time.Time) bool {
	if !b.enabled {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.state[addr]
	if !ok {
		return false
	}
	return now.Before(st.trippedUntil)
}

// Record feeds back a Cached-selection outcome and may trip the breaker.
func (b *CircuitBreaker) Record(addr string, outcome Outcome, now time.Time) {
	if !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[addr]
	if !ok {
		st = &addrState{}
		b.state[addr] = st
	}

	success := outcome == OutcomeSuccess
	st.history = append(st.history, attempt{at: now, success: success})
	cutoff := now.Add(-time.Duration(b.windowSeconds) * time.Second)
	kept := st.history[:0]
	for _, a := range st.history {
		if a.at.After(cutoff) {
			kept = append(kept, a)
		}
	}
	st.history = kept

	if success {
		st.consecutive = 0
		return
	}
	st.consecutive++

	total := len(st.history)
	failures := 0
	for _, a := range st.history {
		if !a.success {
			failures++
		}
	}
	rateTripped := total >= b.minSamples && float64(failures)/float64(total) >= b.failureRateThreshold
	consecutiveTripped := b.failureThreshold > 0 && st.consecutive >= b.failureThreshold

	if rateTripped || consecutiveTripped {
		st.trippedUntil = now.Add(time.Duration(b.cooldownSeconds) * time.Second)
	}
}

// Reset clears all breaker state, e.g. after a config change.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = make(map[string]*addrState)
}
