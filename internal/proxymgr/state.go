// Package proxymgr implements C5: the proxy state machine, failure
// detector, and health checker governing when the adaptive transport
// routes through a configured proxy.
package proxymgr

import (
	"sync"
	"time"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/events"
)

// State is one of the four proxy manager states.
type State string

const (
	StateDisabled   State = "Disabled"
	StateEnabled    State = "Enabled"
	StateFallback   State = "Fallback"
	StateRecovering State = "Recovering"
)

// Context is the proxy manager's current state plus transition metadata,
// used by the failure detector and health checker.
type Context struct {
	State                State
	LastTransitionAt     time.Time
	Reason               string
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
}

// Transition is the set of named events the state machine accepts.
type Transition string

const (
	TransitionEnable          Transition = "Enable"
	TransitionDisable         Transition = "Disable"
	TransitionTriggerFallback Transition = "TriggerFallback"
	TransitionStartRecovery   Transition = "StartRecovery"
	TransitionCompleteRecovery Transition = "CompleteRecovery"
	TransitionAbortRecovery   Transition = "AbortRecovery"
)

// validNextState is the explicit transition table;
// illegal transitions return an error rather than panicking, per the
// illegal transitions return an error value, never panic.
var validNextState = map[State]map[Transition]State{
	StateDisabled: {
		TransitionEnable: StateEnabled,
	},
	StateEnabled: {
		TransitionDisable:         StateDisabled,
		TransitionTriggerFallback: StateFallback,
	},
	StateFallback: {
		TransitionDisable:       StateDisabled,
		TransitionStartRecovery: StateRecovering,
	},
	StateRecovering: {
		TransitionDisable:          StateDisabled,
		TransitionCompleteRecovery: StateEnabled,
		TransitionAbortRecovery:    StateFallback,
	},
}

// StateMachine guards a single Context behind one mutex
// "Proxy manager state: single mutex around the state context."
type StateMachine struct {
	mu   sync.Mutex
	ctx  Context
	sink events.Sink
	now  func() time.Time
}

// NewStateMachine starts in Disabled, matching "Disabled is a sink until
// explicitly Enabled."
func NewStateMachine(sink events.Sink) *StateMachine {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &StateMachine{
		ctx:  Context{State: StateDisabled, LastTransitionAt: time.Now()},
		sink: sink,
		now:  time.Now,
	}
}

// Current returns a snapshot of the state context.
func (m *StateMachine) Current() Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// Apply performs transition t with an optional reason, emitting a
// ProxyState event on success.
func (m *StateMachine) Apply(t Transition, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Disable is always allowed from any state, including a no-op from
	// Disabled itself (idempotent sink behavior).
	if t == TransitionDisable {
		prev := m.ctx.State
		m.ctx = Context{State: StateDisabled, LastTransitionAt: m.now(), Reason: reason}
		if prev != StateDisabled {
			m.sink.Publish(events.ProxyState{Previous: string(prev), Current: string(StateDisabled), Reason: reason, At: m.ctx.LastTransitionAt})
		}
		return nil
	}

	next, ok := validNextState[m.ctx.State][t]
	if !ok {
		return classerr.ProtocolError("invalid proxy state transition").
			WithContext("from", string(m.ctx.State)).
			WithContext("transition", string(t)).Build()
	}

	prev := m.ctx.State
	m.ctx = Context{State: next, LastTransitionAt: m.now(), Reason: reason}
	m.sink.Publish(events.ProxyState{Previous: string(prev), Current: string(next), Reason: reason, At: m.ctx.LastTransitionAt})
	if next == StateEnabled && prev == StateRecovering {
		m.sink.Publish(events.ProxyRecovered{At: m.ctx.LastTransitionAt})
	}
	return nil
}
