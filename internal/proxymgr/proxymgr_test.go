package proxymgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineValidTransitionSequence(t *testing.T) {
	sm := NewStateMachine(nil)
	require.NoError(t, sm.Apply(TransitionEnable, ""))
	require.NoError(t, sm.Apply(TransitionDisable, ""))
	assert.Equal(t, StateDisabled, sm.Current().State)

	require.NoError(t, sm.Apply(TransitionEnable, ""))
	require.NoError(t, sm.Apply(TransitionTriggerFallback, ""))
	require.NoError(t, sm.Apply(TransitionStartRecovery, ""))
	require.NoError(t, sm.Apply(TransitionAbortRecovery, ""))
	require.NoError(t, sm.Apply(TransitionStartRecovery, ""))
	require.NoError(t, sm.Apply(TransitionCompleteRecovery, ""))
	assert.Equal(t, StateEnabled, sm.Current().State)
}

func TestStateMachineInvalidTransitionFails(t *testing.T) {
	sm := NewStateMachine(nil)
	err := sm.Apply(TransitionTriggerFallback, "")
	require.Error(t, err)
	assert.Equal(t, StateDisabled, sm.Current().State)
}

func TestStateMachineDisableAlwaysAllowed(t *testing.T) {
	sm := NewStateMachine(nil)
	require.NoError(t, sm.Apply(TransitionDisable, ""))
	require.NoError(t, sm.Apply(TransitionEnable, ""))
	require.NoError(t, sm.Apply(TransitionTriggerFallback, ""))
	require.NoError(t, sm.Apply(TransitionDisable, ""))
	assert.Equal(t, StateDisabled, sm.Current().State)
}

func TestFailureDetectorResetMatchesFreshDetector(t *testing.T) {
	cfg := DetectorConfig{WindowSeconds: 60, Threshold: 0.5}
	d := NewFailureDetector(cfg)
	now := time.Now()
	d.Record(false, now)
	d.Record(false, now)
	d.MarkFallbackTriggered()

	d.Reset()

	fresh := NewFailureDetector(cfg)
	gotTrip, gotRate := d.ShouldFallback(now)
	freshTrip, freshRate := fresh.ShouldFallback(now)
	assert.Equal(t, freshTrip, gotTrip)
	assert.Equal(t, freshRate, gotRate)
}

func TestFailureDetectorClampsOutOfRangeConfig(t *testing.T) {
	d := NewFailureDetector(DetectorConfig{WindowSeconds: -5, Threshold: 5})
	assert.Equal(t, 1, d.cfg.WindowSeconds)
	assert.Equal(t, 1.0, d.cfg.Threshold)
}

func TestParseProxyURLSocks5(t *testing.T) {
	scheme, host, port, user, pass, err := ParseProxyURL("socks5://u:p@proxy.example.com:1080")
	require.NoError(t, err)
	assert.Equal(t, "socks5", scheme)
	assert.Equal(t, "proxy.example.com", host)
	assert.Equal(t, uint16(1080), port)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}
