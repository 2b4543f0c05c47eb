package retry

import (
	"testing"
	"time"

	"github.com/gitcollab/core/internal/config"
	"github.com/stretchr/testify/require"
)

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{Max: 6, BaseMs: 300, Factor: 1.6, Jitter: true})
	require.Equal(t, 6, p.Max)
	require.Equal(t, 300, p.BaseMs)
	require.Equal(t, 1.6, p.Factor)
	require.True(t, p.Jitter)
}

func TestDelayNoJitter(t *testing.T) {
	p := Plan{Max: 6, BaseMs: 100, Factor: 2.0, Jitter: false}
	require.Equal(t, time.Duration(0), p.Delay(0))
	require.Equal(t, time.Duration(0), p.Delay(-1))
	require.Equal(t, 200*time.Millisecond, p.Delay(1))
	require.Equal(t, 400*time.Millisecond, p.Delay(2))
}

func TestDelayJitterWithinBounds(t *testing.T) {
	p := Plan{Max: 6, BaseMs: 100, Factor: 2.0, Jitter: true}
	base := 200.0 // BaseMs * Factor^1
	lo := time.Duration(base*0.75) * time.Millisecond
	hi := time.Duration(base*1.25) * time.Millisecond
	for _, rf := range []float64{0, 0.25, 0.5, 0.75, 1} {
		d := p.delay(1, func() float64 { return rf })
		require.GreaterOrEqual(t, d, lo)
		require.LessOrEqual(t, d, hi)
	}
}

func TestDelayCapped(t *testing.T) {
	p := Plan{Max: 20, BaseMs: 60000, Factor: 10.0, Jitter: false}
	require.Equal(t, maxDelay, p.Delay(5))
}

func TestRetryable(t *testing.T) {
	p := Plan{Max: 3}
	require.True(t, p.Retryable(0))
	require.True(t, p.Retryable(2))
	require.False(t, p.Retryable(3))
	require.False(t, p.Retryable(4))
}

func TestPlanValidate(t *testing.T) {
	good := Plan{Max: 6, BaseMs: 300, Factor: 1.6, Jitter: true}
	require.NoError(t, good.Validate())

	cases := []Plan{
		{Max: 0, BaseMs: 300, Factor: 1.6},
		{Max: 21, BaseMs: 300, Factor: 1.6},
		{Max: 6, BaseMs: 5, Factor: 1.6},
		{Max: 6, BaseMs: 60001, Factor: 1.6},
		{Max: 6, BaseMs: 300, Factor: 0.1},
		{Max: 6, BaseMs: 300, Factor: 11},
	}
	for _, c := range cases {
		require.Error(t, c.Validate(), "%+v", c)
	}
}
