package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcollab/core/internal/config"
	"github.com/gitcollab/core/internal/events"
)

func testCfg() config.MetricsConfig {
	return config.MetricsConfig{
		IPMaskMode:     "mask",
		BatchCapacity:  4,
		BatchFlushMs:   60_000,
		MaxMemoryBytes: 1 << 20,
		TLSSampleRate:  1,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestBufferFlushOnCapacity(t *testing.T) {
	rt := NewRuntime(testCfg(), nil, nil)
	defer rt.Close()

	b := rt.NewBuffer()
	for i := 0; i < 4; i++ {
		b.IncCounter("ops_total", map[string]string{"kind": "clone"})
	}
	// Capacity reached, flush happened without an explicit call.
	waitFor(t, func() bool {
		return rt.CounterValue("ops_total", map[string]string{"kind": "clone"}) == 4
	})
}

func TestBufferExplicitFlushAndClose(t *testing.T) {
	rt := NewRuntime(testCfg(), nil, nil)

	b := rt.NewBuffer()
	b.IncCounter("ops_total", nil)
	b.ObserveHistogram("connect_ms", nil, 12)
	b.Close()
	waitFor(t, func() bool { return rt.HistogramCount("connect_ms", nil) == 1 })
	rt.Close()
	assert.Equal(t, float64(1), rt.CounterValue("ops_total", nil))
}

func TestTLSHandshakeSampling(t *testing.T) {
	cfg := testCfg()
	cfg.TLSSampleRate = 5
	rt := NewRuntime(cfg, nil, nil)

	b := rt.NewBuffer()
	for i := 0; i < 50; i++ {
		b.ObserveHistogram(TLSHandshakeMetric, nil, float64(i))
	}
	b.Close()
	rt.Close()
	assert.Equal(t, uint64(10), rt.HistogramCount(TLSHandshakeMetric, nil))
}

func TestMemoryPressureDowngradeIsOneWay(t *testing.T) {
	cfg := testCfg()
	cfg.MaxMemoryBytes = 256
	bus := events.NewBus()
	defer bus.Close()
	ch, unsub := events.Subscribe[events.MetricMemoryPressure](bus, 4)
	defer unsub()

	rt := NewRuntime(cfg, nil, events.BusSink{Bus: bus})

	b := rt.NewBuffer()
	for i := 0; i < 200; i++ {
		b.ObserveHistogram("latency_ms", nil, float64(i))
	}
	b.Close()
	rt.Close()

	assert.True(t, rt.Degraded())
	// All observations survive the downgrade.
	assert.Equal(t, uint64(200), rt.HistogramCount("latency_ms", nil))

	select {
	case evt := <-ch:
		assert.Equal(t, int64(256), evt.LimitBytes)
	default:
		t.Fatal("expected a MetricMemoryPressure event")
	}
}

func TestRedactorRepoHashStableAndSalted(t *testing.T) {
	r := NewRedactor(IPMask, false)
	a := r.Apply(map[string]string{"repo": "github.com/acme/secret"})
	b := r.Apply(map[string]string{"repo": "github.com/acme/secret"})
	assert.Equal(t, a["repo"], b["repo"])
	assert.Len(t, a["repo"], 8)
	assert.NotEqual(t, "github.com/acme/secret", a["repo"])

	other := NewRedactor(IPMask, false)
	c := other.Apply(map[string]string{"repo": "github.com/acme/secret"})
	assert.NotEqual(t, a["repo"], c["repo"], "salt must differ per process instance")
}

func TestRedactorIPMask(t *testing.T) {
	r := NewRedactor(IPMask, false)
	out := r.Apply(map[string]string{"peer_ip": "140.82.112.3"})
	assert.Equal(t, "140.82.x.x", out["peer_ip"])

	out = r.Apply(map[string]string{"peer_ip": "2606:50c0:8000::153"})
	assert.Equal(t, "2606:50c0::x", out["peer_ip"])

	// Non-IP values pass through.
	out = r.Apply(map[string]string{"peer_ip": "not-an-ip"})
	assert.Equal(t, "not-an-ip", out["peer_ip"])
}

func TestRedactorIPClassify(t *testing.T) {
	r := NewRedactor(IPClassify, false)
	tests := map[string]string{
		"127.0.0.1":    "loopback",
		"224.0.0.1":    "multicast",
		"0.0.0.0":      "unspecified",
		"10.1.2.3":     "private",
		"140.82.112.3": "public",
	}
	for in, want := range tests {
		out := r.Apply(map[string]string{"ip": in})
		assert.Equal(t, want, out["ip"], "ip %s", in)
	}
}

func TestRedactorDebugDisables(t *testing.T) {
	r := NewRedactor(IPMask, true)
	labels := map[string]string{"repo": "acme/x", "ip": "127.0.0.1"}
	out := r.Apply(labels)
	assert.Equal(t, labels, out)
}

func TestPrometheusRecorderRegisters(t *testing.T) {
	rec := NewPrometheusRecorder(nil)
	require.NotNil(t, rec)
	rec.ObserveTaskDuration("GitClone", 120*time.Millisecond)
	rec.IncTaskOutcome("GitClone", OutcomeSuccess)
	rec.IncFallbackTransition("Fake", "Real")
	rec.IncIPPoolSelection("Cached", "UserStatic")
	rec.IncProxyStateChange("Enabled", "Fallback")
	rec.IncMemoryPressure()
}
