package obssink

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/eventstore"
)

func publishAll(t *testing.T, bus *events.Bus, evts ...any) {
	t.Helper()
	for _, e := range evts {
		require.NoError(t, bus.Publish(e))
	}
}

func TestSoakRunAggregatesAndReports(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	store, err := eventstore.NewSQLiteStore(filepath.Join(t.TempDir(), "soak.db"))
	require.NoError(t, err)
	defer store.Close()

	run := NewSoakRun("nightly", store, bus, WithThresholds(Thresholds{
		MinSuccessRate: 0.5, MaxP99LatencyMs: 10_000, MaxAutoDisable: -1,
	}))
	require.NoError(t, run.Start(t.Context()))

	publishAll(t, bus,
		events.TaskStarted{TaskID: "t1", Kind: "GitClone", At: time.Now()},
		events.TaskCompleted{TaskID: "t1", Kind: "GitClone", At: time.Now()},
		events.TaskStarted{TaskID: "t2", Kind: "GitFetch", At: time.Now()},
		events.TaskFailed{TaskID: "t2", Kind: "GitFetch", Category: "network", Message: "reset"},
		events.AdaptiveTLSTiming{TaskID: "t1", Host: "github.com", TotalMs: 180},
		events.AdaptiveTLSTiming{TaskID: "t2", Host: "github.com", TotalMs: 240},
		events.AdaptiveTLSFallback{TaskID: "t2", Host: "github.com", From: "Fake", To: "Real", Reason: "FakeHandshakeError"},
		events.AdaptiveTLSAutoDisable{Host: "github.com", Enabled: true},
		events.IPPoolSelection{Host: "github.com", Port: 443, Strategy: "Cached"},
		events.IPPoolRefresh{Host: "github.com", Port: 443, Success: true},
		events.ProxyHealthCheck{Success: true, LatencyMs: 12},
		events.CertFpChanged{Host: "github.com", OldFp: "a", NewFp: "b"},
	)

	report, err := run.Stop(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalOps)
	assert.Equal(t, 1, report.SuccessOps)
	assert.Equal(t, 1, report.FailedOps)
	assert.Equal(t, 1, report.FallbackCount)
	assert.Equal(t, 1, report.AutoDisableCount)
	assert.Equal(t, int64(240), report.P99LatencyMs)
	assert.True(t, report.Passed, "reasons: %v", report.FailureReasons)

	// Everything was persisted under the run id.
	stored, err := store.GetByRunID(t.Context(), run.ID)
	require.NoError(t, err)
	types := map[string]int{}
	for _, e := range stored {
		types[e.Type()]++
	}
	assert.Equal(t, 1, types["RunStarted"])
	assert.Equal(t, 1, types["RunCompleted"])
	assert.Equal(t, 2, types["OperationRecorded"])
	assert.Equal(t, 1, types["FallbackRecorded"])
	assert.Equal(t, 1, types["AutoDisableRecorded"])
	assert.Equal(t, 2, types["IPPoolEventRecorded"])
	assert.Equal(t, 1, types["ProxyEventRecorded"])
	assert.Equal(t, 1, types["CertFpEventRecorded"])
}

func TestSoakRunFailsThresholds(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	run := NewSoakRun("gate", nil, bus, WithThresholds(Thresholds{
		MinSuccessRate: 0.99, MaxP99LatencyMs: 100, MaxAutoDisable: 0,
	}))
	require.NoError(t, run.Start(t.Context()))

	publishAll(t, bus,
		events.TaskStarted{TaskID: "t1", Kind: "GitClone", At: time.Now()},
		events.TaskFailed{TaskID: "t1", Kind: "GitClone", Category: "tls", Message: "handshake"},
		events.AdaptiveTLSTiming{TaskID: "t1", Host: "github.com", TotalMs: 900},
		events.AdaptiveTLSAutoDisable{Host: "github.com", Enabled: true},
	)

	report, err := run.Stop(t.Context())
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Len(t, report.FailureReasons, 3)
}

func TestSoakRunBaselineComparison(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	store, err := eventstore.NewSQLiteStore(filepath.Join(t.TempDir(), "soak.db"))
	require.NoError(t, err)
	defer store.Close()

	// Baseline run: fast.
	base := NewSoakRun("baseline", store, bus)
	require.NoError(t, base.Start(t.Context()))
	publishAll(t, bus, events.AdaptiveTLSTiming{TaskID: "b", Host: "h", TotalMs: 100})
	_, err = base.Stop(t.Context())
	require.NoError(t, err)

	// Candidate run: slower, so flagged as a regression.
	cand := NewSoakRun("candidate", store, bus, WithBaseline(base.ID))
	require.NoError(t, cand.Start(t.Context()))
	publishAll(t, bus, events.AdaptiveTLSTiming{TaskID: "c", Host: "h", TotalMs: 300})
	report, err := cand.Stop(t.Context())
	require.NoError(t, err)

	assert.Equal(t, base.ID, report.BaselineRunID)
	assert.Equal(t, int64(-200), report.LatencyImprovedMs)
	assert.True(t, report.Regression)
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, int64(0), percentile(nil, 99))
	assert.Equal(t, int64(5), percentile([]int64{5}, 50))
	samples := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	assert.Equal(t, int64(50), percentile(samples, 50))
	assert.Equal(t, int64(100), percentile(samples, 99))
}
