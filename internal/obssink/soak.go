// Package obssink contains the offline observability consumers: the soak
// aggregator, which subscribes to the structured event bus, persists
// per-event records through internal/eventstore, and computes a pass/fail
// report with an optional baseline comparison when the run completes.
package obssink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gitcollab/core/internal/events"
	"github.com/gitcollab/core/internal/eventstore"
	"github.com/gitcollab/core/internal/logfields"
)

// Thresholds are the pass/fail gates applied when a soak run completes.
type Thresholds struct {
	MinSuccessRate  float64 // fraction of terminal tasks that must succeed
	MaxP99LatencyMs int64   // 0 disables the latency gate
	MaxAutoDisable  int     // 0 allows none; negative disables the gate
}

// DefaultThresholds matches the gates used by the nightly soak profile.
func DefaultThresholds() Thresholds {
	return Thresholds{MinSuccessRate: 0.95, MaxP99LatencyMs: 30_000, MaxAutoDisable: -1}
}

// SoakRun aggregates one run's worth of structured events. Start subscribes
// to the bus; Stop unsubscribes, computes the report, and persists a
// RunCompleted event.
type SoakRun struct {
	ID    string
	Label string

	store      eventstore.Store
	bus        *events.Bus
	thresholds Thresholds
	baseline   string

	mu          sync.Mutex
	taskKinds   map[string]string // taskID -> kind, for terminal correlation
	totalOps    int
	successOps  int
	failedOps   int
	canceledOps int
	fallbacks   int
	autoDisable int
	poolSelect  int
	poolRefresh int
	proxyEvents int
	certEvents  int
	latencies   []int64

	cancelFns []func()
	drainWG   sync.WaitGroup
}

// Option configures a SoakRun.
type Option func(*SoakRun)

// WithThresholds overrides the default pass/fail gates.
func WithThresholds(t Thresholds) Option {
	return func(s *SoakRun) { s.thresholds = t }
}

// WithBaseline compares this run's latency against a previous run's
// persisted report.
func WithBaseline(runID string) Option {
	return func(s *SoakRun) { s.baseline = runID }
}

// NewSoakRun builds an aggregator for one run. store may be nil to skip
// persistence (events are still aggregated in memory).
func NewSoakRun(label string, store eventstore.Store, bus *events.Bus, opts ...Option) *SoakRun {
	s := &SoakRun{
		ID:         uuid.NewString(),
		Label:      label,
		store:      store,
		bus:        bus,
		thresholds: DefaultThresholds(),
		taskKinds:  make(map[string]string),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start subscribes to every event family the aggregator consumes and
// persists a RunStarted record.
func (s *SoakRun) Start(ctx context.Context) error {
	if s.store != nil {
		evt, err := eventstore.NewRunStarted(s.ID, eventstore.RunStartedMeta{Label: s.Label})
		if err != nil {
			return err
		}
		if err := s.store.Append(ctx, s.ID, evt.Type(), evt.Payload(), nil); err != nil {
			return fmt.Errorf("persist run start: %w", err)
		}
	}

	subscribe(s, func(e events.TaskStarted) {
		s.mu.Lock()
		s.taskKinds[e.TaskID] = e.Kind
		s.mu.Unlock()
	})
	subscribe(s, func(e events.TaskCompleted) { s.recordOp(ctx, e.TaskID, "", true) })
	subscribe(s, func(e events.TaskFailed) { s.recordOp(ctx, e.TaskID, e.Category, false) })
	subscribe(s, func(e events.TaskCanceled) { s.recordCancel(e.TaskID) })
	subscribe(s, func(e events.AdaptiveTLSTiming) {
		s.mu.Lock()
		s.latencies = append(s.latencies, e.TotalMs)
		s.mu.Unlock()
	})
	subscribe(s, func(e events.AdaptiveTLSFallback) {
		s.bump(&s.fallbacks)
		s.persist(ctx, "FallbackRecorded", func() (eventstore.Event, error) {
			return eventstore.NewFallbackRecorded(s.ID, eventstore.FallbackRecordedMeta{
				Host: e.Host, From: e.From, To: e.To, Reason: e.Reason,
			})
		})
	})
	subscribe(s, func(e events.AdaptiveTLSAutoDisable) {
		if e.Enabled {
			s.bump(&s.autoDisable)
		}
		s.persist(ctx, "AutoDisableRecorded", func() (eventstore.Event, error) {
			return eventstore.NewAutoDisableRecorded(s.ID, eventstore.AutoDisableRecordedMeta{
				Host: e.Host, Enabled: e.Enabled,
			})
		})
	})
	subscribe(s, func(e events.IPPoolSelection) {
		s.bump(&s.poolSelect)
		s.persist(ctx, "IPPoolEventRecorded", func() (eventstore.Event, error) {
			return eventstore.NewIPPoolEventRecorded(s.ID, eventstore.IPPoolEventMeta{
				Host: e.Host, Strategy: e.Strategy, Success: true,
			})
		})
	})
	subscribe(s, func(e events.IPPoolRefresh) {
		s.bump(&s.poolRefresh)
		s.persist(ctx, "IPPoolEventRecorded", func() (eventstore.Event, error) {
			return eventstore.NewIPPoolEventRecorded(s.ID, eventstore.IPPoolEventMeta{
				Host: e.Host, Refreshed: true, Success: e.Success,
			})
		})
	})
	subscribe(s, func(e events.ProxyState) {
		s.bump(&s.proxyEvents)
		s.persist(ctx, "ProxyEventRecorded", func() (eventstore.Event, error) {
			return eventstore.NewProxyEventRecorded(s.ID, eventstore.ProxyEventMeta{
				Kind: "state", Detail: e.Previous + "->" + e.Current, Success: true,
			})
		})
	})
	subscribe(s, func(e events.ProxyFallback) {
		s.bump(&s.proxyEvents)
		s.persist(ctx, "ProxyEventRecorded", func() (eventstore.Event, error) {
			return eventstore.NewProxyEventRecorded(s.ID, eventstore.ProxyEventMeta{
				Kind: "fallback", Detail: e.SanitizedURL, Success: false,
			})
		})
	})
	subscribe(s, func(e events.ProxyRecovered) {
		s.bump(&s.proxyEvents)
		s.persist(ctx, "ProxyEventRecorded", func() (eventstore.Event, error) {
			return eventstore.NewProxyEventRecorded(s.ID, eventstore.ProxyEventMeta{
				Kind: "recovered", Success: true,
			})
		})
	})
	subscribe(s, func(e events.ProxyHealthCheck) {
		s.bump(&s.proxyEvents)
		s.persist(ctx, "ProxyEventRecorded", func() (eventstore.Event, error) {
			return eventstore.NewProxyEventRecorded(s.ID, eventstore.ProxyEventMeta{
				Kind: "healthcheck", Detail: e.Error, Success: e.Success,
			})
		})
	})
	subscribe(s, func(e events.CertFpChanged) {
		s.bump(&s.certEvents)
		s.persist(ctx, "CertFpEventRecorded", func() (eventstore.Event, error) {
			return eventstore.NewCertFpEventRecorded(s.ID, eventstore.CertFpEventMeta{
				Host: e.Host, Changed: true,
			})
		})
	})
	subscribe(s, func(e events.CertFpPinMismatch) {
		s.bump(&s.certEvents)
		s.persist(ctx, "CertFpEventRecorded", func() (eventstore.Event, error) {
			return eventstore.NewCertFpEventRecorded(s.ID, eventstore.CertFpEventMeta{
				Host: e.Host, Pinned: true, Mismatch: true,
			})
		})
	})
	return nil
}

// subscribe registers a typed handler with its own drain goroutine.
func subscribe[T any](s *SoakRun, handle func(T)) {
	ch, cancel := events.Subscribe[T](s.bus, 64)
	s.cancelFns = append(s.cancelFns, cancel)
	s.drainWG.Add(1)
	go func() {
		defer s.drainWG.Done()
		for e := range ch {
			handle(e)
		}
	}()
}

func (s *SoakRun) bump(counter *int) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

func (s *SoakRun) recordOp(ctx context.Context, taskID, category string, success bool) {
	s.mu.Lock()
	kind := s.taskKinds[taskID]
	delete(s.taskKinds, taskID)
	s.totalOps++
	if success {
		s.successOps++
	} else {
		s.failedOps++
	}
	s.mu.Unlock()

	s.persist(ctx, "OperationRecorded", func() (eventstore.Event, error) {
		return eventstore.NewOperationRecorded(s.ID, eventstore.OperationRecordedMeta{
			Kind: kind, Category: category, Success: success,
		})
	})
}

func (s *SoakRun) recordCancel(taskID string) {
	s.mu.Lock()
	delete(s.taskKinds, taskID)
	s.totalOps++
	s.canceledOps++
	s.mu.Unlock()
}

// persist appends an event record; storage errors are logged, never fatal.
func (s *SoakRun) persist(ctx context.Context, kind string, build func() (eventstore.Event, error)) {
	if s.store == nil {
		return
	}
	evt, err := build()
	if err != nil {
		slog.Debug("build soak event", slog.String("kind", kind), logfields.Error(err))
		return
	}
	if err := s.store.Append(ctx, s.ID, evt.Type(), evt.Payload(), nil); err != nil {
		slog.Debug("persist soak event", slog.String("kind", kind), logfields.Error(err))
	}
}

// Stop unsubscribes, waits for the drains, computes the report against the
// thresholds (and baseline, when set), and persists RunCompleted.
func (s *SoakRun) Stop(ctx context.Context) (eventstore.SoakReport, error) {
	for _, cancel := range s.cancelFns {
		cancel()
	}
	s.drainWG.Wait()

	report := s.buildReport(ctx)
	if s.store != nil {
		evt, err := eventstore.NewRunCompleted(s.ID, report)
		if err != nil {
			return report, err
		}
		if err := s.store.Append(ctx, s.ID, evt.Type(), evt.Payload(), nil); err != nil {
			return report, fmt.Errorf("persist run completion: %w", err)
		}
	}
	return report, nil
}

func (s *SoakRun) buildReport(ctx context.Context) eventstore.SoakReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := eventstore.SoakReport{
		TotalOps:         s.totalOps,
		SuccessOps:       s.successOps,
		FailedOps:        s.failedOps,
		FallbackCount:    s.fallbacks,
		AutoDisableCount: s.autoDisable,
		P50LatencyMs:     percentile(s.latencies, 50),
		P99LatencyMs:     percentile(s.latencies, 99),
		Passed:           true,
	}

	judged := s.successOps + s.failedOps
	if judged > 0 {
		rate := float64(s.successOps) / float64(judged)
		if rate < s.thresholds.MinSuccessRate {
			report.Passed = false
			report.FailureReasons = append(report.FailureReasons,
				fmt.Sprintf("success rate %.3f below %.3f", rate, s.thresholds.MinSuccessRate))
		}
	}
	if s.thresholds.MaxP99LatencyMs > 0 && report.P99LatencyMs > s.thresholds.MaxP99LatencyMs {
		report.Passed = false
		report.FailureReasons = append(report.FailureReasons,
			fmt.Sprintf("p99 latency %dms above %dms", report.P99LatencyMs, s.thresholds.MaxP99LatencyMs))
	}
	if s.thresholds.MaxAutoDisable >= 0 && s.autoDisable > s.thresholds.MaxAutoDisable {
		report.Passed = false
		report.FailureReasons = append(report.FailureReasons,
			fmt.Sprintf("%d auto-disable events above %d", s.autoDisable, s.thresholds.MaxAutoDisable))
	}

	if s.baseline != "" && s.store != nil {
		if base := loadBaselineReport(ctx, s.store, s.baseline); base != nil {
			report.BaselineRunID = s.baseline
			report.LatencyImprovedMs = base.P50LatencyMs - report.P50LatencyMs
			report.Regression = report.P50LatencyMs > base.P50LatencyMs ||
				(base.Passed && !report.Passed)
		}
	}
	return report
}

func loadBaselineReport(ctx context.Context, store eventstore.Store, runID string) *eventstore.SoakReport {
	evts, err := store.GetByRunID(ctx, runID)
	if err != nil {
		slog.Debug("load baseline run", slog.String("run_id", runID), logfields.Error(err))
		return nil
	}
	for i := len(evts) - 1; i >= 0; i-- {
		if evts[i].Type() != "RunCompleted" {
			continue
		}
		var report eventstore.SoakReport
		if err := json.Unmarshal(evts[i].Payload(), &report); err == nil {
			return &report
		}
	}
	return nil
}

// percentile computes the pth percentile (nearest-rank) of ms samples.
func percentile(samples []int64, p int) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
