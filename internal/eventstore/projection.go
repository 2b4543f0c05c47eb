// Package eventstore provides event sourcing primitives for soak-run tracking.
package eventstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	runStatusRunning   = "running"
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
)

// SoakRunSummary is a read model summarizing a completed or in-progress soak run.
type SoakRunSummary struct {
	RunID         string        `json:"run_id"`
	Label         string        `json:"label,omitempty"`
	Status        string        `json:"status"` // "running", "completed", "failed"
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	OperationCount int          `json:"operation_count"`
	FallbackCount  int          `json:"fallback_count"`
	AutoDisableCount int        `json:"auto_disable_count"`
	// Report is populated from the RunCompleted event.
	Report *SoakReport `json:"report,omitempty"`
}

// SoakRunProjection maintains an in-memory view of soak-run history,
// reconstructed from events stored in the event store.
type SoakRunProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*SoakRunSummary // runID -> summary
	history  []*SoakRunSummary          // ordered by start time, newest first
	maxSize  int
	lastSync time.Time
}

// NewSoakRunProjection creates a new projection backed by the given store.
func NewSoakRunProjection(store Store, maxHistorySize int) *SoakRunProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &SoakRunProjection{
		store:   store,
		runs:    make(map[string]*SoakRunSummary),
		history: make([]*SoakRunSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
// This is typically called at startup.
func (p *SoakRunProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*SoakRunSummary)
	p.history = make([]*SoakRunSummary, 0, p.maxSize)

	for _, event := range events {
		p.applyEventLocked(event)
	}

	p.sortHistoryLocked()

	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}

	p.pruneRunsLocked()

	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection. This is used
// for real-time updates when events are emitted during a live run.
func (p *SoakRunProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *SoakRunProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" || runID == "unknown" {
		return
	}

	summary, exists := p.runs[runID]
	if !exists {
		summary = &SoakRunSummary{
			RunID:     runID,
			Status:    runStatusRunning,
			StartedAt: event.Timestamp(),
		}
		p.runs[runID] = summary
	}

	switch event.Type() {
	case "RunStarted":
		summary.StartedAt = event.Timestamp()
		summary.Status = runStatusRunning
		var payload struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Label = payload.Label
		}

	case "OperationRecorded":
		summary.OperationCount++

	case "FallbackRecorded":
		summary.FallbackCount++

	case "AutoDisableRecorded":
		var payload struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil && payload.Enabled {
			summary.AutoDisableCount++
		}

	case "RunCompleted":
		now := event.Timestamp()
		summary.CompletedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		var report SoakReport
		if err := json.Unmarshal(event.Payload(), &report); err == nil {
			summary.Report = &report
			if report.Passed {
				summary.Status = runStatusCompleted
			} else {
				summary.Status = runStatusFailed
			}
		} else {
			summary.Status = runStatusCompleted
		}
		p.addToHistoryLocked(summary)
	}
}

// addToHistoryLocked adds a completed run to history if not already present.
func (p *SoakRunProjection) addToHistoryLocked(summary *SoakRunSummary) {
	for _, h := range p.history {
		if h.RunID == summary.RunID {
			return
		}
	}

	p.history = append([]*SoakRunSummary{summary}, p.history...)

	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}

	p.pruneRunsLocked()
}

// pruneRunsLocked removes completed runs not present in the bounded history.
// It keeps any runs that are still marked as running. Caller must hold p.mu.
func (p *SoakRunProjection) pruneRunsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		if h != nil {
			keep[h.RunID] = struct{}{}
		}
	}

	for id, summary := range p.runs {
		if summary != nil && summary.Status == runStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// sortHistoryLocked sorts history by start time, newest first.
func (p *SoakRunProjection) sortHistoryLocked() {
	for i := 1; i < len(p.history); i++ {
		for j := i; j > 0 && p.history[j].StartedAt.After(p.history[j-1].StartedAt); j-- {
			p.history[j], p.history[j-1] = p.history[j-1], p.history[j]
		}
	}
}

// GetHistory returns the run history, newest first.
func (p *SoakRunProjection) GetHistory() []*SoakRunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*SoakRunSummary, len(p.history))
	copy(result, p.history)
	return result
}

// GetRun returns the summary for a specific run.
func (p *SoakRunProjection) GetRun(runID string) (*SoakRunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.runs[runID]
	if !exists {
		return nil, false
	}

	cp := *summary
	return &cp, true
}

// GetActiveRun returns a currently running soak run if any.
func (p *SoakRunProjection) GetActiveRun() *SoakRunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, summary := range p.runs {
		if summary.Status == runStatusRunning {
			cp := *summary
			return &cp
		}
	}
	return nil
}

// GetLastCompletedRun returns the most recently completed run (pass or fail).
func (p *SoakRunProjection) GetLastCompletedRun() *SoakRunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.history) == 0 {
		return nil
	}

	cp := *p.history[0]
	return &cp
}

// LastSyncTime returns when the projection was last synchronized.
func (p *SoakRunProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
