package eventstore

import (
	"context"
	"testing"
)

func TestSoakRunProjection_ApplyEvents(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewSoakRunProjection(store, 10)

	runID := "run-123"
	startEvent, err := NewRunStarted(runID, RunStartedMeta{Label: "nightly"})
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(startEvent)

	summary, exists := projection.GetRun(runID)
	if !exists {
		t.Fatal("Expected run to exist")
	}
	if summary.Status != "running" {
		t.Errorf("Expected status 'running', got %q", summary.Status)
	}
	if summary.Label != "nightly" {
		t.Errorf("Expected label 'nightly', got %q", summary.Label)
	}

	opEvent, err := NewOperationRecorded(runID, OperationRecordedMeta{Kind: "clone", Success: true, DurationMs: 120})
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(opEvent)

	summary, _ = projection.GetRun(runID)
	if summary.OperationCount != 1 {
		t.Errorf("Expected operation count 1, got %d", summary.OperationCount)
	}

	fallbackEvent, err := NewFallbackRecorded(runID, FallbackRecordedMeta{Host: "example.com", From: "fake", To: "real"})
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(fallbackEvent)

	summary, _ = projection.GetRun(runID)
	if summary.FallbackCount != 1 {
		t.Errorf("Expected fallback count 1, got %d", summary.FallbackCount)
	}

	completeEvent, err := NewRunCompleted(runID, SoakReport{TotalOps: 1, SuccessOps: 1, Passed: true})
	if err != nil {
		t.Fatalf("Failed to create event: %v", err)
	}
	projection.Apply(completeEvent)

	summary, _ = projection.GetRun(runID)
	if summary.Status != "completed" {
		t.Errorf("Expected status 'completed', got %q", summary.Status)
	}
	if summary.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}
	if summary.Report == nil || !summary.Report.Passed {
		t.Error("Expected report with passed=true")
	}

	history := projection.GetHistory()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	if history[0].RunID != runID {
		t.Errorf("Expected run ID %q, got %q", runID, history[0].RunID)
	}
}

func TestSoakRunProjection_RunFailed(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewSoakRunProjection(store, 10)

	runID := "run-failed"
	startEvent, _ := NewRunStarted(runID, RunStartedMeta{})
	projection.Apply(startEvent)

	failEvent, _ := NewRunCompleted(runID, SoakReport{TotalOps: 10, FailedOps: 10, Passed: false, FailureReasons: []string{"auto-disable triggered"}})
	projection.Apply(failEvent)

	summary, exists := projection.GetRun(runID)
	if !exists {
		t.Fatal("Expected run to exist")
	}
	if summary.Status != "failed" {
		t.Errorf("Expected status 'failed', got %q", summary.Status)
	}
	if summary.Report == nil || summary.Report.Passed {
		t.Error("Expected report with passed=false")
	}
}

func TestSoakRunProjection_Rebuild(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	runID := "run-rebuild-test"
	startEvent, _ := NewRunStarted(runID, RunStartedMeta{Label: "soak"})
	if err := store.Append(ctx, runID, startEvent.Type(), startEvent.Payload(), nil); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	opEvent, _ := NewOperationRecorded(runID, OperationRecordedMeta{Kind: "fetch", Success: true, DurationMs: 50})
	if err := store.Append(ctx, runID, opEvent.Type(), opEvent.Payload(), nil); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	completeEvent, _ := NewRunCompleted(runID, SoakReport{TotalOps: 1, SuccessOps: 1, Passed: true})
	if err := store.Append(ctx, runID, completeEvent.Type(), completeEvent.Payload(), nil); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	projection := NewSoakRunProjection(store, 10)
	if err := projection.Rebuild(ctx); err != nil {
		t.Fatalf("Failed to rebuild: %v", err)
	}

	summary, exists := projection.GetRun(runID)
	if !exists {
		t.Fatal("Expected run to exist after rebuild")
	}
	if summary.Status != "completed" {
		t.Errorf("Expected status 'completed', got %q", summary.Status)
	}
	if summary.OperationCount != 1 {
		t.Errorf("Expected operation count 1, got %d", summary.OperationCount)
	}

	history := projection.GetHistory()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
}

func TestSoakRunProjection_HistoryLimit(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewSoakRunProjection(store, 3)

	for i := 0; i < 5; i++ {
		runID := "run-" + string(rune('a'+i))
		startEvent, _ := NewRunStarted(runID, RunStartedMeta{})
		projection.Apply(startEvent)

		completeEvent, _ := NewRunCompleted(runID, SoakReport{Passed: true})
		projection.Apply(completeEvent)
	}

	history := projection.GetHistory()
	if len(history) != 3 {
		t.Errorf("Expected history length 3, got %d", len(history))
	}
}

func TestSoakRunProjection_GetActiveRun(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	projection := NewSoakRunProjection(store, 10)

	active := projection.GetActiveRun()
	if active != nil {
		t.Error("Expected no active run initially")
	}

	startEvent, _ := NewRunStarted("active-run", RunStartedMeta{})
	projection.Apply(startEvent)

	active = projection.GetActiveRun()
	if active == nil {
		t.Fatal("Expected active run")
	}
	if active.RunID != "active-run" {
		t.Errorf("Expected run ID 'active-run', got %q", active.RunID)
	}

	completeEvent, _ := NewRunCompleted("active-run", SoakReport{Passed: true})
	projection.Apply(completeEvent)

	active = projection.GetActiveRun()
	if active != nil {
		t.Error("Expected no active run after completion")
	}
}
