package eventstore

import (
	"encoding/json"
	"testing"
)

const testRunID = "run-123"

func TestEventSerialization(t *testing.T) {
	runID := testRunID

	tests := []struct {
		name      string
		createFn  func() (Event, error)
		eventType string
	}{
		{
			name: "RunStarted",
			createFn: func() (Event, error) {
				return NewRunStarted(runID, RunStartedMeta{Label: "nightly", TargetOp: "clone"})
			},
			eventType: "RunStarted",
		},
		{
			name: "OperationRecorded",
			createFn: func() (Event, error) {
				return NewOperationRecorded(runID, OperationRecordedMeta{Kind: "clone", Success: true, DurationMs: 120})
			},
			eventType: "OperationRecorded",
		},
		{
			name: "FallbackRecorded",
			createFn: func() (Event, error) {
				return NewFallbackRecorded(runID, FallbackRecordedMeta{Host: "example.com", From: "fake", To: "real", Reason: "handshake timeout"})
			},
			eventType: "FallbackRecorded",
		},
		{
			name: "AutoDisableRecorded",
			createFn: func() (Event, error) {
				return NewAutoDisableRecorded(runID, AutoDisableRecordedMeta{Host: "example.com", Enabled: true})
			},
			eventType: "AutoDisableRecorded",
		},
		{
			name: "IPPoolEventRecorded",
			createFn: func() (Event, error) {
				return NewIPPoolEventRecorded(runID, IPPoolEventMeta{Host: "example.com", Strategy: "cached", Success: true})
			},
			eventType: "IPPoolEventRecorded",
		},
		{
			name: "ProxyEventRecorded",
			createFn: func() (Event, error) {
				return NewProxyEventRecorded(runID, ProxyEventMeta{Kind: "fallback", Success: false})
			},
			eventType: "ProxyEventRecorded",
		},
		{
			name: "CertFpEventRecorded",
			createFn: func() (Event, error) {
				return NewCertFpEventRecorded(runID, CertFpEventMeta{Host: "example.com", Changed: true, Pinned: true})
			},
			eventType: "CertFpEventRecorded",
		},
		{
			name: "RunCompleted",
			createFn: func() (Event, error) {
				return NewRunCompleted(runID, SoakReport{TotalOps: 10, SuccessOps: 9, FailedOps: 1, Passed: true})
			},
			eventType: "RunCompleted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := tt.createFn()
			if err != nil {
				t.Fatalf("failed to create event: %v", err)
			}

			if event.RunID() != runID {
				t.Errorf("expected run_id %s, got %s", runID, event.RunID())
			}
			if event.Type() != tt.eventType {
				t.Errorf("expected event_type %s, got %s", tt.eventType, event.Type())
			}
			if event.Timestamp().IsZero() {
				t.Error("timestamp should not be zero")
			}

			payload := event.Payload()
			if len(payload) == 0 {
				t.Error("payload should not be empty")
			}

			var data map[string]any
			if err := json.Unmarshal(payload, &data); err != nil {
				t.Errorf("failed to unmarshal payload: %v", err)
			}
		})
	}
}

func TestRunStartedFields(t *testing.T) {
	meta := RunStartedMeta{Label: "nightly", TargetOp: "fetch"}

	event, err := NewRunStarted(testRunID, meta)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	if event.Meta.Label != meta.Label {
		t.Errorf("expected label %s, got %s", meta.Label, event.Meta.Label)
	}
	if event.Meta.TargetOp != meta.TargetOp {
		t.Errorf("expected targetOp %s, got %s", meta.TargetOp, event.Meta.TargetOp)
	}
}

func TestOperationRecordedFields(t *testing.T) {
	meta := OperationRecordedMeta{Kind: "push", Category: "network", Success: false, DurationMs: 450}

	event, err := NewOperationRecorded(testRunID, meta)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	if event.Meta.Kind != meta.Kind {
		t.Errorf("expected kind %s, got %s", meta.Kind, event.Meta.Kind)
	}
	if event.Meta.Success {
		t.Error("expected success=false")
	}
	if event.Meta.DurationMs != meta.DurationMs {
		t.Errorf("expected durationMs %d, got %d", meta.DurationMs, event.Meta.DurationMs)
	}
}

func TestRunCompletedFields(t *testing.T) {
	report := SoakReport{TotalOps: 100, SuccessOps: 95, FailedOps: 5, Passed: true, P99LatencyMs: 340}

	event, err := NewRunCompleted(testRunID, report)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	if event.Report.TotalOps != report.TotalOps {
		t.Errorf("expected totalOps %d, got %d", report.TotalOps, event.Report.TotalOps)
	}
	if !event.Report.Passed {
		t.Error("expected passed=true")
	}
}
