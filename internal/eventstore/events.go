package eventstore

import (
	"encoding/json"
	"time"
)

// RunStartedMeta carries the identifying metadata for a soak run.
type RunStartedMeta struct {
	Label    string `json:"label"`
	TargetOp string `json:"targetOp,omitempty"`
}

// RunStarted is emitted when a soak run begins.
type RunStarted struct {
	BaseEvent
	Meta RunStartedMeta `json:"meta"`
}

// NewRunStarted creates a RunStarted event.
func NewRunStarted(runID string, meta RunStartedMeta) (*RunStarted, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, ErrMarshalPayloadFailed
	}
	return &RunStarted{
		BaseEvent: BaseEvent{EventRunID: runID, EventType: "RunStarted", EventTimestamp: time.Now(), EventPayload: payload},
		Meta:      meta,
	}, nil
}

// OperationRecordedMeta is one Git task's outcome as observed by the soak
// harness.
type OperationRecordedMeta struct {
	Kind       string `json:"kind"`
	Category   string `json:"category,omitempty"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"durationMs"`
}

// OperationRecorded is emitted once per completed or failed task; canceled
// tasks are not recorded.
type OperationRecorded struct {
	BaseEvent
	Meta OperationRecordedMeta `json:"meta"`
}

func NewOperationRecorded(runID string, meta OperationRecordedMeta) (*OperationRecorded, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, ErrMarshalPayloadFailed
	}
	return &OperationRecorded{
		BaseEvent: BaseEvent{EventRunID: runID, EventType: "OperationRecorded", EventTimestamp: time.Now(), EventPayload: payload},
		Meta:      meta,
	}, nil
}

// FallbackRecordedMeta is one adaptive-TLS stage transition.
type FallbackRecordedMeta struct {
	Host   string `json:"host"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// FallbackRecorded is emitted for every AdaptiveTlsFallback observed.
type FallbackRecorded struct {
	BaseEvent
	Meta FallbackRecordedMeta `json:"meta"`
}

func NewFallbackRecorded(runID string, meta FallbackRecordedMeta) (*FallbackRecorded, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, ErrMarshalPayloadFailed
	}
	return &FallbackRecorded{
		BaseEvent: BaseEvent{EventRunID: runID, EventType: "FallbackRecorded", EventTimestamp: time.Now(), EventPayload: payload},
		Meta:      meta,
	}, nil
}

// AutoDisableRecordedMeta is one auto-disable enable/disable transition.
type AutoDisableRecordedMeta struct {
	Host    string `json:"host"`
	Enabled bool   `json:"enabled"`
}

type AutoDisableRecorded struct {
	BaseEvent
	Meta AutoDisableRecordedMeta `json:"meta"`
}

func NewAutoDisableRecorded(runID string, meta AutoDisableRecordedMeta) (*AutoDisableRecorded, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, ErrMarshalPayloadFailed
	}
	return &AutoDisableRecorded{
		BaseEvent: BaseEvent{EventRunID: runID, EventType: "AutoDisableRecorded", EventTimestamp: time.Now(), EventPayload: payload},
		Meta:      meta,
	}, nil
}

// IPPoolEventMeta is one ip-pool selection or refresh outcome.
type IPPoolEventMeta struct {
	Host      string `json:"host"`
	Strategy  string `json:"strategy"`
	Refreshed bool   `json:"refreshed"`
	Success   bool   `json:"success"`
}

type IPPoolEventRecorded struct {
	BaseEvent
	Meta IPPoolEventMeta `json:"meta"`
}

func NewIPPoolEventRecorded(runID string, meta IPPoolEventMeta) (*IPPoolEventRecorded, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, ErrMarshalPayloadFailed
	}
	return &IPPoolEventRecorded{
		BaseEvent: BaseEvent{EventRunID: runID, EventType: "IPPoolEventRecorded", EventTimestamp: time.Now(), EventPayload: payload},
		Meta:      meta,
	}, nil
}

// ProxyEventMeta is one proxy state transition, fallback, or health check.
type ProxyEventMeta struct {
	Kind    string `json:"kind"` // state|fallback|recovered|healthcheck
	Detail  string `json:"detail,omitempty"`
	Success bool   `json:"success"`
}

type ProxyEventRecorded struct {
	BaseEvent
	Meta ProxyEventMeta `json:"meta"`
}

func NewProxyEventRecorded(runID string, meta ProxyEventMeta) (*ProxyEventRecorded, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, ErrMarshalPayloadFailed
	}
	return &ProxyEventRecorded{
		BaseEvent: BaseEvent{EventRunID: runID, EventType: "ProxyEventRecorded", EventTimestamp: time.Now(), EventPayload: payload},
		Meta:      meta,
	}, nil
}

// CertFpEventMeta is a cert-fingerprint change or pin mismatch.
type CertFpEventMeta struct {
	Host     string `json:"host"`
	Changed  bool   `json:"changed"`
	Pinned   bool   `json:"pinned"`
	Mismatch bool   `json:"mismatch"`
}

type CertFpEventRecorded struct {
	BaseEvent
	Meta CertFpEventMeta `json:"meta"`
}

func NewCertFpEventRecorded(runID string, meta CertFpEventMeta) (*CertFpEventRecorded, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, ErrMarshalPayloadFailed
	}
	return &CertFpEventRecorded{
		BaseEvent: BaseEvent{EventRunID: runID, EventType: "CertFpEventRecorded", EventTimestamp: time.Now(), EventPayload: payload},
		Meta:      meta,
	}, nil
}

// SoakReport is the pass/fail threshold summary and optional baseline
// comparison computed when a soak run completes.
type SoakReport struct {
	TotalOps          int      `json:"totalOps"`
	SuccessOps        int      `json:"successOps"`
	FailedOps         int      `json:"failedOps"`
	FallbackCount     int      `json:"fallbackCount"`
	AutoDisableCount  int      `json:"autoDisableCount"`
	P50LatencyMs      int64    `json:"p50LatencyMs"`
	P99LatencyMs      int64    `json:"p99LatencyMs"`
	Passed            bool     `json:"passed"`
	FailureReasons    []string `json:"failureReasons,omitempty"`
	BaselineRunID     string   `json:"baselineRunId,omitempty"`
	LatencyImprovedMs int64    `json:"latencyImprovedMs,omitempty"`
	Regression        bool     `json:"regression,omitempty"`
}

// RunCompleted is emitted when a soak run finishes, carrying its report.
type RunCompleted struct {
	BaseEvent
	Report SoakReport `json:"report"`
}

func NewRunCompleted(runID string, report SoakReport) (*RunCompleted, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, ErrMarshalPayloadFailed
	}
	return &RunCompleted{
		BaseEvent: BaseEvent{EventRunID: runID, EventType: "RunCompleted", EventTimestamp: time.Now(), EventPayload: payload},
		Report:    report,
	}, nil
}
