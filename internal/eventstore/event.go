// Package eventstore provides durable, queryable persistence for the
// soak-test harness (C10's soak aggregator): per-run rollups of operation
// counts, transport timings, fallback/auto-disable totals, ip-pool and
// proxy activity, and cert-fingerprint events, so a run can be compared
// against a baseline offline.
package eventstore

import "time"

// Event is one durable record belonging to a soak run.
type Event interface {
	// ID returns the store-assigned identifier for this event.
	ID() int64
	// RunID returns the soak run this event belongs to.
	RunID() string
	// Type returns the event type name.
	Type() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
	// Payload returns the event data as JSON bytes.
	Payload() []byte
	// Metadata returns optional event metadata.
	Metadata() map[string]string
}

// BaseEvent provides the default Event implementation.
type BaseEvent struct {
	EventID        int64
	EventRunID     string
	EventType      string
	EventTimestamp time.Time
	EventPayload   []byte
	EventMetadata  map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) RunID() string                { return e.EventRunID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
