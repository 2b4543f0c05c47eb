package events

import (
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/gitcollab/core/internal/logfields"
)

// NATSSink republishes structured events to a NATS subject tree so
// out-of-process consumers (the desktop host's event emitter, soak
// monitors) can observe the engine without linking it. Subjects are
// <prefix>.<EventTypeName>; payloads are the canonical camelCase JSON.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink connects to url. An empty prefix defaults to "gitcollab.events".
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("gitcollab-core"))
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "gitcollab.events"
	}
	return &NATSSink{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

// Publish serializes evt and fires it at the type-named subject. Publish
// failures are logged at debug and never surface to the emitting task.
func (s *NATSSink) Publish(evt any) {
	if s == nil || s.conn == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Debug("marshal event for nats", logfields.Error(err))
		return
	}
	subject := s.prefix + "." + eventTypeName(evt)
	if err := s.conn.Publish(subject, payload); err != nil {
		slog.Debug("publish event to nats", slog.String("subject", subject), logfields.Error(err))
	}
}

// Close drains and closes the connection.
func (s *NATSSink) Close() {
	if s != nil && s.conn != nil {
		_ = s.conn.Drain()
	}
}

func eventTypeName(evt any) string {
	t := reflect.TypeOf(evt)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "Unknown"
	}
	return t.Name()
}

// FanoutSink publishes every event to each of its children in order.
type FanoutSink []Sink

func (f FanoutSink) Publish(evt any) {
	for _, s := range f {
		if s != nil {
			s.Publish(evt)
		}
	}
}
