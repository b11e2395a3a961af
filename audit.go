package stepauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one observable step of a flow: a login, a step-up, an
// enrollment transition. Error holds a stable code, not free text.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Factor    string            `json:"factor,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a Go channel for in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit forwards the event, blocking until the channel accepts it or ctx
// is done.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per event to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a [JSONWriterSink] over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit writes the event as a single JSON line. Encoding failures are
// swallowed.
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = json.NewEncoder(s.writer).Encode(event)
}
