package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Category groups audit events by the concern they record.
type Category string

const (
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryUserManagement Category = "USER_MANAGEMENT"
	CategoryAuthorization  Category = "AUTHORIZATION"
	CategoryDataAccess     Category = "DATA_ACCESS"
	CategorySecurity       Category = "SECURITY"
)

// Valid reports whether c is one of the closed set of categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryAuthentication, CategoryUserManagement, CategoryAuthorization,
		CategoryDataAccess, CategorySecurity:
		return true
	}
	return false
}

// Event is the audit record handed to sinks.
type Event struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	UserID     string            `json:"userId,omitempty"`
	UserRole   string            `json:"userRole,omitempty"`
	UserEmail  string            `json:"userEmail,omitempty"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resourceId,omitempty"`
	Success    bool              `json:"success"`
	Category   Category          `json:"category"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`

	// Critical events are never shed by a Dispatcher and do not give up when
	// the emitting request's context ends.
	Critical bool `json:"-"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
}

// MultiSink forwards each event to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
