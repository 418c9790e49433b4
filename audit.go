package medAuth

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/medAuth/internal/audit"
	"github.com/twmb/franz-go/pkg/kgo"
)

// AuditEvent is the structured record handed to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditCategory classifies audit events.
type AuditCategory = internalaudit.Category

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = internalaudit.Sink

// ChannelSink buffers events in a channel; useful for tests and in-process consumers.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// KafkaSink publishes events to a Kafka topic keyed by user id.
type KafkaSink = internalaudit.KafkaSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

const (
	CategoryAuthentication = internalaudit.CategoryAuthentication
	CategoryUserManagement = internalaudit.CategoryUserManagement
	CategoryAuthorization  = internalaudit.CategoryAuthorization
	CategoryDataAccess     = internalaudit.CategoryDataAccess
	CategorySecurity       = internalaudit.CategorySecurity
)

// NewChannelSink returns a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewKafkaSink returns a sink producing to topic through client. onError
// receives delivery failures and may be nil.
func NewKafkaSink(client *kgo.Client, topic string, onError func(AuditEvent, error)) (*KafkaSink, error) {
	if client == nil {
		return internalaudit.NewKafkaSink(nil, topic, onError)
	}
	return internalaudit.NewKafkaSink(client, topic, onError)
}

// FlushAudit blocks until sinks that buffer internally, such as KafkaSink,
// have delivered what they hold.
func FlushAudit(ctx context.Context, sink AuditSink) error {
	type flusher interface {
		Flush(context.Context) error
	}
	if f, ok := sink.(flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}
