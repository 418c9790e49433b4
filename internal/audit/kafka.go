package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used by KafkaSink.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
}

// KafkaSink publishes events as JSON records keyed by user id. Delivery is
// asynchronous; failures are reported through onError.
type KafkaSink struct {
	producer Producer
	topic    string
	onError  func(Event, error)
}

// NewKafkaSink returns a sink producing to topic. onError may be nil.
func NewKafkaSink(producer Producer, topic string, onError func(Event, error)) (*KafkaSink, error) {
	if producer == nil {
		return nil, errors.New("kafka producer required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic required")
	}
	if onError == nil {
		onError = func(Event, error) {}
	}
	return &KafkaSink{producer: producer, topic: topic, onError: onError}, nil
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		s.onError(event, err)
		return
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if event.UserID != "" {
		rec.Key = []byte(event.UserID)
	}
	s.producer.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		if err != nil {
			s.onError(event, err)
		}
	})
}

// Flush blocks until buffered records are delivered or ctx ends.
func (s *KafkaSink) Flush(ctx context.Context) error {
	return s.producer.Flush(ctx)
}
