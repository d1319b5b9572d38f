package repository

import (
	"context"

	"SwingScan/internal/domain/models"
	pkgkafka "SwingScan/pkg/kafka"
)

// KafkaSink publishes setup lifecycle events to a Kafka topic. Messages are
// keyed by symbol:timeframe so transitions for one setup stay ordered.
type KafkaSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSink creates a sink over an existing producer.
func NewKafkaSink(producer *pkgkafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, ev *models.SetupEvent) error {
	return s.producer.Publish(ctx, s.topic, []byte(ev.Record.Key()), ev)
}

func (s *KafkaSink) PublishBatch(ctx context.Context, evs []*models.SetupEvent) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(evs))
	for _, ev := range evs {
		msgs = append(msgs, pkgkafka.Message{Key: []byte(ev.Record.Key()), Value: ev})
	}
	return s.producer.PublishBatch(ctx, s.topic, msgs)
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
