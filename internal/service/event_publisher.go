package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/pkg/kafka"
	"github.com/prachya-t/ticket-reserve/pkg/logger"
)

// EventPublisher publishes reservation lifecycle events after commit.
// Publishing is fire-and-forget: a broker outage never fails a booking.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.ReservationEvent)
}

// KafkaEventPublisher publishes lifecycle events to a Kafka topic, keyed by
// event id so one event's history stays in partition order.
type KafkaEventPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaEventPublisher creates a new KafkaEventPublisher
func NewKafkaEventPublisher(producer *kafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

// Publish sends the event asynchronously, logging delivery failures
func (p *KafkaEventPublisher) Publish(ctx context.Context, event *domain.ReservationEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	eventType := string(event.EventType)
	err := p.producer.ProduceAsync(ctx, p.topic, event.EventID, event, func(err error) {
		logger.Get().Warn("failed to deliver lifecycle event",
			zap.String("event_type", eventType),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	})
	if err != nil {
		logger.Get().Warn("failed to publish lifecycle event",
			zap.String("event_type", eventType),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

// NoOpEventPublisher discards events; used in tests and when Kafka is disabled
type NoOpEventPublisher struct{}

// Publish does nothing
func (NoOpEventPublisher) Publish(context.Context, *domain.ReservationEvent) {}

var (
	_ EventPublisher = (*KafkaEventPublisher)(nil)
	_ EventPublisher = NoOpEventPublisher{}
)
