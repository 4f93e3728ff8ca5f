package repository

import (
	"context"
	"fmt"

	"FinRange/internal/domain/models"
	domrepo "FinRange/internal/domain/repository"
	pkgkafka "FinRange/pkg/kafka"
)

const (
	EventRecordCreated  = "expected_move.created"
	EventWeeklyReplaced = "weekly_moves.replaced"
)

// PublisherTopics names the destination topics.
type PublisherTopics struct {
	Records string
	Weekly  string
}

// KafkaPublisher emits records and weekly rows keyed by symbol so one
// contract's events stay ordered within a partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topics   PublisherTopics
}

func NewKafkaPublisher(p *pkgkafka.Producer, topics PublisherTopics) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topics: topics}
}

func (p *KafkaPublisher) PublishRecord(ctx context.Context, r models.ExpectedMoveRecord) error {
	return p.publish(ctx, p.topics.Records, r.Symbol, EventRecordCreated, r)
}

func (p *KafkaPublisher) PublishWeekly(ctx context.Context, w models.WeeklyExpectedMoves) error {
	return p.publish(ctx, p.topics.Weekly, w.Symbol, EventWeeklyReplaced, w)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, symbol, event string, v interface{}) error {
	err := p.producer.PublishBatch(ctx, topic, []pkgkafka.Message{{
		Key:     []byte(symbol),
		Value:   v,
		Headers: map[string]string{"event_type": event},
	}})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", event, symbol, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.producer.Close() }

// NopPublisher drops events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishRecord(context.Context, models.ExpectedMoveRecord) error  { return nil }
func (NopPublisher) PublishWeekly(context.Context, models.WeeklyExpectedMoves) error { return nil }
func (NopPublisher) Close() error                                                    { return nil }

var (
	_ domrepo.Publisher = (*KafkaPublisher)(nil)
	_ domrepo.Publisher = NopPublisher{}
)
