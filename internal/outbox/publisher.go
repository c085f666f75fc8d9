package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/observability"
)

type Store interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]domain.Event, error)
	MarkEventPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

const (
	pollInterval = 5 * time.Second
	batchSize    = 10
)

// Publisher drains the transactional outbox to the broker. Routing key
// is the event type; MessageId carries the dedupe key so consumers can
// drop replays after a crash between publish and mark.
type Publisher struct {
	store  Store
	broker Broker
	logger observability.Logger
}

func NewPublisher(store Store, broker Broker, logger observability.Logger) *Publisher {
	return &Publisher{store: store, broker: broker, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil {
				p.logger.WithError(err).Error("outbox drain failed")
			}
		}
	}
}

// Drain publishes one batch of pending events.
func (p *Publisher) Drain(ctx context.Context) error {
	events, err := p.store.UnpublishedEvents(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		observability.OutboxLag.Set(0)
		return nil
	}
	observability.OutboxLag.Set(time.Since(events[0].CreatedAt).Seconds())

	for _, e := range events {
		msg := amqp.Publishing{
			MessageId:   e.DedupeKey,
			ContentType: "application/json",
			Body:        e.Payload,
		}
		if err := p.broker.Publish(ctx, e.Type, msg); err != nil {
			p.logger.WithError(err).WithField("event_id", e.ID).Error("failed to publish event")
			continue
		}
		if err := p.store.MarkEventPublished(ctx, e.ID, time.Now()); err != nil {
			p.logger.WithError(err).WithField("event_id", e.ID).Error("failed to mark event published")
		}
	}
	return nil
}
