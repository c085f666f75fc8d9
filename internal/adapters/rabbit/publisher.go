package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher fans booking lifecycle events out on a topic exchange.
// Routing keys follow the outbox event type (booking.reserved,
// payment.failed, ...), so downstream consumers bind to the slice they
// care about.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare("sakan.events", "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, "sakan.events", key, false, false, msg)
}
