package outbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/observability"
)

type fakeStore struct {
	pending   []domain.Event
	published []uuid.UUID
}

func (s *fakeStore) UnpublishedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) MarkEventPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	s.published = append(s.published, id)
	return nil
}

type fakeBroker struct {
	failKey string
	sent    []amqp.Publishing
	keys    []string
}

func (b *fakeBroker) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if key == b.failKey {
		return fmt.Errorf("broker unavailable")
	}
	b.sent = append(b.sent, msg)
	b.keys = append(b.keys, key)
	return nil
}

func TestDrain_PublishesAndMarks(t *testing.T) {
	store := &fakeStore{pending: []domain.Event{
		{
			ID:        uuid.New(),
			Type:      "booking.reserved",
			Payload:   []byte(`{"booking_id":"x"}`),
			DedupeKey: "x:reserved",
			CreatedAt: time.Now().Add(-time.Second),
		},
		{
			ID:        uuid.New(),
			Type:      "payment.failed",
			Payload:   []byte(`{"payment_id":"y"}`),
			DedupeKey: "y:failed",
			CreatedAt: time.Now(),
		},
	}}
	broker := &fakeBroker{}
	p := NewPublisher(store, broker, observability.NewLogger())

	if err := p.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(broker.sent) != 2 {
		t.Fatalf("published %d messages, want 2", len(broker.sent))
	}
	if broker.keys[0] != "booking.reserved" || broker.keys[1] != "payment.failed" {
		t.Errorf("routing keys = %v", broker.keys)
	}
	if broker.sent[0].MessageId != "x:reserved" {
		t.Errorf("MessageId = %q, want dedupe key", broker.sent[0].MessageId)
	}
	if len(store.published) != 2 {
		t.Errorf("marked %d events published, want 2", len(store.published))
	}
}

func TestDrain_KeepsEventOnBrokerFailure(t *testing.T) {
	failing := domain.Event{ID: uuid.New(), Type: "booking.reserved", DedupeKey: "a", CreatedAt: time.Now()}
	ok := domain.Event{ID: uuid.New(), Type: "booking.expired", DedupeKey: "b", CreatedAt: time.Now()}
	store := &fakeStore{pending: []domain.Event{failing, ok}}
	broker := &fakeBroker{failKey: "booking.reserved"}
	p := NewPublisher(store, broker, observability.NewLogger())

	if err := p.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(store.published) != 1 || store.published[0] != ok.ID {
		t.Errorf("published = %v, the failed event must stay NEW", store.published)
	}
}
