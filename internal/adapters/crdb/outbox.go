package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sakan-app/sakan-backend/internal/domain"
)

func (t *ledgerTx) InsertEvent(ctx context.Context, e domain.Event) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, e.ID, e.AggregateType, e.AggregateID, e.Type, e.Payload, e.DedupeKey)
	return err
}

func (l *Ledger) UnpublishedEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.CreatedAt, &e.PublishedAt, &e.Status, &e.DedupeKey)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (l *Ledger) MarkEventPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}
