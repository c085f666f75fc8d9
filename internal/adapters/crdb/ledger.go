package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/sakan-app/sakan-backend/internal/booking"
	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/observability"
)

const (
	SerializationFailureCode = "40001"

	txRetries = 3
)

var activeStatuses = []string{
	string(domain.BookingPendingDeposit),
	string(domain.BookingReserved),
	string(domain.BookingPayingRemaining),
}

// Ledger is the CockroachDB booking ledger. Every transaction runs
// serializable and is retried a few times on conflict before the error
// surfaces.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) WithTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	timer := prometheus.NewTimer(observability.DBTxDuration)
	defer timer.ObserveDuration()

	var err error
	for attempt := 0; attempt < txRetries; attempt++ {
		err = l.runTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
	}
	return err
}

func (l *Ledger) runTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return markRetryable(err)
	}
	return markRetryable(tx.Commit(ctx))
}

func markRetryable(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return errors.Mark(err, domain.ErrSerializationFailure)
	}
	return err
}

// CreateProperty inserts a listing with its rooms. Used by the admin
// surface and by test seeding.
func (l *Ledger) CreateProperty(ctx context.Context, p *domain.Property) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO properties (id, status, price, discount_price, deposit, required_deposit, booked_units)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Status, p.Price, p.DiscountPrice, p.Deposit, p.RequiredDeposit, p.BookedUnits)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, room := range p.Rooms {
		i, room := i, room
		g.Go(func() error {
			_, err := l.pool.Exec(gctx, `
				INSERT INTO property_rooms (property_id, idx, price, bed_price, beds)
				VALUES ($1, $2, $3, $4, $5)
			`, p.ID, i, room.Price, room.BedPrice, room.Beds)
			return err
		})
	}
	return g.Wait()
}

// DueBookings lists bookings the sweeper should retire: still awaiting
// a payment and past their deadline.
func (l *Ledger) DueBookings(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id FROM bookings
		WHERE status = ANY($1) AND second_paid = false AND expires_at <= $2
		ORDER BY expires_at ASC LIMIT $3
	`, activeStatuses, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ledgerTx adapts one open pgx transaction to the booking transaction
// contract.
type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	p := &domain.Property{ID: id}
	err := t.tx.QueryRow(ctx, `
		SELECT status, price, discount_price, deposit, required_deposit, booked_units
		FROM properties WHERE id = $1
	`, id).Scan(&p.Status, &p.Price, &p.DiscountPrice, &p.Deposit, &p.RequiredDeposit, &p.BookedUnits)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "property %s", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT price, bed_price, beds
		FROM property_rooms WHERE property_id = $1 ORDER BY idx ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.Price, &room.BedPrice, &room.Beds); err != nil {
			return nil, err
		}
		p.Rooms = append(p.Rooms, room)
	}
	return p, rows.Err()
}

func (t *ledgerTx) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b := &domain.Booking{ID: id}
	err := t.tx.QueryRow(ctx, `
		SELECT user_id, property_id, selections, is_whole,
		       total_price, total_commission, deposit_amount, remaining_amount, deposit_paid,
		       first_paid, second_paid, status, expires_at, expired_at,
		       user_name, user_email, user_phone, created_at
		FROM bookings WHERE id = $1
	`, id).Scan(&b.UserID, &b.PropertyID, &b.Selections, &b.IsWhole,
		&b.TotalPrice, &b.TotalCommission, &b.DepositAmount, &b.RemainingAmount, &b.DepositPaid,
		&b.FirstPaid, &b.SecondPaid, &b.Status, &b.ExpiresAt, &b.ExpiredAt,
		&b.UserInfo.Name, &b.UserInfo.Email, &b.UserInfo.Phone, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (t *ledgerTx) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p := &domain.Payment{ID: id}
	err := t.tx.QueryRow(ctx, `
		SELECT booking_id, user_id, type, amount, status, external_id, paid_at, created_at
		FROM payments WHERE id = $1
	`, id).Scan(&p.BookingID, &p.UserID, &p.Type, &p.Amount, &p.Status, &p.ExternalID, &p.PaidAt, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "payment %s", id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (t *ledgerTx) ActiveBooking(ctx context.Context, userID, propertyID uuid.UUID) (*domain.Booking, error) {
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, `
		SELECT id FROM bookings
		WHERE user_id = $1 AND property_id = $2 AND status = ANY($3)
		ORDER BY created_at DESC LIMIT 1
	`, userID, propertyID, activeStatuses).Scan(&id)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.GetBooking(ctx, id)
}

func (t *ledgerTx) PutBooking(ctx context.Context, b *domain.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (id, user_id, property_id, selections, is_whole,
			total_price, total_commission, deposit_amount, remaining_amount, deposit_paid,
			first_paid, second_paid, status, expires_at, expired_at,
			user_name, user_email, user_phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			selections = excluded.selections,
			deposit_paid = excluded.deposit_paid,
			first_paid = excluded.first_paid,
			second_paid = excluded.second_paid,
			status = excluded.status,
			expires_at = excluded.expires_at,
			expired_at = excluded.expired_at
	`, b.ID, b.UserID, b.PropertyID, b.Selections, b.IsWhole,
		b.TotalPrice, b.TotalCommission, b.DepositAmount, b.RemainingAmount, b.DepositPaid,
		b.FirstPaid, b.SecondPaid, b.Status, b.ExpiresAt, b.ExpiredAt,
		b.UserInfo.Name, b.UserInfo.Email, b.UserInfo.Phone, b.CreatedAt)
	return err
}

func (t *ledgerTx) PutPayment(ctx context.Context, p *domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (id, booking_id, user_id, type, amount, status, external_id, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			external_id = excluded.external_id,
			paid_at = excluded.paid_at
	`, p.ID, p.BookingID, p.UserID, p.Type, p.Amount, p.Status, p.ExternalID, p.PaidAt, p.CreatedAt)
	return err
}

func (t *ledgerTx) UpdateProperty(ctx context.Context, p *domain.Property) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE properties SET status = $2, booked_units = $3 WHERE id = $1
	`, p.ID, p.Status, p.BookedUnits)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "property %s", p.ID)
	}
	return nil
}
