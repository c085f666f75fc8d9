package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sakan-app/sakan-backend/internal/booking"
	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/observability"
)

// Ledger adds the due-booking listing to the transactional contract.
type Ledger interface {
	booking.Ledger
	DueBookings(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Locker drops the short-lived unit locks of a retired booking.
type Locker interface {
	ReleaseUnits(ctx context.Context, propertyID uuid.UUID, units []string) error
}

const sweepBatch = 100

// Sweeper retires bookings whose payment deadline passed: the booking
// becomes EXPIRED, merged units return to the property's inventory and
// the unit locks are dropped. One pass retires every due booking in a
// single transaction; on conflict nothing commits and the next pass
// picks the batch up again.
type Sweeper struct {
	ledger Ledger
	locks  Locker
	logger observability.Logger
	now    func() time.Time
}

func NewSweeper(ledger Ledger, locks Locker, logger observability.Logger) *Sweeper {
	return &Sweeper{ledger: ledger, locks: locks, logger: logger, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.WithError(err).Error("sweep failed")
			}
		}
	}
}

type lockRelease struct {
	propertyID uuid.UUID
	units      []string
}

// Sweep runs one pass over the due bookings. All of them are retired in
// a single transaction; a conflict rolls the whole batch back and no
// booking is retried on its own.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.now()
	due, err := s.ledger.DueBookings(ctx, now, sweepBatch)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var releases []lockRelease
	err = s.ledger.WithTx(ctx, func(tx booking.Tx) error {
		releases = releases[:0]
		for _, id := range due {
			r, err := s.expire(ctx, tx, id, now)
			if err != nil {
				return err
			}
			if r != nil {
				releases = append(releases, *r)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, r := range releases {
		observability.BookingsExpired.Inc()
		if err := s.locks.ReleaseUnits(ctx, r.propertyID, r.units); err != nil {
			// Locks decay on their own TTL, only the eager release failed.
			s.logger.WithError(err).WithField("property_id", r.propertyID).Warn("failed to release unit locks")
		}
	}
	return nil
}

func (s *Sweeper) expire(ctx context.Context, tx booking.Tx, id uuid.UUID, now time.Time) (*lockRelease, error) {
	b, err := tx.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.ExpiryDue(now) {
		// A payment landed between the listing and this transaction.
		return nil, nil
	}

	p, err := tx.GetProperty(ctx, b.PropertyID)
	if err != nil {
		return nil, err
	}

	b.Expire(now)
	if err := tx.PutBooking(ctx, b); err != nil {
		return nil, err
	}

	p.ReleaseBookedUnits(b.Selections)
	if p.Status == domain.PropertyReserved {
		p.Status = domain.PropertyAvailable
	}
	if err := tx.UpdateProperty(ctx, p); err != nil {
		return nil, err
	}

	if err := tx.InsertEvent(ctx, domain.Event{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   b.ID,
		Type:          "booking.expired",
		Payload:       []byte(`{"booking_id":"` + b.ID.String() + `"}`),
		DedupeKey:     b.ID.String() + ":expired",
	}); err != nil {
		return nil, err
	}

	units := b.Selections
	if b.IsWhole {
		units = p.AllUnits()
	}
	return &lockRelease{propertyID: p.ID, units: units}, nil
}
