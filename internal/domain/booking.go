package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// CommissionRate is the platform fee taken on every booking, half of the
// total price, collected as deposit + remaining.
const CommissionRate = 0.5

// DefaultBookingTTL is how long a reservation is held before the sweeper
// may reclaim it.
const DefaultBookingTTL = 7 * 24 * time.Hour

// NewDepositBooking prices the requested units and builds the pending
// booking. Selections referencing unknown rooms are skipped and reported,
// not fatal. The deposit must not exceed the commission, so the remaining
// amount is never negative.
func NewDepositBooking(userID uuid.UUID, p *Property, info UserInfo, selections []string, isWhole bool, ttl time.Duration, now time.Time) (*Booking, []string, error) {
	if info.Email == "" {
		return nil, nil, errors.Wrap(ErrInvalidArgument, "userInfo.email is required")
	}

	var total float64
	var skipped []string
	if isWhole {
		total = p.WholePrice()
		selections = nil
	} else {
		total, skipped = p.SelectionPrice(selections)
		if len(skipped) > 0 {
			drop := make(map[string]bool, len(skipped))
			for _, u := range skipped {
				drop[u] = true
			}
			kept := make([]string, 0, len(selections))
			for _, u := range selections {
				if !drop[u] {
					kept = append(kept, u)
				}
			}
			selections = kept
		}
	}
	if total <= 0 {
		return nil, skipped, errors.Wrap(ErrInvalidArgument, "computed total price is not positive")
	}

	deposit := p.DepositRequired()
	commission := total * CommissionRate
	remaining := commission - deposit
	if remaining < 0 {
		return nil, skipped, errors.Wrapf(ErrInvalidArgument,
			"deposit %.2f exceeds commission %.2f", deposit, commission)
	}

	return &Booking{
		ID:              uuid.New(),
		UserID:          userID,
		PropertyID:      p.ID,
		Selections:      selections,
		IsWhole:         isWhole,
		TotalPrice:      total,
		TotalCommission: commission,
		DepositAmount:   deposit,
		RemainingAmount: remaining,
		Status:          BookingPendingDeposit,
		ExpiresAt:       now.Add(ttl),
		UserInfo:        info,
		CreatedAt:       now,
	}, skipped, nil
}

func NewPayment(booking *Booking, typ PaymentType, amount float64, now time.Time) *Payment {
	return &Payment{
		ID:        uuid.New(),
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Type:      typ,
		Amount:    amount,
		Status:    PaymentPending,
		CreatedAt: now,
	}
}

// ConfirmDeposit advances the booking after the deposit payment cleared
// and extends the deadline for the remaining payment.
func (b *Booking) ConfirmDeposit(amount float64, ttl time.Duration, now time.Time) {
	b.Status = BookingReserved
	b.FirstPaid = true
	b.DepositPaid = amount
	b.ExpiresAt = now.Add(ttl)
}

// ConfirmRemaining completes the booking.
func (b *Booking) ConfirmRemaining() {
	b.Status = BookingCompleted
	b.SecondPaid = true
}

// Expire retires a booking the sweeper reclaimed.
func (b *Booking) Expire(now time.Time) {
	b.Status = BookingExpired
	b.ExpiredAt = &now
}

// MarkPaid records the gateway transaction. The external id is the
// idempotency key: it is set exactly once.
func (p *Payment) MarkPaid(externalID string, now time.Time) {
	p.Status = PaymentPaid
	p.ExternalID = externalID
	p.PaidAt = &now
}

func (p *Payment) MarkFailed(externalID string) {
	p.Status = PaymentFailed
	p.ExternalID = externalID
}
