package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/gateway/paymob"
	"github.com/sakan-app/sakan-backend/internal/observability"
)

// Reconciler consumes asynchronous payment notifications from the
// gateway and advances booking and property state. One transaction
// covers the payment, booking and property documents, so the inventory
// merge is atomic with the payment confirmation; the gateway retries on
// any error response.
type Reconciler struct {
	ledger   Ledger
	verifier Verifier
	audit    Auditor
	logger   observability.Logger
	ttl      time.Duration
	now      func() time.Time
}

func NewReconciler(ledger Ledger, verifier Verifier, audit Auditor, logger observability.Logger, ttl time.Duration) *Reconciler {
	if ttl == 0 {
		ttl = domain.DefaultBookingTTL
	}
	return &Reconciler{
		ledger:   ledger,
		verifier: verifier,
		audit:    audit,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Process verifies and applies one notification. A replayed
// notification (same external id, or payment already paid) is
// acknowledged as a no-op.
func (r *Reconciler) Process(ctx context.Context, cb paymob.Callback, signature string) error {
	if !r.verifier.VerifyCallback(cb, signature) {
		observability.WebhooksRejected.Inc()
		return errors.Wrap(domain.ErrUnauthenticated, "webhook signature mismatch")
	}
	if cb.Pending {
		// Interim notification, the final one follows.
		return nil
	}

	paymentID, err := uuid.Parse(cb.MerchantOrderID)
	if err != nil {
		return errors.Wrapf(domain.ErrInvalidArgument, "merchant reference %q is not a payment id", cb.MerchantOrderID)
	}
	externalID := cb.ExternalID()
	now := r.now()

	var applied *domain.Payment
	err = r.ledger.WithTx(ctx, func(tx Tx) error {
		applied = nil

		// All reads happen before any write.
		payment, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return errors.Mark(err, domain.ErrInternal)
		}
		if payment.Status == domain.PaymentPaid || payment.ExternalID == externalID {
			return nil
		}

		booking, err := tx.GetBooking(ctx, payment.BookingID)
		if err != nil {
			return errors.Mark(err, domain.ErrInternal)
		}
		property, err := tx.GetProperty(ctx, booking.PropertyID)
		if err != nil {
			return errors.Mark(err, domain.ErrInternal)
		}

		if !cb.Success {
			payment.MarkFailed(externalID)
			if err := tx.PutPayment(ctx, payment); err != nil {
				return err
			}
			return tx.InsertEvent(ctx, newEvent("payment", payment.ID, "payment.failed", map[string]interface{}{
				"payment_id": payment.ID,
				"booking_id": booking.ID,
			}))
		}

		payment.MarkPaid(externalID, now)
		if err := tx.PutPayment(ctx, payment); err != nil {
			return err
		}

		switch payment.Type {
		case domain.PaymentDeposit:
			if err := r.applyDeposit(ctx, tx, cb, payment, booking, property, now); err != nil {
				return err
			}
		case domain.PaymentRemaining:
			if err := r.applyRemaining(ctx, tx, payment, booking, property); err != nil {
				return err
			}
		}

		applied = payment
		return nil
	})
	if err != nil {
		return err
	}

	if applied != nil {
		observability.PaymentsConfirmed.WithLabelValues(string(applied.Type)).Inc()
		r.record(ctx, "payment.confirmed", applied.UserID, map[string]interface{}{
			"payment_id":  applied.ID,
			"booking_id":  applied.BookingID,
			"external_id": applied.ExternalID,
			"type":        applied.Type,
		})
	}
	return nil
}

func (r *Reconciler) applyDeposit(ctx context.Context, tx Tx, cb paymob.Callback, payment *domain.Payment, booking *domain.Booking, property *domain.Property, now time.Time) error {
	if booking.Status != domain.BookingPendingDeposit {
		// Late notification for a booking the sweeper already retired
		// or a replay after partial processing. The payment stays
		// recorded; the inventory is not touched.
		r.logger.WithField("booking_id", booking.ID).
			WithField("status", booking.Status).
			Warn("deposit confirmed for a booking no longer pending")
		return nil
	}

	booking.ConfirmDeposit(float64(cb.AmountCents)/100, r.ttl, now)
	if err := tx.PutBooking(ctx, booking); err != nil {
		return err
	}

	property.MergeBookedUnits(booking.Selections)
	if booking.IsWhole || property.FullyBooked() {
		property.Status = domain.PropertyReserved
	}
	if err := tx.UpdateProperty(ctx, property); err != nil {
		return err
	}

	return tx.InsertEvent(ctx, newEvent("booking", booking.ID, "booking.reserved", map[string]interface{}{
		"booking_id":  booking.ID,
		"property_id": property.ID,
		"deposit":     payment.Amount,
	}))
}

func (r *Reconciler) applyRemaining(ctx context.Context, tx Tx, payment *domain.Payment, booking *domain.Booking, property *domain.Property) error {
	if booking.Status != domain.BookingReserved {
		r.logger.WithField("booking_id", booking.ID).
			WithField("status", booking.Status).
			Warn("remaining payment confirmed for a booking not reserved")
		return nil
	}

	booking.ConfirmRemaining()
	if err := tx.PutBooking(ctx, booking); err != nil {
		return err
	}

	property.Status = domain.PropertySold
	if err := tx.UpdateProperty(ctx, property); err != nil {
		return err
	}

	return tx.InsertEvent(ctx, newEvent("booking", booking.ID, "booking.completed", map[string]interface{}{
		"booking_id":  booking.ID,
		"property_id": property.ID,
		"total":       booking.TotalCommission,
	}))
}

func (r *Reconciler) record(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, action, userID, data); err != nil {
		r.logger.WithError(err).Warn("audit record failed")
	}
}
