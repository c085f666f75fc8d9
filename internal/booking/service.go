package booking

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/observability"
)

const (
	MethodCard   = "card"
	MethodWallet = "wallet"
)

// Service is the reservation workflow. It runs in two phases: a ledger
// transaction that prices the booking and takes the inventory hold, then
// gateway calls outside the transaction so slow network I/O never sits
// on transactional locks. If the gateway phase fails the hold stays in
// place until the expiry sweep reclaims it.
type Service struct {
	ledger   Ledger
	gateway  Gateway
	locks    UnitLocker
	audit    Auditor
	logger   observability.Logger
	ttl      time.Duration
	iframeID string
	now      func() time.Time
}

func NewService(ledger Ledger, gateway Gateway, locks UnitLocker, audit Auditor, logger observability.Logger, ttl time.Duration, iframeID string) *Service {
	if ttl == 0 {
		ttl = domain.DefaultBookingTTL
	}
	return &Service{
		ledger:   ledger,
		gateway:  gateway,
		locks:    locks,
		audit:    audit,
		logger:   logger,
		ttl:      ttl,
		iframeID: iframeID,
		now:      time.Now,
	}
}

type DepositRequest struct {
	PropertyID    uuid.UUID
	UserInfo      domain.UserInfo
	Selections    []string
	IsWhole       bool
	PaymentMethod string
	WalletNumber  string
}

// Checkout is what the client needs to finish paying: a payment token
// for the hosted iframe, or a redirect URL for wallet payments.
type Checkout struct {
	BookingID    uuid.UUID
	PaymentID    uuid.UUID
	Amount       float64
	PaymentToken string
	IframeID     string
	RedirectURL  string
}

func (s *Service) CreateDepositBooking(ctx context.Context, userID uuid.UUID, req DepositRequest) (*Checkout, error) {
	if req.PaymentMethod == MethodWallet && req.WalletNumber == "" {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "wallet payment requires a wallet number")
	}

	now := s.now()
	var (
		booking *domain.Booking
		payment *domain.Payment
		locked  []string
	)
	err := s.ledger.WithTx(ctx, func(tx Tx) error {
		locked = nil
		property, err := tx.GetProperty(ctx, req.PropertyID)
		if err != nil {
			return err
		}

		b, skipped, err := domain.NewDepositBooking(userID, property, req.UserInfo, req.Selections, req.IsWhole, s.ttl, now)
		if err != nil {
			return err
		}
		if len(skipped) > 0 {
			s.logger.WithField("property_id", property.ID).
				WithField("units", skipped).
				Warn("skipping selections for rooms the property does not have")
		}

		existing, err := tx.ActiveBooking(ctx, userID, req.PropertyID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status != domain.BookingPendingDeposit {
				return errors.Wrapf(domain.ErrAlreadyExists,
					"booking %s for this property is already %s", existing.ID, existing.Status)
			}
			// Reuse the open pending booking instead of creating a
			// duplicate; the new request's pricing and selections win.
			b.ID = existing.ID
			b.CreatedAt = existing.CreatedAt
		}

		if err := s.checkInventory(property, b); err != nil {
			return err
		}
		locked, err = s.lockUnits(ctx, property, b, userID)
		if err != nil {
			return err
		}

		p := domain.NewPayment(b, domain.PaymentDeposit, b.DepositAmount, now)
		if err := tx.PutBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.PutPayment(ctx, p); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, newEvent("booking", b.ID, "booking.pending_deposit", map[string]interface{}{
			"booking_id":  b.ID,
			"property_id": b.PropertyID,
			"deposit":     b.DepositAmount,
		})); err != nil {
			return err
		}

		booking, payment = b, p
		return nil
	})
	if err != nil {
		// The reservation never committed; drop any holds this attempt took.
		s.releaseLocks(ctx, req.PropertyID, locked)
		return nil, err
	}

	observability.BookingsCreated.Inc()
	s.record(ctx, "booking.deposit_created", userID, map[string]interface{}{
		"booking_id": booking.ID,
		"payment_id": payment.ID,
		"amount":     payment.Amount,
	})

	return s.checkout(ctx, booking, payment, req.PaymentMethod, req.WalletNumber)
}

func (s *Service) CreateRemainingPayment(ctx context.Context, userID, bookingID uuid.UUID, method, walletNumber string) (*Checkout, error) {
	if method == MethodWallet && walletNumber == "" {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "wallet payment requires a wallet number")
	}

	now := s.now()
	var (
		booking *domain.Booking
		payment *domain.Payment
	)
	err := s.ledger.WithTx(ctx, func(tx Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return errors.Wrap(domain.ErrPermissionDenied, "booking belongs to another user")
		}
		if b.Status != domain.BookingReserved || b.SecondPaid {
			return errors.Wrapf(domain.ErrFailedPrecondition,
				"booking is %s, remaining payment requires a reserved booking", b.Status)
		}
		if now.After(b.ExpiresAt) {
			return errors.Wrap(domain.ErrFailedPrecondition, "booking expired before the remaining payment")
		}

		p := domain.NewPayment(b, domain.PaymentRemaining, b.RemainingAmount, now)
		if err := tx.PutPayment(ctx, p); err != nil {
			return err
		}

		booking, payment = b, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, "booking.remaining_created", userID, map[string]interface{}{
		"booking_id": booking.ID,
		"payment_id": payment.ID,
		"amount":     payment.Amount,
	})

	return s.checkout(ctx, booking, payment, method, walletNumber)
}

// GetBooking returns the caller's booking.
func (s *Service) GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.ledger.WithTx(ctx, func(tx Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return errors.Wrap(domain.ErrPermissionDenied, "booking belongs to another user")
		}
		booking = b
		return nil
	})
	return booking, err
}

// checkInventory validates the request against the durable inventory.
// Whole-property bookings need a clean slate; partial bookings need
// their units free and the property still open for booking.
func (s *Service) checkInventory(property *domain.Property, b *domain.Booking) error {
	if property.Status != domain.PropertyAvailable && property.Status != domain.PropertyApproved {
		return errors.Wrapf(domain.ErrFailedPrecondition, "property is %s", property.Status)
	}
	if b.IsWhole {
		if len(property.BookedUnits) > 0 {
			return errors.Wrapf(domain.ErrFailedPrecondition,
				"whole-property booking requires no booked units, found %s",
				strings.Join(property.BookedUnits, ","))
		}
		return nil
	}
	if conflicts := property.ConflictingUnits(b.Selections); len(conflicts) > 0 {
		return errors.Wrapf(domain.ErrFailedPrecondition,
			"units already booked: %s", strings.Join(conflicts, ","))
	}
	return nil
}

// lockUnits takes the soft per-unit holds for the pending window. A
// whole-property booking holds every unit. On failure the holds taken
// so far are released, so a losing request never leaves stray locks on
// units no booking ended up with.
func (s *Service) lockUnits(ctx context.Context, property *domain.Property, b *domain.Booking, userID uuid.UUID) ([]string, error) {
	units := b.Selections
	if b.IsWhole {
		units = property.AllUnits()
	}
	var taken []string
	for _, unit := range units {
		ok, err := s.locks.LockUnit(ctx, property.ID, unit, userID, s.ttl)
		if err == nil && !ok {
			err = errors.Wrapf(domain.ErrFailedPrecondition, "unit %s is held by another booking", unit)
		}
		if err != nil {
			s.releaseLocks(ctx, property.ID, taken)
			return nil, err
		}
		taken = append(taken, unit)
	}
	return taken, nil
}

func (s *Service) releaseLocks(ctx context.Context, propertyID uuid.UUID, units []string) {
	if len(units) == 0 {
		return
	}
	if err := s.locks.ReleaseUnits(ctx, propertyID, units); err != nil {
		// Locks decay on their own TTL, only the eager release failed.
		s.logger.WithError(err).WithField("property_id", propertyID).Warn("failed to release unit locks")
	}
}

// checkout is phase 2: gateway I/O after the reservation committed.
// Failures surface as internal errors; the reservation stays until the
// sweeper reclaims it.
func (s *Service) checkout(ctx context.Context, b *domain.Booking, p *domain.Payment, method, walletNumber string) (*Checkout, error) {
	wallet := method == MethodWallet

	token, err := s.gateway.Authenticate(ctx)
	if err != nil {
		return nil, s.gatewayError(err, p.ID)
	}
	orderID, err := s.gateway.CreateOrder(ctx, token, p.ID.String(), Cents(p.Amount))
	if err != nil {
		return nil, s.gatewayError(err, p.ID)
	}
	key, err := s.gateway.PaymentKey(ctx, token, orderID, Cents(p.Amount), b.UserInfo, wallet)
	if err != nil {
		return nil, s.gatewayError(err, p.ID)
	}

	out := &Checkout{
		BookingID: b.ID,
		PaymentID: p.ID,
		Amount:    p.Amount,
	}
	if wallet {
		redirect, err := s.gateway.WalletCharge(ctx, key, walletNumber)
		if err != nil {
			return nil, s.gatewayError(err, p.ID)
		}
		out.RedirectURL = redirect
		return out, nil
	}
	out.PaymentToken = key
	out.IframeID = s.iframeID
	return out, nil
}

func (s *Service) gatewayError(err error, paymentID uuid.UUID) error {
	s.logger.WithError(err).WithField("payment_id", paymentID).Error("payment gateway call failed")
	return errors.Mark(err, domain.ErrInternal)
}

func (s *Service) record(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, action, userID, data); err != nil {
		s.logger.WithError(err).Warn("audit record failed")
	}
}

// Cents converts an EGP amount to the cent denomination the gateway
// expects.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func newEvent(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]interface{}) domain.Event {
	return domain.Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       mustJSON(payload),
		DedupeKey:     uuid.New().String(),
	}
}

func mustJSON(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
