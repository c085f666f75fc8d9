package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/gateway/paymob"
)

// Tx is the set of ledger operations available inside one transaction.
// Reads must come before writes; the ledger runs the closure under
// snapshot isolation and retries on serialization conflicts.
type Tx interface {
	GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	// ActiveBooking returns the caller's non-terminal booking on the
	// property, or nil when there is none.
	ActiveBooking(ctx context.Context, userID, propertyID uuid.UUID) (*domain.Booking, error)
	PutBooking(ctx context.Context, b *domain.Booking) error
	PutPayment(ctx context.Context, p *domain.Payment) error
	UpdateProperty(ctx context.Context, p *domain.Property) error
	InsertEvent(ctx context.Context, e domain.Event) error
}

type Ledger interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Gateway is the payment-processor call contract. Checkout chains
// Authenticate, CreateOrder and PaymentKey; wallet payments follow with
// WalletCharge.
type Gateway interface {
	Authenticate(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, token, merchantRef string, amountCents int64) (int64, error)
	PaymentKey(ctx context.Context, token string, orderID, amountCents int64, bill domain.UserInfo, wallet bool) (string, error)
	WalletCharge(ctx context.Context, paymentKey, walletNumber string) (string, error)
}

// UnitLocker takes the short-lived per-unit holds that arbitrate races
// between concurrent deposit bookings. The durable inventory lives in
// the ledger's booked units.
type UnitLocker interface {
	// LockUnit returns false when another user already holds the unit.
	// Re-locking a unit the same user holds succeeds.
	LockUnit(ctx context.Context, propertyID uuid.UUID, unit string, userID uuid.UUID, ttl time.Duration) (bool, error)
	// ReleaseUnits drops the holds so the units become contestable
	// immediately instead of at key expiry.
	ReleaseUnits(ctx context.Context, propertyID uuid.UUID, units []string) error
}

// Verifier checks webhook notification authenticity.
type Verifier interface {
	VerifyCallback(cb paymob.Callback, signature string) bool
}

// Auditor records booking and payment milestones for the audit trail.
// Failures are logged, never surfaced.
type Auditor interface {
	Record(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error
}
