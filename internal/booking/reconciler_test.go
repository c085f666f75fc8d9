package booking

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/gateway/paymob"
	"github.com/sakan-app/sakan-backend/internal/observability"
)

type reconcilerFixture struct {
	rec    *Reconciler
	ledger *memLedger
	now    time.Time
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		ledger: newMemLedger(),
		now:    time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
	}
	f.rec = NewReconciler(f.ledger, fakeVerifier{}, nil, observability.NewLogger(), domain.DefaultBookingTTL)
	f.rec.now = func() time.Time { return f.now }
	return f
}

// seedDeposit installs a property, a pending booking on it and the
// pending deposit payment, and returns the gateway callback that
// confirms the deposit.
func (f *reconcilerFixture) seedDeposit(p *domain.Property, selections []string, isWhole bool) (*domain.Booking, *domain.Payment, paymob.Callback) {
	f.ledger.properties[p.ID] = p
	b := &domain.Booking{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		PropertyID:      p.ID,
		Selections:      selections,
		IsWhole:         isWhole,
		TotalPrice:      1000000,
		TotalCommission: 500000,
		DepositAmount:   50000,
		RemainingAmount: 450000,
		Status:          domain.BookingPendingDeposit,
		ExpiresAt:       f.now.Add(24 * time.Hour),
		UserInfo:        testInfo,
	}
	f.ledger.bookings[b.ID] = b
	pay := &domain.Payment{
		ID:        uuid.New(),
		BookingID: b.ID,
		UserID:    b.UserID,
		Type:      domain.PaymentDeposit,
		Amount:    50000,
		Status:    domain.PaymentPending,
	}
	f.ledger.payments[pay.ID] = pay

	return b, pay, paymob.Callback{
		TransactionID:   987654,
		OrderID:         111,
		MerchantOrderID: pay.ID.String(),
		AmountCents:     5000000,
		Currency:        "EGP",
		Success:         true,
	}
}

func TestProcess_RejectsBadSignature(t *testing.T) {
	f := newReconcilerFixture(t)
	err := f.rec.Process(context.Background(), paymob.Callback{}, "bad")
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestProcess_PendingIsNoop(t *testing.T) {
	f := newReconcilerFixture(t)
	err := f.rec.Process(context.Background(), paymob.Callback{Pending: true}, "good")
	if err != nil {
		t.Fatal(err)
	}
}

func TestProcess_DepositPartialCoverage(t *testing.T) {
	f := newReconcilerFixture(t)
	p := &domain.Property{
		ID:     uuid.New(),
		Status: domain.PropertyAvailable,
		Rooms: []domain.Room{
			{Price: 400000},
			{Price: 600000, BedPrice: 250000, Beds: 2},
		},
	}
	b, pay, cb := f.seedDeposit(p, []string{"r0", "r1_b0"}, false)

	if err := f.rec.Process(context.Background(), cb, "good"); err != nil {
		t.Fatal(err)
	}

	gotPay := f.ledger.payments[pay.ID]
	if gotPay.Status != domain.PaymentPaid || gotPay.ExternalID != "987654" || gotPay.PaidAt == nil {
		t.Fatalf("payment = %+v", gotPay)
	}

	gotBooking := f.ledger.bookings[b.ID]
	if gotBooking.Status != domain.BookingReserved || !gotBooking.FirstPaid {
		t.Fatalf("booking = %+v", gotBooking)
	}
	if gotBooking.DepositPaid != 50000 {
		t.Errorf("DepositPaid = %v, want 50000", gotBooking.DepositPaid)
	}
	if want := f.now.Add(7 * 24 * time.Hour); !gotBooking.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want extended to %v", gotBooking.ExpiresAt, want)
	}

	gotProp := f.ledger.properties[p.ID]
	if len(gotProp.BookedUnits) != 2 {
		t.Fatalf("BookedUnits = %v", gotProp.BookedUnits)
	}
	// two of three slots covered, property stays open
	if gotProp.Status != domain.PropertyAvailable {
		t.Errorf("property status = %v, want AVAILABLE", gotProp.Status)
	}
}

func TestProcess_DepositFullCoverageReservesProperty(t *testing.T) {
	f := newReconcilerFixture(t)
	p := &domain.Property{
		ID:     uuid.New(),
		Status: domain.PropertyAvailable,
		Rooms:  []domain.Room{{Price: 400000}, {Price: 300000}},
	}
	_, _, cb := f.seedDeposit(p, []string{"r0", "r1"}, false)

	if err := f.rec.Process(context.Background(), cb, "good"); err != nil {
		t.Fatal(err)
	}
	if got := f.ledger.properties[p.ID].Status; got != domain.PropertyReserved {
		t.Errorf("property status = %v, want RESERVED", got)
	}
}

func TestProcess_DepositWholeReservesProperty(t *testing.T) {
	f := newReconcilerFixture(t)
	p := &domain.Property{ID: uuid.New(), Status: domain.PropertyAvailable, Price: 1000000}
	_, _, cb := f.seedDeposit(p, nil, true)

	if err := f.rec.Process(context.Background(), cb, "good"); err != nil {
		t.Fatal(err)
	}
	if got := f.ledger.properties[p.ID].Status; got != domain.PropertyReserved {
		t.Errorf("property status = %v, want RESERVED", got)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	f := newReconcilerFixture(t)
	p := &domain.Property{
		ID:     uuid.New(),
		Status: domain.PropertyAvailable,
		Rooms:  []domain.Room{{Price: 400000}, {Price: 600000, BedPrice: 250000, Beds: 2}},
	}
	b, _, cb := f.seedDeposit(p, []string{"r0"}, false)

	if err := f.rec.Process(context.Background(), cb, "good"); err != nil {
		t.Fatal(err)
	}
	before := len(f.ledger.properties[p.ID].BookedUnits)
	events := len(f.ledger.events)

	// replay with the same external id must be a no-op
	if err := f.rec.Process(context.Background(), cb, "good"); err != nil {
		t.Fatal(err)
	}
	if got := len(f.ledger.properties[p.ID].BookedUnits); got != before {
		t.Errorf("BookedUnits changed on replay: %d -> %d", before, got)
	}
	if got := len(f.ledger.events); got != events {
		t.Errorf("events appended on replay: %d -> %d", events, got)
	}
	if got := f.ledger.bookings[b.ID].Status; got != domain.BookingReserved {
		t.Errorf("booking status = %v after replay", got)
	}
}

func TestProcess_FailureMarksPaymentOnly(t *testing.T) {
	f := newReconcilerFixture(t)
	p := &domain.Property{ID: uuid.New(), Status: domain.PropertyAvailable, Price: 1000000}
	b, pay, cb := f.seedDeposit(p, nil, true)
	cb.Success = false

	if err := f.rec.Process(context.Background(), cb, "good"); err != nil {
		t.Fatal(err)
	}
	if got := f.ledger.payments[pay.ID]; got.Status != domain.PaymentFailed || got.ExternalID != "987654" {
		t.Fatalf("payment = %+v", got)
	}
	if got := f.ledger.bookings[b.ID].Status; got != domain.BookingPendingDeposit {
		t.Errorf("booking status = %v, must be untouched", got)
	}
	if got := f.ledger.properties[p.ID]; len(got.BookedUnits) != 0 || got.Status != domain.PropertyAvailable {
		t.Errorf("property touched on failed payment: %+v", got)
	}
}

func TestProcess_RemainingCompletesBooking(t *testing.T) {
	f := newReconcilerFixture(t)
	p := &domain.Property{ID: uuid.New(), Status: domain.PropertyReserved, Price: 1000000}
	f.ledger.properties[p.ID] = p
	b := &domain.Booking{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		PropertyID:      p.ID,
		IsWhole:         true,
		RemainingAmount: 450000,
		FirstPaid:       true,
		Status:          domain.BookingReserved,
		ExpiresAt:       f.now.Add(24 * time.Hour),
	}
	f.ledger.bookings[b.ID] = b
	pay := &domain.Payment{
		ID:        uuid.New(),
		BookingID: b.ID,
		UserID:    b.UserID,
		Type:      domain.PaymentRemaining,
		Amount:    450000,
		Status:    domain.PaymentPending,
	}
	f.ledger.payments[pay.ID] = pay

	cb := paymob.Callback{
		TransactionID:   555,
		MerchantOrderID: pay.ID.String(),
		AmountCents:     45000000,
		Success:         true,
	}
	if err := f.rec.Process(context.Background(), cb, "good"); err != nil {
		t.Fatal(err)
	}

	gotBooking := f.ledger.bookings[b.ID]
	if gotBooking.Status != domain.BookingCompleted || !gotBooking.SecondPaid {
		t.Fatalf("booking = %+v", gotBooking)
	}
	if got := f.ledger.properties[p.ID].Status; got != domain.PropertySold {
		t.Errorf("property status = %v, want SOLD", got)
	}
}

func TestProcess_MissingPaymentIsInternal(t *testing.T) {
	f := newReconcilerFixture(t)
	cb := paymob.Callback{MerchantOrderID: uuid.New().String(), Success: true}
	err := f.rec.Process(context.Background(), cb, "good")
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("err = %v, want ErrInternal so the gateway retries", err)
	}
}

func TestProcess_MalformedMerchantRef(t *testing.T) {
	f := newReconcilerFixture(t)
	cb := paymob.Callback{MerchantOrderID: "not-a-uuid", Success: true}
	err := f.rec.Process(context.Background(), cb, "good")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
