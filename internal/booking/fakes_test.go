package booking

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/sakan-app/sakan-backend/internal/domain"
	"github.com/sakan-app/sakan-backend/internal/gateway/paymob"
)

// memLedger is an in-memory stand-in for the crdb ledger with
// all-or-nothing commit semantics: writes are staged per transaction
// and applied only when the closure succeeds.
type memLedger struct {
	mu             sync.Mutex
	properties     map[uuid.UUID]*domain.Property
	bookings       map[uuid.UUID]*domain.Booking
	payments       map[uuid.UUID]*domain.Payment
	events         []domain.Event
	failPutBooking error
}

func newMemLedger() *memLedger {
	return &memLedger{
		properties: map[uuid.UUID]*domain.Property{},
		bookings:   map[uuid.UUID]*domain.Booking{},
		payments:   map[uuid.UUID]*domain.Payment{},
	}
}

func (l *memLedger) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &memTx{
		ledger:     l,
		properties: map[uuid.UUID]*domain.Property{},
		bookings:   map[uuid.UUID]*domain.Booking{},
		payments:   map[uuid.UUID]*domain.Payment{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	ledger     *memLedger
	properties map[uuid.UUID]*domain.Property
	bookings   map[uuid.UUID]*domain.Booking
	payments   map[uuid.UUID]*domain.Payment
	events     []domain.Event
}

func cloneProperty(p *domain.Property) *domain.Property {
	c := *p
	c.Rooms = append([]domain.Room(nil), p.Rooms...)
	c.BookedUnits = append([]string(nil), p.BookedUnits...)
	return &c
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	c := *b
	c.Selections = append([]string(nil), b.Selections...)
	return &c
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	return &c
}

func (t *memTx) GetProperty(ctx context.Context, id uuid.UUID) (*domain.Property, error) {
	if p, ok := t.properties[id]; ok {
		return cloneProperty(p), nil
	}
	if p, ok := t.ledger.properties[id]; ok {
		return cloneProperty(p), nil
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "property %s", id)
}

func (t *memTx) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		return cloneBooking(b), nil
	}
	if b, ok := t.ledger.bookings[id]; ok {
		return cloneBooking(b), nil
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
}

func (t *memTx) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	if p, ok := t.payments[id]; ok {
		return clonePayment(p), nil
	}
	if p, ok := t.ledger.payments[id]; ok {
		return clonePayment(p), nil
	}
	return nil, errors.Wrapf(domain.ErrNotFound, "payment %s", id)
}

func (t *memTx) ActiveBooking(ctx context.Context, userID, propertyID uuid.UUID) (*domain.Booking, error) {
	for _, b := range t.ledger.bookings {
		if b.UserID == userID && b.PropertyID == propertyID && b.Active() {
			return cloneBooking(b), nil
		}
	}
	return nil, nil
}

func (t *memTx) PutBooking(ctx context.Context, b *domain.Booking) error {
	if t.ledger.failPutBooking != nil {
		return t.ledger.failPutBooking
	}
	t.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (t *memTx) PutPayment(ctx context.Context, p *domain.Payment) error {
	t.payments[p.ID] = clonePayment(p)
	return nil
}

func (t *memTx) UpdateProperty(ctx context.Context, p *domain.Property) error {
	t.properties[p.ID] = cloneProperty(p)
	return nil
}

func (t *memTx) InsertEvent(ctx context.Context, e domain.Event) error {
	t.events = append(t.events, e)
	return nil
}

func (t *memTx) commit() {
	for id, p := range t.properties {
		t.ledger.properties[id] = p
	}
	for id, b := range t.bookings {
		t.ledger.bookings[id] = b
	}
	for id, p := range t.payments {
		t.ledger.payments[id] = p
	}
	t.ledger.events = append(t.ledger.events, t.events...)
}

func (l *memLedger) eventTypes() []string {
	var types []string
	for _, e := range l.events {
		types = append(types, e.Type)
	}
	return types
}

// fakeLocker mirrors the redis SetNX semantics: first owner wins,
// re-locking by the same owner succeeds.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]uuid.UUID
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: map[string]uuid.UUID{}}
}

func (f *fakeLocker) LockUnit(ctx context.Context, propertyID uuid.UUID, unit string, userID uuid.UUID, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := propertyID.String() + ":" + unit
	if owner, ok := f.locks[key]; ok {
		return owner == userID, nil
	}
	f.locks[key] = userID
	return true, nil
}

func (f *fakeLocker) ReleaseUnits(ctx context.Context, propertyID uuid.UUID, units []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, unit := range units {
		delete(f.locks, propertyID.String()+":"+unit)
	}
	return nil
}

func (f *fakeLocker) held(propertyID uuid.UUID, unit string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.locks[propertyID.String()+":"+unit]
	return ok
}

type fakeGateway struct {
	failAuth    bool
	orders      int
	walletCalls int
}

func (g *fakeGateway) Authenticate(ctx context.Context) (string, error) {
	if g.failAuth {
		return "", fmt.Errorf("gateway unreachable")
	}
	return "auth-tok", nil
}

func (g *fakeGateway) CreateOrder(ctx context.Context, token, merchantRef string, amountCents int64) (int64, error) {
	g.orders++
	return int64(g.orders), nil
}

func (g *fakeGateway) PaymentKey(ctx context.Context, token string, orderID, amountCents int64, bill domain.UserInfo, wallet bool) (string, error) {
	return "pay-key-" + strconv.FormatInt(orderID, 10), nil
}

func (g *fakeGateway) WalletCharge(ctx context.Context, paymentKey, walletNumber string) (string, error) {
	g.walletCalls++
	return "https://accept.example/redirect", nil
}

// fakeVerifier accepts the signature "good".
type fakeVerifier struct{}

func (fakeVerifier) VerifyCallback(cb paymob.Callback, signature string) bool {
	return signature == "good"
}
