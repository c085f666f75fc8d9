package domain

import (
	"time"

	"github.com/google/uuid"
)

type PropertyStatus string

const (
	PropertyAvailable PropertyStatus = "AVAILABLE"
	PropertyApproved  PropertyStatus = "APPROVED"
	PropertyLocking   PropertyStatus = "LOCKING"
	PropertyReserved  PropertyStatus = "RESERVED"
	PropertySold      PropertyStatus = "SOLD"
)

type BookingStatus string

const (
	BookingPendingDeposit  BookingStatus = "PENDING_DEPOSIT"
	BookingReserved        BookingStatus = "RESERVED"
	BookingPayingRemaining BookingStatus = "PAYING_REMAINING"
	BookingCompleted       BookingStatus = "COMPLETED"
	BookingExpired         BookingStatus = "EXPIRED"
)

type PaymentType string

const (
	PaymentDeposit   PaymentType = "DEPOSIT"
	PaymentRemaining PaymentType = "REMAINING"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Room is one bookable room of a property. A room with Beds > 0 is sold
// per bed at BedPrice; otherwise it is sold whole at Price.
type Room struct {
	Price    float64
	BedPrice float64
	Beds     int
}

type Property struct {
	ID              uuid.UUID
	Status          PropertyStatus
	Price           float64
	DiscountPrice   float64
	Deposit         float64
	RequiredDeposit float64
	Rooms           []Room
	BookedUnits     []string
}

type UserInfo struct {
	Name  string
	Email string
	Phone string
}

type Booking struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	PropertyID      uuid.UUID
	Selections      []string
	IsWhole         bool
	TotalPrice      float64
	TotalCommission float64
	DepositAmount   float64
	RemainingAmount float64
	DepositPaid     float64
	FirstPaid       bool
	SecondPaid      bool
	Status          BookingStatus
	ExpiresAt       time.Time
	ExpiredAt       *time.Time
	UserInfo        UserInfo
	CreatedAt       time.Time
}

type Payment struct {
	ID         uuid.UUID
	BookingID  uuid.UUID
	UserID     uuid.UUID
	Type       PaymentType
	Amount     float64
	Status     PaymentStatus
	ExternalID string
	PaidAt     *time.Time
	CreatedAt  time.Time
}

// Event is a transactional outbox record written alongside the state
// change it describes.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	Type          string
	Payload       []byte
	DedupeKey     string
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
}

// Active reports whether the booking still occupies a slot in the
// one-active-booking-per-user-per-property rule.
func (b *Booking) Active() bool {
	switch b.Status {
	case BookingPendingDeposit, BookingReserved, BookingPayingRemaining:
		return true
	}
	return false
}

// ExpiryDue reports whether the sweeper should retire the booking: still
// awaiting a payment and past its deadline.
func (b *Booking) ExpiryDue(now time.Time) bool {
	return b.Active() && !b.SecondPaid && now.After(b.ExpiresAt)
}

// Bookable reports whether a whole-property booking may be placed.
func (p *Property) Bookable() bool {
	return (p.Status == PropertyAvailable || p.Status == PropertyApproved) && len(p.BookedUnits) == 0
}

// DepositRequired resolves the deposit the owner configured, preferring
// the explicit override.
func (p *Property) DepositRequired() float64 {
	if p.RequiredDeposit > 0 {
		return p.RequiredDeposit
	}
	return p.Deposit
}

// WholePrice is the price of booking the entire property.
func (p *Property) WholePrice() float64 {
	if p.DiscountPrice > 0 {
		return p.DiscountPrice
	}
	return p.Price
}
