package domain

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusRequested BookingStatus = "REQUESTED"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusPaid      BookingStatus = "PAID"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCanceled  BookingStatus = "CANCELED"
)

// BookingTransitions lists every allowed status change. A status missing from
// the map has no outgoing transitions.
var BookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusRequested: {BookingStatusConfirmed, BookingStatusCanceled},
	BookingStatusConfirmed: {BookingStatusPaid, BookingStatusCompleted, BookingStatusCanceled},
	BookingStatusPaid:      {BookingStatusCompleted, BookingStatusCanceled},
	BookingStatusCompleted: {},
	BookingStatusCanceled:  {},
}

// ParseBookingStatus rejects strings outside the closed set.
func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(s)
	if _, ok := BookingTransitions[st]; !ok {
		return "", fmt.Errorf("unknown booking status %q", s)
	}
	return st, nil
}

// CanTransition reports whether from -> to is in the transition table.
func (from BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range BookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CancelActor is the party that triggered a cancellation. NoShow is only a
// settlement actor; it is recorded on the booking as the renter.
type CancelActor string

const (
	CancelActorRenter CancelActor = "renter"
	CancelActorOwner  CancelActor = "owner"
	CancelActorSystem CancelActor = "system"
	CancelActorNoShow CancelActor = "no_show"
)

// CanceledBy is the persisted canceled_by value.
type CanceledBy string

const (
	CanceledByRenter CanceledBy = "RENTER"
	CanceledByOwner  CanceledBy = "OWNER"
	CanceledBySystem CanceledBy = "SYSTEM"
)

// CanceledByFor maps a cancellation actor to the stored enum.
func CanceledByFor(actor CancelActor) (CanceledBy, error) {
	switch actor {
	case CancelActorRenter, CancelActorNoShow:
		return CanceledByRenter, nil
	case CancelActorOwner:
		return CanceledByOwner, nil
	case CancelActorSystem:
		return CanceledBySystem, nil
	}
	return "", ErrInvalidActor
}

// Booking is one rental of a listing. StartDate and EndDate are civil dates
// stored at UTC midnight; EndDate is exclusive.
type Booking struct {
	ID                     int64         `json:"id"`
	ListingID              int64         `json:"listing_id"`
	OwnerID                int64         `json:"owner_id"`
	RenterID               int64         `json:"renter_id"`
	StartDate              time.Time     `json:"start_date"`
	EndDate                time.Time     `json:"end_date"`
	Status                 BookingStatus `json:"status"`
	Totals                 BookingTotals `json:"totals"`
	ChargePaymentIntentID  string        `json:"charge_payment_intent_id"`
	DepositHoldID          string        `json:"deposit_hold_id"`
	DepositLocked          bool          `json:"deposit_locked"`
	DepositAttemptCount    int           `json:"deposit_attempt_count"`
	DepositReleasedAt      *time.Time    `json:"deposit_released_at,omitempty"`
	IsDisputed             bool          `json:"is_disputed"`
	ConfirmedAt            *time.Time    `json:"confirmed_at,omitempty"`
	PaidAt                 *time.Time    `json:"paid_at,omitempty"`
	BeforePhotosUploadedAt *time.Time    `json:"before_photos_uploaded_at,omitempty"`
	PickupConfirmedAt      *time.Time    `json:"pickup_confirmed_at,omitempty"`
	ReturnConfirmedAt      *time.Time    `json:"return_confirmed_at,omitempty"`
	DisputeWindowExpiresAt *time.Time    `json:"dispute_window_expires_at,omitempty"`
	CanceledBy             CanceledBy    `json:"canceled_by,omitempty"`
	CanceledReason         string        `json:"canceled_reason,omitempty"`
	AutoCanceled           bool          `json:"auto_canceled"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// Days is the number of rented days (end exclusive).
func (b *Booking) Days() int {
	return CivilDays(b.StartDate, b.EndDate)
}

func (b *Booking) AssertCanConfirm() error {
	if b.Status != BookingStatusRequested {
		return ErrInvalidBookingState
	}
	return nil
}

func (b *Booking) AssertCanCancel(actor CancelActor) error {
	if _, err := CanceledByFor(actor); err != nil {
		return err
	}
	if !b.Status.CanTransition(BookingStatusCanceled) {
		return ErrInvalidBookingState
	}
	return nil
}

// AssertCanComplete requires the return to be confirmed so the dispute window
// has started before the booking closes.
func (b *Booking) AssertCanComplete() error {
	if b.Status != BookingStatusConfirmed && b.Status != BookingStatusPaid {
		return ErrInvalidBookingState
	}
	if b.ReturnConfirmedAt == nil {
		return ErrReturnNotConfirmed
	}
	return nil
}

func (b *Booking) AssertCanConfirmPickup() error {
	if b.Status != BookingStatusPaid {
		return ErrInvalidBookingState
	}
	if b.BeforePhotosUploadedAt == nil {
		return ErrBeforePhotosMissing
	}
	return nil
}

// MarkCanceled only mutates the struct; callers persist it.
func (b *Booking) MarkCanceled(actor CancelActor, auto bool, reason string) error {
	by, err := CanceledByFor(actor)
	if err != nil {
		return err
	}
	b.Status = BookingStatusCanceled
	b.CanceledBy = by
	b.CanceledReason = reason
	b.AutoCanceled = auto
	return nil
}

// DaysUntilStart is negative once the start date has passed.
func (b *Booking) DaysUntilStart(today time.Time) int {
	if b.StartDate.IsZero() {
		return 0
	}
	return CivilDays(today, b.StartDate)
}

func (b *Booking) IsOverdue(today time.Time) bool {
	if b.EndDate.IsZero() {
		return false
	}
	return CivilDays(b.EndDate, today) > 0
}

// RoleOf reports which party userID is on this booking.
func (b *Booking) RoleOf(userID int64) (PartyRole, bool) {
	switch userID {
	case b.OwnerID:
		return PartyRoleOwner, true
	case b.RenterID:
		return PartyRoleRenter, true
	}
	return "", false
}

func (b *Booking) IsPrePayment() bool {
	return b.ChargePaymentIntentID == ""
}

func (b *Booking) HasDepositHold() bool {
	return b.DepositHoldID != ""
}

// DisputeWindowOpen reports whether a non-safety dispute may still be filed.
// A missing window counts as closed.
func (b *Booking) DisputeWindowOpen(now time.Time) bool {
	return b.DisputeWindowExpiresAt != nil && now.Before(*b.DisputeWindowExpiresAt)
}
