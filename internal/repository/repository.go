package repository

import (
	"context"
	"errors"
	"time"

	"toolshed-backend/internal/domain"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate row")

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error

	// ListOverlapping returns bookings of the listing in one of statuses whose
	// [start, end) range overlaps the given one. excludeID 0 excludes nothing.
	ListOverlapping(ctx context.Context, listingID int64, start, end time.Time, statuses []domain.BookingStatus, excludeID int64) ([]domain.Booking, error)
	// ListStaleIDs returns REQUESTED bookings created before requestedBefore and
	// unpaid CONFIRMED bookings confirmed before confirmedBefore.
	ListStaleIDs(ctx context.Context, requestedBefore, confirmedBefore time.Time) ([]int64, error)
	// ListDepositReleaseIDs returns completed bookings whose dispute window has
	// elapsed and whose unlocked deposit hold was never released.
	ListDepositReleaseIDs(ctx context.Context, now time.Time) ([]int64, error)
}

type DisputeRepository interface {
	Create(ctx context.Context, dispute *domain.DisputeCase) error
	GetByID(ctx context.Context, id int64) (*domain.DisputeCase, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.DisputeCase, error)
	Update(ctx context.Context, dispute *domain.DisputeCase) error
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.DisputeCase, error)
	// CountActiveByBooking counts disputes of the booking in an active status,
	// ignoring excludeID.
	CountActiveByBooking(ctx context.Context, bookingID, excludeID int64) (int, error)

	ListIntakeOverdueIDs(ctx context.Context, now time.Time) ([]int64, error)
	// ListRebuttalReminderIDs returns AWAITING_REBUTTAL disputes due within
	// (now, horizon] that have not been reminded yet.
	ListRebuttalReminderIDs(ctx context.Context, now, horizon time.Time) ([]int64, error)
	ListRebuttalOverdueIDs(ctx context.Context, now time.Time) ([]int64, error)
}

type EvidenceRepository interface {
	Create(ctx context.Context, evidence *domain.DisputeEvidence) error
	GetByID(ctx context.Context, id int64) (*domain.DisputeEvidence, error)
	Confirm(ctx context.Context, id int64, at time.Time) error
	CountConfirmed(ctx context.Context, disputeID int64) (int, error)
}

type LedgerRepository interface {
	// Create inserts a transaction and returns ErrDuplicate when the natural
	// key already exists.
	Create(ctx context.Context, tx *domain.Transaction) error
	FindByKey(ctx context.Context, key domain.TransactionKey) (*domain.Transaction, error)
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.Transaction, error)
	ListOwnerEarnings(ctx context.Context, ownerID int64) ([]domain.OwnerEarning, error)
}

type EventRepository interface {
	RecordEvent(ctx context.Context, event *domain.BookingEvent) error
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.BookingEvent, error)
}

type ListingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Listing, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Listing, error)
	SetSuspended(ctx context.Context, id int64, suspended bool) error
}

// Repositories groups the repositories that share one connection or
// transaction.
type Repositories struct {
	Bookings BookingRepository
	Disputes DisputeRepository
	Evidence EvidenceRepository
	Ledger   LedgerRepository
	Events   EventRepository
	Listings ListingRepository
}

// Store is the unit of work. Repositories returned by Repos run outside any
// transaction; WithTx commits only if fn returns nil.
type Store interface {
	Repos() *Repositories
	WithTx(ctx context.Context, fn func(repos *Repositories) error) error
}
