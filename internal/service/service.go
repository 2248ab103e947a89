package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/notifier"
	"toolshed-backend/internal/payment"
	"toolshed-backend/internal/repository"
	"toolshed-backend/internal/settings"
	"toolshed-backend/internal/storage"
)

type BookingService interface {
	RequestBooking(ctx context.Context, in RequestBookingInput) (*domain.Booking, error)
	ConfirmBooking(ctx context.Context, ownerID, bookingID int64) (*domain.Booking, error)
	DenyBooking(ctx context.Context, ownerID, bookingID int64, reason string) (*domain.Booking, error)
	RecordPayment(ctx context.Context, in RecordPaymentInput) (*domain.Booking, error)
	RecordBeforePhotos(ctx context.Context, userID, bookingID int64) (*domain.Booking, error)
	ConfirmPickup(ctx context.Context, userID, bookingID int64) (*domain.Booking, error)
	ConfirmReturn(ctx context.Context, ownerID, bookingID int64) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
	CancelBooking(ctx context.Context, in CancelBookingInput) (*domain.Booking, *domain.CancellationSettlement, error)
	GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)

	// EnsureNoConflict fails with ErrBookingConflict when a CONFIRMED or PAID
	// booking of the listing overlaps [start, end). excludeID 0 excludes nothing.
	EnsureNoConflict(ctx context.Context, listingID int64, start, end time.Time, excludeID int64) error

	ExpireStaleBookings(ctx context.Context, now time.Time) (int, error)
	ReleaseDepositHolds(ctx context.Context, now time.Time) (int, error)
}

type DisputeService interface {
	FileDispute(ctx context.Context, in FileDisputeInput) (*domain.DisputeCase, error)
	OpenDisputeCase(ctx context.Context, in FileDisputeInput) (*domain.DisputeCase, error)
	GetDispute(ctx context.Context, disputeID int64) (*domain.DisputeCase, error)
	ListBookingDisputes(ctx context.Context, bookingID int64) ([]domain.DisputeCase, error)

	UpdateIntakeStatus(ctx context.Context, disputeID int64) (*domain.DisputeCase, error)
	RequestRebuttal(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error)
	SubmitRebuttal(ctx context.Context, userID, disputeID int64, text string) (*domain.DisputeCase, error)
	StartReview(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error)
	RequestMoreEvidence(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error)
	Close(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error)
	CloseAsDuplicate(ctx context.Context, in OperatorActionInput, duplicateOfID int64) (*domain.DisputeCase, error)
	CloseAsLate(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error)
	Resolve(ctx context.Context, in ResolveDisputeInput) (*domain.DisputeCase, error)

	AutoCloseMissingEvidence(ctx context.Context, now time.Time) (int, error)
	SendRebuttalReminders(ctx context.Context, now time.Time) (int, error)
	AdvanceExpiredRebuttals(ctx context.Context, now time.Time) (int, error)
}

type LedgerService interface {
	LogTransaction(ctx context.Context, in LogTransactionInput) (*domain.Transaction, error)
	// LogTransactionOnce skips the insert when a transaction with the same
	// natural key exists. created is false when an existing row was returned.
	LogTransactionOnce(ctx context.Context, in LogTransactionInput) (tx *domain.Transaction, created bool, err error)
	ComputeOwnerAvailableBalance(ctx context.Context, ownerID int64, now time.Time) (decimal.Decimal, error)
	ListBookingTransactions(ctx context.Context, bookingID int64) ([]domain.Transaction, error)
}

type EvidenceService interface {
	RequestUpload(ctx context.Context, in EvidenceUploadInput) (*domain.DisputeEvidence, string, time.Time, error)
	ConfirmUpload(ctx context.Context, userID, evidenceID int64) (*domain.DisputeEvidence, *domain.DisputeCase, error)
	GetDownloadURL(ctx context.Context, userID, evidenceID int64) (string, time.Time, error)
}

// Dependencies are shared by the booking, dispute and evidence services.
type Dependencies struct {
	Store    repository.Store
	Settings settings.Resolver
	Payments payment.Provider
	Notifier notifier.Notifier
	Storage  storage.StorageInterface

	PlatformUserID int64
	Currency       string
	Now            func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dependencies) hours(ctx context.Context, key string, def int) time.Duration {
	return time.Duration(d.Settings.GetInt(ctx, key, def)) * time.Hour
}

// Fallbacks for settings missing from every backend.
const (
	defaultDisputeWindowHours           = 48
	defaultDisputeFilingWindowHours     = 24
	defaultDisputeRebuttalWindowHours   = 24
	defaultDisputeRebuttalReminderHours = 12
	defaultBookingRequestExpiryHours    = 48
	defaultBookingPaymentExpiryHours    = 24
)

var (
	defaultRenterFeeRate = decimal.RequireFromString("0.10")
	defaultOwnerFeeRate  = decimal.RequireFromString("0.05")
	defaultGSTRate       = decimal.RequireFromString("0.05")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateInput reports the first failing field as a ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(domain.CodeInvalidInput, fe.Field(), "failed "+fe.Tag()+" validation")
	}
	return err
}

// outbox collects notifications while a transaction runs; they are sent only
// after it commits.
type outbox []notifier.Notification

func (o *outbox) add(t notifier.EventType, bookingID, disputeID, recipient int64) {
	*o = append(*o, notifier.Notification{Type: t, BookingID: bookingID, DisputeID: disputeID, RecipientID: recipient})
}

func (o outbox) flush(ctx context.Context, n notifier.Notifier) {
	if n == nil {
		return
	}
	for _, msg := range o {
		n.Notify(ctx, msg)
	}
}

func actorRef(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
