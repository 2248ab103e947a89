package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/metrics"
	"toolshed-backend/internal/repository"
)

type LogTransactionInput struct {
	UserID            int64                  `json:"user_id" validate:"required"`
	BookingID         *int64                 `json:"booking_id"`
	Kind              domain.TransactionKind `json:"kind" validate:"required"`
	Amount            decimal.Decimal        `json:"amount"`
	Currency          string                 `json:"currency" validate:"omitempty,len=3"`
	StripeID          string                 `json:"stripe_id"`
	StripeAvailableOn *time.Time             `json:"stripe_available_on"`
}

type ledgerService struct {
	store    repository.Store
	currency string
}

// NewLedgerService posts entries in currency unless an entry names its own.
// An empty currency means domain.DefaultCurrency.
func NewLedgerService(store repository.Store, currency string) LedgerService {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &ledgerService{store: store, currency: currency}
}

func (s *ledgerService) LogTransaction(ctx context.Context, in LogTransactionInput) (*domain.Transaction, error) {
	return logTransaction(ctx, s.store.Repos().Ledger, s.currency, in)
}

func (s *ledgerService) LogTransactionOnce(ctx context.Context, in LogTransactionInput) (*domain.Transaction, bool, error) {
	return logTransactionOnce(ctx, s.store.Repos().Ledger, s.currency, in)
}

// ComputeOwnerAvailableBalance sums the owner's earnings whose funds are free:
// the booking's dispute window has elapsed (or the booking never reached
// handover) and the provider's availability date is not in the future.
func (s *ledgerService) ComputeOwnerAvailableBalance(ctx context.Context, ownerID int64, now time.Time) (decimal.Decimal, error) {
	logger.EnterMethod("ledgerService.ComputeOwnerAvailableBalance", "ownerID", ownerID)

	earnings, err := s.store.Repos().Ledger.ListOwnerEarnings(ctx, ownerID)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.ComputeOwnerAvailableBalance", err, "ownerID", ownerID)
		return decimal.Zero, fmt.Errorf("list owner earnings: %w", err)
	}

	total := decimal.Zero
	for _, e := range earnings {
		if earningAvailable(e, now) {
			total = total.Add(e.Transaction.Amount)
		}
	}

	logger.ExitMethod("ledgerService.ComputeOwnerAvailableBalance", "ownerID", ownerID, "balance", total.StringFixed(2))
	return total, nil
}

func earningAvailable(e domain.OwnerEarning, now time.Time) bool {
	if on := e.Transaction.StripeAvailableOn; on != nil && on.After(now) {
		return false
	}
	if e.DisputeWindowExpiresAt != nil {
		return !now.Before(*e.DisputeWindowExpiresAt)
	}
	// earnings from a cancellation: the tool never changed hands
	return e.ReturnConfirmedAt == nil
}

func (s *ledgerService) ListBookingTransactions(ctx context.Context, bookingID int64) ([]domain.Transaction, error) {
	return s.store.Repos().Ledger.ListByBooking(ctx, bookingID)
}

func newTransaction(currency string, in LogTransactionInput) (*domain.Transaction, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Amount.IsNegative() {
		return nil, domain.NewValidationError(domain.CodeInvalidAmount, "amount", "ledger amounts are positive; the kind carries the direction")
	}
	if in.Currency != "" {
		currency = in.Currency
	}
	return &domain.Transaction{
		UserID:            in.UserID,
		BookingID:         in.BookingID,
		Kind:              in.Kind,
		Amount:            in.Amount,
		Currency:          currency,
		StripeID:          in.StripeID,
		StripeAvailableOn: in.StripeAvailableOn,
	}, nil
}

// logTransaction appends one entry on the given repository, which may be
// bound to an open transaction.
func logTransaction(ctx context.Context, ledger repository.LedgerRepository, currency string, in LogTransactionInput) (*domain.Transaction, error) {
	t, err := newTransaction(currency, in)
	if err != nil {
		return nil, err
	}
	if err := ledger.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("log %s transaction: %w", in.Kind, err)
	}
	metrics.RecordLedgerWrite(string(t.Kind), false)
	return t, nil
}

// logTransactionOnce looks the natural key up first; the unique index catches
// a concurrent writer that passed the same check.
func logTransactionOnce(ctx context.Context, ledger repository.LedgerRepository, currency string, in LogTransactionInput) (*domain.Transaction, bool, error) {
	t, err := newTransaction(currency, in)
	if err != nil {
		return nil, false, err
	}

	existing, err := ledger.FindByKey(ctx, t.Key())
	switch {
	case err == nil:
		metrics.RecordLedgerWrite(string(t.Kind), true)
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("find %s transaction: %w", in.Kind, err)
	}

	err = ledger.Create(ctx, t)
	if errors.Is(err, repository.ErrDuplicate) {
		metrics.RecordLedgerWrite(string(t.Kind), true)
		existing, err = ledger.FindByKey(ctx, t.Key())
		if err != nil {
			return nil, false, fmt.Errorf("reload duplicate %s transaction: %w", in.Kind, err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("log %s transaction: %w", in.Kind, err)
	}
	metrics.RecordLedgerWrite(string(t.Kind), false)
	return t, true, nil
}

// post records an internal posting at most once. Zero amounts are skipped.
func (d *Dependencies) post(ctx context.Context, repos *repository.Repositories, in LogTransactionInput) error {
	if !in.Amount.IsPositive() {
		return nil
	}
	currency := d.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	_, _, err := logTransactionOnce(ctx, repos.Ledger, currency, in)
	return err
}
