package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/repository"
)

const transactionColumns = `
	t.id, t.user_id, t.booking_id, t.kind, t.amount, t.currency,
	COALESCE(t.stripe_id, ''), t.stripe_available_on, t.created_at`

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func scanTransaction(row rowScanner, extra ...any) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	dest := append([]any{
		&t.ID, &t.UserID, &t.BookingID, &t.Kind, &t.Amount, &t.Currency,
		&t.StripeID, &t.StripeAvailableOn, &t.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return t, nil
}

// Create appends one ledger row. A row clashing with the unique natural-key
// index is skipped and reported as repository.ErrDuplicate; ON CONFLICT keeps
// the surrounding transaction usable.
func (r *ledgerRepository) Create(ctx context.Context, t *domain.Transaction) error {
	logger.EnterMethod("ledgerRepository.Create", "userID", t.UserID, "kind", t.Kind, "amount", t.Amount.StringFixed(2))

	query := `
		INSERT INTO transactions (user_id, booking_id, kind, amount, currency, stripe_id, stripe_available_on, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		t.UserID, t.BookingID, t.Kind, t.Amount, t.Currency, nullString(t.StripeID), t.StripeAvailableOn, time.Now().UTC(),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			logger.ExitMethod("ledgerRepository.Create", "duplicate", true)
			return repository.ErrDuplicate
		}
		logger.ExitMethodWithError("ledgerRepository.Create", err, "userID", t.UserID)
		return err
	}

	logger.ExitMethod("ledgerRepository.Create", "transactionID", t.ID)
	return nil
}

func (r *ledgerRepository) FindByKey(ctx context.Context, key domain.TransactionKey) (*domain.Transaction, error) {
	logger.EnterMethod("ledgerRepository.FindByKey", "userID", key.UserID, "kind", key.Kind)

	query := `SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.user_id = $1
		  AND t.booking_id IS NOT DISTINCT FROM $2
		  AND t.kind = $3
		  AND t.amount = $4
		  AND COALESCE(t.stripe_id, '') = $5
		ORDER BY t.id
		LIMIT 1`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, key.UserID, key.BookingID, key.Kind, key.Amount, key.StripeID))
	if err != nil {
		err = notFound(err)
		if errors.Is(err, domain.ErrNotFound) {
			logger.ExitMethod("ledgerRepository.FindByKey", "found", false)
		} else {
			logger.ExitMethodWithError("ledgerRepository.FindByKey", err, "userID", key.UserID)
		}
		return nil, err
	}

	logger.ExitMethod("ledgerRepository.FindByKey", "found", true, "transactionID", t.ID)
	return t, nil
}

func (r *ledgerRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.Transaction, error) {
	logger.EnterMethod("ledgerRepository.ListByBooking", "bookingID", bookingID)

	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.booking_id = $1 ORDER BY t.id`, bookingID)
	if err != nil {
		logger.ExitMethodWithError("ledgerRepository.ListByBooking", err, "bookingID", bookingID)
		return nil, err
	}
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			logger.ExitMethodWithError("ledgerRepository.ListByBooking", err, "bookingID", bookingID)
			return nil, err
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("ledgerRepository.ListByBooking", "bookingID", bookingID, "count", len(txs))
	return txs, nil
}

func (r *ledgerRepository) ListOwnerEarnings(ctx context.Context, ownerID int64) ([]domain.OwnerEarning, error) {
	logger.EnterMethod("ledgerRepository.ListOwnerEarnings", "ownerID", ownerID)

	query := `SELECT ` + transactionColumns + `, b.dispute_window_expires_at, b.return_confirmed_at
		FROM transactions t
		LEFT JOIN bookings b ON b.id = t.booking_id
		WHERE t.user_id = $1 AND t.kind = 'OWNER_EARNING'
		ORDER BY t.id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		logger.ExitMethodWithError("ledgerRepository.ListOwnerEarnings", err, "ownerID", ownerID)
		return nil, err
	}
	defer rows.Close()

	earnings := []domain.OwnerEarning{}
	for rows.Next() {
		var e domain.OwnerEarning
		t, err := scanTransaction(rows, &e.DisputeWindowExpiresAt, &e.ReturnConfirmedAt)
		if err != nil {
			logger.ExitMethodWithError("ledgerRepository.ListOwnerEarnings", err, "ownerID", ownerID)
			return nil, err
		}
		e.Transaction = *t
		earnings = append(earnings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("ledgerRepository.ListOwnerEarnings", "ownerID", ownerID, "count", len(earnings))
	return earnings, nil
}
