package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/money"
	"toolshed-backend/internal/repository"
)

var transactionColumnNames = []string{
	"id", "user_id", "booking_id", "kind", "amount", "currency", "stripe_id", "stripe_available_on", "created_at",
}

func TestLedgerRepository_Create(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repos().Ledger
	ctx := context.Background()
	bookingID := int64(42)

	t.Run("Success", func(t *testing.T) {
		tx := &domain.Transaction{
			UserID:    20,
			BookingID: &bookingID,
			Kind:      domain.TransactionKindRefund,
			Amount:    money.MustParse("300.00"),
			Currency:  domain.DefaultCurrency,
			StripeID:  "re_1",
		}
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO transactions")).
			WithArgs(int64(20), int64(42), "REFUND", "300", "cad", sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

		require.NoError(t, repo.Create(ctx, tx))
		assert.Equal(t, int64(1), tx.ID)
	})

	t.Run("Conflict returns no row", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT DO NOTHING")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

		err := repo.Create(ctx, &domain.Transaction{UserID: 20, Kind: domain.TransactionKindRefund, Amount: money.MustParse("1")})
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})

	t.Run("Unique violation is a duplicate", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO transactions")).
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

		err := repo.Create(ctx, &domain.Transaction{UserID: 20, Kind: domain.TransactionKindRefund, Amount: money.MustParse("1")})
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_FindByKey(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repos().Ledger
	ctx := context.Background()
	bookingID := int64(42)
	key := domain.TransactionKey{UserID: 20, BookingID: &bookingID, Kind: domain.TransactionKindRefund, Amount: money.MustParse("300.00"), StripeID: "re_1"}

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(`FROM transactions t WHERE t.user_id = \$1 AND t.booking_id IS NOT DISTINCT FROM \$2`).
			WithArgs(int64(20), int64(42), "REFUND", "300", "re_1").
			WillReturnRows(sqlmock.NewRows(transactionColumnNames).
				AddRow(9, 20, 42, "REFUND", "300.00", "cad", "re_1", nil, time.Now()))

		tx, err := repo.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(9), tx.ID)
		require.NotNil(t, tx.BookingID)
		assert.Equal(t, int64(42), *tx.BookingID)
		assert.True(t, tx.Amount.Equal(money.MustParse("300")))
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectQuery(`FROM transactions t WHERE`).
			WillReturnRows(sqlmock.NewRows(transactionColumnNames))

		_, err := repo.FindByKey(ctx, key)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_ListOwnerEarnings(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repos().Ledger
	window := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`LEFT JOIN bookings b ON b.id = t.booking_id WHERE t.user_id = \$1 AND t.kind = 'OWNER_EARNING'`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(append(transactionColumnNames, "dispute_window_expires_at", "return_confirmed_at")).
			AddRow(1, 10, 42, "OWNER_EARNING", "240.00", "cad", "", nil, time.Now(), window, window.Add(-48*time.Hour)).
			AddRow(2, 10, nil, "OWNER_EARNING", "15.00", "cad", "", nil, time.Now(), nil, nil))

	earnings, err := repo.ListOwnerEarnings(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, earnings, 2)
	assert.Equal(t, window, *earnings[0].DisputeWindowExpiresAt)
	assert.Nil(t, earnings[1].Transaction.BookingID)
	assert.Nil(t, earnings[1].DisputeWindowExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
