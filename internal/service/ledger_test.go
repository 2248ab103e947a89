package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/money"
	"toolshed-backend/internal/service"
)

func TestLedgerService_LogTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.putBooking(t, domain.BookingStatusPaid, nil)

	tx, err := f.ledger.LogTransaction(ctx, service.LogTransactionInput{
		UserID: renterID, BookingID: &b.ID, Kind: domain.TransactionKindRefund, Amount: money.MustParse("12.345"),
	})
	require.NoError(t, err)
	assert.Equal(t, "cad", tx.Currency)
	assert.Equal(t, "12.345", tx.Amount.String())

	_, err = f.ledger.LogTransaction(ctx, service.LogTransactionInput{
		UserID: renterID, BookingID: &b.ID, Kind: domain.TransactionKindRefund, Amount: money.MustParse("-1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.ledger.LogTransaction(ctx, service.LogTransactionInput{
		UserID: renterID, Kind: domain.TransactionKindRefund, Amount: money.MustParse("1"), Currency: "dollars",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLedgerService_LogTransactionOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.putBooking(t, domain.BookingStatusPaid, nil)
	in := service.LogTransactionInput{
		UserID: renterID, BookingID: &b.ID, Kind: domain.TransactionKindRefund,
		Amount: money.MustParse("300.00"), StripeID: "re_1",
	}

	first, created, err := f.ledger.LogTransactionOnce(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	// 300 and 300.00 are the same amount
	in.Amount = money.MustParse("300")
	second, created, err := f.ledger.LogTransactionOnce(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	in.StripeID = "re_2"
	_, created, err = f.ledger.LogTransactionOnce(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	txs, err := f.ledger.ListBookingTransactions(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestLedgerService_ComputeOwnerAvailableBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	elapsed := f.completedBooking(t, f.now.Add(-time.Hour))
	pending := f.completedBooking(t, f.now.Add(time.Hour))
	delayed := f.completedBooking(t, f.now.Add(-time.Hour))
	canceled := f.putBooking(t, domain.BookingStatusCanceled, nil)
	later := f.now.Add(24 * time.Hour)

	for _, in := range []service.LogTransactionInput{
		{UserID: ownerID, BookingID: &elapsed.ID, Kind: domain.TransactionKindOwnerEarning, Amount: money.MustParse("285.00")},
		{UserID: ownerID, BookingID: &pending.ID, Kind: domain.TransactionKindOwnerEarning, Amount: money.MustParse("100.00")},
		{UserID: ownerID, BookingID: &delayed.ID, Kind: domain.TransactionKindOwnerEarning, Amount: money.MustParse("50.00"), StripeAvailableOn: &later},
		{UserID: ownerID, BookingID: &canceled.ID, Kind: domain.TransactionKindOwnerEarning, Amount: money.MustParse("95.00")},
		{UserID: ownerID, BookingID: &elapsed.ID, Kind: domain.TransactionKindOwnerPayout, Amount: money.MustParse("1000.00")},
		{UserID: renterID, BookingID: &elapsed.ID, Kind: domain.TransactionKindOwnerEarning, Amount: money.MustParse("7.00")},
	} {
		_, err := f.ledger.LogTransaction(ctx, in)
		require.NoError(t, err)
	}

	balance, err := f.ledger.ComputeOwnerAvailableBalance(ctx, ownerID, f.now)
	require.NoError(t, err)
	assert.Equal(t, "380.00", money.Format(balance))

	balance, err = f.ledger.ComputeOwnerAvailableBalance(ctx, ownerID, f.now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "530.00", money.Format(balance))
}
