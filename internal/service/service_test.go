package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/money"
	"toolshed-backend/internal/notifier"
	"toolshed-backend/internal/repository/memory"
	"toolshed-backend/internal/service"
	"toolshed-backend/internal/settings"
	"toolshed-backend/internal/utils"
)

const (
	platformID int64 = 1
	ownerID    int64 = 10
	renterID   int64 = 20
	strangerID int64 = 30
	operatorID int64 = 99
)

// MockProvider records provider calls by booking and formatted amount.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CaptureDepositAmount(ctx context.Context, b *domain.Booking, amount decimal.Decimal, key string) (string, error) {
	args := m.Called(b.ID, money.Format(amount))
	return args.String(0), args.Error(1)
}

func (m *MockProvider) ReleaseDepositHold(ctx context.Context, b *domain.Booking, key string) (bool, error) {
	args := m.Called(b.ID)
	return args.Bool(0), args.Error(1)
}

func (m *MockProvider) RefundCharge(ctx context.Context, paymentIntentID string, amount decimal.Decimal, key string) (string, error) {
	args := m.Called(paymentIntentID, money.Format(amount))
	return args.String(0), args.Error(1)
}

type recorder struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (r *recorder) Notify(_ context.Context, n notifier.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recorder) ofType(t notifier.EventType) []notifier.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notifier.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	payments  *MockProvider
	notes     *recorder
	deps      *service.Dependencies
	bookings  service.BookingService
	disputes  service.DisputeService
	ledger    service.LedgerService
	listingID int64
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		payments: new(MockProvider),
		notes:    &recorder{},
		now:      time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)
	f.deps = &service.Dependencies{
		Store:          f.store,
		Settings:       settings.NewResolver(settings.Static{}),
		Payments:       f.payments,
		Notifier:       f.notes,
		PlatformUserID: platformID,
		Now:            clock,
	}
	f.bookings = service.NewBookingService(f.deps)
	f.disputes = service.NewDisputeService(f.deps)
	f.ledger = service.NewLedgerService(f.store, "")
	f.listingID = f.store.AddListing(domain.Listing{
		OwnerID:       ownerID,
		Title:         "Hammer drill",
		DailyPrice:    money.MustParse("100"),
		DamageDeposit: money.MustParse("150"),
		IsActive:      true,
	})
	return f
}

func mustDate(s string) time.Time {
	d, err := domain.ParseCivilDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// testTotals prices a Jan 10-13 booking at $100/day with a $150 deposit:
// subtotal 300, renter fee 30, owner fee 15, payout 285.
func testTotals(t *testing.T) domain.BookingTotals {
	t.Helper()
	totals, err := utils.ComputeBookingTotals(utils.PricingInput{
		DailyPrice:    money.MustParse("100"),
		DamageDeposit: money.MustParse("150"),
		StartDate:     mustDate("2024-01-10"),
		EndDate:       mustDate("2024-01-13"),
		RenterFeeRate: money.MustParse("0.10"),
		OwnerFeeRate:  money.MustParse("0.05"),
	})
	require.NoError(t, err)
	return totals
}

// putBooking stores a Jan 10-13 booking in status. Paid and completed
// bookings carry a charge and a deposit hold.
func (f *fixture) putBooking(t *testing.T, status domain.BookingStatus, mutate func(b *domain.Booking)) *domain.Booking {
	t.Helper()
	b := domain.Booking{
		ListingID: f.listingID,
		OwnerID:   ownerID,
		RenterID:  renterID,
		StartDate: mustDate("2024-01-10"),
		EndDate:   mustDate("2024-01-13"),
		Status:    status,
		Totals:    testTotals(t),
		CreatedAt: f.now,
	}
	if status == domain.BookingStatusPaid || status == domain.BookingStatusCompleted {
		b.ChargePaymentIntentID = "pi_charge"
		b.DepositHoldID = "pi_hold"
	}
	if mutate != nil {
		mutate(&b)
	}
	id := f.store.PutBooking(b)
	return f.booking(t, id)
}

// completedBooking is returned and completed, with the dispute window closing
// at windowEnd.
func (f *fixture) completedBooking(t *testing.T, windowEnd time.Time) *domain.Booking {
	returned := windowEnd.Add(-48 * time.Hour)
	return f.putBooking(t, domain.BookingStatusCompleted, func(b *domain.Booking) {
		b.ReturnConfirmedAt = &returned
		b.DisputeWindowExpiresAt = &windowEnd
	})
}

func (f *fixture) booking(t *testing.T, id int64) *domain.Booking {
	t.Helper()
	b, err := f.store.Repos().Bookings.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) dispute(t *testing.T, id int64) *domain.DisputeCase {
	t.Helper()
	d, err := f.store.Repos().Disputes.GetByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (f *fixture) events(t *testing.T, bookingID int64, typ domain.BookingEventType) []domain.BookingEvent {
	t.Helper()
	all, err := f.store.Repos().Events.ListByBooking(context.Background(), bookingID)
	require.NoError(t, err)
	var out []domain.BookingEvent
	for _, e := range all {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ledgerAmounts maps "KIND/user" to the formatted amount of each entry.
func (f *fixture) ledgerAmounts() map[string]string {
	out := map[string]string{}
	for _, tx := range f.store.Transactions() {
		out[string(tx.Kind)+"/"+userLabel(tx.UserID)] = money.Format(tx.Amount)
	}
	return out
}

func userLabel(id int64) string {
	switch id {
	case platformID:
		return "platform"
	case ownerID:
		return "owner"
	case renterID:
		return "renter"
	}
	return "other"
}
