package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseCivilDate(s)
	require.NoError(t, err)
	return d
}

func TestBooking_AssertCanConfirm(t *testing.T) {
	for status := range BookingTransitions {
		b := &Booking{Status: status}
		err := b.AssertCanConfirm()
		if status == BookingStatusRequested {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrInvalidBookingState, string(status))
		}
	}
}

func TestBooking_AssertCanCancel(t *testing.T) {
	allowed := map[BookingStatus]bool{
		BookingStatusRequested: true,
		BookingStatusConfirmed: true,
		BookingStatusPaid:      true,
	}
	for status := range BookingTransitions {
		b := &Booking{Status: status}
		for _, actor := range []CancelActor{CancelActorRenter, CancelActorOwner, CancelActorSystem} {
			err := b.AssertCanCancel(actor)
			if allowed[status] {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidBookingState)
			}
		}
	}

	t.Run("Unknown actor", func(t *testing.T) {
		b := &Booking{Status: BookingStatusRequested}
		assert.ErrorIs(t, b.AssertCanCancel("admin"), ErrInvalidActor)
	})
}

func TestBooking_AssertCanComplete(t *testing.T) {
	now := time.Now()

	t.Run("Paid without return", func(t *testing.T) {
		b := &Booking{Status: BookingStatusPaid}
		err := b.AssertCanComplete()
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "return_confirmed_at", ve.Field)
	})

	t.Run("Paid with return", func(t *testing.T) {
		b := &Booking{Status: BookingStatusPaid, ReturnConfirmedAt: &now}
		assert.NoError(t, b.AssertCanComplete())
	})

	t.Run("Confirmed with return", func(t *testing.T) {
		b := &Booking{Status: BookingStatusConfirmed, ReturnConfirmedAt: &now}
		assert.NoError(t, b.AssertCanComplete())
	})

	t.Run("Requested", func(t *testing.T) {
		b := &Booking{Status: BookingStatusRequested, ReturnConfirmedAt: &now}
		assert.ErrorIs(t, b.AssertCanComplete(), ErrInvalidBookingState)
	})

	t.Run("Already completed", func(t *testing.T) {
		b := &Booking{Status: BookingStatusCompleted, ReturnConfirmedAt: &now}
		assert.ErrorIs(t, b.AssertCanComplete(), ErrInvalidBookingState)
	})
}

func TestBooking_AssertCanConfirmPickup(t *testing.T) {
	now := time.Now()

	b := &Booking{Status: BookingStatusConfirmed, BeforePhotosUploadedAt: &now}
	assert.ErrorIs(t, b.AssertCanConfirmPickup(), ErrInvalidBookingState)

	b = &Booking{Status: BookingStatusPaid}
	assert.ErrorIs(t, b.AssertCanConfirmPickup(), ErrBeforePhotosMissing)

	b = &Booking{Status: BookingStatusPaid, BeforePhotosUploadedAt: &now}
	assert.NoError(t, b.AssertCanConfirmPickup())
}

func TestBooking_MarkCanceled(t *testing.T) {
	tests := []struct {
		actor    CancelActor
		expected CanceledBy
	}{
		{CancelActorRenter, CanceledByRenter},
		{CancelActorNoShow, CanceledByRenter},
		{CancelActorOwner, CanceledByOwner},
		{CancelActorSystem, CanceledBySystem},
	}
	for _, tt := range tests {
		t.Run(string(tt.actor), func(t *testing.T) {
			b := &Booking{Status: BookingStatusConfirmed}
			require.NoError(t, b.MarkCanceled(tt.actor, tt.actor == CancelActorSystem, "reason"))
			assert.Equal(t, BookingStatusCanceled, b.Status)
			assert.Equal(t, tt.expected, b.CanceledBy)
			assert.Equal(t, "reason", b.CanceledReason)
			assert.Equal(t, tt.actor == CancelActorSystem, b.AutoCanceled)
		})
	}

	b := &Booking{Status: BookingStatusConfirmed}
	assert.ErrorIs(t, b.MarkCanceled("nobody", false, ""), ErrInvalidActor)
	assert.Equal(t, BookingStatusConfirmed, b.Status)
}

func TestBooking_DerivedPredicates(t *testing.T) {
	b := &Booking{StartDate: mustDate(t, "2024-01-10"), EndDate: mustDate(t, "2024-01-13")}

	assert.Equal(t, 3, b.Days())
	assert.Equal(t, 8, b.DaysUntilStart(mustDate(t, "2024-01-02")))
	assert.Equal(t, 1, b.DaysUntilStart(mustDate(t, "2024-01-09").Add(23*time.Hour)))
	assert.Equal(t, 0, b.DaysUntilStart(mustDate(t, "2024-01-10")))
	assert.Equal(t, -2, b.DaysUntilStart(mustDate(t, "2024-01-12")))
	assert.Equal(t, 0, (&Booking{}).DaysUntilStart(mustDate(t, "2024-01-12")))

	assert.False(t, b.IsOverdue(mustDate(t, "2024-01-13")))
	assert.True(t, b.IsOverdue(mustDate(t, "2024-01-14")))
	assert.False(t, (&Booking{}).IsOverdue(mustDate(t, "2024-01-14")))

	assert.True(t, b.IsPrePayment())
	b.ChargePaymentIntentID = "pi_1"
	assert.False(t, b.IsPrePayment())
}

func TestBooking_DisputeWindowOpen(t *testing.T) {
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	b := &Booking{}
	assert.False(t, b.DisputeWindowOpen(now))

	later := now.Add(time.Hour)
	b.DisputeWindowExpiresAt = &later
	assert.True(t, b.DisputeWindowOpen(now))
	assert.False(t, b.DisputeWindowOpen(later))
}

func TestParseBookingStatus(t *testing.T) {
	st, err := ParseBookingStatus("PAID")
	require.NoError(t, err)
	assert.Equal(t, BookingStatusPaid, st)

	_, err = ParseBookingStatus("DENIED")
	assert.Error(t, err)
}

func TestBooking_RoleOf(t *testing.T) {
	b := &Booking{OwnerID: 1, RenterID: 2}

	role, ok := b.RoleOf(1)
	assert.True(t, ok)
	assert.Equal(t, PartyRoleOwner, role)

	role, ok = b.RoleOf(2)
	assert.True(t, ok)
	assert.Equal(t, PartyRoleRenter, role)

	_, ok = b.RoleOf(3)
	assert.False(t, ok)
}
