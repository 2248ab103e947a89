package utils

import (
	"time"

	"github.com/shopspring/decimal"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/money"
)

var half = decimal.NewFromFloat(0.5)

// ComputeRefundAmounts works out the money movement for cancelling b on
// today. It reads only the frozen totals snapshot.
//
// Renter-initiated schedule, d = days until start:
//
//	d > 1   rent refunded in full; owner payout clawed back; platform keeps the renter fee
//	d == 1  one day of rent forfeited; owner keeps one day of payout; platform keeps the
//	        renter fee plus one day of the owner-side fee
//	d <= 0  half the rent forfeited, all of it to the platform along with the renter fee
//
// A no-show pays the same-day penalty. Owner, system and unknown actors refund
// rent and renter fee in full. The deposit is never captured here.
func ComputeRefundAmounts(b *domain.Booking, actor domain.CancelActor, today time.Time) domain.CancellationSettlement {
	t := b.Totals
	days := t.Days
	if days <= 0 {
		days = b.Days()
	}
	if days <= 0 {
		days = 1
	}
	n := decimal.NewFromInt(int64(days))

	subtotal := money.Round2(t.RentalSubtotal)
	renterFee := money.Round2(t.RenterFee)
	ownerPayout := money.Round2(t.OwnerPayout)
	platformFee := money.Round2(t.PlatformFeeTotal)
	charge := subtotal.Add(renterFee)
	ownerSideFee := money.NonNegative(platformFee.Sub(renterFee))

	dayRent := money.Round2(subtotal.Div(n))
	dayOwnerPayout := money.Round2(ownerPayout.Div(n))
	dayOwnerFee := money.Round2(ownerSideFee.Div(n))

	var s domain.CancellationSettlement
	sameDay := func() {
		penalty := decimal.Min(money.Round2(subtotal.Mul(half)), subtotal)
		s.RefundToRenter = subtotal.Sub(penalty)
		s.OwnerDelta = decimal.Zero
		s.PlatformDelta = penalty.Add(renterFee)
	}

	switch actor {
	case domain.CancelActorRenter:
		d := b.DaysUntilStart(today)
		switch {
		case d > 1:
			s.RefundToRenter = subtotal
			s.OwnerDelta = ownerPayout.Neg()
			s.PlatformDelta = renterFee
		case d == 1:
			penalty := decimal.Min(dayRent, subtotal)
			s.RefundToRenter = subtotal.Sub(penalty)
			s.OwnerDelta = decimal.Min(dayOwnerPayout, ownerPayout)
			s.PlatformDelta = renterFee.Add(dayOwnerFee)
		default:
			sameDay()
		}
	case domain.CancelActorNoShow:
		sameDay()
	default:
		s.RefundToRenter = charge
		s.OwnerDelta = ownerPayout.Neg()
		s.PlatformDelta = platformFee.Neg()
	}

	s.RefundToRenter = money.Round2(money.Clamp(s.RefundToRenter, decimal.Zero, charge))
	s.OwnerDelta = money.Round2(s.OwnerDelta)
	s.PlatformDelta = money.Round2(s.PlatformDelta)

	deposit := money.NonNegative(money.Round2(t.DamageDeposit))
	s.DepositCaptureAmount = decimal.Zero
	s.DepositReleaseAmount = money.NonNegative(deposit.Sub(s.DepositCaptureAmount))
	return s
}
