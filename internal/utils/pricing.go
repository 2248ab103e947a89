package utils

import (
	"time"

	"github.com/shopspring/decimal"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/money"
)

// PricingInput carries everything the pricing engine reads. Rates are passed
// explicitly so callers (and tests) can override the configured defaults.
type PricingInput struct {
	DailyPrice    decimal.Decimal
	DamageDeposit decimal.Decimal
	StartDate     time.Time
	EndDate       time.Time
	RenterFeeRate decimal.Decimal
	OwnerFeeRate  decimal.Decimal
	GSTEnabled    bool
	GSTRate       decimal.Decimal
}

// ComputeBookingTotals prices a booking for [StartDate, EndDate).
//
// Every amount is rounded to cents on its own. With GST enabled each fee is
// split into base, tax and total; RenterFee and OwnerFee then carry the
// tax-inclusive totals so that
//
//	RentalSubtotal + RenterFee + DamageDeposit == TotalCharge
//	OwnerPayout == RentalSubtotal - OwnerFee
//
// hold in both modes.
func ComputeBookingTotals(in PricingInput) (domain.BookingTotals, error) {
	days := domain.CivilDays(in.StartDate, in.EndDate)
	if days <= 0 {
		return domain.BookingTotals{}, domain.ErrInvalidDateRange
	}
	if in.DailyPrice.IsNegative() {
		return domain.BookingTotals{}, domain.NewValidationError(domain.CodeInvalidAmount, "daily_price", "daily price cannot be negative")
	}
	if in.DamageDeposit.IsNegative() {
		return domain.BookingTotals{}, domain.NewValidationError(domain.CodeInvalidAmount, "damage_deposit", "damage deposit cannot be negative")
	}

	subtotal := money.Round2(in.DailyPrice.Mul(decimal.NewFromInt(int64(days))))
	renterFeeBase := money.Round2(subtotal.Mul(in.RenterFeeRate))
	ownerFeeBase := money.Round2(subtotal.Mul(in.OwnerFeeRate))
	deposit := money.Round2(in.DamageDeposit)

	t := domain.BookingTotals{
		Days:           days,
		DailyPrice:     money.Round2(in.DailyPrice),
		RentalSubtotal: subtotal,
		RenterFee:      renterFeeBase,
		OwnerFee:       ownerFeeBase,
		DamageDeposit:  deposit,
		GSTEnabled:     in.GSTEnabled,
	}

	if in.GSTEnabled {
		renterGST := money.Round2(renterFeeBase.Mul(in.GSTRate))
		ownerGST := money.Round2(ownerFeeBase.Mul(in.GSTRate))
		t.GSTRate = in.GSTRate
		t.RenterFeeBase = renterFeeBase
		t.RenterFeeGST = renterGST
		t.RenterFeeTotal = renterFeeBase.Add(renterGST)
		t.OwnerFeeBase = ownerFeeBase
		t.OwnerFeeGST = ownerGST
		t.OwnerFeeTotal = ownerFeeBase.Add(ownerGST)
		t.GSTTotal = renterGST.Add(ownerGST)
		t.RenterFee = t.RenterFeeTotal
		t.OwnerFee = t.OwnerFeeTotal
	}

	t.PlatformFeeTotal = t.RenterFee.Add(t.OwnerFee)
	t.OwnerPayout = subtotal.Sub(t.OwnerFee)
	t.TotalCharge = subtotal.Add(t.RenterFee).Add(deposit)
	return t, nil
}

// RangesOverlap reports whether [aStart, aEnd) and [bStart, bEnd) share a day.
// Touching ranges (aEnd == bStart) do not overlap.
func RangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return domain.CivilDate(aStart).Before(domain.CivilDate(bEnd)) &&
		domain.CivilDate(bStart).Before(domain.CivilDate(aEnd))
}
