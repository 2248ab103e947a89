package domain

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"toolshed-backend/internal/money"
)

// BookingTotals is the pricing snapshot frozen on a booking at request time.
// Settlement always reads these values, never current listing prices.
type BookingTotals struct {
	Days             int
	DailyPrice       decimal.Decimal
	RentalSubtotal   decimal.Decimal
	RenterFee        decimal.Decimal
	OwnerFee         decimal.Decimal
	PlatformFeeTotal decimal.Decimal
	OwnerPayout      decimal.Decimal
	DamageDeposit    decimal.Decimal
	TotalCharge      decimal.Decimal

	GSTEnabled     bool
	GSTRate        decimal.Decimal
	RenterFeeBase  decimal.Decimal
	RenterFeeGST   decimal.Decimal
	RenterFeeTotal decimal.Decimal
	OwnerFeeBase   decimal.Decimal
	OwnerFeeGST    decimal.Decimal
	OwnerFeeTotal  decimal.Decimal
	GSTTotal       decimal.Decimal
}

// RenterCharge is what the renter paid for the rental itself, deposit excluded.
func (t BookingTotals) RenterCharge() decimal.Decimal {
	return t.RentalSubtotal.Add(t.RenterFee)
}

type totalsJSON struct {
	Days             any  `json:"days"`
	DailyPrice       any  `json:"daily_price"`
	RentalSubtotal   any  `json:"rental_subtotal"`
	RenterFee        any  `json:"renter_fee"`
	OwnerFee         any  `json:"owner_fee"`
	PlatformFeeTotal any  `json:"platform_fee_total"`
	OwnerPayout      any  `json:"owner_payout"`
	DamageDeposit    any  `json:"damage_deposit"`
	TotalCharge      any  `json:"total_charge"`
	GSTEnabled       bool `json:"gst_enabled"`
	GSTRate          any  `json:"gst_rate,omitempty"`
	RenterFeeBase    any  `json:"renter_fee_base,omitempty"`
	RenterFeeGST     any  `json:"renter_fee_gst,omitempty"`
	RenterFeeTotal   any  `json:"renter_fee_total,omitempty"`
	OwnerFeeBase     any  `json:"owner_fee_base,omitempty"`
	OwnerFeeGST      any  `json:"owner_fee_gst,omitempty"`
	OwnerFeeTotal    any  `json:"owner_fee_total,omitempty"`
	GSTTotal         any  `json:"gst_total,omitempty"`
}

// MarshalJSON writes every amount as a fixed two-decimal string.
func (t BookingTotals) MarshalJSON() ([]byte, error) {
	out := totalsJSON{
		Days:             t.Days,
		DailyPrice:       money.Format(t.DailyPrice),
		RentalSubtotal:   money.Format(t.RentalSubtotal),
		RenterFee:        money.Format(t.RenterFee),
		OwnerFee:         money.Format(t.OwnerFee),
		PlatformFeeTotal: money.Format(t.PlatformFeeTotal),
		OwnerPayout:      money.Format(t.OwnerPayout),
		DamageDeposit:    money.Format(t.DamageDeposit),
		TotalCharge:      money.Format(t.TotalCharge),
		GSTEnabled:       t.GSTEnabled,
	}
	if t.GSTEnabled {
		out.GSTRate = t.GSTRate.String()
		out.RenterFeeBase = money.Format(t.RenterFeeBase)
		out.RenterFeeGST = money.Format(t.RenterFeeGST)
		out.RenterFeeTotal = money.Format(t.RenterFeeTotal)
		out.OwnerFeeBase = money.Format(t.OwnerFeeBase)
		out.OwnerFeeGST = money.Format(t.OwnerFeeGST)
		out.OwnerFeeTotal = money.Format(t.OwnerFeeTotal)
		out.GSTTotal = money.Format(t.GSTTotal)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts strings, numbers or nulls for every amount; fields it
// cannot read become zero instead of failing the whole row.
func (t *BookingTotals) UnmarshalJSON(data []byte) error {
	var in totalsJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	z := decimal.Zero
	*t = BookingTotals{
		Days:             int(money.Parse(in.Days, z).IntPart()),
		DailyPrice:       money.Parse(in.DailyPrice, z),
		RentalSubtotal:   money.Parse(in.RentalSubtotal, z),
		RenterFee:        money.Parse(in.RenterFee, z),
		OwnerFee:         money.Parse(in.OwnerFee, z),
		PlatformFeeTotal: money.Parse(in.PlatformFeeTotal, z),
		OwnerPayout:      money.Parse(in.OwnerPayout, z),
		DamageDeposit:    money.Parse(in.DamageDeposit, z),
		TotalCharge:      money.Parse(in.TotalCharge, z),
		GSTEnabled:       in.GSTEnabled,
		GSTRate:          money.Parse(in.GSTRate, z),
		RenterFeeBase:    money.Parse(in.RenterFeeBase, z),
		RenterFeeGST:     money.Parse(in.RenterFeeGST, z),
		RenterFeeTotal:   money.Parse(in.RenterFeeTotal, z),
		OwnerFeeBase:     money.Parse(in.OwnerFeeBase, z),
		OwnerFeeGST:      money.Parse(in.OwnerFeeGST, z),
		OwnerFeeTotal:    money.Parse(in.OwnerFeeTotal, z),
		GSTTotal:         money.Parse(in.GSTTotal, z),
	}
	return nil
}
