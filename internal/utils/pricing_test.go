package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/money"
)

func day(s string) time.Time {
	d, err := domain.ParseCivilDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeBookingTotals(t *testing.T) {
	t.Run("Five day booking with default rates", func(t *testing.T) {
		totals, err := ComputeBookingTotals(PricingInput{
			DailyPrice:    money.MustParse("100"),
			DamageDeposit: money.MustParse("75"),
			StartDate:     day("2024-01-01"),
			EndDate:       day("2024-01-06"),
			RenterFeeRate: money.MustParse("0.10"),
			OwnerFeeRate:  money.MustParse("0.05"),
		})
		require.NoError(t, err)
		assert.Equal(t, 5, totals.Days)
		assert.Equal(t, "500.00", money.Format(totals.RentalSubtotal))
		assert.Equal(t, "50.00", money.Format(totals.RenterFee))
		assert.Equal(t, "25.00", money.Format(totals.OwnerFee))
		assert.Equal(t, "75.00", money.Format(totals.PlatformFeeTotal))
		assert.Equal(t, "475.00", money.Format(totals.OwnerPayout))
		assert.Equal(t, "625.00", money.Format(totals.TotalCharge))
	})

	t.Run("End before start", func(t *testing.T) {
		_, err := ComputeBookingTotals(PricingInput{
			DailyPrice: money.MustParse("10"),
			StartDate:  day("2024-01-06"),
			EndDate:    day("2024-01-01"),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
	})

	t.Run("Same day is rejected", func(t *testing.T) {
		_, err := ComputeBookingTotals(PricingInput{
			DailyPrice: money.MustParse("10"),
			StartDate:  day("2024-01-06"),
			EndDate:    day("2024-01-06"),
		})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "end_date", ve.Field)
	})

	t.Run("Fees round half up", func(t *testing.T) {
		// 3 x 12.35 = 37.05; 10% = 3.705 -> 3.71; 5% = 1.8525 -> 1.85
		totals, err := ComputeBookingTotals(PricingInput{
			DailyPrice:    money.MustParse("12.35"),
			DamageDeposit: decimal.Zero,
			StartDate:     day("2024-03-01"),
			EndDate:       day("2024-03-04"),
			RenterFeeRate: money.MustParse("0.10"),
			OwnerFeeRate:  money.MustParse("0.05"),
		})
		require.NoError(t, err)
		assert.Equal(t, "37.05", money.Format(totals.RentalSubtotal))
		assert.Equal(t, "3.71", money.Format(totals.RenterFee))
		assert.Equal(t, "1.85", money.Format(totals.OwnerFee))
		assert.Equal(t, "35.20", money.Format(totals.OwnerPayout))
	})

	t.Run("GST split", func(t *testing.T) {
		totals, err := ComputeBookingTotals(PricingInput{
			DailyPrice:    money.MustParse("100"),
			DamageDeposit: money.MustParse("75"),
			StartDate:     day("2024-01-01"),
			EndDate:       day("2024-01-06"),
			RenterFeeRate: money.MustParse("0.10"),
			OwnerFeeRate:  money.MustParse("0.05"),
			GSTEnabled:    true,
			GSTRate:       money.MustParse("0.05"),
		})
		require.NoError(t, err)
		assert.Equal(t, "50.00", money.Format(totals.RenterFeeBase))
		assert.Equal(t, "2.50", money.Format(totals.RenterFeeGST))
		assert.Equal(t, "52.50", money.Format(totals.RenterFeeTotal))
		assert.Equal(t, "25.00", money.Format(totals.OwnerFeeBase))
		assert.Equal(t, "1.25", money.Format(totals.OwnerFeeGST))
		assert.Equal(t, "26.25", money.Format(totals.OwnerFeeTotal))
		assert.Equal(t, "3.75", money.Format(totals.GSTTotal))
		assert.Equal(t, "78.75", money.Format(totals.PlatformFeeTotal))
		assert.Equal(t, "473.75", money.Format(totals.OwnerPayout))
		assert.Equal(t, "627.50", money.Format(totals.TotalCharge))
	})
}

func TestComputeBookingTotals_Identities(t *testing.T) {
	prices := []string{"0.01", "1", "9.99", "12.345", "33.33", "100", "249.995"}
	for _, p := range prices {
		for days := 1; days <= 31; days += 3 {
			for _, gst := range []bool{false, true} {
				totals, err := ComputeBookingTotals(PricingInput{
					DailyPrice:    money.MustParse(p),
					DamageDeposit: money.MustParse("50.505"),
					StartDate:     day("2024-02-01"),
					EndDate:       day("2024-02-01").AddDate(0, 0, days),
					RenterFeeRate: money.MustParse("0.125"),
					OwnerFeeRate:  money.MustParse("0.07"),
					GSTEnabled:    gst,
					GSTRate:       money.MustParse("0.05"),
				})
				require.NoError(t, err)
				assert.True(t, totals.RentalSubtotal.Add(totals.RenterFee).Add(totals.DamageDeposit).Equal(totals.TotalCharge), "price %s days %d", p, days)
				assert.True(t, totals.OwnerPayout.Equal(totals.RentalSubtotal.Sub(totals.OwnerFee)), "price %s days %d", p, days)
				assert.LessOrEqual(t, -totals.TotalCharge.Exponent(), int32(2))
			}
		}
	}
}

func TestBookingTotalsJSON(t *testing.T) {
	t.Run("Amounts serialize as fixed strings", func(t *testing.T) {
		totals := domain.BookingTotals{
			Days:           2,
			RentalSubtotal: money.MustParse("200"),
			RenterFee:      money.MustParse("20.5"),
			TotalCharge:    money.MustParse("220.5"),
		}
		raw, err := json.Marshal(totals)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"rental_subtotal":"200.00"`)
		assert.Contains(t, string(raw), `"renter_fee":"20.50"`)
		assert.NotContains(t, string(raw), "gst_total")
	})

	t.Run("Foreign input is coerced", func(t *testing.T) {
		var totals domain.BookingTotals
		err := json.Unmarshal([]byte(`{"rental_subtotal": 300, "renter_fee": "30.00", "owner_fee": null, "owner_payout": "garbage", "days": "3"}`), &totals)
		require.NoError(t, err)
		assert.Equal(t, "300.00", money.Format(totals.RentalSubtotal))
		assert.Equal(t, "30.00", money.Format(totals.RenterFee))
		assert.True(t, totals.OwnerFee.IsZero())
		assert.True(t, totals.OwnerPayout.IsZero())
		assert.Equal(t, 3, totals.Days)
	})
}

func TestRangesOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     [2]string
		expected bool
	}{
		{"Disjoint", [2]string{"2024-01-01", "2024-01-05"}, [2]string{"2024-01-10", "2024-01-12"}, false},
		{"Touching edge", [2]string{"2024-01-01", "2024-01-05"}, [2]string{"2024-01-05", "2024-01-08"}, false},
		{"Touching edge reversed", [2]string{"2024-01-05", "2024-01-08"}, [2]string{"2024-01-01", "2024-01-05"}, false},
		{"One day overlap", [2]string{"2024-01-01", "2024-01-05"}, [2]string{"2024-01-04", "2024-01-08"}, true},
		{"Contained", [2]string{"2024-01-01", "2024-01-10"}, [2]string{"2024-01-03", "2024-01-04"}, true},
		{"Identical", [2]string{"2024-01-01", "2024-01-03"}, [2]string{"2024-01-01", "2024-01-03"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RangesOverlap(day(tt.a[0]), day(tt.a[1]), day(tt.b[0]), day(tt.b[1]))
			assert.Equal(t, tt.expected, got)
		})
	}
}
