package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindBookingCharge        TransactionKind = "BOOKING_CHARGE"
	TransactionKindRefund               TransactionKind = "REFUND"
	TransactionKindOwnerEarning         TransactionKind = "OWNER_EARNING"
	TransactionKindOwnerPayout          TransactionKind = "OWNER_PAYOUT"
	TransactionKindPlatformFee          TransactionKind = "PLATFORM_FEE"
	TransactionKindGSTCollected         TransactionKind = "GST_COLLECTED"
	TransactionKindDamageDepositHold    TransactionKind = "DAMAGE_DEPOSIT_HOLD"
	TransactionKindDamageDepositCapture TransactionKind = "DAMAGE_DEPOSIT_CAPTURE"
	TransactionKindDamageDepositRelease TransactionKind = "DAMAGE_DEPOSIT_RELEASE"
	TransactionKindPromotionCharge      TransactionKind = "PROMOTION_CHARGE"
)

const DefaultCurrency = "cad"

// Transaction is an append-only ledger entry. Amounts are positive; the kind
// carries the direction.
type Transaction struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	BookingID         *int64          `json:"booking_id,omitempty"`
	Kind              TransactionKind `json:"kind"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	StripeID          string          `json:"stripe_id,omitempty"`
	StripeAvailableOn *time.Time      `json:"stripe_available_on,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TransactionKey is the natural key the duplicate guard matches on.
type TransactionKey struct {
	UserID    int64
	BookingID *int64
	Kind      TransactionKind
	Amount    decimal.Decimal
	StripeID  string
}

func (t *Transaction) Key() TransactionKey {
	return TransactionKey{
		UserID:    t.UserID,
		BookingID: t.BookingID,
		Kind:      t.Kind,
		Amount:    t.Amount,
		StripeID:  t.StripeID,
	}
}

// Matches compares two keys with decimal equality on the amount.
func (k TransactionKey) Matches(o TransactionKey) bool {
	if k.UserID != o.UserID || k.Kind != o.Kind || k.StripeID != o.StripeID {
		return false
	}
	if (k.BookingID == nil) != (o.BookingID == nil) {
		return false
	}
	if k.BookingID != nil && *k.BookingID != *o.BookingID {
		return false
	}
	return k.Amount.Equal(o.Amount)
}

// OwnerEarning pairs an OWNER_EARNING entry with its booking's dispute window.
type OwnerEarning struct {
	Transaction            Transaction
	DisputeWindowExpiresAt *time.Time
	ReturnConfirmedAt      *time.Time
}

// CancellationSettlement is the money movement a cancellation produces.
type CancellationSettlement struct {
	RefundToRenter       decimal.Decimal `json:"refund_to_renter"`
	OwnerDelta           decimal.Decimal `json:"owner_delta"`
	PlatformDelta        decimal.Decimal `json:"platform_delta"`
	DepositCaptureAmount decimal.Decimal `json:"deposit_capture_amount"`
	DepositReleaseAmount decimal.Decimal `json:"deposit_release_amount"`
}
