package utils

import (
	"fmt"

	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"

	"toolshed-backend/internal/money"
)

// Provider operations that carry an idempotency key.
const (
	OpRefundCharge   = "refund_charge"
	OpCaptureDeposit = "capture_deposit"
	OpReleaseDeposit = "release_deposit"
)

var idempotencyNamespace = uuid.MustParse("6f1c2b9e-3d4a-5e8f-9a0b-7c6d5e4f3a21")

// IdempotencyKey derives a stable key from (booking, operation, amount) so a
// retried provider call is recognised as the same request.
func IdempotencyKey(bookingID int64, op string, amount decimal.Decimal) string {
	name := fmt.Sprintf("booking:%d:%s:%s", bookingID, op, money.Format(amount))
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReferenceGenerator returns a generator of short public case references
// such as "DSP-7KQ2M9XA".
func NewReferenceGenerator(prefix string) (func() string, error) {
	gen, err := nanoid.CustomASCII(referenceAlphabet, 8)
	if err != nil {
		return nil, err
	}
	return func() string {
		return prefix + "-" + gen()
	}, nil
}
