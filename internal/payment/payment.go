// Package payment moves money through the external payment provider. Every
// call carries an idempotency key so a retried call is recognised as the same
// request.
package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"toolshed-backend/internal/domain"
)

// Provider is the narrow surface the services need from the payment provider.
type Provider interface {
	// CaptureDepositAmount captures amount from the booking's deposit hold and
	// returns the provider reference.
	CaptureDepositAmount(ctx context.Context, booking *domain.Booking, amount decimal.Decimal, idempotencyKey string) (string, error)
	// ReleaseDepositHold voids the booking's deposit hold. It reports false
	// when there was no live hold to release.
	ReleaseDepositHold(ctx context.Context, booking *domain.Booking, idempotencyKey string) (bool, error)
	// RefundCharge refunds amount of the given charge and returns the refund
	// reference.
	RefundCharge(ctx context.Context, paymentIntentID string, amount decimal.Decimal, idempotencyKey string) (string, error)
}

// Noop acknowledges every call without contacting a provider. References are
// derived from the idempotency key so retries see the same value.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (Noop) CaptureDepositAmount(_ context.Context, booking *domain.Booking, amount decimal.Decimal, key string) (string, error) {
	if !booking.HasDepositHold() || !amount.IsPositive() {
		return "", nil
	}
	return "noop_cap_" + key, nil
}

func (Noop) ReleaseDepositHold(_ context.Context, booking *domain.Booking, _ string) (bool, error) {
	return booking.HasDepositHold(), nil
}

func (Noop) RefundCharge(_ context.Context, paymentIntentID string, amount decimal.Decimal, key string) (string, error) {
	if paymentIntentID == "" || !amount.IsPositive() {
		return "", nil
	}
	return "noop_re_" + key, nil
}
