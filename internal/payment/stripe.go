package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/metrics"
	"toolshed-backend/internal/money"
)

const providerName = "stripe"

// stripeAPI is the subset of the Stripe client the adapter calls.
type stripeAPI interface {
	CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error)
}

type stripeClient struct {
	sc *stripe.Client
}

func (c stripeClient) CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	return c.sc.V1PaymentIntents.Capture(ctx, id, params)
}

func (c stripeClient) CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return c.sc.V1PaymentIntents.Cancel(ctx, id, params)
}

func (c stripeClient) CreateRefund(ctx context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error) {
	return c.sc.V1Refunds.Create(ctx, params)
}

// StripeProvider implements Provider on top of manual-capture PaymentIntents:
// the deposit hold is an uncaptured intent, capturing takes part of it and
// cancelling releases it.
type StripeProvider struct {
	api stripeAPI
}

func NewStripeProvider(apiKey string) *StripeProvider {
	return &StripeProvider{api: stripeClient{sc: stripe.NewClient(apiKey)}}
}

func (p *StripeProvider) CaptureDepositAmount(ctx context.Context, booking *domain.Booking, amount decimal.Decimal, key string) (ref string, err error) {
	if !booking.HasDepositHold() || !amount.IsPositive() {
		return "", nil
	}
	const op = "capture_deposit"
	logger.ExternalServiceCall(providerName, op, "booking_id", booking.ID, "amount", money.Format(amount))
	defer p.observe(op, time.Now(), &err)

	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(money.ToCents(amount)),
	}
	params.SetIdempotencyKey(key)
	pi, err := p.api.CapturePaymentIntent(ctx, booking.DepositHoldID, params)
	if err != nil {
		return "", mapError(op, err)
	}
	return pi.ID, nil
}

func (p *StripeProvider) ReleaseDepositHold(ctx context.Context, booking *domain.Booking, key string) (released bool, err error) {
	if !booking.HasDepositHold() {
		return false, nil
	}
	const op = "release_deposit"
	logger.ExternalServiceCall(providerName, op, "booking_id", booking.ID)
	defer p.observe(op, time.Now(), &err)

	params := &stripe.PaymentIntentCancelParams{}
	params.SetIdempotencyKey(key)
	if _, err = p.api.CancelPaymentIntent(ctx, booking.DepositHoldID, params); err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			// already captured or canceled
			return false, nil
		}
		return false, mapError(op, err)
	}
	return true, nil
}

func (p *StripeProvider) RefundCharge(ctx context.Context, paymentIntentID string, amount decimal.Decimal, key string) (ref string, err error) {
	if paymentIntentID == "" || !amount.IsPositive() {
		return "", nil
	}
	const op = "refund_charge"
	logger.ExternalServiceCall(providerName, op, "payment_intent", paymentIntentID, "amount", money.Format(amount))
	defer p.observe(op, time.Now(), &err)

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(money.ToCents(amount)),
	}
	params.SetIdempotencyKey(key)
	refund, err := p.api.CreateRefund(ctx, params)
	if err != nil {
		return "", mapError(op, err)
	}
	return refund.ID, nil
}

func (p *StripeProvider) observe(op string, start time.Time, err *error) {
	metrics.ObserveProviderCall(providerName, op, start, *err)
	logger.ExternalServiceResult(providerName, op, *err)
}

// mapError turns transport failures, rate limits and provider-side errors
// into a retryable AvailabilityError. Request errors are returned wrapped so
// they surface to the caller.
func mapError(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return domain.NewAvailabilityError(domain.ErrPaymentProviderUnavailable.Dependency, err)
	}
	if se.Type == stripe.ErrorTypeAPI || se.HTTPStatusCode >= http.StatusInternalServerError ||
		se.HTTPStatusCode == http.StatusTooManyRequests {
		return domain.NewAvailabilityError(domain.ErrPaymentProviderUnavailable.Dependency, err)
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}
