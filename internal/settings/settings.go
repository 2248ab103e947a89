// Package settings resolves runtime marketplace settings (fee rates, GST,
// dispute windows) from a pluggable backend. Lookups never fail: a missing
// key, a malformed value or an unreachable backend yields the caller's
// default.
package settings

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"toolshed-backend/internal/logger"
)

// Keys understood by the services.
const (
	KeyRenterFeeRate                = "renter_fee_rate"
	KeyOwnerFeeRate                 = "owner_fee_rate"
	KeyGSTEnabled                   = "gst_enabled"
	KeyGSTRate                      = "gst_rate"
	KeyDisputeWindowHours           = "dispute_window_hours"
	KeyDisputeFilingWindowHours     = "dispute_filing_window_hours"
	KeyDisputeRebuttalWindowHours   = "dispute_rebuttal_window_hours"
	KeyDisputeRebuttalReminderHours = "dispute_rebuttal_reminder_hours"
	KeyBookingRequestExpiryHours    = "booking_request_expiry_hours"
	KeyBookingPaymentExpiryHours    = "booking_payment_expiry_hours"
)

// Source is a raw key/value backend. found is false when the key is absent;
// err is reserved for backend failures.
type Source interface {
	Lookup(ctx context.Context, key string) (value string, found bool, err error)
}

// Resolver is what services depend on.
type Resolver interface {
	GetInt(ctx context.Context, key string, def int) int
	GetDecimal(ctx context.Context, key string, def decimal.Decimal) decimal.Decimal
	GetBool(ctx context.Context, key string, def bool) bool
}

// SourceResolver adapts a Source into a Resolver.
type SourceResolver struct {
	src Source
}

func NewResolver(src Source) *SourceResolver {
	return &SourceResolver{src: src}
}

func (r *SourceResolver) lookup(ctx context.Context, key string) (string, bool) {
	if r.src == nil {
		return "", false
	}
	v, found, err := r.src.Lookup(ctx, key)
	if err != nil {
		logger.Warn("Settings backend failed, using default", "key", key, "error", err)
		return "", false
	}
	if !found {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *SourceResolver) GetInt(ctx context.Context, key string, def int) int {
	v, ok := r.lookup(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("Malformed integer setting, using default", "key", key, "value", v)
		return def
	}
	return n
}

func (r *SourceResolver) GetDecimal(ctx context.Context, key string, def decimal.Decimal) decimal.Decimal {
	v, ok := r.lookup(ctx, key)
	if !ok {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		logger.Warn("Malformed decimal setting, using default", "key", key, "value", v)
		return def
	}
	return d
}

func (r *SourceResolver) GetBool(ctx context.Context, key string, def bool) bool {
	v, ok := r.lookup(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("Malformed boolean setting, using default", "key", key, "value", v)
		return def
	}
	return b
}

// Chain consults sources in order and returns the first hit. A failing
// source is skipped so a later static source can still answer.
type Chain []Source

func (c Chain) Lookup(ctx context.Context, key string) (string, bool, error) {
	var firstErr error
	for _, src := range c {
		v, found, err := src.Lookup(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if found {
			return v, true, nil
		}
	}
	return "", false, firstErr
}

// Static is an in-process map, typically built from the YAML config.
type Static map[string]string

func (s Static) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}
