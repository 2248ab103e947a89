package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Is(t *testing.T) {
	err := fmt.Errorf("filing: %w", NewValidationError(CodeDuplicateActive, "booking", "dispute #4 is still open"))
	assert.True(t, errors.Is(err, ErrDuplicateActive))
	assert.False(t, errors.Is(err, ErrDisputeWindowExpired))
	assert.True(t, IsClientError(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "filing: booking: dispute #4 is still open", err.Error())
}

func TestAvailabilityError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("capture: %w", NewAvailabilityError("payment_provider", cause))
	assert.True(t, errors.Is(err, ErrPaymentProviderUnavailable))
	assert.False(t, errors.Is(err, ErrStorageUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsClientError(err))
}

func TestInvariantError(t *testing.T) {
	err := fmt.Errorf("resolve: %w", NewInvariantError("dispute %d has no notes", 3))
	assert.True(t, IsInvariant(err))
	assert.False(t, IsClientError(err))
	assert.Contains(t, err.Error(), "dispute 3 has no notes")
}

func TestNotFound(t *testing.T) {
	assert.True(t, IsClientError(fmt.Errorf("booking 9: %w", ErrNotFound)))
}
