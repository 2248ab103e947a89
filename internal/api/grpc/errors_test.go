package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"toolshed-backend/internal/domain"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"Invalid input", domain.NewValidationError(domain.CodeInvalidInput, "reason", "required"), codes.InvalidArgument},
		{"Forbidden", domain.ErrForbidden, codes.PermissionDenied},
		{"Conflict", domain.ErrBookingConflict, codes.AlreadyExists},
		{"Window expired", domain.ErrDisputeWindowExpired, codes.FailedPrecondition},
		{"Wrong state", domain.ErrInvalidBookingState, codes.FailedPrecondition},
		{"Not found", fmt.Errorf("dispute 9: %w", domain.ErrNotFound), codes.NotFound},
		{"Provider down", domain.NewAvailabilityError("payment_provider", errors.New("503")), codes.Unavailable},
		{"Invariant", domain.NewInvariantError("ledger imbalance"), codes.Internal},
		{"Passthrough", status.Error(codes.Unauthenticated, "no token"), codes.Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(ToStatus(tt.err)))
		})
	}
	assert.NoError(t, ToStatus(nil))
}

func TestToStatus_HidesInternalDetail(t *testing.T) {
	st, _ := status.FromError(ToStatus(errors.New("pq: relation bookings does not exist")))
	assert.Equal(t, "internal error", st.Message())
}

func TestGetUserIDFromContext(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("user-id", "42"))
	id, err := GetUserIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = GetUserIDFromContext(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.NewIncomingContext(context.Background(), metadata.Pairs("user-id", "abc"))
	_, err = GetUserIDFromContext(bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
