package grpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"toolshed-backend/internal/domain"
)

// ToStatus converts a service error into a gRPC status. Errors that already
// carry a status pass through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var ve *domain.ValidationError
	var ae *domain.AvailabilityError
	switch {
	case errors.As(err, &ve):
		return status.Error(codeForValidation(ve.Code), ve.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &ae):
		return status.Errorf(codes.Unavailable, "%s unavailable, retry later", ae.Dependency)
	}
	return status.Error(codes.Internal, "internal error")
}

func codeForValidation(code domain.ErrorCode) codes.Code {
	switch code {
	case domain.CodeForbidden:
		return codes.PermissionDenied
	case domain.CodeBookingConflict, domain.CodeDuplicateActive:
		return codes.AlreadyExists
	case domain.CodeInvalidBookingState, domain.CodeInvalidDisputeState,
		domain.CodeReturnNotConfirmed, domain.CodeBeforePhotosMissing,
		domain.CodeDisputeWindowExpired, domain.CodeDisputeNotEligible,
		domain.CodeEvidenceNotUploaded:
		return codes.FailedPrecondition
	}
	return codes.InvalidArgument
}
