package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of caller mistake. Codes are compared with
// errors.Is so a ValidationError built with extra detail still matches its
// sentinel.
type ErrorCode string

const (
	CodeInvalidInput         ErrorCode = "invalid_input"
	CodeInvalidDateRange     ErrorCode = "invalid_date_range"
	CodeBookingConflict      ErrorCode = "booking_conflict"
	CodeInvalidBookingState  ErrorCode = "invalid_booking_state"
	CodeInvalidDisputeState  ErrorCode = "invalid_dispute_state"
	CodeReturnNotConfirmed   ErrorCode = "return_not_confirmed"
	CodeBeforePhotosMissing  ErrorCode = "before_photos_missing"
	CodeDuplicateActive      ErrorCode = "duplicate_active_dispute"
	CodeDisputeWindowExpired ErrorCode = "dispute_window_expired"
	CodeInvalidActor         ErrorCode = "invalid_actor"
	CodeInvalidAmount        ErrorCode = "invalid_amount"
	CodeForbidden            ErrorCode = "forbidden"
	CodeDisputeNotEligible   ErrorCode = "dispute_not_eligible"
	CodeEvidenceNotUploaded  ErrorCode = "evidence_not_uploaded"
)

// ValidationError is a field-addressable caller error. It never carries a
// partial mutation: services return it before touching storage or roll back.
type ValidationError struct {
	Code    ErrorCode
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Is matches any ValidationError carrying the same code.
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewValidationError builds a ValidationError.
func NewValidationError(code ErrorCode, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

var (
	ErrInvalidInput         = &ValidationError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrInvalidDateRange     = &ValidationError{Code: CodeInvalidDateRange, Field: "end_date", Message: "end_date must be after start_date"}
	ErrBookingConflict      = &ValidationError{Code: CodeBookingConflict, Field: "start_date", Message: "listing is already booked for these dates"}
	ErrInvalidBookingState  = &ValidationError{Code: CodeInvalidBookingState, Field: "status", Message: "booking is not in a valid state for this action"}
	ErrInvalidDisputeState  = &ValidationError{Code: CodeInvalidDisputeState, Field: "status", Message: "dispute is not in a valid state for this action"}
	ErrReturnNotConfirmed   = &ValidationError{Code: CodeReturnNotConfirmed, Field: "return_confirmed_at", Message: "return must be confirmed before completing the booking"}
	ErrBeforePhotosMissing  = &ValidationError{Code: CodeBeforePhotosMissing, Field: "before_photos_uploaded_at", Message: "before photos must be uploaded before pickup"}
	ErrDuplicateActive      = &ValidationError{Code: CodeDuplicateActive, Field: "booking", Message: "booking already has an active dispute"}
	ErrDisputeWindowExpired = &ValidationError{Code: CodeDisputeWindowExpired, Field: "booking", Message: "Dispute window expired"}
	ErrInvalidActor         = &ValidationError{Code: CodeInvalidActor, Field: "actor", Message: "unknown cancellation actor"}
	ErrInvalidAmount        = &ValidationError{Code: CodeInvalidAmount, Field: "amount", Message: "invalid amount"}
	ErrForbidden            = &ValidationError{Code: CodeForbidden, Message: "not allowed to act on this resource"}
	ErrDisputeNotEligible   = &ValidationError{Code: CodeDisputeNotEligible, Field: "booking", Message: "disputes can only be filed on completed bookings"}
	ErrEvidenceNotUploaded  = &ValidationError{Code: CodeEvidenceNotUploaded, Field: "evidence", Message: "evidence file was not uploaded"}
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// AvailabilityError wraps a failure of an external dependency. The operation
// that produced it left no state behind and can be retried.
type AvailabilityError struct {
	Dependency string
	Err        error
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *AvailabilityError) Unwrap() error { return e.Err }

// Is matches any AvailabilityError for the same dependency.
func (e *AvailabilityError) Is(target error) bool {
	var t *AvailabilityError
	if !errors.As(target, &t) {
		return false
	}
	return t.Dependency == e.Dependency
}

var (
	ErrPaymentProviderUnavailable = &AvailabilityError{Dependency: "payment_provider"}
	ErrStorageUnavailable         = &AvailabilityError{Dependency: "object_storage"}
)

// NewAvailabilityError wraps err as an outage of dependency.
func NewAvailabilityError(dependency string, err error) *AvailabilityError {
	return &AvailabilityError{Dependency: dependency, Err: err}
}

// InvariantError signals a programming mistake. It must never be swallowed.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Message
}

// NewInvariantError builds an InvariantError.
func NewInvariantError(format string, args ...any) *InvariantError {
	return &InvariantError{Message: fmt.Sprintf(format, args...)}
}

// IsClientError reports whether err was caused by the caller.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether err came from a degraded dependency.
func IsRetryable(err error) bool {
	var ae *AvailabilityError
	return errors.As(err, &ae)
}

// IsInvariant reports whether err is a programmer error.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
