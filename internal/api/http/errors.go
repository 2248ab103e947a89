package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// StatusForError maps a service error onto an HTTP status.
func StatusForError(err error) int {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		switch ve.Code {
		case domain.CodeForbidden:
			return http.StatusForbidden
		case domain.CodeBookingConflict, domain.CodeDuplicateActive,
			domain.CodeInvalidBookingState, domain.CodeInvalidDisputeState:
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	body := errorBody{Code: "internal", Message: "internal error"}

	var ve *domain.ValidationError
	var ae *domain.AvailabilityError
	switch {
	case errors.As(err, &ve):
		body = errorBody{Code: string(ve.Code), Field: ve.Field, Message: ve.Message}
	case errors.Is(err, domain.ErrNotFound):
		body = errorBody{Code: "not_found", Message: "resource not found"}
	case errors.As(err, &ae):
		body = errorBody{Code: "unavailable", Message: ae.Dependency + " unavailable, retry later"}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

// decodeJSON treats an empty body as an empty object.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError(domain.CodeInvalidInput, "body", "malformed JSON body")
	}
	return nil
}
