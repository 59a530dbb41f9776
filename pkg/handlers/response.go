package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ValidationErrorResponse writes the full violation list with a 422 status.
func ValidationErrorResponse(w http.ResponseWriter, violations apperrors.ValidationErrors) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	return json.NewEncoder(w).Encode(map[string]any{
		"error":  "validation_failed",
		"errors": violations,
	})
}

// ServiceErrorResponse maps service layer errors onto HTTP statuses:
// validation failures 422, missing records 404, illegal cancellation 409,
// everything else 500.
func ServiceErrorResponse(w http.ResponseWriter, err error, logger *zap.Logger) {
	var violations apperrors.ValidationErrors
	switch {
	case errors.As(err, &violations):
		if werr := ValidationErrorResponse(w, violations); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrJobNotCancellable),
		errors.Is(err, apperrors.ErrInvalidTransition):
		// A job can reach a terminal state between the cancellable check and
		// the status update; that race is a conflict, not a server fault.
		_ = ErrorResponse(w, http.StatusConflict, "job_not_cancellable", err.Error())
	case errors.Is(err, apperrors.ErrTemplateInactive):
		_ = ErrorResponse(w, http.StatusConflict, "template_inactive", err.Error())
	default:
		logger.Error("Request failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
