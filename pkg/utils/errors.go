package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared by every pipeline component. Wrap them with %w and test with errors.Is.
var (
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrMissingData         = errors.New("missing data")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrMissingArtifact     = errors.New("missing artifact")
	ErrLeakageDetected     = errors.New("leakage detected")
	ErrNumericAnomaly      = errors.New("numeric anomaly")
	ErrInvalidInput        = errors.New("invalid input")
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func NewAppError(code string, message string, details ...string) *AppError {
	err := &AppError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeMissingData         = "MISSING_DATA"
	ErrCodeInsufficientHistory = "INSUFFICIENT_HISTORY"
	ErrCodeMissingArtifact     = "MISSING_ARTIFACT"
	ErrCodeLeakageDetected     = "LEAKAGE_DETECTED"
	ErrCodeNumericAnomaly      = "NUMERIC_ANOMALY"
	ErrCodeRateLimited         = "RATE_LIMITED"
)

// StatusFor maps a pipeline error onto an HTTP status and an AppError code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, ErrMissingData):
		return http.StatusNotFound, ErrCodeMissingData
	case errors.Is(err, ErrInsufficientHistory):
		return http.StatusUnprocessableEntity, ErrCodeInsufficientHistory
	case errors.Is(err, ErrMissingArtifact):
		return http.StatusConflict, ErrCodeMissingArtifact
	case errors.Is(err, ErrLeakageDetected):
		return http.StatusUnprocessableEntity, ErrCodeLeakageDetected
	case errors.Is(err, ErrNumericAnomaly):
		return http.StatusInternalServerError, ErrCodeNumericAnomaly
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable, ErrCodeStoreUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
