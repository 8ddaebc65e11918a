package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrAlreadyPurchased),
		errors.Is(err, ErrDuplicateEntry),
		errors.Is(err, ErrPersistenceConflict),
		errors.Is(err, ErrPurchaseNotActive):
		return http.StatusConflict
	case errors.Is(err, ErrItemNotPurchasable), errors.Is(err, ErrBelowMinimumPayout):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSelfPurchaseForbidden), errors.Is(err, ErrAccountInactive):
		return http.StatusForbidden
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrExternalGateway):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteServiceError sends err with the status StatusFor picks. Internal
// errors are not echoed to the client.
func WriteServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	SendErrorResponse(w, message, status, nil)
}
