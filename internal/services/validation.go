package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/kobopay/backend/internal/wallet"
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
	if validationErr != nil {
		errorResp.Details = make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(validationErr, &verrs) {
			for _, err := range verrs {
				errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
			}
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// decodeJSON enforces the request body discipline used across all handlers:
// 1 MB cap, no unknown fields, exactly one JSON object.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must only contain a single JSON object")
	}
	return nil
}

// sendWalletError maps the engine's error taxonomy onto HTTP statuses. The
// raw error text only reaches the client for errors built to be shown.
func sendWalletError(w http.ResponseWriter, err error) {
	var validationErr *wallet.ValidationError
	var limitErr *wallet.LimitExceededError
	var providerErr *wallet.ProviderError

	switch {
	case errors.As(err, &validationErr):
		SendErrorResponse(w, validationErr.Message, http.StatusBadRequest, nil)
	case errors.As(err, &limitErr):
		SendErrorResponse(w, limitErr.Error(), http.StatusForbidden, nil)
	case errors.Is(err, wallet.ErrInsufficientBalance):
		SendErrorResponse(w, "Insufficient balance", http.StatusBadRequest, nil)
	case errors.Is(err, wallet.ErrWalletLocked):
		SendErrorResponse(w, "Wallet is locked, contact support", http.StatusForbidden, nil)
	case errors.Is(err, wallet.ErrInvalidPin):
		SendErrorResponse(w, "Invalid transaction PIN", http.StatusUnauthorized, nil)
	case errors.Is(err, wallet.ErrUserNotFound), errors.Is(err, wallet.ErrWalletNotFound), errors.Is(err, wallet.ErrTransactionNotFound):
		SendErrorResponse(w, "Not found", http.StatusNotFound, nil)
	case errors.Is(err, wallet.ErrConflictRetryExhausted):
		SendErrorResponse(w, "Transaction conflict, please try again", http.StatusConflict, nil)
	case errors.As(err, &providerErr):
		SendErrorResponse(w, "Payment provider is unavailable, please try again later", http.StatusBadGateway, nil)
	default:
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
	}
}
