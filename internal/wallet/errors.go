package wallet

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletLocked        = errors.New("wallet is locked")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateReference  = errors.New("duplicate transaction reference")
	ErrInvalidPin          = errors.New("invalid transaction PIN")

	// ErrConflict is the typed serialization/write-conflict signal the
	// retry loop branches on. Callers never see it directly; after the
	// retry budget is spent they get ErrConflictRetryExhausted.
	ErrConflict               = errors.New("write conflict")
	ErrConflictRetryExhausted = errors.New("transaction conflict, please try again")
)

// ValidationError carries a user-presentable rejection reason surfaced
// before any balance mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// LimitExceededError is returned on fail-closed limit paths only
// (withdrawals and P2P sends). Fail-open deposit breaches never surface it.
type LimitExceededError struct {
	Category LimitCategory
	Limit    decimal.Decimal
	Spent    decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("daily %s limit exceeded: limit ₦%s, spent ₦%s",
		e.Category, e.Limit.StringFixed(2), e.Spent.StringFixed(2))
}

// ProviderError wraps a failed or timed-out external payment provider call.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// mapStoreError converts driver-level failures into the typed taxonomy so
// callers branch on errors.Is instead of sniffing error strings.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case "23505": // unique_violation
			return ErrDuplicateReference
		}
	}
	return err
}
