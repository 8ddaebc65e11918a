package services

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAlreadyPurchased      = errors.New("item already purchased")
	ErrItemNotPurchasable    = errors.New("item is not purchasable")
	ErrSelfPurchaseForbidden = errors.New("cannot purchase own item")
	ErrBelowMinimumPayout    = errors.New("amount below minimum payout")
	ErrExternalGateway       = errors.New("external payment gateway error")
	ErrPersistenceConflict   = errors.New("concurrent update conflict, retry")
	ErrItemNotFound          = errors.New("item not found")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountInactive       = errors.New("account is inactive")
	ErrDuplicateEntry        = errors.New("duplicate idempotency key")
	ErrPurchaseNotFound      = errors.New("purchase not found")
	ErrPurchaseNotActive     = errors.New("purchase is not active")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsRetryable reports whether the caller may safely retry the whole operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceConflict) || errors.Is(err, ErrExternalGateway)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPurchaseNotFound)
}

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// classifyDBError maps PostgreSQL error codes onto ledger errors. unique is
// returned for unique violations so callers can pick the domain meaning.
func classifyDBError(err error, unique error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		if unique != nil {
			return fmt.Errorf("%w: %s", unique, pqErr.Constraint)
		}
	case pqSerializationFailure, pqDeadlockDetected:
		return fmt.Errorf("%w: %s", ErrPersistenceConflict, pqErr.Message)
	}
	return err
}
