package models

import (
	"time"

	"github.com/atelier-market/backend/internal/money"
)

type PayoutStatus string

const (
	PayoutInitiated PayoutStatus = "initiated"
	PayoutConfirmed PayoutStatus = "confirmed"
	PayoutFailed    PayoutStatus = "failed"
	PayoutSettled   PayoutStatus = "settled"
)

// PayoutAttempt tracks one withdrawal through the payment rail. The
// idempotency key is unique per account and cycle date.
type PayoutAttempt struct {
	ID             string       `json:"id" db:"id"`
	UserID         string       `json:"userId" db:"user_id"`
	IdempotencyKey string       `json:"idempotencyKey" db:"idempotency_key"`
	Amount         money.Money  `json:"amount" db:"amount"`
	Status         PayoutStatus `json:"status" db:"status"`
	RailReference  string       `json:"railReference,omitempty" db:"rail_reference"`
	Attempts       int          `json:"attempts" db:"attempts"`
	LastError      string       `json:"lastError,omitempty" db:"last_error"`
	LedgerEntryID  string       `json:"ledgerEntryId,omitempty" db:"ledger_entry_id"`
	CreatedAt      time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time    `json:"updatedAt" db:"updated_at"`
}
