package models

import (
	"time"

	"github.com/atelier-market/backend/internal/money"
)

type EntryKind string

const (
	EntryDeposit    EntryKind = "deposit"
	EntryPurchase   EntryKind = "purchase"
	EntryWithdrawal EntryKind = "withdrawal"
	EntryRefund     EntryKind = "refund"
	EntryCommission EntryKind = "commission"
	EntryEarning    EntryKind = "earning"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryDeposit, EntryPurchase, EntryWithdrawal, EntryRefund, EntryCommission, EntryEarning:
		return true
	}
	return false
}

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
	EntryCancelled EntryStatus = "cancelled"
)

// Bucket selects which of the account balances an entry moves.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketPending   Bucket = "pending"
)

// LedgerEntry is one immutable balance mutation. BalanceBefore and
// BalanceAfter refer to the balance selected by Bucket.
type LedgerEntry struct {
	ID                string      `json:"id" db:"id"`
	BatchID           string      `json:"batchId" db:"batch_id"`
	AccountID         string      `json:"accountId" db:"account_id"`
	UserID            string      `json:"userId" db:"user_id"`
	Kind              EntryKind   `json:"kind" db:"kind"`
	Bucket            Bucket      `json:"bucket" db:"bucket"`
	Amount            money.Money `json:"amount" db:"amount"`
	BalanceBefore     money.Money `json:"balanceBefore" db:"balance_before"`
	BalanceAfter      money.Money `json:"balanceAfter" db:"balance_after"`
	Currency          string      `json:"currency" db:"currency"`
	Status            EntryStatus `json:"status" db:"status"`
	RelatedEntityType string      `json:"relatedEntityType,omitempty" db:"related_entity_type"`
	RelatedEntityID   string      `json:"relatedEntityId,omitempty" db:"related_entity_id"`
	ExternalProvider  string      `json:"externalProvider,omitempty" db:"external_provider"`
	ExternalReference string      `json:"externalReference,omitempty" db:"external_reference"`
	IdempotencyKey    string      `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	Description       string      `json:"description,omitempty" db:"description"`
	Metadata          Metadata    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time   `json:"createdAt" db:"created_at"`
}

// Account is a user's wallet.
type Account struct {
	ID             string      `json:"id" db:"id"`
	UserID         string      `json:"userId" db:"user_id"`
	Balance        money.Money `json:"balance" db:"balance"`
	PendingBalance money.Money `json:"pendingBalance" db:"pending_balance"`
	TotalDeposited money.Money `json:"totalDeposited" db:"total_deposited"`
	TotalSpent     money.Money `json:"totalSpent" db:"total_spent"`
	TotalEarned    money.Money `json:"totalEarned" db:"total_earned"`
	Currency       string      `json:"currency" db:"currency"`
	IsActive       bool        `json:"isActive" db:"is_active"`
	Version        int         `json:"-" db:"version"` // for optimistic locking
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`
}

// BucketBalance returns the balance an entry on bucket b would move.
func (a *Account) BucketBalance(b Bucket) money.Money {
	if b == BucketPending {
		return a.PendingBalance
	}
	return a.Balance
}

func (a *Account) SetBucketBalance(b Bucket, m money.Money) {
	if b == BucketPending {
		a.PendingBalance = m
		return
	}
	a.Balance = m
}
