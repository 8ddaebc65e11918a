package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atelier-market/backend/internal/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testCurrency = "USD"
	platformUser = "platform"
	fundUser     = "solidarity-fund"
)

const (
	lockAccountSQL   = "SELECT (.+) FROM accounts WHERE user_id = \\$1 FOR UPDATE"
	ensureAccountSQL = "INSERT INTO accounts \\(user_id, currency\\) VALUES \\(\\$1, \\$2\\) ON CONFLICT \\(user_id\\) DO NOTHING"
	insertEntrySQL   = "INSERT INTO ledger_entries"
	updateAccountSQL = "UPDATE accounts SET balance = \\$1, pending_balance = \\$2, total_deposited = \\$3, total_spent = \\$4, total_earned = \\$5, version = version \\+ 1, updated_at = \\$6 WHERE id = \\$7 AND version = \\$8"
)

var accountCols = []string{"id", "user_id", "balance", "pending_balance", "total_deposited", "total_spent", "total_earned", "currency", "is_active", "version", "created_at", "updated_at"}

var entryCols = []string{"id", "batch_id", "account_id", "user_id", "kind", "bucket", "amount", "balance_before", "balance_after", "currency", "status", "related_entity_type", "related_entity_id", "external_provider", "external_reference", "idempotency_key", "description", "metadata", "created_at"}

func usd(s string) money.Money { return money.MustParse(s, testCurrency) }

func rate(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine() *SettlementEngine {
	return NewSettlementEngine(
		TieredCommission{SettlementPurchase: rate("0.15"), SettlementBooking: rate("0.10")},
		SettlementConfig{
			Currency:       testCurrency,
			MaxTopup:       usd("50000"),
			MinPayout:      usd("500"),
			FundRate:       decimal.Zero,
			PlatformUserID: platformUser,
			FundUserID:     fundUser,
		})
}

func newMockLedger(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *LedgerService) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock, NewLedgerService(db, testCurrency, nil, nil, zap.NewNop())
}

type acct struct {
	id, user, balance, pending string
	active                     bool
	version                    int
}

func accountRows(a acct) *sqlmock.Rows {
	now := time.Now()
	pending := a.pending
	if pending == "" {
		pending = "0.00"
	}
	return sqlmock.NewRows(accountCols).
		AddRow(a.id, a.user, a.balance, pending, "0.00", "0.00", "0.00", testCurrency, a.active, a.version, now, now)
}

func expectLock(mock sqlmock.Sqlmock, a acct) {
	mock.ExpectQuery(lockAccountSQL).WithArgs(a.user).WillReturnRows(accountRows(a))
}

func expectEnsure(mock sqlmock.Sqlmock, userID string) {
	mock.ExpectExec(ensureAccountSQL).WithArgs(userID, testCurrency).WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectEntry(mock sqlmock.Sqlmock, a acct, kind, bucket, amount, before, after string) *sqlmock.ExpectedExec {
	return mock.ExpectExec(insertEntrySQL).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), a.id, a.user, kind, bucket, amount, before, after, testCurrency, "completed",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg())
}

func expectUpdate(mock sqlmock.Sqlmock, a acct, balance, pending string) *sqlmock.ExpectedExec {
	return mock.ExpectExec(updateAccountSQL).
		WithArgs(balance, pending, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), a.id, a.version)
}
