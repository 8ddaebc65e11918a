package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/atelier-market/backend/internal/audit"
	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntryRequest asks the ledger to move Amount (signed) on one bucket of a
// user's account.
type EntryRequest struct {
	UserID            string
	Kind              models.EntryKind
	Bucket            models.Bucket
	Amount            money.Money
	RelatedEntityType string
	RelatedEntityID   string
	ExternalProvider  string
	ExternalReference string
	IdempotencyKey    string
	Description       string
	Metadata          models.Metadata
}

type EntryFilter struct {
	Kind   models.EntryKind
	Limit  int
	Offset int
}

// ChainReport is the result of replaying an account's entries.
type ChainReport struct {
	UserID   string   `json:"userId"`
	Entries  int      `json:"entries"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// LedgerService owns account balances. Every balance change goes through
// ApplyEntries or ApplyEntriesTx.
type LedgerService struct {
	db       *sql.DB
	events   EventPublisher
	audit    *audit.Logger
	logger   *zap.Logger
	currency string
}

func NewLedgerService(db *sql.DB, currency string, events EventPublisher, auditLog *audit.Logger, logger *zap.Logger) *LedgerService {
	if events == nil {
		events = NopPublisher{}
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		db:       db,
		events:   events,
		audit:    auditLog,
		logger:   logger,
		currency: strings.ToUpper(currency),
	}
}

const accountColumns = `id, user_id, balance, pending_balance, total_deposited, total_spent, total_earned, currency, is_active, version, created_at, updated_at`

const entryColumns = `id, batch_id, account_id, user_id, kind, bucket, amount, balance_before, balance_after, currency, status, related_entity_type, related_entity_id, external_provider, external_reference, idempotency_key, description, metadata, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a                                      models.Account
		bal, pending, deposited, spent, earned decimal.Decimal
	)
	err := row.Scan(&a.ID, &a.UserID, &bal, &pending, &deposited, &spent, &earned,
		&a.Currency, &a.IsActive, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Balance = money.New(bal, a.Currency)
	a.PendingBalance = money.New(pending, a.Currency)
	a.TotalDeposited = money.New(deposited, a.Currency)
	a.TotalSpent = money.New(spent, a.Currency)
	a.TotalEarned = money.New(earned, a.Currency)
	return &a, nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var (
		e                                   models.LedgerEntry
		amount, before, after               decimal.Decimal
		relType, relID, provider, reference sql.NullString
		key, description                    sql.NullString
	)
	err := row.Scan(&e.ID, &e.BatchID, &e.AccountID, &e.UserID, &e.Kind, &e.Bucket,
		&amount, &before, &after, &e.Currency, &e.Status,
		&relType, &relID, &provider, &reference, &key, &description,
		&e.Metadata, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Amount = money.New(amount, e.Currency)
	e.BalanceBefore = money.New(before, e.Currency)
	e.BalanceAfter = money.New(after, e.Currency)
	e.RelatedEntityType = relType.String
	e.RelatedEntityID = relID.String
	e.ExternalProvider = provider.String
	e.ExternalReference = reference.String
	e.IdempotencyKey = key.String
	e.Description = description.String
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetOrCreateAccount returns the user's account, creating an empty one if
// none exists yet. Safe to call concurrently.
func (s *LedgerService) GetOrCreateAccount(ctx context.Context, userID string) (*models.Account, error) {
	if userID == "" {
		return nil, invalid("userId", "is required")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, s.currency); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return s.GetAccount(ctx, userID)
}

func (s *LedgerService) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetBalance returns the available balance. Users without an account have
// a zero balance.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (money.Money, error) {
	account, err := s.GetAccount(ctx, userID)
	if errors.Is(err, ErrAccountNotFound) {
		return money.Zero(s.currency), nil
	}
	if err != nil {
		return money.Money{}, err
	}
	return account.Balance, nil
}

func (s *LedgerService) DeactivateAccount(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET is_active = FALSE, version = version + 1, updated_at = $1
		WHERE user_id = $2`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, userID)
	}
	s.audit.LogOperation("", userID, "ACCOUNT_DEACTIVATED", "account deactivated")
	return nil
}

// ApplyEntries commits the requests atomically in their own transaction.
func (s *LedgerService) ApplyEntries(ctx context.Context, reqs []EntryRequest) ([]models.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	entries, err := s.ApplyEntriesTx(ctx, tx, reqs)
	if err != nil {
		s.auditFailure(reqs, err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		err = classifyDBError(err, ErrDuplicateEntry)
		s.auditFailure(reqs, err)
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.AfterCommit(ctx, entries)
	return entries, nil
}

// ApplyEntriesTx applies the requests inside tx. The caller commits and
// then calls AfterCommit.
func (s *LedgerService) ApplyEntriesTx(ctx context.Context, tx *sql.Tx, reqs []EntryRequest) ([]models.LedgerEntry, error) {
	if err := s.validate(reqs); err != nil {
		return nil, err
	}

	var users, credited []string
	for _, r := range reqs {
		users = append(users, r.UserID)
		if r.Amount.IsPositive() {
			credited = append(credited, r.UserID)
		}
	}
	users = sortedUnique(users)
	credited = sortedUnique(credited)

	for _, userID := range credited {
		if err := s.ensureAccount(ctx, tx, userID); err != nil {
			return nil, err
		}
	}

	// lock in sorted order so concurrent batches cannot deadlock
	accounts := make(map[string]*models.Account, len(users))
	for _, userID := range users {
		account, err := s.lockAccount(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if !account.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrAccountInactive, userID)
		}
		if account.Currency != s.currency {
			return nil, fmt.Errorf("%w: account %s holds %s", money.ErrCurrencyMismatch, userID, account.Currency)
		}
		accounts[userID] = account
	}

	batchID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Microsecond)
	entries := make([]models.LedgerEntry, 0, len(reqs))

	for i, r := range reqs {
		account := accounts[r.UserID]
		bucket := r.Bucket
		if bucket == "" {
			bucket = models.BucketAvailable
		}

		before := account.BucketBalance(bucket)
		after, err := before.Add(r.Amount)
		if err != nil {
			return nil, err
		}
		if after.IsNegative() {
			return nil, fmt.Errorf("%w: %s has %s in %s, needs %s",
				ErrInsufficientFunds, r.UserID, before.Format(), bucket, r.Amount.Abs().Format())
		}
		account.SetBucketBalance(bucket, after)
		if err := applyTotals(account, r.Kind, r.Amount); err != nil {
			return nil, err
		}

		entry := models.LedgerEntry{
			ID:                uuid.NewString(),
			BatchID:           batchID,
			AccountID:         account.ID,
			UserID:            r.UserID,
			Kind:              r.Kind,
			Bucket:            bucket,
			Amount:            r.Amount,
			BalanceBefore:     before,
			BalanceAfter:      after,
			Currency:          s.currency,
			Status:            models.EntryCompleted,
			RelatedEntityType: r.RelatedEntityType,
			RelatedEntityID:   r.RelatedEntityID,
			ExternalProvider:  r.ExternalProvider,
			ExternalReference: r.ExternalReference,
			IdempotencyKey:    r.IdempotencyKey,
			Description:       r.Description,
			Metadata:          r.Metadata,
			// one microsecond apart keeps (created_at, id) in request order
			CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
		}
		if err := s.insertEntry(ctx, tx, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	for _, userID := range users {
		if err := s.updateAccount(ctx, tx, accounts[userID]); err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// AfterCommit queues the ledger event and writes audit records for a
// committed batch. Publishing failures are logged, never returned.
func (s *LedgerService) AfterCommit(ctx context.Context, entries []models.LedgerEntry) {
	if len(entries) == 0 {
		return
	}
	for _, e := range entries {
		s.audit.LogEntry(e.BatchID, e.UserID, string(e.Kind), e.Amount.String(), e.BalanceAfter.String())
	}
	if err := s.events.Publish(ctx, entries); err != nil {
		s.logger.Warn("failed to publish ledger event",
			zap.String("batch_id", entries[0].BatchID), zap.Error(err))
	}
}

func (s *LedgerService) auditFailure(reqs []EntryRequest, err error) {
	userID := ""
	if len(reqs) > 0 {
		userID = reqs[0].UserID
	}
	s.audit.LogError("", userID, err)
}

func (s *LedgerService) validate(reqs []EntryRequest) error {
	if len(reqs) == 0 {
		return invalid("entries", "at least one entry is required")
	}
	for i, r := range reqs {
		field := fmt.Sprintf("entries[%d]", i)
		if r.UserID == "" {
			return invalid(field+".userId", "is required")
		}
		if !r.Kind.Valid() {
			return invalid(field+".kind", fmt.Sprintf("unknown kind %q", r.Kind))
		}
		if r.Bucket != "" && r.Bucket != models.BucketAvailable && r.Bucket != models.BucketPending {
			return invalid(field+".bucket", fmt.Sprintf("unknown bucket %q", r.Bucket))
		}
		if r.Amount.Currency() != s.currency {
			return fmt.Errorf("%w: %s is %s, ledger is %s", money.ErrCurrencyMismatch, field, r.Amount.Currency(), s.currency)
		}
		if r.Amount.IsZero() {
			return invalid(field+".amount", "must not be zero")
		}
		switch r.Kind {
		case models.EntryDeposit, models.EntryEarning, models.EntryCommission:
			if r.Amount.IsNegative() {
				return invalid(field+".amount", string(r.Kind)+" must be a credit")
			}
		case models.EntryPurchase, models.EntryWithdrawal:
			if r.Amount.IsPositive() {
				return invalid(field+".amount", string(r.Kind)+" must be a debit")
			}
		}
	}
	return nil
}

func applyTotals(a *models.Account, kind models.EntryKind, amount money.Money) error {
	var err error
	switch kind {
	case models.EntryDeposit:
		a.TotalDeposited, err = a.TotalDeposited.Add(amount)
	case models.EntryPurchase:
		a.TotalSpent, err = a.TotalSpent.Add(amount.Abs())
	case models.EntryEarning, models.EntryCommission:
		a.TotalEarned, err = a.TotalEarned.Add(amount)
	case models.EntryRefund:
		if amount.IsPositive() {
			a.TotalSpent, err = a.TotalSpent.Sub(amount)
		} else {
			a.TotalEarned, err = a.TotalEarned.Add(amount)
		}
	}
	return err
}

func sortedUnique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *LedgerService) ensureAccount(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, s.currency)
	if err != nil {
		return fmt.Errorf("ensure account %s: %w", userID, classifyDBError(err, nil))
	}
	return nil
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, userID string) (*models.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 FOR UPDATE`, userID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", userID, classifyDBError(err, nil))
	}
	return account, nil
}

func (s *LedgerService) insertEntry(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		e.ID, e.BatchID, e.AccountID, e.UserID, e.Kind, e.Bucket,
		e.Amount, e.BalanceBefore, e.BalanceAfter, e.Currency, e.Status,
		nullString(e.RelatedEntityType), nullString(e.RelatedEntityID),
		nullString(e.ExternalProvider), nullString(e.ExternalReference),
		nullString(e.IdempotencyKey), nullString(e.Description),
		e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert %s entry for %s: %w", e.Kind, e.UserID, classifyDBError(err, ErrDuplicateEntry))
	}
	return nil
}

func (s *LedgerService) updateAccount(ctx context.Context, tx *sql.Tx, a *models.Account) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, pending_balance = $2, total_deposited = $3, total_spent = $4, total_earned = $5,
			version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8`,
		a.Balance, a.PendingBalance, a.TotalDeposited, a.TotalSpent, a.TotalEarned,
		time.Now().UTC(), a.ID, a.Version)
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.UserID, classifyDBError(err, nil))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: optimistic lock failed for account %s", ErrPersistenceConflict, a.UserID)
	}
	return nil
}

// ListEntries returns a page of the user's entries, newest first, and the
// total number matching the filter.
func (s *LedgerService) ListEntries(ctx context.Context, userID string, f EntryFilter) ([]models.LedgerEntry, int, error) {
	where := `WHERE user_id = $1`
	args := []any{userID}
	if f.Kind != "" {
		if !f.Kind.Valid() {
			return nil, 0, invalid("type", fmt.Sprintf("unknown kind %q", f.Kind))
		}
		where += ` AND kind = $2`
		args = append(args, f.Kind)
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM ledger_entries %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, n+1, n+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

// FindEntryByIdempotencyKey returns nil, nil when no entry carries key.
func (s *LedgerService) FindEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	return e, nil
}

// VerifyAccountChain replays the account's completed entries per bucket in
// commit order and checks that every entry chains onto the previous one and
// that the stored balances equal the replayed totals.
func (s *LedgerService) VerifyAccountChain(ctx context.Context, userID string) (*ChainReport, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE user_id = $1 AND status = $2 ORDER BY created_at, id`,
		userID, models.EntryCompleted)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	report := &ChainReport{UserID: userID}
	running := map[models.Bucket]money.Money{
		models.BucketAvailable: money.Zero(account.Currency),
		models.BucketPending:   money.Zero(account.Currency),
	}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		report.Entries++

		prev := running[e.Bucket]
		if !e.BalanceBefore.Equal(prev) {
			report.Problems = append(report.Problems,
				fmt.Sprintf("entry %s: balance before %s, expected %s", e.ID, e.BalanceBefore, prev))
		}
		sum, err := e.BalanceBefore.Add(e.Amount)
		if err != nil {
			return nil, err
		}
		if !sum.Equal(e.BalanceAfter) {
			report.Problems = append(report.Problems,
				fmt.Sprintf("entry %s: %s + %s != %s", e.ID, e.BalanceBefore, e.Amount, e.BalanceAfter))
		}
		running[e.Bucket] = e.BalanceAfter
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !running[models.BucketAvailable].Equal(account.Balance) {
		report.Problems = append(report.Problems,
			fmt.Sprintf("available balance %s, entries sum to %s", account.Balance, running[models.BucketAvailable]))
	}
	if !running[models.BucketPending].Equal(account.PendingBalance) {
		report.Problems = append(report.Problems,
			fmt.Sprintf("pending balance %s, entries sum to %s", account.PendingBalance, running[models.BucketPending]))
	}

	report.Valid = len(report.Problems) == 0
	if !report.Valid {
		s.logger.Error("ledger chain verification failed",
			zap.String("user_id", userID), zap.Strings("problems", report.Problems))
	}
	return report, nil
}
