package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayoutKey is the idempotency key for a user's payout on a given day.
func PayoutKey(userID string, day time.Time) string {
	return "payout:" + userID + ":" + day.UTC().Format("2006-01-02")
}

type PayoutResult struct {
	UserID        string              `json:"userId"`
	Amount        money.Money         `json:"amount"`
	Status        models.PayoutStatus `json:"status"`
	RailReference string              `json:"railReference,omitempty"`
	EntryID       string              `json:"entryId,omitempty"`
	// AlreadySettled is set when the key had been paid by an earlier run.
	AlreadySettled bool `json:"alreadySettled,omitempty"`
}

type PayoutFailure struct {
	UserID    string `json:"userId"`
	Amount    string `json:"amount"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

type CycleReport struct {
	CycleDate    string          `json:"cycleDate"`
	PaidAccounts []PayoutResult  `json:"paidAccounts"`
	Failures     []PayoutFailure `json:"failures"`
	// LockHeld means another instance is running this cycle.
	LockHeld bool `json:"lockHeld,omitempty"`
}

// PayoutService withdraws pending earnings through the payment rail. The
// ledger is debited only after the rail confirms the transfer.
type PayoutService struct {
	db      *sql.DB
	ledger  *LedgerService
	engine  *SettlementEngine
	rail    PayoutRail
	redis   *redis.Client
	lockTTL time.Duration
	logger  *zap.Logger
	// instanceID is stored as the cycle lock value
	instanceID string
	now        func() time.Time
}

func NewPayoutService(db *sql.DB, ledger *LedgerService, engine *SettlementEngine, rail PayoutRail, redisClient *redis.Client, lockTTL time.Duration, logger *zap.Logger) *PayoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &PayoutService{
		db:      db,
		ledger:  ledger,
		engine:  engine,
		rail:    rail,
		redis:   redisClient,
		lockTTL: lockTTL,
		logger:  logger,

		instanceID: uuid.NewString(),
		now:        time.Now,
	}
}

// RunPayoutCycle pays every active account whose pending balance reaches
// the minimum payout. A failure for one account does not stop the others.
// cycleDate names the lock and the report; payouts are keyed on the day they
// execute, the same day an on-demand request would use.
func (s *PayoutService) RunPayoutCycle(ctx context.Context, cycleDate time.Time) (*CycleReport, error) {
	day := cycleDate.UTC().Format("2006-01-02")
	report := &CycleReport{CycleDate: day, PaidAccounts: []PayoutResult{}, Failures: []PayoutFailure{}}

	release, acquired, err := s.acquireCycleLock(ctx, day)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.logger.Info("payout cycle already running", zap.String("cycle_date", day))
		report.LockHeld = true
		return report, nil
	}
	defer release()

	eligible, err := s.eligibleAccounts(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payout cycle started",
		zap.String("cycle_date", day),
		zap.Int("eligible_accounts", len(eligible)))

	for _, acc := range eligible {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := s.Payout(ctx, acc.UserID, acc.PendingBalance, PayoutKey(acc.UserID, s.now()))
		if err != nil {
			report.Failures = append(report.Failures, PayoutFailure{
				UserID:    acc.UserID,
				Amount:    acc.PendingBalance.String(),
				Error:     err.Error(),
				Retryable: IsRetryable(err),
			})
			continue
		}
		report.PaidAccounts = append(report.PaidAccounts, *result)
	}

	s.logger.Info("payout cycle finished",
		zap.String("cycle_date", day),
		zap.Int("paid", len(report.PaidAccounts)),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}

// releaseLockScript deletes the lock only while it still holds our value.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

func (s *PayoutService) acquireCycleLock(ctx context.Context, day string) (func(), bool, error) {
	if s.redis == nil {
		return func() {}, true, nil
	}
	key := "payout:cycle:" + day
	ok, err := s.redis.SetNX(ctx, key, s.instanceID, s.lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire payout cycle lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		if err := s.redis.Eval(context.Background(), releaseLockScript, []string{key}, s.instanceID).Err(); err != nil {
			s.logger.Warn("failed to release payout cycle lock", zap.String("key", key), zap.Error(err))
		}
	}, true, nil
}

func (s *PayoutService) eligibleAccounts(ctx context.Context) ([]models.Account, error) {
	minPayout := s.engine.MinPayout()
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, pending_balance
		FROM accounts
		WHERE is_active AND pending_balance >= $1
		ORDER BY user_id`, minPayout)
	if err != nil {
		return nil, fmt.Errorf("list eligible accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var (
			a       models.Account
			pending decimal.Decimal
		)
		if err := rows.Scan(&a.UserID, &pending); err != nil {
			return nil, err
		}
		a.PendingBalance = money.New(pending, minPayout.Currency())
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// RequestPayout withdraws amount on demand. At most one payout per account
// settles per day.
func (s *PayoutService) RequestPayout(ctx context.Context, userID string, amount money.Money) (*PayoutResult, error) {
	result, err := s.Payout(ctx, userID, amount, PayoutKey(userID, s.now()))
	if err != nil {
		return nil, err
	}
	if result.AlreadySettled {
		return nil, fmt.Errorf("%w: a payout was already made today", ErrDuplicateEntry)
	}
	return result, nil
}

// Payout runs one withdrawal: record the attempt, call the rail without
// holding any database lock, then debit the pending balance with the rail
// reference. A confirmed attempt is never sent to the rail twice, and a
// retried attempt always carries the amount it was first recorded with.
func (s *PayoutService) Payout(ctx context.Context, userID string, amount money.Money, key string) (*PayoutResult, error) {
	if _, err := s.engine.ComputePayoutSettlement(amount, userID, key); err != nil {
		return nil, err
	}

	attempt, err := s.findAttempt(ctx, key)
	if err != nil {
		return nil, err
	}

	if attempt != nil && attempt.Status == models.PayoutSettled {
		return &PayoutResult{
			UserID:         userID,
			Amount:         attempt.Amount,
			Status:         attempt.Status,
			RailReference:  attempt.RailReference,
			EntryID:        attempt.LedgerEntryID,
			AlreadySettled: true,
		}, nil
	}

	if attempt != nil && attempt.UserID != userID {
		return nil, fmt.Errorf("%w: %s belongs to another account", ErrDuplicateEntry, key)
	}
	if attempt != nil && !attempt.Amount.Equal(amount) {
		s.logger.Info("payout retried with its recorded amount",
			zap.String("idempotency_key", key),
			zap.String("recorded", attempt.Amount.String()),
			zap.String("requested", amount.String()))
		amount = attempt.Amount
	}

	if attempt == nil || attempt.Status != models.PayoutConfirmed {
		if err := s.checkPending(ctx, userID, amount); err != nil {
			return nil, err
		}
		if attempt, err = s.recordAttempt(ctx, attempt, userID, key, amount); err != nil {
			return nil, err
		}

		conf, err := s.rail.Transfer(ctx, PayoutInstruction{IdempotencyKey: key, UserID: userID, Amount: attempt.Amount})
		if err != nil {
			s.markFailed(ctx, attempt, err)
			s.logger.Warn("payout rail call failed",
				zap.String("user_id", userID),
				zap.String("idempotency_key", key),
				zap.Error(err))
			return nil, err
		}
		if err := s.markConfirmed(ctx, attempt, conf.Reference); err != nil {
			return nil, err
		}
	}

	// debit what the rail was asked to send
	settlement, err := s.engine.ComputePayoutSettlement(attempt.Amount, userID, key)
	if err != nil {
		return nil, err
	}

	entry, err := s.commitDebit(ctx, settlement.Entries, attempt)
	if err != nil {
		s.logger.Error("payout confirmed by rail but ledger debit failed",
			zap.String("user_id", userID),
			zap.String("idempotency_key", key),
			zap.String("rail_reference", attempt.RailReference),
			zap.Error(err))
		return nil, err
	}
	if err := s.markSettled(ctx, attempt, entry.ID); err != nil {
		return nil, err
	}

	s.logger.Info("payout settled",
		zap.String("user_id", userID),
		zap.String("amount", attempt.Amount.String()),
		zap.String("rail_reference", attempt.RailReference))

	return &PayoutResult{
		UserID:        userID,
		Amount:        attempt.Amount,
		Status:        models.PayoutSettled,
		RailReference: attempt.RailReference,
		EntryID:       entry.ID,
	}, nil
}

func (s *PayoutService) checkPending(ctx context.Context, userID string, amount money.Money) error {
	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return fmt.Errorf("%w: %s", ErrAccountInactive, userID)
	}
	cmp, err := account.PendingBalance.Cmp(amount)
	if err != nil {
		return err
	}
	if cmp < 0 {
		return fmt.Errorf("%w: pending %s, requested %s", ErrInsufficientFunds, account.PendingBalance.Format(), amount.Format())
	}
	return nil
}

func (s *PayoutService) commitDebit(ctx context.Context, reqs []EntryRequest, attempt *models.PayoutAttempt) (*models.LedgerEntry, error) {
	for i := range reqs {
		reqs[i].ExternalProvider = s.rail.Provider()
		reqs[i].ExternalReference = attempt.RailReference
		reqs[i].Metadata = models.Metadata{"payout_attempt_id": attempt.ID}
	}

	entries, err := s.ledger.ApplyEntries(ctx, reqs)
	if errors.Is(err, ErrDuplicateEntry) {
		// debit committed by an earlier run that died before marking the attempt settled
		existing, ferr := s.ledger.FindEntryByIdempotencyKey(ctx, attempt.IdempotencyKey)
		if ferr != nil {
			return nil, ferr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

const attemptColumns = `id, user_id, idempotency_key, amount, status, rail_reference, attempts, last_error, ledger_entry_id, created_at, updated_at`

func (s *PayoutService) findAttempt(ctx context.Context, key string) (*models.PayoutAttempt, error) {
	var (
		a                         models.PayoutAttempt
		amount                    decimal.Decimal
		reference, lastErr, entry sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payout_attempts WHERE idempotency_key = $1`, key).
		Scan(&a.ID, &a.UserID, &a.IdempotencyKey, &amount, &a.Status, &reference, &a.Attempts, &lastErr, &entry, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payout attempt: %w", err)
	}
	a.Amount = money.New(amount, s.engine.Currency())
	a.RailReference = reference.String
	a.LastError = lastErr.String
	a.LedgerEntryID = entry.String
	return &a, nil
}

// recordAttempt inserts a new attempt or claims an existing one for a retry.
// A retry is claimed only if the row still has the status and attempt count
// that were read, so two callers can never both reach the rail with it. An
// initiated attempt younger than the lock TTL is still in flight.
func (s *PayoutService) recordAttempt(ctx context.Context, existing *models.PayoutAttempt, userID, key string, amount money.Money) (*models.PayoutAttempt, error) {
	now := time.Now().UTC()

	if existing != nil {
		if existing.Status == models.PayoutInitiated && now.Sub(existing.UpdatedAt) < s.lockTTL {
			return nil, fmt.Errorf("%w: payout %s is in flight", ErrPersistenceConflict, key)
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE payout_attempts
			SET status = $1, attempts = attempts + 1, updated_at = $2
			WHERE id = $3 AND status = $4 AND attempts = $5`,
			models.PayoutInitiated, now, existing.ID, existing.Status, existing.Attempts)
		if err != nil {
			return nil, fmt.Errorf("retry payout attempt: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("retry payout attempt: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: payout %s was claimed by another caller", ErrPersistenceConflict, key)
		}
		existing.Status = models.PayoutInitiated
		existing.Attempts++
		existing.UpdatedAt = now
		return existing, nil
	}

	a := &models.PayoutAttempt{
		ID:             uuid.NewString(),
		UserID:         userID,
		IdempotencyKey: key,
		Amount:         amount,
		Status:         models.PayoutInitiated,
		Attempts:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payout_attempts (id, user_id, idempotency_key, amount, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		a.ID, a.UserID, a.IdempotencyKey, a.Amount, a.Status, a.Attempts, now)
	if err != nil {
		return nil, fmt.Errorf("record payout attempt: %w", classifyDBError(err, ErrPersistenceConflict))
	}
	return a, nil
}

func (s *PayoutService) markFailed(ctx context.Context, a *models.PayoutAttempt, cause error) {
	a.Status = models.PayoutFailed
	a.LastError = cause.Error()
	_, err := s.db.ExecContext(ctx, `
		UPDATE payout_attempts SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4`,
		a.Status, a.LastError, time.Now().UTC(), a.ID)
	if err != nil {
		s.logger.Error("failed to mark payout attempt failed", zap.String("attempt_id", a.ID), zap.Error(err))
	}
}

func (s *PayoutService) markConfirmed(ctx context.Context, a *models.PayoutAttempt, reference string) error {
	a.Status = models.PayoutConfirmed
	a.RailReference = reference
	_, err := s.db.ExecContext(ctx, `
		UPDATE payout_attempts SET status = $1, rail_reference = $2, updated_at = $3 WHERE id = $4`,
		a.Status, a.RailReference, time.Now().UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("mark payout confirmed: %w", err)
	}
	return nil
}

func (s *PayoutService) markSettled(ctx context.Context, a *models.PayoutAttempt, entryID string) error {
	a.Status = models.PayoutSettled
	a.LedgerEntryID = entryID
	_, err := s.db.ExecContext(ctx, `
		UPDATE payout_attempts SET status = $1, ledger_entry_id = $2, updated_at = $3 WHERE id = $4`,
		a.Status, a.LedgerEntryID, time.Now().UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("mark payout settled: %w", err)
	}
	return nil
}
