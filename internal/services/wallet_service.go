package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"go.uber.org/zap"
)

type DepositResult struct {
	Entry      *models.LedgerEntry `json:"entry"`
	NewBalance money.Money         `json:"newBalance"`
	Replayed   bool                `json:"replayed"`
}

type BookingResult struct {
	Entries    []models.LedgerEntry `json:"entries"`
	Commission money.Money          `json:"commission"`
	Earnings   money.Money          `json:"earnings"`
	Replayed   bool                 `json:"replayed"`
}

// WalletService is the user-facing entry point for top-ups, wallet views
// and booking settlement.
type WalletService struct {
	ledger      *LedgerService
	engine      *SettlementEngine
	logger      *zap.Logger
	defaultPage int
	maxPage     int
}

func NewWalletService(ledger *LedgerService, engine *SettlementEngine, defaultPage, maxPage int, logger *zap.Logger) *WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultPage <= 0 {
		defaultPage = 20
	}
	if maxPage < defaultPage {
		maxPage = defaultPage
	}
	return &WalletService{
		ledger:      ledger,
		engine:      engine,
		logger:      logger,
		defaultPage: defaultPage,
		maxPage:     maxPage,
	}
}

// Deposit credits a gateway-confirmed top-up. Replaying the same provider
// reference returns the original entry instead of crediting twice.
func (s *WalletService) Deposit(ctx context.Context, userID string, amount money.Money, provider, reference string) (*DepositResult, error) {
	settlement, err := s.engine.ComputeDepositSettlement(amount, userID, provider, reference)
	if err != nil {
		return nil, err
	}
	key := DepositKey(provider, reference)

	if replay, err := s.replayDeposit(ctx, key, userID, amount); replay != nil || err != nil {
		return replay, err
	}

	entries, err := s.ledger.ApplyEntries(ctx, settlement.Entries)
	if errors.Is(err, ErrDuplicateEntry) {
		// lost a race with a concurrent delivery of the same confirmation
		if replay, rerr := s.replayDeposit(ctx, key, userID, amount); replay != nil || rerr != nil {
			return replay, rerr
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("deposit credited",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("provider", provider),
		zap.String("reference", reference))

	return &DepositResult{Entry: &entries[0], NewBalance: entries[0].BalanceAfter}, nil
}

func (s *WalletService) replayDeposit(ctx context.Context, key, userID string, amount money.Money) (*DepositResult, error) {
	existing, err := s.ledger.FindEntryByIdempotencyKey(ctx, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.UserID != userID || !existing.Amount.Equal(amount) {
		return nil, fmt.Errorf("%w: %s was already credited with different details", ErrDuplicateEntry, key)
	}
	return &DepositResult{Entry: existing, NewBalance: existing.BalanceAfter, Replayed: true}, nil
}

// GetWallet returns the user's account, creating an empty wallet on first
// access.
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*models.Account, error) {
	return s.ledger.GetOrCreateAccount(ctx, userID)
}

func (s *WalletService) ListTransactions(ctx context.Context, userID string, f EntryFilter) ([]models.LedgerEntry, int, error) {
	if f.Limit <= 0 {
		f.Limit = s.defaultPage
	}
	if f.Limit > s.maxPage {
		f.Limit = s.maxPage
	}
	if f.Offset < 0 {
		return nil, 0, invalid("offset", "must not be negative")
	}
	return s.ledger.ListEntries(ctx, userID, f)
}

// SettleBooking charges the client for a completed booking and credits the
// worker's pending earnings. Settling the same booking twice is a no-op.
func (s *WalletService) SettleBooking(ctx context.Context, bookingID, clientID, workerID string, amount money.Money) (*BookingResult, error) {
	settlement, err := s.engine.ComputeBookingSettlement(amount, clientID, workerID, bookingID)
	if err != nil {
		return nil, err
	}

	key := BookingKey(bookingID)
	if replay, err := s.replayBooking(ctx, key, clientID, amount); replay != nil || err != nil {
		return replay, err
	}

	entries, err := s.ledger.ApplyEntries(ctx, settlement.Entries)
	if errors.Is(err, ErrDuplicateEntry) {
		if replay, rerr := s.replayBooking(ctx, key, clientID, amount); replay != nil || rerr != nil {
			return replay, rerr
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking settled",
		zap.String("booking_id", bookingID),
		zap.String("amount", amount.String()),
		zap.String("commission", settlement.Commission.String()))

	return &BookingResult{
		Entries:    entries,
		Commission: settlement.Commission,
		Earnings:   settlement.Earnings,
	}, nil
}

// replayBooking answers a repeated settlement from the recorded client debit.
// The split comes from the metadata stored with that entry, so a later rate
// change does not alter what the replay reports.
func (s *WalletService) replayBooking(ctx context.Context, key, clientID string, amount money.Money) (*BookingResult, error) {
	existing, err := s.ledger.FindEntryByIdempotencyKey(ctx, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.UserID != clientID || !existing.Amount.Equal(amount.Neg()) {
		return nil, fmt.Errorf("%w: %s was already settled with different details", ErrDuplicateEntry, key)
	}

	currency := existing.Amount.Currency()
	commission, err := money.Parse(existing.Metadata["commission"], currency)
	if err != nil {
		return nil, fmt.Errorf("booking %s: recorded commission: %w", key, err)
	}
	earnings, err := money.Parse(existing.Metadata["earnings"], currency)
	if err != nil {
		return nil, fmt.Errorf("booking %s: recorded earnings: %w", key, err)
	}

	return &BookingResult{
		Entries:    []models.LedgerEntry{*existing},
		Commission: commission,
		Earnings:   earnings,
		Replayed:   true,
	}, nil
}
