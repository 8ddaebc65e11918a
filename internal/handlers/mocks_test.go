package handlers

import (
	"context"
	"time"

	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"github.com/atelier-market/backend/internal/services"
	"github.com/stretchr/testify/mock"
)

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) GetWallet(ctx context.Context, userID string) (*models.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockWalletService) ListTransactions(ctx context.Context, userID string, f services.EntryFilter) ([]models.LedgerEntry, int, error) {
	args := m.Called(ctx, userID, f)
	entries, _ := args.Get(0).([]models.LedgerEntry)
	return entries, args.Int(1), args.Error(2)
}

func (m *MockWalletService) Deposit(ctx context.Context, userID string, amount money.Money, provider, reference string) (*services.DepositResult, error) {
	args := m.Called(ctx, userID, amount, provider, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DepositResult), args.Error(1)
}

func (m *MockWalletService) SettleBooking(ctx context.Context, bookingID, clientID, workerID string, amount money.Money) (*services.BookingResult, error) {
	args := m.Called(ctx, bookingID, clientID, workerID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BookingResult), args.Error(1)
}

type MockPurchaseService struct {
	mock.Mock
}

func (m *MockPurchaseService) PurchaseItem(ctx context.Context, buyerID, itemID string) (*services.PurchaseResult, error) {
	args := m.Called(ctx, buyerID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PurchaseResult), args.Error(1)
}

func (m *MockPurchaseService) HasAccess(ctx context.Context, buyerID, itemID string) (bool, error) {
	args := m.Called(ctx, buyerID, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPurchaseService) RefundPurchase(ctx context.Context, purchaseID string) (*services.RefundResult, error) {
	args := m.Called(ctx, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RefundResult), args.Error(1)
}

type MockPayoutService struct {
	mock.Mock
}

func (m *MockPayoutService) RequestPayout(ctx context.Context, userID string, amount money.Money) (*services.PayoutResult, error) {
	args := m.Called(ctx, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PayoutResult), args.Error(1)
}

func (m *MockPayoutService) RunPayoutCycle(ctx context.Context, cycleDate time.Time) (*services.CycleReport, error) {
	args := m.Called(ctx, cycleDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CycleReport), args.Error(1)
}
