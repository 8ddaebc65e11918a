package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PurchaseState tracks a purchase request through the workflow.
type PurchaseState string

const (
	PurchaseRequested PurchaseState = "requested"
	PurchaseValidated PurchaseState = "validated"
	PurchaseSettled   PurchaseState = "settled"
	PurchaseRecorded  PurchaseState = "recorded"
	PurchaseRejected  PurchaseState = "rejected"
)

type PurchaseResult struct {
	Purchase   *models.Purchase `json:"purchase"`
	NewBalance money.Money      `json:"newBalance"`
}

type RefundResult struct {
	Purchase *models.Purchase     `json:"purchase"`
	Entries  []models.LedgerEntry `json:"entries"`
}

// PurchaseService sells catalog items for wallet balance. The ledger
// entries, the purchase row and the item counters commit in one
// transaction.
type PurchaseService struct {
	db         *sql.DB
	ledger     *LedgerService
	engine     *SettlementEngine
	catalog    Catalog
	logger     *zap.Logger
	accessDays int
}

func NewPurchaseService(db *sql.DB, ledger *LedgerService, engine *SettlementEngine, catalog Catalog, accessDays int, logger *zap.Logger) *PurchaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseService{
		db:         db,
		ledger:     ledger,
		engine:     engine,
		catalog:    catalog,
		logger:     logger,
		accessDays: accessDays,
	}
}

func (s *PurchaseService) transition(state PurchaseState, buyerID, itemID string, err error) {
	fields := []zap.Field{
		zap.String("state", string(state)),
		zap.String("buyer_id", buyerID),
		zap.String("item_id", itemID),
	}
	if err != nil {
		s.logger.Info("purchase rejected", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug("purchase state", fields...)
}

// PurchaseItem buys itemID for buyerID.
func (s *PurchaseService) PurchaseItem(ctx context.Context, buyerID, itemID string) (*PurchaseResult, error) {
	s.transition(PurchaseRequested, buyerID, itemID, nil)

	result, err := s.purchase(ctx, buyerID, itemID)
	if err != nil {
		s.transition(PurchaseRejected, buyerID, itemID, err)
		return nil, err
	}

	s.transition(PurchaseRecorded, buyerID, itemID, nil)
	return result, nil
}

func (s *PurchaseService) purchase(ctx context.Context, buyerID, itemID string) (*PurchaseResult, error) {
	if buyerID == "" {
		return nil, invalid("buyerId", "is required")
	}
	if itemID == "" {
		return nil, invalid("albumId", "is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	item, err := s.catalog.GetItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.Purchasable() {
		return nil, ErrItemNotPurchasable
	}
	if item.OwnerID == buyerID {
		return nil, ErrSelfPurchaseForbidden
	}

	var owned bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM purchases WHERE buyer_id = $1 AND item_id = $2 AND is_active)`,
		buyerID, itemID).Scan(&owned); err != nil {
		return nil, fmt.Errorf("check existing purchase: %w", err)
	}
	if owned {
		return nil, ErrAlreadyPurchased
	}
	s.transition(PurchaseValidated, buyerID, itemID, nil)

	settlement, err := s.engine.ComputePurchaseSettlement(item.Price, buyerID, item.OwnerID, itemID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ApplyEntriesTx(ctx, tx, settlement.Entries)
	if err != nil {
		return nil, err
	}
	s.transition(PurchaseSettled, buyerID, itemID, nil)

	now := time.Now().UTC()
	purchase := &models.Purchase{
		ID:                 uuid.NewString(),
		BuyerID:            buyerID,
		SellerID:           item.OwnerID,
		ItemID:             itemID,
		LedgerEntryID:      entries[0].ID,
		SellerEntryID:      findEntry(entries, item.OwnerID, models.EntryEarning),
		PricePaid:          settlement.Gross,
		PlatformCommission: settlement.Commission,
		SellerEarnings:     settlement.Earnings,
		CommissionRate:     settlement.Rate,
		IsActive:           true,
		CreatedAt:          now,
	}
	if s.accessDays > 0 {
		expires := now.AddDate(0, 0, s.accessDays)
		purchase.AccessExpiresAt = &expires
	}

	if err := s.insertPurchase(ctx, tx, purchase); err != nil {
		return nil, err
	}
	if err := s.catalog.RecordSale(ctx, tx, itemID, settlement.Gross); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", classifyDBError(err, ErrAlreadyPurchased))
	}
	s.ledger.AfterCommit(ctx, entries)

	return &PurchaseResult{Purchase: purchase, NewBalance: entries[0].BalanceAfter}, nil
}

func findEntry(entries []models.LedgerEntry, userID string, kind models.EntryKind) string {
	for _, e := range entries {
		if e.UserID == userID && e.Kind == kind {
			return e.ID
		}
	}
	return ""
}

func (s *PurchaseService) insertPurchase(ctx context.Context, tx *sql.Tx, p *models.Purchase) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO purchases (id, buyer_id, seller_id, item_id, ledger_entry_id, seller_entry_id,
			price_paid, platform_commission, seller_earnings, commission_rate, access_expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.BuyerID, p.SellerID, p.ItemID, p.LedgerEntryID, nullString(p.SellerEntryID),
		p.PricePaid, p.PlatformCommission, p.SellerEarnings, p.CommissionRate, p.AccessExpiresAt, p.IsActive, p.CreatedAt)
	if err != nil {
		// a concurrent purchase of the same item won the partial unique index
		return classifyDBError(err, ErrAlreadyPurchased)
	}
	return nil
}

// HasAccess reports whether buyerID holds an active, unexpired purchase of
// itemID.
func (s *PurchaseService) HasAccess(ctx context.Context, buyerID, itemID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM purchases
			WHERE buyer_id = $1 AND item_id = $2 AND is_active
			AND (access_expires_at IS NULL OR access_expires_at > $3))`,
		buyerID, itemID, time.Now().UTC()).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	return ok, nil
}

// RefundPurchase reverses an active purchase using its recorded split and
// revokes access.
func (s *PurchaseService) RefundPurchase(ctx context.Context, purchaseID string) (*RefundResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	purchase, err := s.lockPurchase(ctx, tx, purchaseID)
	if err != nil {
		return nil, err
	}

	settlement, err := s.engine.ComputeRefundSettlement(purchase)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ApplyEntriesTx(ctx, tx, settlement.Entries)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE purchases SET is_active = FALSE, refunded_at = $1 WHERE id = $2`,
		now, purchase.ID); err != nil {
		return nil, fmt.Errorf("deactivate purchase: %w", err)
	}
	if err := s.catalog.RecordRefund(ctx, tx, purchase.ItemID, purchase.PricePaid); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit refund: %w", classifyDBError(err, ErrDuplicateEntry))
	}
	s.ledger.AfterCommit(ctx, entries)

	purchase.IsActive = false
	purchase.RefundedAt = &now
	s.logger.Info("purchase refunded",
		zap.String("purchase_id", purchase.ID),
		zap.String("amount", purchase.PricePaid.String()))

	return &RefundResult{Purchase: purchase, Entries: entries}, nil
}

func (s *PurchaseService) lockPurchase(ctx context.Context, tx *sql.Tx, purchaseID string) (*models.Purchase, error) {
	var (
		p                           models.Purchase
		price, commission, earnings decimal.Decimal
		sellerEntry                 sql.NullString
		expires, refunded           sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, buyer_id, seller_id, item_id, ledger_entry_id, seller_entry_id,
			price_paid, platform_commission, seller_earnings, commission_rate,
			access_expires_at, is_active, refunded_at, created_at
		FROM purchases
		WHERE id = $1
		FOR UPDATE`, purchaseID).
		Scan(&p.ID, &p.BuyerID, &p.SellerID, &p.ItemID, &p.LedgerEntryID, &sellerEntry,
			&price, &commission, &earnings, &p.CommissionRate,
			&expires, &p.IsActive, &refunded, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPurchaseNotFound, purchaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock purchase: %w", err)
	}

	currency := s.engine.Currency()
	p.SellerEntryID = sellerEntry.String
	p.PricePaid = money.New(price, currency)
	p.PlatformCommission = money.New(commission, currency)
	p.SellerEarnings = money.New(earnings, currency)
	if expires.Valid {
		p.AccessExpiresAt = &expires.Time
	}
	if refunded.Valid {
		p.RefundedAt = &refunded.Time
	}
	return &p, nil
}
