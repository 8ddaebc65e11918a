package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"github.com/shopspring/decimal"
)

// Catalog is the slice of the album catalog the purchase workflow reads and
// updates. Implementations run inside the caller's transaction.
type Catalog interface {
	GetItem(ctx context.Context, tx *sql.Tx, itemID string) (*models.Item, error)
	RecordSale(ctx context.Context, tx *sql.Tx, itemID string, revenue money.Money) error
	RecordRefund(ctx context.Context, tx *sql.Tx, itemID string, revenue money.Money) error
}

// AlbumCatalog reads albums from the shared albums table.
type AlbumCatalog struct {
	currency string
}

func NewAlbumCatalog(currency string) *AlbumCatalog {
	return &AlbumCatalog{currency: currency}
}

func (c *AlbumCatalog) GetItem(ctx context.Context, tx *sql.Tx, itemID string) (*models.Item, error) {
	var (
		item           models.Item
		price, revenue decimal.Decimal
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, owner_id, title, price, is_active, is_private, purchase_count, total_revenue
		FROM albums
		WHERE id = $1`, itemID).
		Scan(&item.ID, &item.OwnerID, &item.Title, &price, &item.IsActive, &item.IsPrivate, &item.PurchaseCount, &revenue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("get album: %w", err)
	}
	item.Price = money.New(price, c.currency)
	item.TotalRevenue = money.New(revenue, c.currency)
	return &item, nil
}

func (c *AlbumCatalog) RecordSale(ctx context.Context, tx *sql.Tx, itemID string, revenue money.Money) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE albums
		SET purchase_count = purchase_count + 1, total_revenue = total_revenue + $1
		WHERE id = $2`, revenue, itemID)
	if err != nil {
		return fmt.Errorf("record album sale: %w", classifyDBError(err, nil))
	}
	return nil
}

func (c *AlbumCatalog) RecordRefund(ctx context.Context, tx *sql.Tx, itemID string, revenue money.Money) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE albums
		SET purchase_count = GREATEST(purchase_count - 1, 0), total_revenue = total_revenue - $1
		WHERE id = $2`, revenue, itemID)
	if err != nil {
		return fmt.Errorf("record album refund: %w", classifyDBError(err, nil))
	}
	return nil
}
