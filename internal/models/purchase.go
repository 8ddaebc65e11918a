package models

import (
	"time"

	"github.com/atelier-market/backend/internal/money"
	"github.com/shopspring/decimal"
)

// Purchase records a buyer's access to a priced catalog item.
type Purchase struct {
	ID                 string          `json:"id" db:"id"`
	BuyerID            string          `json:"buyerId" db:"buyer_id"`
	SellerID           string          `json:"sellerId" db:"seller_id"`
	ItemID             string          `json:"itemId" db:"item_id"`
	LedgerEntryID      string          `json:"ledgerEntryId" db:"ledger_entry_id"`
	SellerEntryID      string          `json:"sellerEntryId" db:"seller_entry_id"`
	PricePaid          money.Money     `json:"pricePaid" db:"price_paid"`
	PlatformCommission money.Money     `json:"platformCommission" db:"platform_commission"`
	SellerEarnings     money.Money     `json:"sellerEarnings" db:"seller_earnings"`
	CommissionRate     decimal.Decimal `json:"commissionRate" db:"commission_rate"`
	AccessExpiresAt    *time.Time      `json:"accessExpiresAt,omitempty" db:"access_expires_at"`
	IsActive           bool            `json:"isActive" db:"is_active"`
	RefundedAt         *time.Time      `json:"refundedAt,omitempty" db:"refunded_at"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
}

// Item is the slice of a catalog album the purchase workflow needs.
type Item struct {
	ID            string      `json:"id" db:"id"`
	OwnerID       string      `json:"ownerId" db:"owner_id"`
	Title         string      `json:"title" db:"title"`
	Price         money.Money `json:"price" db:"price"`
	IsActive      bool        `json:"isActive" db:"is_active"`
	IsPrivate     bool        `json:"isPrivate" db:"is_private"`
	PurchaseCount int         `json:"purchaseCount" db:"purchase_count"`
	TotalRevenue  money.Money `json:"totalRevenue" db:"total_revenue"`
}

// Purchasable reports whether the item can be sold at all.
func (i *Item) Purchasable() bool {
	return i.IsActive && !i.IsPrivate && i.Price.IsPositive()
}
