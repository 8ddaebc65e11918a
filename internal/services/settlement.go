package services

import (
	"fmt"

	"github.com/atelier-market/backend/internal/models"
	"github.com/atelier-market/backend/internal/money"
	"github.com/shopspring/decimal"
)

type SettlementKind string

const (
	SettlementPurchase SettlementKind = "purchase"
	SettlementBooking  SettlementKind = "booking"
)

// CommissionPolicy yields the platform commission rate (a fraction) for a
// settlement kind.
type CommissionPolicy interface {
	Rate(kind SettlementKind) decimal.Decimal
}

// TieredCommission is a fixed rate per settlement kind. Unknown kinds pay
// no commission.
type TieredCommission map[SettlementKind]decimal.Decimal

func (t TieredCommission) Rate(kind SettlementKind) decimal.Decimal {
	if r, ok := t[kind]; ok {
		return r
	}
	return decimal.Zero
}

type SettlementConfig struct {
	Currency       string
	MaxTopup       money.Money
	MinPayout      money.Money
	FundRate       decimal.Decimal
	PlatformUserID string
	FundUserID     string
}

// Settlement is the set of ledger requests for one business event plus the
// split that produced them.
type Settlement struct {
	Entries    []EntryRequest
	Rate       decimal.Decimal
	Gross      money.Money
	Commission money.Money
	Earnings   money.Money
}

// SettlementEngine turns business events into balanced entry requests. It
// performs no I/O.
type SettlementEngine struct {
	policy CommissionPolicy
	cfg    SettlementConfig
}

func NewSettlementEngine(policy CommissionPolicy, cfg SettlementConfig) *SettlementEngine {
	return &SettlementEngine{policy: policy, cfg: cfg}
}

func (e *SettlementEngine) Currency() string { return e.cfg.Currency }

func (e *SettlementEngine) MinPayout() money.Money { return e.cfg.MinPayout }

// Split returns (commission, earnings) with commission rounded half-up and
// earnings = price - commission.
func (e *SettlementEngine) Split(price money.Money, kind SettlementKind) (money.Money, money.Money, decimal.Decimal) {
	rate := e.policy.Rate(kind)
	commission, earnings := price.MultiplyByRate(rate)
	return commission, earnings, rate
}

func (e *SettlementEngine) checkAmount(field string, m money.Money) error {
	if m.Currency() != e.cfg.Currency {
		return fmt.Errorf("%w: %s", money.ErrCurrencyMismatch, field)
	}
	if !m.IsPositive() {
		return invalid(field, "must be positive")
	}
	return nil
}

func splitMetadata(rate decimal.Decimal, gross, commission, earnings money.Money) models.Metadata {
	return models.Metadata{
		"commission_rate": rate.String(),
		"gross":           gross.String(),
		"commission":      commission.String(),
		"earnings":        earnings.String(),
	}
}

// ComputePurchaseSettlement debits the buyer, credits the seller with the
// earnings and the platform with the commission.
func (e *SettlementEngine) ComputePurchaseSettlement(price money.Money, buyerID, sellerID, itemID string) (*Settlement, error) {
	if err := e.checkAmount("price", price); err != nil {
		return nil, err
	}
	if buyerID == "" || sellerID == "" {
		return nil, invalid("userId", "buyer and seller are required")
	}
	if buyerID == sellerID {
		return nil, ErrSelfPurchaseForbidden
	}

	commission, earnings, rate := e.Split(price, SettlementPurchase)
	meta := splitMetadata(rate, price, commission, earnings)

	entries := []EntryRequest{{
		UserID:            buyerID,
		Kind:              models.EntryPurchase,
		Bucket:            models.BucketAvailable,
		Amount:            price.Neg(),
		RelatedEntityType: "album",
		RelatedEntityID:   itemID,
		Description:       "Album purchase",
		Metadata:          meta,
	}}
	if earnings.IsPositive() {
		entries = append(entries, EntryRequest{
			UserID:            sellerID,
			Kind:              models.EntryEarning,
			Bucket:            models.BucketAvailable,
			Amount:            earnings,
			RelatedEntityType: "album",
			RelatedEntityID:   itemID,
			Description:       "Album sale earnings",
			Metadata:          meta,
		})
	}
	if commission.IsPositive() {
		entries = append(entries, EntryRequest{
			UserID:            e.cfg.PlatformUserID,
			Kind:              models.EntryCommission,
			Bucket:            models.BucketAvailable,
			Amount:            commission,
			RelatedEntityType: "album",
			RelatedEntityID:   itemID,
			Description:       "Platform commission on album sale",
			Metadata:          meta,
		})
	}

	return &Settlement{
		Entries:    entries,
		Rate:       rate,
		Gross:      price,
		Commission: commission,
		Earnings:   earnings,
	}, nil
}

func DepositKey(provider, reference string) string {
	return "deposit:" + provider + ":" + reference
}

// ComputeDepositSettlement credits a confirmed gateway top-up. When a fund
// rate is configured the fund account receives a contribution computed on
// the gross; the depositor is not charged for it.
func (e *SettlementEngine) ComputeDepositSettlement(amount money.Money, userID, provider, reference string) (*Settlement, error) {
	if err := e.checkAmount("amount", amount); err != nil {
		return nil, err
	}
	cmp, err := amount.Cmp(e.cfg.MaxTopup)
	if err != nil {
		return nil, fmt.Errorf("maximum top-up: %w", err)
	}
	if cmp > 0 {
		return nil, invalid("amount", "exceeds maximum top-up of "+e.cfg.MaxTopup.Format())
	}
	if userID == "" {
		return nil, invalid("userId", "is required")
	}
	if provider == "" || reference == "" {
		return nil, invalid("reference", "provider and reference are required")
	}

	key := DepositKey(provider, reference)
	entries := []EntryRequest{{
		UserID:            userID,
		Kind:              models.EntryDeposit,
		Bucket:            models.BucketAvailable,
		Amount:            amount,
		ExternalProvider:  provider,
		ExternalReference: reference,
		IdempotencyKey:    key,
		Description:       "Wallet top-up",
	}}

	contribution, _ := amount.MultiplyByRate(e.cfg.FundRate)
	if contribution.IsPositive() {
		entries = append(entries, EntryRequest{
			UserID:            e.cfg.FundUserID,
			Kind:              models.EntryCommission,
			Bucket:            models.BucketAvailable,
			Amount:            contribution,
			RelatedEntityType: "deposit",
			RelatedEntityID:   key,
			ExternalProvider:  provider,
			ExternalReference: reference,
			IdempotencyKey:    key + ":fund",
			Description:       "Fund contribution",
			Metadata: models.Metadata{
				"fund_rate":    e.cfg.FundRate.String(),
				"source_user":  userID,
				"gross_amount": amount.String(),
			},
		})
	}

	return &Settlement{
		Entries:    entries,
		Rate:       e.cfg.FundRate,
		Gross:      amount,
		Commission: contribution,
		Earnings:   amount,
	}, nil
}

// ComputePayoutSettlement debits the pending balance for a withdrawal.
func (e *SettlementEngine) ComputePayoutSettlement(amount money.Money, userID, idempotencyKey string) (*Settlement, error) {
	if err := e.checkAmount("amount", amount); err != nil {
		return nil, err
	}
	cmp, err := amount.Cmp(e.cfg.MinPayout)
	if err != nil {
		return nil, fmt.Errorf("minimum payout: %w", err)
	}
	if cmp < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimumPayout, amount.Format(), e.cfg.MinPayout.Format())
	}
	if userID == "" {
		return nil, invalid("userId", "is required")
	}

	return &Settlement{
		Entries: []EntryRequest{{
			UserID:            userID,
			Kind:              models.EntryWithdrawal,
			Bucket:            models.BucketPending,
			Amount:            amount.Neg(),
			RelatedEntityType: "payout",
			RelatedEntityID:   idempotencyKey,
			IdempotencyKey:    idempotencyKey,
			Description:       "Payout to bank account",
		}},
		Rate:       decimal.Zero,
		Gross:      amount,
		Commission: money.Zero(amount.Currency()),
		Earnings:   amount,
	}, nil
}

func BookingKey(bookingID string) string {
	return "booking:" + bookingID
}

// ComputeBookingSettlement charges the client for a completed booking and
// credits the worker's pending balance, which feeds the payout cycle.
func (e *SettlementEngine) ComputeBookingSettlement(price money.Money, clientID, workerID, bookingID string) (*Settlement, error) {
	if err := e.checkAmount("amount", price); err != nil {
		return nil, err
	}
	if clientID == "" || workerID == "" || bookingID == "" {
		return nil, invalid("booking", "client, worker and booking id are required")
	}
	if clientID == workerID {
		return nil, ErrSelfPurchaseForbidden
	}

	commission, earnings, rate := e.Split(price, SettlementBooking)
	meta := splitMetadata(rate, price, commission, earnings)
	key := BookingKey(bookingID)

	entries := []EntryRequest{{
		UserID:            clientID,
		Kind:              models.EntryPurchase,
		Bucket:            models.BucketAvailable,
		Amount:            price.Neg(),
		RelatedEntityType: "booking",
		RelatedEntityID:   bookingID,
		IdempotencyKey:    key,
		Description:       "Booking payment",
		Metadata:          meta,
	}}
	if earnings.IsPositive() {
		entries = append(entries, EntryRequest{
			UserID:            workerID,
			Kind:              models.EntryEarning,
			Bucket:            models.BucketPending,
			Amount:            earnings,
			RelatedEntityType: "booking",
			RelatedEntityID:   bookingID,
			IdempotencyKey:    key + ":worker",
			Description:       "Booking earnings",
			Metadata:          meta,
		})
	}
	if commission.IsPositive() {
		entries = append(entries, EntryRequest{
			UserID:            e.cfg.PlatformUserID,
			Kind:              models.EntryCommission,
			Bucket:            models.BucketAvailable,
			Amount:            commission,
			RelatedEntityType: "booking",
			RelatedEntityID:   bookingID,
			IdempotencyKey:    key + ":platform",
			Description:       "Platform commission on booking",
			Metadata:          meta,
		})
	}

	return &Settlement{
		Entries:    entries,
		Rate:       rate,
		Gross:      price,
		Commission: commission,
		Earnings:   earnings,
	}, nil
}

func RefundKey(purchaseID string) string {
	return "refund:" + purchaseID
}

// ComputeRefundSettlement reverses a purchase with the amounts recorded on
// it, not the current commission rate.
func (e *SettlementEngine) ComputeRefundSettlement(p *models.Purchase) (*Settlement, error) {
	if p == nil || p.ID == "" {
		return nil, invalid("purchaseId", "is required")
	}
	if !p.IsActive {
		return nil, ErrPurchaseNotActive
	}
	if err := e.checkAmount("pricePaid", p.PricePaid); err != nil {
		return nil, err
	}

	key := RefundKey(p.ID)
	meta := splitMetadata(p.CommissionRate, p.PricePaid, p.PlatformCommission, p.SellerEarnings)
	meta["purchase_id"] = p.ID

	entries := []EntryRequest{{
		UserID:            p.BuyerID,
		Kind:              models.EntryRefund,
		Bucket:            models.BucketAvailable,
		Amount:            p.PricePaid,
		RelatedEntityType: "purchase",
		RelatedEntityID:   p.ID,
		IdempotencyKey:    key,
		Description:       "Album purchase refund",
		Metadata:          meta,
	}}
	if p.SellerEarnings.IsPositive() {
		entries = append(entries, EntryRequest{
			UserID:            p.SellerID,
			Kind:              models.EntryRefund,
			Bucket:            models.BucketAvailable,
			Amount:            p.SellerEarnings.Neg(),
			RelatedEntityType: "purchase",
			RelatedEntityID:   p.ID,
			IdempotencyKey:    key + ":seller",
			Description:       "Album sale reversed",
			Metadata:          meta,
		})
	}
	if p.PlatformCommission.IsPositive() {
		entries = append(entries, EntryRequest{
			UserID:            e.cfg.PlatformUserID,
			Kind:              models.EntryRefund,
			Bucket:            models.BucketAvailable,
			Amount:            p.PlatformCommission.Neg(),
			RelatedEntityType: "purchase",
			RelatedEntityID:   p.ID,
			IdempotencyKey:    key + ":platform",
			Description:       "Commission reversed",
			Metadata:          meta,
		})
	}

	return &Settlement{
		Entries:    entries,
		Rate:       p.CommissionRate,
		Gross:      p.PricePaid,
		Commission: p.PlatformCommission,
		Earnings:   p.SellerEarnings,
	}, nil
}
