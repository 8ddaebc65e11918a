// Package app assembles the services shared by the API server and the
// payout runner.
package app

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/atelier-market/backend/internal/audit"
	"github.com/atelier-market/backend/internal/config"
	"github.com/atelier-market/backend/internal/database"
	"github.com/atelier-market/backend/internal/services"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type App struct {
	DB    *sql.DB
	Redis *redis.Client

	Ledger    *services.LedgerService
	Engine    *services.SettlementEngine
	Wallet    *services.WalletService
	Purchases *services.PurchaseService
	Payouts   *services.PayoutService
}

// New connects to PostgreSQL and Redis and wires every service from cfg.
func New(ctx context.Context, v *viper.Viper, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.Open(ctx, database.GetConfig(v), logger)
	if err != nil {
		return nil, err
	}
	rdb := database.InitRedis(ctx, v, logger)

	engine := services.NewSettlementEngine(
		services.TieredCommission{
			services.SettlementPurchase: cfg.Commission.PurchaseRate,
			services.SettlementBooking:  cfg.Commission.BookingRate,
		},
		services.SettlementConfig{
			Currency:       cfg.Wallet.Currency,
			MaxTopup:       cfg.Wallet.MaxTopup,
			MinPayout:      cfg.Payout.MinPayout,
			FundRate:       cfg.Wallet.FundRate,
			PlatformUserID: cfg.Wallet.PlatformUserID,
			FundUserID:     cfg.Wallet.FundUserID,
		})

	ledger := services.NewLedgerService(db, cfg.Wallet.Currency,
		services.NewRedisPublisher(rdb, cfg.Wallet.EventQueue),
		audit.NewLogger(logger),
		logger.Named("ledger"))

	rail := services.NewISO20022Rail(&http.Client{}, cfg.Rail.URL, cfg.Rail.DebtorBIC, cfg.Rail.Provider, cfg.Rail.Timeout)

	return &App{
		DB:        db,
		Redis:     rdb,
		Ledger:    ledger,
		Engine:    engine,
		Wallet:    services.NewWalletService(ledger, engine, cfg.Wallet.DefaultPageSize, cfg.Wallet.MaxPageSize, logger.Named("wallet")),
		Purchases: services.NewPurchaseService(db, ledger, engine, services.NewAlbumCatalog(cfg.Wallet.Currency), cfg.Wallet.AccessDays, logger.Named("purchases")),
		Payouts:   services.NewPayoutService(db, ledger, engine, rail, rdb, cfg.Payout.LockTTL, logger.Named("payouts")),
	}, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.DB.Close()
}
