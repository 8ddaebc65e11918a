package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atelier-market/backend/docs"
	"github.com/atelier-market/backend/internal/app"
	"github.com/atelier-market/backend/internal/config"
	"github.com/atelier-market/backend/internal/handlers"
	"github.com/atelier-market/backend/internal/logger"
	mW "github.com/atelier-market/backend/internal/middleware"
	"github.com/atelier-market/backend/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title Atelier Wallet API
// @version 1.0
// @description Wallet ledger, album purchases, booking settlement and payouts
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port

	ctx := context.Background()
	a, err := app.New(ctx, viper.GetViper(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer a.Close()

	if cfg.Server.RunScheduler {
		cron, err := scheduler.New(a.Payouts, cfg.Payout.Schedule, cfg.Payout.LockTTL, log)
		if err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		cron.Start()
		defer cron.Stop()
	}

	walletHandler := handlers.NewWalletHandler(a.Wallet, cfg.Wallet.Currency)
	purchaseHandler := handlers.NewPurchaseHandler(a.Purchases)
	payoutHandler := handlers.NewPayoutHandler(a.Payouts, cfg.Wallet.Currency)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := a.DB.PingContext(r.Context()); err != nil {
			status, code = "database unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.Auth(cfg.JWT.SecretKey))

		r.Get("/wallet", walletHandler.GetWallet)
		r.Get("/wallet/transactions", walletHandler.ListTransactions)
		r.Post("/albums/{albumId}/purchase", purchaseHandler.PurchaseAlbum)
		r.Get("/albums/{albumId}/access", purchaseHandler.CheckAccess)

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleWorker))
			r.Post("/payouts", payoutHandler.RequestPayout)
		})

		// Gateway callbacks
		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleGateway, mW.RoleAdmin))
			r.Post("/wallet/deposits", walletHandler.Deposit)
			r.Post("/bookings/{bookingId}/settle", walletHandler.SettleBooking)
		})

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleAdmin))
			r.Post("/purchases/{purchaseId}/refund", purchaseHandler.RefundPurchase)
			r.Post("/admin/payouts/run", payoutHandler.RunPayoutCycle)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
