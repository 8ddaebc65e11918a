package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atelier-market/backend/internal/app"
	"github.com/atelier-market/backend/internal/config"
	"github.com/atelier-market/backend/internal/logger"
	"github.com/atelier-market/backend/internal/scheduler"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	runOnce := flag.Bool("run-once", false, "Run one payout cycle and exit")
	date := flag.String("date", "", "Cycle date (YYYY-MM-DD) naming the -run-once lock and report; payouts are keyed on the day they run")
	verify := flag.String("verify", "", "Verify the ledger chain of one user and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, viper.GetViper(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer a.Close()

	if *verify != "" {
		report, err := a.Ledger.VerifyAccountChain(ctx, *verify)
		if err != nil {
			log.Fatal("Chain verification failed", zap.Error(err))
		}
		json.NewEncoder(os.Stdout).Encode(report)
		if !report.Valid {
			os.Exit(1)
		}
		return
	}

	if *runOnce {
		cycleDate := time.Now().UTC()
		if *date != "" {
			if cycleDate, err = time.Parse("2006-01-02", *date); err != nil {
				log.Fatal("Invalid -date", zap.String("date", *date), zap.Error(err))
			}
		}

		log.Info("Running payout cycle once", zap.Time("cycle_date", cycleDate))
		report, err := a.Payouts.RunPayoutCycle(ctx, cycleDate)
		if err != nil {
			log.Fatal("Payout cycle failed", zap.Error(err))
		}
		json.NewEncoder(os.Stdout).Encode(report)
		return
	}

	cron, err := scheduler.New(a.Payouts, cfg.Payout.Schedule, cfg.Payout.LockTTL, log)
	if err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	cron.Start()
	log.Info("Payout scheduler is running. Press Ctrl+C to stop.", zap.String("schedule", cfg.Payout.Schedule))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	cron.Stop()
	log.Info("Payout scheduler stopped")
}
