package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/atelier-market/backend/internal/money"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	JWT        JWTConfig
	Log        LogConfig
	Wallet     WalletConfig
	Commission CommissionConfig
	Payout     PayoutConfig
	Rail       RailConfig
}

type ServerConfig struct {
	Port           string
	RunScheduler   bool
	RequestTimeout time.Duration
}

type JWTConfig struct {
	SecretKey string
}

type LogConfig struct {
	Level  string
	Format string
}

// WalletConfig holds ledger-wide limits. Money values use Currency.
type WalletConfig struct {
	Currency        string
	MaxTopup        money.Money
	PlatformUserID  string
	FundUserID      string
	FundRate        decimal.Decimal
	AccessDays      int
	EventQueue      string
	DefaultPageSize int
	MaxPageSize     int
}

// CommissionConfig rates are fractions (0.15 == 15%).
type CommissionConfig struct {
	PurchaseRate decimal.Decimal
	BookingRate  decimal.Decimal
}

type PayoutConfig struct {
	MinPayout money.Money
	Schedule  string
	LockTTL   time.Duration
}

type RailConfig struct {
	URL       string
	Timeout   time.Duration
	DebtorBIC string
	Provider  string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.run_scheduler", true)
	v.SetDefault("server.request_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("wallet.currency", "USD")
	v.SetDefault("wallet.max_topup", "50000")
	v.SetDefault("wallet.platform_user_id", "platform")
	v.SetDefault("wallet.fund_user_id", "solidarity-fund")
	v.SetDefault("wallet.fund_rate_percent", "0.5")
	v.SetDefault("wallet.access_days", 0)
	v.SetDefault("wallet.event_queue", "ledger_events")
	v.SetDefault("wallet.default_page_size", 20)
	v.SetDefault("wallet.max_page_size", 100)

	v.SetDefault("commission.purchase_rate_percent", "15")
	v.SetDefault("commission.booking_rate_percent", "15")

	v.SetDefault("payout.min_amount", "500")
	// weekly, Monday 03:00 UTC (seconds precision)
	v.SetDefault("payout.schedule", "0 0 3 * * MON")
	v.SetDefault("payout.lock_ttl", 30*time.Minute)

	v.SetDefault("rail.url", "http://localhost:9090/payouts")
	v.SetDefault("rail.timeout", 15*time.Second)
	v.SetDefault("rail.debtor_bic", "ATELIERXX")
	v.SetDefault("rail.provider", "iso20022")
}

func bindEnv() {
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.run_scheduler", "RUN_SCHEDULER")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")

	viper.BindEnv("wallet.currency", "WALLET_CURRENCY")
	viper.BindEnv("wallet.max_topup", "WALLET_MAX_TOPUP")
	viper.BindEnv("wallet.platform_user_id", "SYSTEM_FEE_ACCOUNT")
	viper.BindEnv("wallet.fund_user_id", "SOLIDARITY_FUND_ACCOUNT")
	viper.BindEnv("wallet.fund_rate_percent", "SOLIDARITY_FUND_RATE")
	viper.BindEnv("wallet.access_days", "PURCHASE_ACCESS_DAYS")

	viper.BindEnv("commission.purchase_rate_percent", "COMMISSION_RATE")
	viper.BindEnv("commission.booking_rate_percent", "BOOKING_COMMISSION_RATE")

	viper.BindEnv("payout.min_amount", "PAYOUT_MIN_AMOUNT")
	viper.BindEnv("payout.schedule", "PAYOUT_SCHEDULE")

	viper.BindEnv("rail.url", "PAYOUT_RAIL_URL")
	viper.BindEnv("rail.timeout", "PAYOUT_RAIL_TIMEOUT")
	viper.BindEnv("rail.debtor_bic", "PAYOUT_RAIL_DEBTOR_BIC")
}

// Load reads the .env file and environment into a typed Config.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	bindEnv()
	SetDefaults(viper.GetViper())

	// a missing .env is fine, defaults and env vars still apply
	_ = viper.ReadInConfig()

	return FromViper(viper.GetViper())
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	currency := strings.ToUpper(v.GetString("wallet.currency"))
	if len(currency) != 3 {
		return nil, fmt.Errorf("wallet.currency must be a 3-letter code, got %q", currency)
	}

	maxTopup, err := money.Parse(v.GetString("wallet.max_topup"), currency)
	if err != nil {
		return nil, fmt.Errorf("wallet.max_topup: %w", err)
	}
	minPayout, err := money.Parse(v.GetString("payout.min_amount"), currency)
	if err != nil {
		return nil, fmt.Errorf("payout.min_amount: %w", err)
	}
	fundRate, err := money.ParseRatePercent(v.GetString("wallet.fund_rate_percent"))
	if err != nil {
		return nil, fmt.Errorf("wallet.fund_rate_percent: %w", err)
	}
	purchaseRate, err := money.ParseRatePercent(v.GetString("commission.purchase_rate_percent"))
	if err != nil {
		return nil, fmt.Errorf("commission.purchase_rate_percent: %w", err)
	}
	bookingRate, err := money.ParseRatePercent(v.GetString("commission.booking_rate_percent"))
	if err != nil {
		return nil, fmt.Errorf("commission.booking_rate_percent: %w", err)
	}

	if !maxTopup.IsPositive() {
		return nil, fmt.Errorf("wallet.max_topup must be positive, got %s", maxTopup)
	}
	if !minPayout.IsPositive() {
		return nil, fmt.Errorf("payout.min_amount must be positive, got %s", minPayout)
	}
	for _, key := range []string{"wallet.platform_user_id", "wallet.fund_user_id", "jwt.secret_key"} {
		if strings.TrimSpace(v.GetString(key)) == "" {
			return nil, fmt.Errorf("%s is required", key)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			RunScheduler:   v.GetBool("server.run_scheduler"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		JWT: JWTConfig{SecretKey: v.GetString("jwt.secret_key")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Wallet: WalletConfig{
			Currency:        currency,
			MaxTopup:        maxTopup,
			PlatformUserID:  v.GetString("wallet.platform_user_id"),
			FundUserID:      v.GetString("wallet.fund_user_id"),
			FundRate:        fundRate,
			AccessDays:      v.GetInt("wallet.access_days"),
			EventQueue:      v.GetString("wallet.event_queue"),
			DefaultPageSize: v.GetInt("wallet.default_page_size"),
			MaxPageSize:     v.GetInt("wallet.max_page_size"),
		},
		Commission: CommissionConfig{
			PurchaseRate: purchaseRate,
			BookingRate:  bookingRate,
		},
		Payout: PayoutConfig{
			MinPayout: minPayout,
			Schedule:  v.GetString("payout.schedule"),
			LockTTL:   v.GetDuration("payout.lock_ttl"),
		},
		Rail: RailConfig{
			URL:       v.GetString("rail.url"),
			Timeout:   v.GetDuration("rail.timeout"),
			DebtorBIC: v.GetString("rail.debtor_bic"),
			Provider:  v.GetString("rail.provider"),
		},
	}, nil
}
