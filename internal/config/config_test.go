package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.Set("jwt.secret_key", "test-secret")
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	v := newTestViper()

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "USD", cfg.Wallet.Currency)
	assert.Equal(t, "50000.00", cfg.Wallet.MaxTopup.String())
	assert.Equal(t, "500.00", cfg.Payout.MinPayout.String())
	assert.True(t, cfg.Commission.PurchaseRate.Equal(decimal.RequireFromString("0.15")))
	assert.True(t, cfg.Wallet.FundRate.Equal(decimal.RequireFromString("0.005")))
	assert.Equal(t, "0 0 3 * * MON", cfg.Payout.Schedule)
	assert.Equal(t, 15*time.Second, cfg.Rail.Timeout)
	assert.Equal(t, "platform", cfg.Wallet.PlatformUserID)
	assert.Equal(t, "test-secret", cfg.JWT.SecretKey)
}

func TestFromViper_Overrides(t *testing.T) {
	v := newTestViper()
	v.Set("wallet.currency", "eur")
	v.Set("commission.purchase_rate_percent", "20")
	v.Set("payout.min_amount", "250.50")

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "EUR", cfg.Wallet.Currency)
	assert.Equal(t, "EUR", cfg.Payout.MinPayout.Currency())
	assert.Equal(t, "250.50", cfg.Payout.MinPayout.String())
	assert.True(t, cfg.Commission.PurchaseRate.Equal(decimal.RequireFromString("0.2")))
}

func TestFromViper_Invalid(t *testing.T) {
	t.Run("bad currency", func(t *testing.T) {
		v := newTestViper()
		v.Set("wallet.currency", "dollars")

		_, err := FromViper(v)
		assert.Error(t, err)
	})

	t.Run("rate out of range", func(t *testing.T) {
		v := newTestViper()
		v.Set("commission.purchase_rate_percent", "150")

		_, err := FromViper(v)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "commission.purchase_rate_percent")
	})
}

func TestFromViper_RejectsUnusableLimits(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero max topup", "wallet.max_topup", "0"},
		{"negative max topup", "wallet.max_topup", "-10"},
		{"zero min payout", "payout.min_amount", "0"},
		{"negative min payout", "payout.min_amount", "-500"},
		{"empty platform account", "wallet.platform_user_id", ""},
		{"blank fund account", "wallet.fund_user_id", "  "},
		{"missing jwt secret", "jwt.secret_key", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			v.Set(tt.key, tt.val)

			_, err := FromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
