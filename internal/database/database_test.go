package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestGetConfig(t *testing.T) {
	v := viper.New()
	v.Set("database.name", "wallet_test")

	cfg := GetConfig(v)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "wallet_test", cfg.Name)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=password dbname=wallet_test sslmode=disable", cfg.DSN())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	assert.NoError(t, err)
	defer db.Close()

	t.Run("applies schema", func(t *testing.T) {
		mock.ExpectExec(Schema()).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, Migrate(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps failure", func(t *testing.T) {
		mock.ExpectExec(Schema()).WillReturnError(errors.New("permission denied"))

		err := Migrate(context.Background(), db)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "apply schema")
	})
}

func TestSchema_LedgerInvariants(t *testing.T) {
	s := Schema()
	assert.Contains(t, s, "CHECK (balance >= 0)")
	assert.Contains(t, s, "CHECK (balance_after = balance_before + amount)")
	assert.Contains(t, s, "ON purchases (buyer_id, item_id) WHERE is_active")
	assert.Contains(t, s, "idempotency_key TEXT NOT NULL UNIQUE")
}
