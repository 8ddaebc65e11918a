package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RoundsHalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"-1.005", "-1.01"},
		{"150.15", "150.15"},
		{"0", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m := New(decimal.RequireFromString(tt.in), "usd")
			assert.Equal(t, tt.want, m.String())
			assert.Equal(t, "USD", m.Currency())
		})
	}
}

func TestMultiplyByRate(t *testing.T) {
	rate := decimal.RequireFromString("0.15")

	t.Run("round price", func(t *testing.T) {
		part, rest := FromInt(1000, "USD").MultiplyByRate(rate)
		assert.Equal(t, "150.00", part.String())
		assert.Equal(t, "850.00", rest.String())
	})

	t.Run("odd price", func(t *testing.T) {
		price := FromInt(1001, "USD")
		part, rest := price.MultiplyByRate(rate)
		sum, err := part.Add(rest)
		require.NoError(t, err)
		assert.True(t, sum.Equal(price))
		assert.Equal(t, "150.15", part.String())
	})

	t.Run("split never leaks a minor unit", func(t *testing.T) {
		rates := []string{"0.15", "0.125", "0.333", "0.005", "0", "1"}
		for _, r := range rates {
			rate := decimal.RequireFromString(r)
			for cents := int64(0); cents <= 5000; cents += 7 {
				price := FromMinor(cents, "USD")
				part, rest := price.MultiplyByRate(rate)
				sum, err := part.Add(rest)
				require.NoError(t, err)
				if !sum.Equal(price) {
					t.Fatalf("rate %s price %s: %s + %s != price", r, price, part, rest)
				}
				assert.True(t, part.IsNonNegative())
				assert.True(t, rest.IsNonNegative())
			}
		}
	})
}

func TestArithmetic_CurrencyMismatch(t *testing.T) {
	a := FromInt(10, "USD")
	b := FromInt(10, "EUR")

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Sub(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Cmp(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestCmpAndSigns(t *testing.T) {
	a := MustParse("499", "USD")
	b := MustParse("500", "USD")

	c, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.True(t, diff.IsNegative())
	assert.False(t, diff.IsNonNegative())
	assert.Equal(t, "1.00", diff.Abs().String())
	assert.Equal(t, "-1.00", diff.String())
	assert.True(t, Zero("USD").IsZero())
}

func TestParse(t *testing.T) {
	_, err := Parse("abc", "USD")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	m, err := Parse(" 12.345 ", "USD")
	require.NoError(t, err)
	assert.Equal(t, "12.35", m.String())
}

func TestParseRatePercent(t *testing.T) {
	r, err := ParseRatePercent("15")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.15")))

	r, err = ParseRatePercent("0.5")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.005")))

	_, err = ParseRatePercent("101")
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = ParseRatePercent("-1")
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1,234,567.89 USD", MustParse("1234567.891", "USD").Format())
	assert.Equal(t, "-500.00 USD", MustParse("-500", "USD").Format())
	assert.Equal(t, "999.00 USD", MustParse("999", "USD").Format())
}

func TestMarshalAndValue(t *testing.T) {
	m := FromInt(425, "USD")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `"425.00"`, string(data))

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "425.00", v)
}
