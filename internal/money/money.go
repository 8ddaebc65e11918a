// Package money implements fixed-point currency amounts.
//
// Every Money value carries exactly two fraction digits. Values are rounded
// half-up (away from zero) to two decimals when they enter the type and after
// a rate multiplication; no other operation rounds. Binary floating point is
// never used for arithmetic.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fraction digits kept for every amount.
const Scale = 2

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidRate      = errors.New("invalid rate")
)

var hundred = decimal.NewFromInt(100)

type Money struct {
	amount   decimal.Decimal
	currency string
}

// New rounds amount half-up to two decimals.
func New(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount.Round(Scale), currency: strings.ToUpper(currency)}
}

// FromMinor builds a value from minor units (cents).
func FromMinor(units int64, currency string) Money {
	return New(decimal.New(units, -Scale), currency)
}

func FromInt(units int64, currency string) Money {
	return New(decimal.NewFromInt(units), currency)
}

func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

// Parse reads a decimal string such as "1500" or "12.345".
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return New(d, currency), nil
}

func MustParse(s, currency string) Money {
	m, err := Parse(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseRatePercent converts a percentage ("15", "0.5") into a fraction.
// Rates must lie in [0, 100].
func ParseRatePercent(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	if d.IsNegative() || d.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: %s%% out of range", ErrInvalidRate, d)
	}
	return d.Div(hundred), nil
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}, nil
}

func (m Money) Neg() Money { return Money{amount: m.amount.Neg(), currency: m.currency} }
func (m Money) Abs() Money { return Money{amount: m.amount.Abs(), currency: m.currency} }

// MultiplyByRate splits m into part = round(m*rate) and remainder = m - part.
// part + remainder always equals m exactly.
func (m Money) MultiplyByRate(rate decimal.Decimal) (part, remainder Money) {
	part = New(m.amount.Mul(rate), m.currency)
	remainder = Money{amount: m.amount.Sub(part.amount), currency: m.currency}
	return part, remainder
}

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	return m.amount.Cmp(o.amount), nil
}

func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

func (m Money) IsZero() bool        { return m.amount.IsZero() }
func (m Money) IsPositive() bool    { return m.amount.IsPositive() }
func (m Money) IsNegative() bool    { return m.amount.IsNegative() }
func (m Money) IsNonNegative() bool { return !m.amount.IsNegative() }

// String returns the fixed two-digit amount without currency, e.g. "1500.00".
func (m Money) String() string { return m.amount.StringFixed(Scale) }

// Format renders the amount with thousands separators and the currency code.
func (m Money) Format() string {
	s := m.amount.Abs().StringFixed(Scale)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if m.amount.IsNegative() {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	if m.currency != "" {
		b.WriteByte(' ')
		b.WriteString(m.currency)
	}
	return b.String()
}

// MarshalJSON encodes the amount as a fixed two-digit string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// Value stores the amount as a fixed two-digit NUMERIC literal.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
