package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Currency represents an ISO 4217 currency code
type Currency string

// ErrUnknownCurrency is returned for codes that are not ISO 4217 currencies
var ErrUnknownCurrency = errors.New("unknown currency")

// ParseCurrency normalizes and validates an ISO 4217 code
func ParseCurrency(code string) (Currency, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return Currency(unit.String()), nil
}

// Scale returns the number of minor-unit digits of the currency (2 for USD, 0 for JPY)
func (c Currency) Scale() int32 {
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Money is a value object representing monetary amounts
// It is immutable - all operations return new Money instances
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, code string) (Money, error) {
	cur, err := ParseCurrency(code)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: cur}, nil
}

// NewMoneyFromFloat creates Money from a float64 value as sent in Saleor payloads
func NewMoneyFromFloat(amount float64, code string) (Money, error) {
	return NewMoney(decimal.NewFromFloat(amount), code)
}

// NewMoneyFromMinorUnits creates Money from an integer amount of minor units (e.g. cents)
// using the ISO 4217 scale of the currency
func NewMoneyFromMinorUnits(minor int64, code string) (Money, error) {
	cur, err := ParseCurrency(code)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: decimal.New(minor, -cur.Scale()), currency: cur}, nil
}

// NewMoneyFromMinorUnitsAt creates Money from minor units counted with an
// explicit number of decimals, for processors whose scale differs from ISO 4217
func NewMoneyFromMinorUnitsAt(minor int64, code string, scale int32) (Money, error) {
	cur, err := ParseCurrency(code)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: decimal.New(minor, -scale), currency: cur}, nil
}

// Zero returns a zero-value Money in the specified currency
func Zero(cur Currency) Money {
	return Money{amount: decimal.Zero, currency: cur}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// MinorUnits returns the amount in the smallest ISO 4217 unit, rounded half-up.
func (m Money) MinorUnits() int64 {
	return m.MinorUnitsAt(m.currency.Scale())
}

// MinorUnitsAt returns the amount shifted by scale decimals, rounded half-up.
func (m Money) MinorUnitsAt(scale int32) int64 {
	return m.amount.Shift(scale).Round(0).IntPart()
}

// Add returns a new Money with the sum of both amounts
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns a new Money with the difference
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Rounded returns the amount rounded to the currency scale
func (m Money) Rounded() Money {
	return Money{amount: m.amount.Round(m.currency.Scale()), currency: m.currency}
}

// Float64 returns the amount as a float64 (may lose precision)
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// String returns "<amount> <CUR>" with the currency's number of decimals,
// the format Google Merchant feeds use for prices.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(m.currency.Scale()), m.currency)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.String(),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewMoney(v.Amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
