// Package money implements an immutable amount+currency value.
package money

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/domainerr"
)

// DefaultCurrency is used by Zero when no currency is given.
const DefaultCurrency = "USD"

// Money is a non-negative decimal amount in a single currency.
// The zero value is not a valid Money; use New or Zero.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New validates and constructs a Money value.
func New(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, domainerr.Validation("amount", "cannot be negative")
	}
	currency = strings.TrimSpace(currency)
	if currency == "" {
		return Money{}, domainerr.Validation("currency", "must be specified")
	}
	return Money{amount: amount, currency: currency}, nil
}

// Zero returns a zero amount in currency, or in DefaultCurrency when
// currency is blank.
func Zero(currency string) Money {
	currency = strings.TrimSpace(currency)
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the currency code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, &domainerr.CurrencyMismatchError{Left: m.currency, Right: other.currency}
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Mul scales m by a non-negative factor.
func (m Money) Mul(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, domainerr.Validation("factor", "cannot be negative")
	}
	return Money{amount: m.amount.Mul(factor), currency: m.currency}, nil
}

// Min returns the smaller of m and other. Both must share a currency.
func (m Money) Min(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, &domainerr.CurrencyMismatchError{Left: m.currency, Right: other.currency}
	}
	if other.amount.LessThan(m.amount) {
		return other, nil
	}
	return m, nil
}

// Sub returns m - other. A negative result is a validation error.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, &domainerr.CurrencyMismatchError{Left: m.currency, Right: other.currency}
	}
	amount := m.amount.Sub(other.amount)
	if amount.IsNegative() {
		return Money{}, domainerr.Validation("amount", "subtraction result cannot be negative")
	}
	return Money{amount: amount, currency: m.currency}, nil
}

// Round rounds the amount to places decimal places.
func (m Money) Round(places int32) Money {
	return Money{amount: m.amount.Round(places), currency: m.currency}
}

// Equal reports whether both amount and currency match. Trailing zeros are
// ignored, so 10 USD equals 10.00 USD.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String formats the amount to two decimal places followed by the currency.
func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}

// MarshalText implements encoding.TextMarshaler using the String format.
func (m Money) MarshalText() ([]byte, error) {
	if m.currency == "" {
		return nil, errors.New("marshal invalid money")
	}
	return []byte(m.String()), nil
}

// UnmarshalText parses "<amount> <currency>".
func (m *Money) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Parse parses the String format, e.g. "500.00 USD".
func Parse(s string) (Money, error) {
	amountStr, currency, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return Money{}, domainerr.Validation("money", "expected \"<amount> <currency>\"")
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Money{}, domainerr.Validation("amount", err.Error())
	}
	return New(amount, currency)
}
