// Package discount implements the pluggable discount policies evaluated
// against a fully built order. Strategies never mutate the order.
package discount

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/order"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypeNone never discounts.
	TypeNone Type = "none"
	// TypeFixed grants a fixed amount once the order total reaches it.
	TypeFixed Type = "fixed"
	// TypePercentage grants a fraction of the order total.
	TypePercentage Type = "percentage"
)

var one = decimal.NewFromInt(1)

// Strategy computes a discount for an order. Implementations are immutable
// and safe for concurrent use.
type Strategy interface {
	CalculateDiscount(o *order.Order) (money.Money, error)
}

// None returns zero in its configured currency regardless of the order's
// currency.
type None struct {
	Currency string
}

// NewNone returns a None strategy. A blank currency falls back to
// money.DefaultCurrency.
func NewNone(currency string) None {
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return None{Currency: currency}
}

// CalculateDiscount implements Strategy.
func (n None) CalculateDiscount(*order.Order) (money.Money, error) {
	return money.Zero(n.Currency), nil
}

// FixedAmount grants Amount in the order's currency when the order total is
// at least Amount, and nothing otherwise.
type FixedAmount struct {
	amount decimal.Decimal
}

// NewFixedAmount validates amount and returns a FixedAmount strategy.
func NewFixedAmount(amount decimal.Decimal) (FixedAmount, error) {
	if amount.IsNegative() {
		return FixedAmount{}, domainerr.Validation("discount amount", "cannot be negative")
	}
	return FixedAmount{amount: amount}, nil
}

// Amount returns the configured threshold and discount.
func (f FixedAmount) Amount() decimal.Decimal { return f.amount }

// CalculateDiscount implements Strategy.
func (f FixedAmount) CalculateDiscount(o *order.Order) (money.Money, error) {
	total, err := o.CalculateTotal()
	if err != nil {
		return money.Money{}, err
	}
	if total.Amount().LessThan(f.amount) {
		return money.Zero(total.Currency()), nil
	}
	return money.New(f.amount, total.Currency())
}

// Percentage grants a fraction of the order total.
type Percentage struct {
	fraction decimal.Decimal
}

// NewPercentage returns a Percentage strategy. The fraction must lie in
// [0, 1]; 0.1 means ten percent.
func NewPercentage(fraction decimal.Decimal) (Percentage, error) {
	if fraction.IsNegative() || fraction.GreaterThan(one) {
		return Percentage{}, domainerr.Validation("discount percentage", "must be between 0 and 1")
	}
	return Percentage{fraction: fraction}, nil
}

// Fraction returns the configured fraction.
func (p Percentage) Fraction() decimal.Decimal { return p.fraction }

// CalculateDiscount implements Strategy.
func (p Percentage) CalculateDiscount(o *order.Order) (money.Money, error) {
	total, err := o.CalculateTotal()
	if err != nil {
		return money.Money{}, err
	}
	return total.Mul(p.fraction)
}

// Rule is the textual description of a strategy, e.g. from a CLI flag or
// a configuration file.
type Rule struct {
	Type  Type
	Value decimal.Decimal
}

// ParseRule parses "none", "fixed:<amount>" or "percentage:<fraction>".
// An empty string is treated as "none".
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{Type: TypeNone}, nil
	}

	kind, value, hasValue := strings.Cut(s, ":")
	rule := Rule{Type: Type(strings.ToLower(strings.TrimSpace(kind)))}
	switch rule.Type {
	case TypeNone:
		return rule, nil
	case TypeFixed, TypePercentage:
		if !hasValue {
			return Rule{}, errors.Errorf("discount rule %q: missing value", s)
		}
		v, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return Rule{}, errors.Wrapf(err, "discount rule %q", s)
		}
		rule.Value = v
		return rule, nil
	default:
		return Rule{}, errors.Errorf("unsupported discount type: %q", kind)
	}
}

// String formats r in the form accepted by ParseRule.
func (r Rule) String() string {
	if r.Type == TypeNone || r.Type == "" {
		return string(TypeNone)
	}
	return string(r.Type) + ":" + r.Value.String()
}

// FromRule builds the strategy described by rule. defaultCurrency is used by
// the None strategy.
func FromRule(rule Rule, defaultCurrency string) (Strategy, error) {
	switch rule.Type {
	case TypeNone, "":
		return NewNone(defaultCurrency), nil
	case TypeFixed:
		return NewFixedAmount(rule.Value)
	case TypePercentage:
		return NewPercentage(rule.Value)
	default:
		return nil, errors.Errorf("unsupported discount type: %q", rule.Type)
	}
}
