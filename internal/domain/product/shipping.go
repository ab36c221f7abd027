package product

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
)

// ShippingRates holds the physical shipping policy: a flat base fee plus a
// per-kilogram rate, both in the product's price currency.
type ShippingRates struct {
	Base  decimal.Decimal
	PerKg decimal.Decimal
}

// DefaultShippingRates is 5.00 base plus 2.00 per kilogram.
var DefaultShippingRates = ShippingRates{
	Base:  decimal.RequireFromString("5.00"),
	PerKg: decimal.RequireFromString("2.00"),
}

// Validate rejects negative rates.
func (r ShippingRates) Validate() error {
	if r.Base.IsNegative() {
		return domainerr.Validation("shipping base", "cannot be negative")
	}
	if r.PerKg.IsNegative() {
		return domainerr.Validation("shipping per kg", "cannot be negative")
	}
	return nil
}

// ShippingCost computes the cost of shipping one unit of p.
func (p Product) ShippingCost(rates ShippingRates) (money.Money, error) {
	switch p.Kind {
	case KindDigital:
		return money.Zero(p.Price.Currency()), nil
	case KindPhysical:
		if err := rates.Validate(); err != nil {
			return money.Money{}, err
		}
		amount := rates.Base.Add(rates.PerKg.Mul(p.WeightKg))
		return money.New(amount, p.Price.Currency())
	default:
		return money.Money{}, domainerr.Validation("kind", "unsupported product kind "+string(p.Kind))
	}
}
