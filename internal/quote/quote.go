// Package quote prices a built order: subtotal, shipping, discount and tax.
package quote

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/discount"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/order"
	"github.com/xenking/order-core/internal/domain/product"
)

// Line is the priced form of one order item.
type Line struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice money.Money
	Total     money.Money
	Shipping  money.Money
}

// Quote is a pricing summary of an order.
type Quote struct {
	OrderID  string
	Lines    []Line
	Subtotal money.Money
	Shipping money.Money
	Discount money.Money
	Tax      money.Money
	Total    money.Money
}

// Params configures Build.
type Params struct {
	Discount discount.Strategy
	TaxRate  decimal.Decimal
	Shipping product.ShippingRates
}

// Build computes the quote for o.
//
// The discount is capped at the subtotal. Tax applies to the discounted
// subtotal plus shipping. A zero discount reported in another currency is
// normalised to the order currency; any other currency difference fails.
func Build(o *order.Order, p Params) (Quote, error) {
	subtotal, err := o.CalculateTotal()
	if err != nil {
		return Quote{}, errors.Wrap(err, "subtotal")
	}
	currency := subtotal.Currency()

	q := Quote{
		OrderID:  o.ID,
		Subtotal: subtotal,
		Shipping: money.Zero(currency),
	}

	for _, it := range o.Items() {
		line, err := buildLine(it, p.Shipping)
		if err != nil {
			return Quote{}, errors.Wrapf(err, "item %s", it.ID)
		}
		if q.Shipping, err = q.Shipping.Add(line.Shipping); err != nil {
			return Quote{}, errors.Wrap(err, "shipping")
		}
		q.Lines = append(q.Lines, line)
	}

	strategy := p.Discount
	if strategy == nil {
		strategy = discount.NewNone(currency)
	}
	disc, err := strategy.CalculateDiscount(o)
	if err != nil {
		return Quote{}, errors.Wrap(err, "discount")
	}
	if disc.IsZero() {
		disc = money.Zero(currency)
	}
	if q.Discount, err = disc.Min(subtotal); err != nil {
		return Quote{}, errors.Wrap(err, "discount")
	}

	discounted, err := subtotal.Sub(q.Discount)
	if err != nil {
		return Quote{}, err
	}
	taxable, err := discounted.Add(q.Shipping)
	if err != nil {
		return Quote{}, err
	}
	if q.Total, err = order.ApplyTax(taxable, p.TaxRate); err != nil {
		return Quote{}, err
	}
	if q.Tax, err = q.Total.Sub(taxable); err != nil {
		return Quote{}, err
	}
	return q, nil
}

func buildLine(it order.Item, rates product.ShippingRates) (Line, error) {
	total, err := it.Total()
	if err != nil {
		return Line{}, err
	}
	unitShipping, err := it.Product.ShippingCost(rates)
	if err != nil {
		return Line{}, err
	}
	shipping, err := unitShipping.Mul(decimal.NewFromInt(int64(it.Quantity)))
	if err != nil {
		return Line{}, err
	}
	return Line{
		ProductID: it.Product.ID,
		Name:      it.Product.Name,
		Quantity:  it.Quantity,
		UnitPrice: it.PriceAtPurchase,
		Total:     total,
		Shipping:  shipping,
	}, nil
}

// Encode writes q as a JSON object. Amounts are fixed-point strings with
// two decimal places.
func (q Quote) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(q.OrderID)
	e.FieldStart("currency")
	e.Str(q.Subtotal.Currency())

	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range q.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		encodeAmount(e, "unit_price", l.UnitPrice)
		encodeAmount(e, "total", l.Total)
		encodeAmount(e, "shipping", l.Shipping)
		e.ObjEnd()
	}
	e.ArrEnd()

	encodeAmount(e, "subtotal", q.Subtotal)
	encodeAmount(e, "shipping", q.Shipping)
	encodeAmount(e, "discount", q.Discount)
	encodeAmount(e, "tax", q.Tax)
	encodeAmount(e, "total", q.Total)
	e.ObjEnd()
}

// MarshalJSON implements json.Marshaler.
func (q Quote) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	q.Encode(&e)
	return e.Bytes(), nil
}

func encodeAmount(e *jx.Encoder, field string, m money.Money) {
	e.FieldStart(field)
	e.Str(m.Amount().StringFixed(2))
}
