package quote

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-core/internal/domain/discount"
	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/order"
	"github.com/xenking/order-core/internal/domain/product"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func price(t *testing.T, amount, currency string) money.Money {
	t.Helper()
	m, err := money.New(d(amount), currency)
	require.NoError(t, err)
	return m
}

// sampleOrder has a 500 USD laptop (2.5 kg) ×2 and a 15 USD e-book ×1.
func sampleOrder(t *testing.T) *order.Order {
	t.Helper()
	laptop, err := product.NewPhysical("Laptop", price(t, "500", "USD"), d("2.5"), "30x20x2")
	require.NoError(t, err)
	ebook, err := product.NewDigital("E-Book", price(t, "15", "USD"), "http://download.link")
	require.NoError(t, err)

	o := order.New("customer", order.WithID("order-1"))
	require.NoError(t, o.AddLineItem(laptop, 2))
	require.NoError(t, o.AddLineItem(ebook, 1))
	return o
}

type stubStrategy struct {
	amount money.Money
	err    error
}

func (s stubStrategy) CalculateDiscount(*order.Order) (money.Money, error) {
	return s.amount, s.err
}

func TestBuild(t *testing.T) {
	pct, err := discount.NewPercentage(d("0.1"))
	require.NoError(t, err)

	q, err := Build(sampleOrder(t), Params{
		Discount: pct,
		TaxRate:  d("0.2"),
		Shipping: product.DefaultShippingRates,
	})
	require.NoError(t, err)

	assert.Equal(t, "order-1", q.OrderID)
	assert.Equal(t, "1015.00 USD", q.Subtotal.String())
	assert.Equal(t, "20.00 USD", q.Shipping.String())
	assert.Equal(t, "101.50 USD", q.Discount.String())
	assert.Equal(t, "186.70 USD", q.Tax.String())
	assert.Equal(t, "1120.20 USD", q.Total.String())

	require.Len(t, q.Lines, 2)
	assert.Equal(t, "Laptop", q.Lines[0].Name)
	assert.Equal(t, "1000.00 USD", q.Lines[0].Total.String())
	assert.Equal(t, "20.00 USD", q.Lines[0].Shipping.String())
	assert.True(t, q.Lines[1].Shipping.IsZero())
}

func TestBuild_Defaults(t *testing.T) {
	q, err := Build(sampleOrder(t), Params{Shipping: product.DefaultShippingRates})
	require.NoError(t, err)

	assert.True(t, q.Discount.IsZero())
	assert.Equal(t, "USD", q.Discount.Currency())
	assert.True(t, q.Tax.IsZero())
	assert.Equal(t, "1035.00 USD", q.Total.String())
}

func TestBuild_ZeroDiscountInOtherCurrency(t *testing.T) {
	q, err := Build(sampleOrder(t), Params{
		Discount: discount.NewNone("EUR"),
		Shipping: product.DefaultShippingRates,
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", q.Discount.Currency())
}

func TestBuild_DiscountCappedAtSubtotal(t *testing.T) {
	q, err := Build(sampleOrder(t), Params{
		Discount: stubStrategy{amount: price(t, "5000", "USD")},
		Shipping: product.DefaultShippingRates,
	})
	require.NoError(t, err)

	assert.Equal(t, "1015.00 USD", q.Discount.String())
	assert.Equal(t, "20.00 USD", q.Total.String())
}

func TestBuild_Errors(t *testing.T) {
	t.Run("discount currency mismatch", func(t *testing.T) {
		_, err := Build(sampleOrder(t), Params{
			Discount: stubStrategy{amount: price(t, "1", "EUR")},
			Shipping: product.DefaultShippingRates,
		})
		var mErr *domainerr.CurrencyMismatchError
		require.ErrorAs(t, err, &mErr)
	})

	t.Run("strategy failure", func(t *testing.T) {
		_, err := Build(sampleOrder(t), Params{
			Discount: stubStrategy{err: errors.New("boom")},
			Shipping: product.DefaultShippingRates,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "discount")
	})

	t.Run("negative tax rate", func(t *testing.T) {
		_, err := Build(sampleOrder(t), Params{TaxRate: d("-0.1"), Shipping: product.DefaultShippingRates})
		var vErr *domainerr.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("negative shipping rate", func(t *testing.T) {
		_, err := Build(sampleOrder(t), Params{Shipping: product.ShippingRates{Base: d("-1")}})
		var vErr *domainerr.ValidationError
		require.ErrorAs(t, err, &vErr)
	})
}

func TestBuild_EmptyOrder(t *testing.T) {
	q, err := Build(order.New("c", order.WithDefaultCurrency("EUR")), Params{Shipping: product.DefaultShippingRates})
	require.NoError(t, err)

	assert.Empty(t, q.Lines)
	assert.Equal(t, "0.00 EUR", q.Total.String())
}

func TestMarshalJSON(t *testing.T) {
	fixed, err := discount.NewFixedAmount(d("100"))
	require.NoError(t, err)

	q, err := Build(sampleOrder(t), Params{
		Discount: fixed,
		TaxRate:  d("0.1"),
		Shipping: product.DefaultShippingRates,
	})
	require.NoError(t, err)

	data, err := q.MarshalJSON()
	require.NoError(t, err)

	lines := q.Lines
	assert.JSONEq(t, `{
		"order_id": "order-1",
		"currency": "USD",
		"lines": [
			{"product_id": "`+lines[0].ProductID+`", "name": "Laptop", "quantity": 2,
			 "unit_price": "500.00", "total": "1000.00", "shipping": "20.00"},
			{"product_id": "`+lines[1].ProductID+`", "name": "E-Book", "quantity": 1,
			 "unit_price": "15.00", "total": "15.00", "shipping": "0.00"}
		],
		"subtotal": "1015.00",
		"shipping": "20.00",
		"discount": "100.00",
		"tax": "93.50",
		"total": "1028.50"
	}`, string(data))
}
