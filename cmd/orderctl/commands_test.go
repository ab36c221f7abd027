package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appkg "github.com/xenking/order-core/internal/app"
	"github.com/xenking/order-core/internal/domain/order"
)

func newStore(t *testing.T) *appkg.Store {
	t.Helper()
	store, err := appkg.Open(context.Background(), &appkg.Config{
		Storage:     appkg.StorageMemory,
		CatalogFile: "../../internal/catalog/testdata/catalog.jsonl",
		Currency:    "USD",
		TaxRate:     "0",
		Shipping:    appkg.ShippingConfig{Base: "5.00", PerKg: "2.00"},
		Cache:       appkg.CacheConfig{Enabled: true, Size: 16, TTL: time.Minute},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func exec(t *testing.T, store *appkg.Store, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), store, args, &out)
	return out.String(), err
}

func TestCreateShowComplete(t *testing.T) {
	store := newStore(t)

	out, err := exec(t, store, "create", "-customer", "c1", "-item", "laptop:2", "-item", "ebook")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = exec(t, store, "show", "-order", id)
	require.NoError(t, err)
	assert.Contains(t, out, "customer: c1")
	assert.Contains(t, out, "status:   pending")
	assert.Contains(t, out, "Laptop x2 @ 999.99 USD = 1999.98 USD")
	assert.Contains(t, out, "total:    2014.98 USD")

	out, err = exec(t, store, "complete", "-order", id)
	require.NoError(t, err)
	assert.Equal(t, id+" delivered\n", out)

	_, err = exec(t, store, "complete", "-order", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid state")
}

func TestQuote(t *testing.T) {
	store := newStore(t)

	out, err := exec(t, store, "create", "-customer", "c1", "-item", "laptop:1")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	out, err = exec(t, store, "quote", "-order", id, "-discount", "fixed:100", "-tax", "0.1")
	require.NoError(t, err)

	assert.Greater(t, strings.Count(out, "\n"), 1, "output is indented")

	// 999.99 - 100 + (5 + 2*2.5) = 909.99, plus 10% tax.
	compact := strings.Join(strings.Fields(out), "")
	assert.Contains(t, compact, `"subtotal":"999.99"`)
	assert.Contains(t, compact, `"discount":"100.00"`)
	assert.Contains(t, compact, `"total":"1000.99"`)

	_, err = exec(t, store, "quote", "-order", id, "-discount", "bogus:1")
	require.Error(t, err)
}

func TestProducts(t *testing.T) {
	out, err := exec(t, newStore(t), "products")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ebook\tdigital\t15.00 USD\tE-Book", lines[0])
}

func TestErrors(t *testing.T) {
	store := newStore(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no command", args: nil, want: "usage"},
		{name: "unknown command", args: []string{"ship"}, want: `unknown command "ship"`},
		{name: "missing customer", args: []string{"create", "-item", "laptop"}, want: "-customer is required"},
		{name: "no items", args: []string{"create", "-customer", "c"}, want: "validation failed"},
		{name: "unknown product", args: []string{"create", "-customer", "c", "-item", "nope"}, want: "not found"},
		{name: "zero quantity", args: []string{"create", "-customer", "c", "-item", "laptop:0"}, want: "validation failed"},
		{name: "bad quantity", args: []string{"create", "-customer", "c", "-item", "laptop:x"}, want: "quantity of laptop"},
		{name: "missing order", args: []string{"show"}, want: "-order is required"},
		{name: "unknown order", args: []string{"show", "-order", "nope"}, want: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec(t, store, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestItemsFlag(t *testing.T) {
	var f itemsFlag
	require.NoError(t, f.Set("a:3"))
	require.NoError(t, f.Set("b"))
	require.Error(t, f.Set(":2"))

	assert.Equal(t, itemsFlag{{ProductID: "a", Quantity: 3}, {ProductID: "b", Quantity: 1}}, f)
	assert.Equal(t, "a:3,b:1", f.String())
	assert.IsType(t, order.RequestedItem{}, f[0])
}
