package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/order"
	"github.com/xenking/order-core/internal/domain/product"
)

func memoryConfig() *Config {
	return &Config{
		Storage:     StorageMemory,
		CatalogFile: "../catalog/testdata/catalog.jsonl",
		Currency:    "USD",
		TaxRate:     "0.1",
		Shipping:    ShippingConfig{Base: "5.00", PerKg: "2.00"},
		Cache:       CacheConfig{Enabled: true, Size: 16, TTL: time.Minute},
	}
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), memoryConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestOpen_SeedsMemoryCatalog(t *testing.T) {
	s := openMemory(t)

	all, err := s.Session().Products.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)

	p, err := s.Session().Products.GetByID(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Equal(t, "999.99 USD", p.Price.String())
}

func TestOpen_Errors(t *testing.T) {
	cfg := memoryConfig()
	cfg.CatalogFile = "missing.jsonl"
	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = memoryConfig()
	cfg.Storage = "redis"
	_, err = Open(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = memoryConfig()
	cfg.TaxRate = "x"
	_, err = Open(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestOrderService_CreateAndComplete(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	svc, err := s.OrderService()
	require.NoError(t, err)
	id, err := svc.CreateOrder(ctx, order.CreateOrderRequest{
		CustomerID: "customer-1",
		Items:      []order.RequestedItem{{ProductID: "laptop", Quantity: 2}},
	})
	require.NoError(t, err)

	var completed []string
	svc, err = s.OrderService(func(ev order.CompletedEvent) { completed = append(completed, ev.Order.ID) })
	require.NoError(t, err)
	_, err = svc.CompleteOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, completed)

	o, err := s.Session().Orders.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)

	total, err := o.CalculateTotal()
	require.NoError(t, err)
	assert.Equal(t, "1999.98 USD", total.String())
}

func TestOrderService_UnknownProductPersistsNothing(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	svc, err := s.OrderService()
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, order.CreateOrderRequest{
		CustomerID: "c",
		Items:      []order.RequestedItem{{ProductID: "laptop", Quantity: 1}, {ProductID: "nope", Quantity: 1}},
	})
	var nfErr *domainerr.NotFoundError
	require.ErrorAs(t, err, &nfErr)

	all, err := s.Session().Orders.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImportProducts_ReplacesAndPurgesCache(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	// Warm the cache.
	p, err := s.Session().Products.GetByID(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Name)

	price, err := money.New(decimal.RequireFromString("9.00"), "USD")
	require.NoError(t, err)
	p.Name = "Large Mug"
	p.Price = price
	fresh, err := product.NewDigital("Gift Card", price, "")
	require.NoError(t, err)

	n, err := s.ImportProducts(ctx, []product.Product{p, fresh})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Session().Products.GetByID(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, "Large Mug", got.Name)

	all, err := s.Session().Products.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPricing(t *testing.T) {
	s := openMemory(t)
	assert.Equal(t, "USD", s.Pricing().Currency)
	assert.True(t, decimal.RequireFromString("0.1").Equal(s.Pricing().TaxRate))
}

func TestOrderService_FailedCommitIsNotPersistedLater(t *testing.T) {
	s := openMemory(t)
	svc, err := s.OrderService()
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	id, err := svc.CreateOrder(canceled, order.CreateOrderRequest{
		CustomerID: "c1",
		Items:      []order.RequestedItem{{ProductID: "laptop", Quantity: 1}},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, id)

	id, err = svc.CreateOrder(context.Background(), order.CreateOrderRequest{
		CustomerID: "c2",
		Items:      []order.RequestedItem{{ProductID: "mug", Quantity: 1}},
	})
	require.NoError(t, err)

	all, err := s.Session().Orders.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
	assert.Equal(t, "c2", all[0].CustomerID)
}

func TestSession_StagedProductNotVisibleToOthers(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	price, err := money.New(decimal.RequireFromString("3.00"), "USD")
	require.NoError(t, err)
	p, err := product.NewDigital("Sticker Pack", price, "")
	require.NoError(t, err)

	writer := s.Session()
	require.NoError(t, writer.Products.Add(ctx, p))
	got, err := writer.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sticker Pack", got.Name)

	svc, err := s.OrderService()
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, order.CreateOrderRequest{
		CustomerID: "c",
		Items:      []order.RequestedItem{{ProductID: p.ID, Quantity: 1}},
	})
	var nfErr *domainerr.NotFoundError
	require.ErrorAs(t, err, &nfErr)

	writer.UoW.Discard()
	all, err := s.Session().Products.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSession_CommittedUpdateVisibleThroughCache(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	reader := s.Session()
	p, err := reader.Products.GetByID(ctx, "mug")
	require.NoError(t, err)

	writer := s.Session()
	p.Name = "Travel Mug"
	require.NoError(t, writer.Products.Update(ctx, p))

	got, err := reader.Products.GetByID(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, "Mug", got.Name)

	_, err = writer.UoW.SaveChanges(ctx)
	require.NoError(t, err)

	got, err = reader.Products.GetByID(ctx, "mug")
	require.NoError(t, err)
	assert.Equal(t, "Travel Mug", got.Name)
}
