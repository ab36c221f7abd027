package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/order"
	"github.com/xenking/order-core/internal/domain/product"
)

func newProduct(t *testing.T, name, amount string) product.Product {
	t.Helper()
	price, err := money.New(decimal.RequireFromString(amount), "USD")
	require.NoError(t, err)
	p, err := product.NewPhysical(name, price, decimal.NewFromInt(1), "")
	require.NoError(t, err)
	return p
}

func seed(t *testing.T, s *Store, products ...product.Product) {
	t.Helper()
	sess := s.Session()
	for _, p := range products {
		require.NoError(t, sess.Products().Add(context.Background(), p))
	}
	_, err := sess.SaveChanges(context.Background())
	require.NoError(t, err)
}

func TestSession_NothingCommittedBeforeSave(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := newProduct(t, "Widget", "10")

	writer := s.Session()
	require.NoError(t, writer.Products().Add(ctx, p))

	// Own staged changes are visible to the writer only.
	_, err := writer.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)

	_, err = s.Session().Products().GetByID(ctx, p.ID)
	var nfErr *domainerr.NotFoundError
	require.ErrorAs(t, err, &nfErr)

	n, err := writer.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, writer.Products().Pending())

	got, err := s.Session().Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
}

func TestSession_SaveAcrossRepositories(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := newProduct(t, "Widget", "10")

	o := order.New("c")
	require.NoError(t, o.AddLineItem(p, 2))

	sess := s.Session()
	require.NoError(t, sess.Products().Add(ctx, p))
	require.NoError(t, sess.Orders().Add(ctx, o))

	n, err := sess.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Session().Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	total, err := got.CalculateTotal()
	require.NoError(t, err)
	assert.Equal(t, "20.00 USD", total.String())
}

func TestOrders_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o := order.New("c")

	sess := s.Session()
	require.NoError(t, sess.Orders().Add(ctx, o))
	_, err := sess.SaveChanges(ctx)
	require.NoError(t, err)

	// Mutating the caller's instance or a loaded copy must not leak into
	// committed state.
	_, err = o.Complete()
	require.NoError(t, err)
	loaded, err := s.Session().Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, loaded.Status)

	_, err = loaded.Complete()
	require.NoError(t, err)
	again, err := s.Session().Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, again.Status)
}

func TestRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := newProduct(t, "Widget", "10")
	seed(t, s, p)

	sess := s.Session()
	p.Name = "Gizmo"
	require.NoError(t, sess.Products().Update(ctx, p))
	_, err := sess.SaveChanges(ctx)
	require.NoError(t, err)

	got, err := s.Session().Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gizmo", got.Name)

	sess = s.Session()
	require.NoError(t, sess.Products().Delete(ctx, p))
	_, err = sess.Products().GetByID(ctx, p.ID)
	assert.Error(t, err)
	_, err = sess.SaveChanges(ctx)
	require.NoError(t, err)

	all, err := s.Session().Products().GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRepository_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := newProduct(t, "Widget", "10")
	seed(t, s, p)

	sess := s.Session()
	assert.Error(t, sess.Products().Add(ctx, p), "duplicate add")

	missing := newProduct(t, "Ghost", "1")
	var nfErr *domainerr.NotFoundError
	require.ErrorAs(t, sess.Products().Update(ctx, missing), &nfErr)
	require.ErrorAs(t, sess.Products().Delete(ctx, missing), &nfErr)

	var vErr *domainerr.ValidationError
	require.ErrorAs(t, sess.Products().Add(ctx, product.Product{}), &vErr)
	require.ErrorAs(t, sess.Orders().Add(ctx, nil), &vErr)
}

func TestRepository_StagedTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := newProduct(t, "Widget", "10")

	sess := s.Session()
	require.NoError(t, sess.Products().Add(ctx, p))
	p.Name = "Renamed"
	require.NoError(t, sess.Products().Update(ctx, p))
	require.NoError(t, sess.Products().Delete(ctx, p))
	assert.Zero(t, sess.Products().Pending(), "add then delete cancels out")

	n, err := sess.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSession_ConflictAppliesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p1 := newProduct(t, "A", "1")
	p2 := newProduct(t, "B", "2")

	first := s.Session()
	second := s.Session()
	require.NoError(t, first.Products().Add(ctx, p1))
	require.NoError(t, second.Products().Add(ctx, p1))
	require.NoError(t, second.Products().Add(ctx, p2))

	_, err := first.SaveChanges(ctx)
	require.NoError(t, err)

	_, err = second.SaveChanges(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, second.Products().Pending())

	_, err = s.Session().Products().GetByID(ctx, p2.ID)
	assert.Error(t, err, "partial commit must not happen")

	second.Discard()
	assert.Zero(t, second.Products().Pending())
}

func TestGetAll_SortedWithOverlay(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p1 := newProduct(t, "A", "1")
	p2 := newProduct(t, "B", "2")
	seed(t, s, p1)

	sess := s.Session()
	require.NoError(t, sess.Products().Add(ctx, p2))

	all, err := sess.Products().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Less(t, all[0].ID, all[1].ID)
}

func TestSaveChanges_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := NewStore().Session()
	require.NoError(t, sess.Products().Add(context.Background(), newProduct(t, "A", "1")))

	_, err := sess.SaveChanges(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStore_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := s.Session()
			o := order.New("c")
			if err := sess.Orders().Add(ctx, o); err != nil {
				t.Error(err)
				return
			}
			if _, err := sess.SaveChanges(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	all, err := s.Session().Orders().GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
