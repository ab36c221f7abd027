// Package memory implements in-memory product and order repositories with
// a session-scoped unit of work.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/order"
	"github.com/xenking/order-core/internal/domain/product"
	"github.com/xenking/order-core/internal/domain/repo"
)

// Store holds the committed state shared by all sessions.
type Store struct {
	mu       sync.RWMutex
	products *table[product.Product]
	orders   *table[*order.Order]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		products: newTable("product", cloneProduct),
		orders:   newTable("order", cloneOrder),
	}
}

// Session returns a new unit of work over s. Changes staged through the
// session's repositories are invisible to other sessions until SaveChanges.
//
// A Session is not safe for concurrent use.
func (s *Store) Session() *Session {
	return &Session{
		store:    s,
		products: newRepository(&s.mu, s.products),
		orders:   newRepository(&s.mu, s.orders),
	}
}

// Session is the unit of work of a single workflow invocation.
type Session struct {
	store    *Store
	products *Repository[product.Product]
	orders   *Repository[*order.Order]
}

var _ repo.UnitOfWork = (*Session)(nil)

// Products returns the session's product repository.
func (s *Session) Products() *Repository[product.Product] { return s.products }

// Orders returns the session's order repository.
func (s *Session) Orders() *Repository[*order.Order] { return s.orders }

// SaveChanges atomically applies every staged change and returns how many
// entities were written. On error nothing is applied and the staged changes
// are kept.
func (s *Session) SaveChanges(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if err := s.products.check(); err != nil {
		return 0, err
	}
	if err := s.orders.check(); err != nil {
		return 0, err
	}
	return s.products.apply() + s.orders.apply(), nil
}

// Discard drops every staged change.
func (s *Session) Discard() {
	s.products.staged = make(map[string]change[product.Product])
	s.orders.staged = make(map[string]change[*order.Order])
}

type table[T repo.Entity] struct {
	entity string
	rows   map[string]T
	clone  func(T) (T, error)
}

func newTable[T repo.Entity](entity string, clone func(T) (T, error)) *table[T] {
	return &table[T]{entity: entity, rows: make(map[string]T), clone: clone}
}

type op int

const (
	opAdd op = iota + 1
	opUpdate
	opDelete
)

type change[T repo.Entity] struct {
	op     op
	entity T
}

// Repository implements repo.Repository[T] over a Store table. Reads see
// the session's own staged changes on top of the committed state.
type Repository[T repo.Entity] struct {
	mu     *sync.RWMutex
	table  *table[T]
	staged map[string]change[T]
}

func newRepository[T repo.Entity](mu *sync.RWMutex, t *table[T]) *Repository[T] {
	return &Repository[T]{mu: mu, table: t, staged: make(map[string]change[T])}
}

func (r *Repository[T]) committed(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.table.rows[id]
	return v, ok
}

// GetByID returns a copy of the entity or a NotFoundError.
func (r *Repository[T]) GetByID(_ context.Context, id string) (T, error) {
	var zero T
	if c, ok := r.staged[id]; ok {
		if c.op == opDelete {
			return zero, domainerr.NotFound(r.table.entity, id)
		}
		return r.table.clone(c.entity)
	}
	v, ok := r.committed(id)
	if !ok {
		return zero, domainerr.NotFound(r.table.entity, id)
	}
	return r.table.clone(v)
}

// GetAll returns copies of all visible entities ordered by id.
func (r *Repository[T]) GetAll(_ context.Context) ([]T, error) {
	r.mu.RLock()
	visible := make(map[string]T, len(r.table.rows)+len(r.staged))
	for id, v := range r.table.rows {
		visible[id] = v
	}
	r.mu.RUnlock()

	for id, c := range r.staged {
		if c.op == opDelete {
			delete(visible, id)
			continue
		}
		visible[id] = c.entity
	}

	out := make([]T, 0, len(visible))
	for _, v := range visible {
		cp, err := r.table.clone(v)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b T) int {
		return strings.Compare(a.EntityID(), b.EntityID())
	})
	return out, nil
}

// Add stages a new entity.
func (r *Repository[T]) Add(_ context.Context, v T) error {
	cp, id, err := r.snapshot(v)
	if err != nil {
		return err
	}
	if c, ok := r.staged[id]; ok {
		if c.op != opDelete {
			return errors.Errorf("%s %s already exists", r.table.entity, id)
		}
		r.staged[id] = change[T]{op: opUpdate, entity: cp}
		return nil
	}
	if _, ok := r.committed(id); ok {
		return errors.Errorf("%s %s already exists", r.table.entity, id)
	}
	r.staged[id] = change[T]{op: opAdd, entity: cp}
	return nil
}

// Update stages a replacement of an existing entity.
func (r *Repository[T]) Update(_ context.Context, v T) error {
	cp, id, err := r.snapshot(v)
	if err != nil {
		return err
	}
	if c, ok := r.staged[id]; ok {
		switch c.op {
		case opDelete:
			return domainerr.NotFound(r.table.entity, id)
		case opAdd:
			r.staged[id] = change[T]{op: opAdd, entity: cp}
			return nil
		}
	} else if _, ok := r.committed(id); !ok {
		return domainerr.NotFound(r.table.entity, id)
	}
	r.staged[id] = change[T]{op: opUpdate, entity: cp}
	return nil
}

// Delete stages removal of an existing entity.
func (r *Repository[T]) Delete(_ context.Context, v T) error {
	id := v.EntityID()
	if c, ok := r.staged[id]; ok {
		switch c.op {
		case opDelete:
			return domainerr.NotFound(r.table.entity, id)
		case opAdd:
			delete(r.staged, id)
			return nil
		}
	} else if _, ok := r.committed(id); !ok {
		return domainerr.NotFound(r.table.entity, id)
	}
	r.staged[id] = change[T]{op: opDelete, entity: v}
	return nil
}

// Pending returns the number of staged changes.
func (r *Repository[T]) Pending() int { return len(r.staged) }

func (r *Repository[T]) snapshot(v T) (T, string, error) {
	cp, err := r.table.clone(v)
	if err != nil {
		return cp, "", errors.Wrapf(err, "stage %s", r.table.entity)
	}
	id := cp.EntityID()
	if id == "" {
		return cp, "", domainerr.Validation("id", "must be specified")
	}
	return cp, id, nil
}

// check verifies staged changes against committed state. Caller holds the
// write lock.
func (r *Repository[T]) check() error {
	for id, c := range r.staged {
		_, exists := r.table.rows[id]
		switch {
		case c.op == opAdd && exists:
			return errors.Errorf("%s %s already exists", r.table.entity, id)
		case c.op != opAdd && !exists:
			return domainerr.NotFound(r.table.entity, id)
		}
	}
	return nil
}

// apply writes staged changes and clears them. Caller holds the write lock.
func (r *Repository[T]) apply() int {
	n := len(r.staged)
	for id, c := range r.staged {
		if c.op == opDelete {
			delete(r.table.rows, id)
			continue
		}
		r.table.rows[id] = c.entity
	}
	r.staged = make(map[string]change[T])
	return n
}

func cloneProduct(p product.Product) (product.Product, error) {
	return p, nil
}

// cloneOrder round-trips through the persisted form so callers never share
// item slices with the store. Listeners are not carried over.
func cloneOrder(o *order.Order) (*order.Order, error) {
	if o == nil {
		return nil, domainerr.Validation("order", "must not be nil")
	}
	return order.Restore(o.Snapshot())
}
