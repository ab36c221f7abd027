// Package cache provides a read-through caching decorator for
// repo.Repository that only ever caches committed state.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/order-core/internal/domain/repo"
)

// DefaultTTL is how long a cached entity stays valid.
const DefaultTTL = 5 * time.Minute

// DefaultSize bounds the number of cached entities.
const DefaultSize = 1024

// Config configures a Cache.
type Config struct {
	// Entity names the cached type in metrics, e.g. "product".
	Entity        string
	Size          int
	TTL           time.Duration
	MeterProvider metric.MeterProvider
}

// Cache is an expiring LRU of entities keyed by id. It outlives the
// repositories it decorates, so one Cache can serve many sessions.
//
// Only committed state is cached. Cached values are returned as is; T
// should be a value type.
type Cache[T repo.Entity] struct {
	lru    *expirable.LRU[string, T]
	hits   metric.Int64Counter
	misses metric.Int64Counter
	attrs  metric.MeasurementOption

	// epoch advances on every eviction. A load that started before an
	// eviction must not fill the cache with what it read.
	mu    sync.Mutex
	epoch uint64
}

// New creates a Cache.
func New[T repo.Entity](cfg Config) (*Cache[T], error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = noop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter("github.com/xenking/order-core/internal/storage/cache")
	hits, err := meter.Int64Counter("cache.hits")
	if err != nil {
		return nil, errors.Wrap(err, "create cache.hits counter")
	}
	misses, err := meter.Int64Counter("cache.misses")
	if err != nil {
		return nil, errors.Wrap(err, "create cache.misses counter")
	}

	return &Cache[T]{
		lru:    expirable.NewLRU[string, T](cfg.Size, nil, cfg.TTL),
		hits:   hits,
		misses: misses,
		attrs:  metric.WithAttributes(attribute.String("entity", cfg.Entity)),
	}, nil
}

// Len returns the number of cached entities, including expired ones not
// yet evicted.
func (c *Cache[T]) Len() int { return c.lru.Len() }

// Purge drops every cached entity.
func (c *Cache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lru.Purge()
}

func (c *Cache[T]) evict(ids map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for id := range ids {
		c.lru.Remove(id)
	}
}

func (c *Cache[T]) load(ctx context.Context, id string, fetch func() (T, error)) (T, error) {
	if v, ok := c.lru.Get(id); ok {
		c.hits.Add(ctx, 1, c.attrs)
		return v, nil
	}
	c.misses.Add(ctx, 1, c.attrs)

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	v, err := fetch()
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.lru.Add(id, v)
	}
	c.mu.Unlock()
	return v, nil
}

// Wrap decorates a session's repository and unit of work with c. Writes
// must go through the returned repository: ids written by the session
// bypass the cache until the session ends, and their cached copies are
// evicted once the returned unit of work commits.
func (c *Cache[T]) Wrap(inner repo.Repository[T], uow repo.UnitOfWork) (*Repository[T], repo.UnitOfWork) {
	r := &Repository[T]{cache: c, inner: inner, written: make(map[string]struct{})}
	return r, &unitOfWork[T]{repo: r, inner: uow}
}

// Repository serves GetByID from the cache for ids the session has not
// written. Everything else goes straight to the inner repository.
//
// A Repository is not safe for concurrent use.
type Repository[T repo.Entity] struct {
	cache   *Cache[T]
	inner   repo.Repository[T]
	written map[string]struct{}
}

var _ repo.Repository[repo.Entity] = (*Repository[repo.Entity])(nil)

// GetByID implements repo.Repository.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (T, error) {
	if _, ok := r.written[id]; ok {
		return r.inner.GetByID(ctx, id)
	}
	return r.cache.load(ctx, id, func() (T, error) {
		return r.inner.GetByID(ctx, id)
	})
}

// GetAll implements repo.Repository.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	return r.inner.GetAll(ctx)
}

// Add implements repo.Repository.
func (r *Repository[T]) Add(ctx context.Context, v T) error {
	return r.track(v, r.inner.Add(ctx, v))
}

// Update implements repo.Repository.
func (r *Repository[T]) Update(ctx context.Context, v T) error {
	return r.track(v, r.inner.Update(ctx, v))
}

// Delete implements repo.Repository.
func (r *Repository[T]) Delete(ctx context.Context, v T) error {
	return r.track(v, r.inner.Delete(ctx, v))
}

func (r *Repository[T]) track(v T, err error) error {
	if err != nil {
		return err
	}
	r.written[v.EntityID()] = struct{}{}
	return nil
}

type unitOfWork[T repo.Entity] struct {
	repo  *Repository[T]
	inner repo.UnitOfWork
}

func (u *unitOfWork[T]) SaveChanges(ctx context.Context) (int, error) {
	n, err := u.inner.SaveChanges(ctx)
	if err != nil {
		return n, err
	}
	if len(u.repo.written) > 0 {
		u.repo.cache.evict(u.repo.written)
		u.repo.written = make(map[string]struct{})
	}
	return n, nil
}

func (u *unitOfWork[T]) Discard() {
	u.inner.Discard()
	u.repo.written = make(map[string]struct{})
}
