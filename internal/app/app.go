package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-core/internal/catalog"
	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/order"
	"github.com/xenking/order-core/internal/domain/product"
	"github.com/xenking/order-core/internal/domain/repo"
	"github.com/xenking/order-core/internal/storage/cache"
	"github.com/xenking/order-core/internal/storage/memory"
	"github.com/xenking/order-core/internal/storage/postgres"
)

// Telemetry provides the tracer and meter providers. *app.Telemetry from
// go-faster/sdk satisfies it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Session is one unit of work with its repositories.
type Session struct {
	Products product.Repository
	Orders   order.Repository
	UoW      repo.UnitOfWork
}

// Store is the single wiring point for storage: it owns the backend, the
// shared product cache and the pricing settings.
type Store struct {
	pricing Pricing
	tel     Telemetry

	memory   *memory.Store
	pool     *pgxpool.Pool
	postgres *postgres.Store
	products *cache.Cache[product.Product]
}

// Open creates the configured storage backend. tel may be nil.
func Open(ctx context.Context, cfg *Config, tel Telemetry) (*Store, error) {
	pricing, err := cfg.Pricing()
	if err != nil {
		return nil, err
	}

	s := &Store{pricing: pricing, tel: tel}
	lg := zctx.From(ctx)

	if cfg.Cache.Enabled {
		ccfg := cache.Config{Entity: "product", Size: cfg.Cache.Size, TTL: cfg.Cache.TTL}
		if tel != nil {
			ccfg.MeterProvider = tel.MeterProvider()
		}
		if s.products, err = cache.New[product.Product](ccfg); err != nil {
			return nil, errors.Wrap(err, "create product cache")
		}
	}

	switch cfg.Storage {
	case StorageMemory:
		s.memory = memory.NewStore()
		if cfg.CatalogFile != "" {
			n, err := s.seedMemory(ctx, cfg.CatalogFile)
			if err != nil {
				return nil, errors.Wrap(err, "seed memory store")
			}
			lg.Info("Catalog loaded", zap.String("path", cfg.CatalogFile), zap.Int("products", n))
		}
	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if cfg.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, errors.Wrap(err, "run migrations")
			}
		}
		s.pool = pool
		s.postgres = postgres.NewStore(pool)
	default:
		return nil, errors.Errorf("unsupported storage %q", cfg.Storage)
	}

	lg.Debug("Store opened", zap.String("storage", cfg.Storage), zap.Bool("cache", cfg.Cache.Enabled))
	return s, nil
}

// Close releases the backend.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pricing returns the parsed pricing settings.
func (s *Store) Pricing() Pricing { return s.pricing }

// Session opens a new unit of work. Product lookups go through the shared
// cache when it is enabled.
func (s *Store) Session() Session {
	var sess Session
	if s.memory != nil {
		m := s.memory.Session()
		sess = Session{Products: m.Products(), Orders: m.Orders(), UoW: m}
	} else {
		p := s.postgres.Session()
		sess = Session{Products: p.Products(), Orders: p.Orders(), UoW: p}
	}
	if s.products != nil {
		sess.Products, sess.UoW = s.products.Wrap(sess.Products, sess.UoW)
	}
	return sess
}

// OrderService returns an order Service bound to a fresh session.
func (s *Store) OrderService(listeners ...order.CompletedListener) (*order.Service, error) {
	sess := s.Session()
	cfg := order.ServiceConfig{
		DefaultCurrency: s.pricing.Currency,
		Listeners:       listeners,
	}
	if s.tel != nil {
		cfg.TracerProvider = s.tel.TracerProvider()
		cfg.MeterProvider = s.tel.MeterProvider()
	}
	return order.NewService(cfg, sess.Products, sess.Orders, sess.UoW)
}

// ImportProducts adds products to the store, replacing existing ones with
// the same id. It returns how many products were written.
func (s *Store) ImportProducts(ctx context.Context, products []product.Product) (int, error) {
	if s.memory != nil {
		sess := s.Session()
		for _, p := range products {
			_, err := sess.Products.GetByID(ctx, p.ID)
			switch {
			case err == nil:
				err = sess.Products.Update(ctx, p)
			case isNotFound(err):
				err = sess.Products.Add(ctx, p)
			}
			if err != nil {
				sess.UoW.Discard()
				return 0, errors.Wrapf(err, "import product %s", p.ID)
			}
		}
		if _, err := sess.UoW.SaveChanges(ctx); err != nil {
			sess.UoW.Discard()
			return 0, errors.Wrap(err, "save products")
		}
		return len(products), nil
	}
	if err := s.postgres.UpsertProducts(ctx, products); err != nil {
		return 0, err
	}
	if s.products != nil {
		s.products.Purge()
	}
	return len(products), nil
}

func (s *Store) seedMemory(ctx context.Context, path string) (int, error) {
	products, err := catalog.ReadFile(ctx, path, s.pricing.Currency)
	if err != nil {
		return 0, err
	}
	products, _ = catalog.Dedupe(products, catalog.DefaultFalsePositiveRate)
	return s.ImportProducts(ctx, products)
}

func isNotFound(err error) bool {
	var nfErr *domainerr.NotFoundError
	return errors.As(err, &nfErr)
}
