// Command catalog-import loads JSON-lines product catalogs into PostgreSQL.
//
// Every *.jsonl and *.jsonl.gz file in the data directory is decoded
// concurrently. Files are applied in name order, so when a product id
// appears more than once the last occurrence wins.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-core/internal/catalog"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/product"
	"github.com/xenking/order-core/internal/storage/postgres"
)

const defaultBatchSize = 500

func main() {
	var (
		dataDir     string
		databaseURL string
		currency    string
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl and *.jsonl.gz catalogs")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&currency, "currency", money.DefaultCurrency, "currency for prices without one")
	flag.IntVar(&batchSize, "batch-size", defaultBatchSize, "products per upsert batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if batchSize < 1 {
		slog.Error("batch size must be positive", slog.Int("batch_size", batchSize))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, currency, batchSize); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL, currency string, batchSize int) error {
	files, err := findCatalogs(dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no catalogs found in %s", dataDir)
	}

	slog.Info("reading catalogs", slog.Int("files", len(files)))

	products, err := readCatalogs(ctx, files, currency)
	if err != nil {
		return errors.Wrap(err, "read catalogs")
	}

	products, dropped := catalog.Dedupe(products, catalog.DefaultFalsePositiveRate)
	slog.Info("catalogs decoded",
		slog.Int("products", len(products)),
		slog.Int("duplicates", dropped),
	)

	if len(products) == 0 {
		slog.Info("no products to write")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeProducts(ctx, postgres.NewStore(pool), products, batchSize); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// findCatalogs returns the catalog files in dir sorted by name.
func findCatalogs(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.jsonl", "*.jsonl.gz"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "glob %s", pattern)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// readCatalogs decodes files concurrently and concatenates the results in
// file order.
func readCatalogs(ctx context.Context, files []string, currency string) ([]product.Product, error) {
	results := make([][]product.Product, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			var out []product.Product
			if err := catalog.ScanFile(ctx, f, currency, func(p product.Product) error {
				out = append(out, p)
				return nil
			}); err != nil {
				return err
			}

			slog.Info("catalog read", slog.String("file", filepath.Base(f)), slog.Int("products", len(out)))

			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []product.Product
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// writeProducts upserts products in batches.
func writeProducts(ctx context.Context, store *postgres.Store, products []product.Product, batchSize int) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	for start := 0; start < len(products); start += batchSize {
		end := min(start+batchSize, len(products))
		if err := store.UpsertProducts(ctx, products[start:end]); err != nil {
			return errors.Wrapf(err, "upsert products %d-%d", start, end)
		}
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(products)))
	}

	return nil
}
