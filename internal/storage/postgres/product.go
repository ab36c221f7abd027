package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/product"
)

const (
	productColumns = `id, name, kind, price_amount, price_currency, weight_kg, dimensions, download_link`

	listProductsSQL   = `SELECT ` + productColumns + ` FROM products ORDER BY id`
	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	insertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	updateProductSQL = `UPDATE products
		SET name = $2, kind = $3, price_amount = $4, price_currency = $5,
			weight_kg = $6, dimensions = $7, download_link = $8
		WHERE id = $1`

	upsertProductSQL = insertProductSQL + `
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, kind = EXCLUDED.kind,
			price_amount = EXCLUDED.price_amount, price_currency = EXCLUDED.price_currency,
			weight_kg = EXCLUDED.weight_kg, dimensions = EXCLUDED.dimensions,
			download_link = EXCLUDED.download_link`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db      querier
	session *Session
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (product.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return product.Product{}, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.Product{}, domainerr.NotFound("product", id)
		}
		return product.Product{}, fmt.Errorf("getting product %q: %w", id, err)
	}
	return p, nil
}

// GetAll returns all products ordered by ID.
func (r *ProductRepository) GetAll(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Add stages an insert.
func (r *ProductRepository) Add(_ context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.session.stage("inserting product "+p.ID, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertProductSQL, productArgs(p)...)
		return err
	})
	return nil
}

// Update stages an update. A missing product fails SaveChanges with a
// NotFoundError.
func (r *ProductRepository) Update(_ context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.session.stage("updating product "+p.ID, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateProductSQL, productArgs(p)...)
		if err != nil {
			return err
		}
		return mustAffect(tag, "product", p.ID)
	})
	return nil
}

// Delete stages a delete.
func (r *ProductRepository) Delete(_ context.Context, p product.Product) error {
	id := p.ID
	r.session.stage("deleting product "+id, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteProductSQL, id)
		if err != nil {
			return err
		}
		return mustAffect(tag, "product", id)
	})
	return nil
}

// UpsertProducts inserts or replaces products in one batch, outside of any
// session. It is meant for bulk catalog loads.
func (s *Store) UpsertProducts(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("product %q: %w", p.ID, err)
		}
		batch.Queue(upsertProductSQL, productArgs(p)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for _, p := range products {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting product %q: %w", p.ID, err)
		}
	}
	return br.Close()
}

func productArgs(p product.Product) []any {
	return []any{
		p.ID, p.Name, string(p.Kind),
		p.Price.Amount(), p.Price.Currency(),
		p.WeightKg, p.Dimensions, p.DownloadLink,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		kind     string
		amount   decimal.Decimal
		currency string
	)
	if err := row.Scan(
		&p.ID, &p.Name, &kind, &amount, &currency,
		&p.WeightKg, &p.Dimensions, &p.DownloadLink,
	); err != nil {
		return product.Product{}, err
	}

	price, err := money.New(amount, currency)
	if err != nil {
		return product.Product{}, fmt.Errorf("product %q price: %w", p.ID, err)
	}
	p.Price = price
	p.Kind = product.Kind(kind)
	return p, nil
}
