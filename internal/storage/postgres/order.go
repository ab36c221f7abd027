package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/money"
	"github.com/xenking/order-core/internal/domain/order"
	"github.com/xenking/order-core/internal/domain/product"
)

const (
	orderColumns = `id, customer_id, status, currency, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	listOrdersSQL   = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at, id`

	itemColumns = `order_id, id, product_id, product_name, product_kind, weight_kg,
		dimensions, download_link, quantity, price_amount, price_currency`

	listItemsSQL = `SELECT ` + itemColumns + ` FROM order_items
		WHERE order_id = ANY($1) ORDER BY order_id, position`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5)`

	updateOrderSQL = `UPDATE orders SET customer_id = $2, status = $3, currency = $4
		WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	insertItemSQL = `INSERT INTO order_items (position, ` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// are stored in order_items with the product snapshot they were taken
// with.
type OrderRepository struct {
	db      querier
	session *Session
}

type orderRow struct {
	id         string
	customerID string
	status     string
	currency   string
	createdAt  time.Time
}

// GetByID returns a single order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, scanOrderRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainerr.NotFound("order", id)
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders, err := r.hydrate(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return orders[0], nil
}

// GetAll returns all orders ordered by creation time.
func (r *OrderRepository) GetAll(ctx context.Context) ([]*order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	headers, err := pgx.CollectRows(rows, scanOrderRow)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return r.hydrate(ctx, headers)
}

// hydrate loads items for headers and restores the aggregates.
func (r *OrderRepository) hydrate(ctx context.Context, headers []orderRow) ([]*order.Order, error) {
	if len(headers) == 0 {
		return nil, nil
	}

	ids := make([]string, len(headers))
	for i, h := range headers {
		ids[i] = h.id
	}

	rows, err := r.db.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	scanned, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("scanning order items: %w", err)
	}
	items := make(map[string][]order.Item, len(headers))
	for _, it := range scanned {
		items[it.orderID] = append(items[it.orderID], it.item)
	}

	out := make([]*order.Order, 0, len(headers))
	for _, h := range headers {
		o, err := order.Restore(order.Snapshot{
			ID:         h.id,
			CustomerID: h.customerID,
			Status:     order.Status(h.status),
			CreatedAt:  h.createdAt,
			Items:      items[h.id],
			Currency:   h.currency,
		})
		if err != nil {
			return nil, fmt.Errorf("restoring order %q: %w", h.id, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// Add stages an insert of the order and its items. The order is captured
// as it is now; later mutations need Update.
func (r *OrderRepository) Add(_ context.Context, o *order.Order) error {
	if o == nil {
		return domainerr.Validation("order", "must not be nil")
	}
	snap := o.Snapshot()
	r.session.stage("inserting order "+snap.ID, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertOrderSQL,
			snap.ID, snap.CustomerID, string(snap.Status), snap.Currency, snap.CreatedAt,
		); err != nil {
			return err
		}
		return insertItems(ctx, tx, snap)
	})
	return nil
}

// Update stages a replacement of the order header and items.
func (r *OrderRepository) Update(_ context.Context, o *order.Order) error {
	if o == nil {
		return domainerr.Validation("order", "must not be nil")
	}
	snap := o.Snapshot()
	r.session.stage("updating order "+snap.ID, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderSQL,
			snap.ID, snap.CustomerID, string(snap.Status), snap.Currency,
		)
		if err != nil {
			return err
		}
		if err := mustAffect(tag, "order", snap.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteItemsSQL, snap.ID); err != nil {
			return err
		}
		return insertItems(ctx, tx, snap)
	})
	return nil
}

// Delete stages a delete; items go with it.
func (r *OrderRepository) Delete(_ context.Context, o *order.Order) error {
	if o == nil {
		return domainerr.Validation("order", "must not be nil")
	}
	id := o.ID
	r.session.stage("deleting order "+id, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteOrderSQL, id)
		if err != nil {
			return err
		}
		return mustAffect(tag, "order", id)
	})
	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, snap order.Snapshot) error {
	for pos, it := range snap.Items {
		p := it.Product
		if _, err := tx.Exec(ctx, insertItemSQL,
			pos, snap.ID, it.ID, p.ID, p.Name, string(p.Kind), p.WeightKg,
			p.Dimensions, p.DownloadLink, it.Quantity,
			it.PriceAtPurchase.Amount(), it.PriceAtPurchase.Currency(),
		); err != nil {
			return fmt.Errorf("inserting item %q: %w", it.ID, err)
		}
	}
	return nil
}

func scanOrderRow(row pgx.CollectableRow) (orderRow, error) {
	var o orderRow
	err := row.Scan(&o.id, &o.customerID, &o.status, &o.currency, &o.createdAt)
	return o, err
}

type itemRow struct {
	orderID string
	item    order.Item
}

func scanItem(row pgx.CollectableRow) (itemRow, error) {
	var (
		r        itemRow
		p        product.Product
		kind     string
		amount   decimal.Decimal
		currency string
	)
	if err := row.Scan(
		&r.orderID, &r.item.ID, &p.ID, &p.Name, &kind, &p.WeightKg,
		&p.Dimensions, &p.DownloadLink, &r.item.Quantity, &amount, &currency,
	); err != nil {
		return itemRow{}, err
	}

	price, err := money.New(amount, currency)
	if err != nil {
		return itemRow{}, fmt.Errorf("item %q price: %w", r.item.ID, err)
	}
	p.Kind = product.Kind(kind)
	p.Price = price
	r.item.Product = p
	r.item.PriceAtPurchase = price
	return r, nil
}
