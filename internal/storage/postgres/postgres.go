// Package postgres implements the product and order repositories on
// PostgreSQL. Writes are staged per session and committed in a single
// transaction by SaveChanges.
package postgres

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-core/db"
	"github.com/xenking/order-core/internal/domain/domainerr"
	"github.com/xenking/order-core/internal/domain/repo"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store hands out sessions over a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store using pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Session returns a new unit of work. Reads go to the committed state;
// writes are staged until SaveChanges.
//
// A Session is not safe for concurrent use.
func (s *Store) Session() *Session {
	sess := &Session{pool: s.pool}
	sess.products = &ProductRepository{db: s.pool, session: sess}
	sess.orders = &OrderRepository{db: s.pool, session: sess}
	return sess
}

type stagedWrite struct {
	desc string
	exec func(ctx context.Context, tx pgx.Tx) error
}

// Session is the unit of work of a single workflow invocation.
type Session struct {
	pool     *pgxpool.Pool
	staged   []stagedWrite
	products *ProductRepository
	orders   *OrderRepository
}

var _ repo.UnitOfWork = (*Session)(nil)

// Products returns the session's product repository.
func (s *Session) Products() *ProductRepository { return s.products }

// Orders returns the session's order repository.
func (s *Session) Orders() *OrderRepository { return s.orders }

// Pending returns the number of staged writes.
func (s *Session) Pending() int { return len(s.staged) }

func (s *Session) stage(desc string, exec func(ctx context.Context, tx pgx.Tx) error) {
	s.staged = append(s.staged, stagedWrite{desc: desc, exec: exec})
}

// SaveChanges runs every staged write, in staging order, inside one
// transaction. On error the transaction is rolled back and the staged
// writes are kept.
func (s *Session) SaveChanges(ctx context.Context) (int, error) {
	if len(s.staged) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, w := range s.staged {
		if err := w.exec(ctx, tx); err != nil {
			return 0, fmt.Errorf("%s: %w", w.desc, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	n := len(s.staged)
	s.staged = nil
	return n, nil
}

// Discard drops every staged write.
func (s *Session) Discard() { s.staged = nil }

func mustAffect(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return domainerr.NotFound(entity, id)
	}
	return nil
}
