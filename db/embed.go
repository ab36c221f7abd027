// Package db embeds the PostgreSQL schema of the order store.
package db

import _ "embed"

// Schema creates the products, orders and order_items tables. Every
// statement is idempotent, so it can run on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
