// Package db provides the embedded database schema.
package db

import _ "embed"

// Schema contains the DDL for all storefront tables: brands (with ledger
// columns), products and size stock, orders with the unique payment_ref
// idempotency marker, order items, daily stats, and notifications.
//
//go:embed migrations/001_schema.sql
var Schema string
