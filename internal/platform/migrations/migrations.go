// Package migrations holds the database schema as ordered, idempotent
// statements applied at startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// Statements is the ordered schema definition. Each statement is idempotent
// so Apply can run on every startup.
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS domains (
		full_domain     TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		suffix          TEXT NOT NULL,
		owner           TEXT NOT NULL,
		registered_at   TIMESTAMPTZ NOT NULL,
		expires_at      TIMESTAMPTZ NOT NULL,
		years_purchased INTEGER NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_domains_owner ON domains (owner)`,
	`CREATE INDEX IF NOT EXISTS idx_domains_expires_at ON domains (expires_at)`,
	`CREATE TABLE IF NOT EXISTS suffix_prices (
		suffix     TEXT PRIMARY KEY,
		per_year   NUMERIC(78,0) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS treasury_accounts (
		full_domain TEXT PRIMARY KEY,
		balance     NUMERIC(78,0) NOT NULL,
		fee_bps     INTEGER NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fractions (
		full_domain     TEXT PRIMARY KEY,
		token_id        TEXT NOT NULL,
		domain_owner    TEXT NOT NULL,
		unlock_time     TIMESTAMPTZ NOT NULL,
		status          TEXT NOT NULL,
		unlocked        BOOLEAN NOT NULL,
		price_per_share NUMERIC(78,0) NOT NULL,
		public_sold     NUMERIC(78,0) NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS share_balances (
		full_domain TEXT NOT NULL,
		holder      TEXT NOT NULL,
		balance     NUMERIC(78,0) NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (full_domain, holder)
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_fallback (
		id    INTEGER PRIMARY KEY CHECK (id = 1),
		rate  NUMERIC(38,18) NOT NULL,
		as_of TIMESTAMPTZ NOT NULL
	)`,
}

// Apply runs every migration statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range Statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
