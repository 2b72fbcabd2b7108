// Package postgres owns the database handle and the schema bootstrap.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
)

// Open connects a pooled database/sql handle over the pgx driver and verifies
// the connection before returning it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables this service owns. Idempotent; runs at
// startup so a fresh database is usable without a migration step.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id UUID PRIMARY KEY,
			external_id TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_spin_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS coupons (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL REFERENCES identities(id),
			discount_percent INT NOT NULL,
			code TEXT UNIQUE NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('active', 'used', 'expired')),
			used_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS coupons_owner_issued_idx ON coupons (owner_id, issued_at DESC)`,
		`CREATE TABLE IF NOT EXISTS admin_sessions (
			token TEXT PRIMARY KEY,
			device TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			owner_id UUID,
			type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			meta JSONB
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
