package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"fortuna/internal/audit"
	txcontext "fortuna/pkg/platform/tx"
)

// Store persists audit events in PostgreSQL. Append honors a transaction
// carried in context so the spin event can commit atomically with its coupon.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one audit event row.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var meta []byte
	if event.Meta != nil {
		var err error
		meta, err = json.Marshal(event.Meta)
		if err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
	}

	var ownerID *uuid.UUID
	if event.OwnerID != nil {
		oid := uuid.UUID(*event.OwnerID)
		ownerID = &oid
	}

	query := `
		INSERT INTO audit_events (id, owner_id, type, created_at, meta)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		ownerID,
		string(event.Type),
		event.CreatedAt,
		meta,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
