package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"fortuna/internal/identity"
	"fortuna/pkg/domain"
	"fortuna/pkg/platform/sentinel"
	txcontext "fortuna/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Store persists identities in PostgreSQL. Writes honor a transaction carried
// in context so AdvanceLastSpin can join the coupon issuance unit.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL identity store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) handle(ctx context.Context) dbHandle {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Create(ctx context.Context, ident *identity.Identity) error {
	query := `
		INSERT INTO identities (id, external_id, created_at, last_spin_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.handle(ctx).ExecContext(ctx, query,
		uuid.UUID(ident.ID),
		ident.ExternalID,
		ident.CreatedAt,
		ident.LastSpinAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("external id already bound: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id domain.IdentityID) (*identity.Identity, error) {
	query := `
		SELECT id, external_id, created_at, last_spin_at
		FROM identities
		WHERE id = $1
	`
	return s.scanOne(s.handle(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*identity.Identity, error) {
	query := `
		SELECT id, external_id, created_at, last_spin_at
		FROM identities
		WHERE external_id = $1
	`
	return s.scanOne(s.handle(ctx).QueryRowContext(ctx, query, externalID))
}

// AdvanceLastSpin performs the conditional cooldown advance. The WHERE clause
// re-checks the timestamp at write time; zero rows affected on an existing
// identity means another spin committed in between.
func (s *Store) AdvanceLastSpin(ctx context.Context, id domain.IdentityID, prev *time.Time, spunAt time.Time) error {
	query := `
		UPDATE identities
		SET last_spin_at = $1
		WHERE id = $2 AND last_spin_at IS NOT DISTINCT FROM $3
	`
	res, err := s.handle(ctx).ExecContext(ctx, query, spunAt, uuid.UUID(id), prev)
	if err != nil {
		return fmt.Errorf("advance last spin: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance last spin: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("last spin moved concurrently: %w", sentinel.ErrInvalidState)
}

func (s *Store) scanOne(row *sql.Row) (*identity.Identity, error) {
	var (
		ident      identity.Identity
		id         uuid.UUID
		lastSpinAt sql.NullTime
	)
	err := row.Scan(&id, &ident.ExternalID, &ident.CreatedAt, &lastSpinAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	ident.ID = domain.IdentityID(id)
	if lastSpinAt.Valid {
		t := lastSpinAt.Time
		ident.LastSpinAt = &t
	}
	return &ident, nil
}
