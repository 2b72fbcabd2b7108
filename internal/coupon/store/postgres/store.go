package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"fortuna/internal/audit"
	"fortuna/internal/coupon"
	identitypostgres "fortuna/internal/identity/store/postgres"
	"fortuna/pkg/domain"
	"fortuna/pkg/platform/sentinel"
	txcontext "fortuna/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Store persists coupons in PostgreSQL.
type Store struct {
	db         *sql.DB
	identities *identitypostgres.Store
	audit      audit.Store
}

// New creates a PostgreSQL coupon store. The identity and audit stores are
// enlisted into IssueWithSpin's transaction via context.
func New(db *sql.DB, identities *identitypostgres.Store, auditStore audit.Store) *Store {
	return &Store{db: db, identities: identities, audit: auditStore}
}

// IssueWithSpin runs the whole spin commit in one transaction. The code
// uniqueness constraint is enforced by the insert itself, so a race between a
// collision check and the insert still surfaces as sentinel.ErrConflict here
// rather than silently minting a duplicate.
func (s *Store) IssueWithSpin(ctx context.Context, c *coupon.Coupon, prevSpinAt *time.Time, event audit.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin spin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txCtx := txcontext.WithTx(ctx, tx)

	insert := `
		INSERT INTO coupons (id, owner_id, discount_percent, code, issued_at, expires_at, status, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.ExecContext(txCtx, insert,
		uuid.UUID(c.ID),
		uuid.UUID(c.OwnerID),
		c.DiscountPercent,
		c.Code,
		c.IssuedAt,
		c.ExpiresAt,
		string(c.Status),
		c.UsedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("coupon code taken: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert coupon: %w", err)
	}

	if err := s.identities.AdvanceLastSpin(txCtx, c.OwnerID, prevSpinAt, c.IssuedAt); err != nil {
		return err
	}
	if err := s.audit.Append(txCtx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit spin tx: %w", err)
	}
	return nil
}

const couponColumns = `id, owner_id, discount_percent, code, issued_at, expires_at, status, used_at`

func (s *Store) FindByID(ctx context.Context, id domain.CouponID) (*coupon.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	return scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
}

func (s *Store) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	return scanOne(s.db.QueryRowContext(ctx, query, code))
}

func (s *Store) ListActiveByOwner(ctx context.Context, ownerID domain.IdentityID) ([]coupon.Coupon, error) {
	query := `
		SELECT ` + couponColumns + `
		FROM coupons
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY issued_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	var out []coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}
	return out, nil
}

func (s *Store) ListAll(ctx context.Context) ([]coupon.OwnedCoupon, error) {
	query := `
		SELECT c.id, c.owner_id, c.discount_percent, c.code, c.issued_at, c.expires_at, c.status, c.used_at,
		       i.external_id
		FROM coupons c
		JOIN identities i ON i.id = c.owner_id
		ORDER BY c.issued_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	var out []coupon.OwnedCoupon
	for rows.Next() {
		var (
			c          coupon.Coupon
			id, owner  uuid.UUID
			status     string
			usedAt     sql.NullTime
			externalID string
		)
		err := rows.Scan(&id, &owner, &c.DiscountPercent, &c.Code, &c.IssuedAt, &c.ExpiresAt, &status, &usedAt, &externalID)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		c.ID = domain.CouponID(id)
		c.OwnerID = domain.IdentityID(owner)
		c.Status = coupon.Status(status)
		if usedAt.Valid {
			t := usedAt.Time
			c.UsedAt = &t
		}
		out = append(out, coupon.OwnedCoupon{Coupon: c, OwnerExternalID: externalID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}
	return out, nil
}

// MarkUsed is a single conditional update: only an active coupon transitions,
// so two concurrent redemptions cannot both report success.
func (s *Store) MarkUsed(ctx context.Context, id domain.CouponID, usedAt time.Time) error {
	query := `
		UPDATE coupons
		SET status = 'used', used_at = $1
		WHERE id = $2 AND status = 'active'
	`
	res, err := s.db.ExecContext(ctx, query, usedAt, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("mark coupon used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark coupon used: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("coupon already closed: %w", sentinel.ErrInvalidState)
}

func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE coupons
		SET status = 'expired'
		WHERE status = 'active' AND expires_at < $1
	`
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire coupons: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire coupons: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (*coupon.Coupon, error) {
	var (
		c         coupon.Coupon
		id, owner uuid.UUID
		status    string
		usedAt    sql.NullTime
	)
	err := row.Scan(&id, &owner, &c.DiscountPercent, &c.Code, &c.IssuedAt, &c.ExpiresAt, &status, &usedAt)
	if err != nil {
		return nil, err
	}
	c.ID = domain.CouponID(id)
	c.OwnerID = domain.IdentityID(owner)
	c.Status = coupon.Status(status)
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}

func scanOne(row *sql.Row) (*coupon.Coupon, error) {
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("coupon not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	return c, nil
}
