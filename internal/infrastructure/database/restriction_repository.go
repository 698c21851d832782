package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/restriction"
)

// RestrictionRepository persists processing restrictions.
type RestrictionRepository struct {
	db *ConnectionPool
}

// NewRestrictionRepository creates a new PostgreSQL restriction repository
func NewRestrictionRepository(db *ConnectionPool) *RestrictionRepository {
	return &RestrictionRepository{db: db}
}

const restrictionColumns = `
	id, subject_email, reason, details, is_active, restricted_operations,
	restricted_tables, requested_at, expires_at, lifted_at, lifted_by,
	lift_reason, request_id, created_at, updated_at`

// Create inserts a restriction row.
func (r *RestrictionRepository) Create(ctx context.Context, res *restriction.Restriction) error {
	_, err := r.db.DB(ctx).Exec(ctx, `
		INSERT INTO processing_restrictions (
			id, subject_email, reason, details, is_active, restricted_operations,
			restricted_tables, requested_at, expires_at, lifted_at, lifted_by,
			lift_reason, request_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, res.ID, res.SubjectEmail.String(), string(res.Reason),
		nullable(res.Details), res.IsActive,
		pq.Array(res.RestrictedOperations), pq.Array(res.RestrictedTables),
		res.RequestedAt, res.ExpiresAt, res.LiftedAt,
		nullable(res.LiftedBy), nullable(res.LiftReason), res.RequestID,
		res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to create restriction").WithCause(err)
	}
	return nil
}

// Update rewrites the mutable columns.
func (r *RestrictionRepository) Update(ctx context.Context, res *restriction.Restriction) error {
	tag, err := r.db.DB(ctx).Exec(ctx, `
		UPDATE processing_restrictions SET
			is_active = $2, expires_at = $3, lifted_at = $4, lifted_by = $5,
			lift_reason = $6, updated_at = $7
		WHERE id = $1
	`, res.ID, res.IsActive, res.ExpiresAt, res.LiftedAt,
		nullable(res.LiftedBy), nullable(res.LiftReason), res.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to update restriction").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrRestrictionNotFound
	}
	return nil
}

// GetByID loads one restriction, locked for the ambient transaction.
func (r *RestrictionRepository) GetByID(ctx context.Context, id uuid.UUID) (*restriction.Restriction, error) {
	row := r.db.DB(ctx).QueryRow(ctx, `
		SELECT`+restrictionColumns+`
		FROM processing_restrictions
		WHERE id = $1
		FOR UPDATE
	`, id)

	res, err := scanRestriction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrRestrictionNotFound
		}
		return nil, errors.NewInternalError("failed to get restriction").WithCause(err)
	}
	return res, nil
}

// ListActiveBySubject returns the subject's active restrictions. Expiry is
// evaluated in SQL so a lapsed-but-unswept row never binds.
func (r *RestrictionRepository) ListActiveBySubject(ctx context.Context, email string) ([]*restriction.Restriction, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+restrictionColumns+`
		FROM processing_restrictions
		WHERE subject_email = lower($1)
		  AND is_active = TRUE
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY requested_at
	`, email)
	if err != nil {
		return nil, errors.NewInternalError("failed to query restrictions").WithCause(err)
	}
	defer rows.Close()

	return scanRestrictions(rows)
}

// ListBySubject returns all restrictions for a subject, active or not.
func (r *RestrictionRepository) ListBySubject(ctx context.Context, email string) ([]*restriction.Restriction, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+restrictionColumns+`
		FROM processing_restrictions
		WHERE subject_email = lower($1)
		ORDER BY requested_at DESC
	`, email)
	if err != nil {
		return nil, errors.NewInternalError("failed to query restrictions").WithCause(err)
	}
	defer rows.Close()

	return scanRestrictions(rows)
}

// HasActiveForSubject reports whether any active unexpired restriction exists.
func (r *RestrictionRepository) HasActiveForSubject(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.DB(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM processing_restrictions
			WHERE subject_email = lower($1)
			  AND is_active = TRUE
			  AND (expires_at IS NULL OR expires_at > now())
		)
	`, email).Scan(&exists)
	if err != nil {
		return false, errors.NewInternalError("failed to check restrictions").WithCause(err)
	}
	return exists, nil
}

// FindExpiredActive returns active rows whose expiry has passed, locked for
// the daily sweep.
func (r *RestrictionRepository) FindExpiredActive(ctx context.Context, now time.Time) ([]*restriction.Restriction, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+restrictionColumns+`
		FROM processing_restrictions
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
		FOR UPDATE SKIP LOCKED
	`, now)
	if err != nil {
		return nil, errors.NewInternalError("failed to query expired restrictions").WithCause(err)
	}
	defer rows.Close()

	return scanRestrictions(rows)
}

func scanRestriction(row pgx.Row) (*restriction.Restriction, error) {
	var res restriction.Restriction
	var email, reason string
	var details, liftedBy, liftReason *string
	err := row.Scan(&res.ID, &email, &reason, &details, &res.IsActive,
		pq.Array(&res.RestrictedOperations), pq.Array(&res.RestrictedTables),
		&res.RequestedAt, &res.ExpiresAt, &res.LiftedAt, &liftedBy,
		&liftReason, &res.RequestID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := res.SubjectEmail.Scan(email); err != nil {
		return nil, err
	}
	res.Reason = restriction.Reason(reason)
	res.Details = deref(details)
	res.LiftedBy = deref(liftedBy)
	res.LiftReason = deref(liftReason)
	return &res, nil
}

func scanRestrictions(rows pgx.Rows) ([]*restriction.Restriction, error) {
	var out []*restriction.Restriction
	for rows.Next() {
		res, err := scanRestriction(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan restriction").WithCause(err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating restrictions").WithCause(err)
	}
	return out, nil
}
