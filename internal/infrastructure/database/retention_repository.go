package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/retention"
)

// RetentionRepository persists retention policies. table_name carries a
// unique index; one rule per table.
type RetentionRepository struct {
	db *ConnectionPool
}

// NewRetentionRepository creates a new PostgreSQL retention repository
func NewRetentionRepository(db *ConnectionPool) *RetentionRepository {
	return &RetentionRepository{db: db}
}

const retentionColumns = `
	id, table_name, retention_days, action, condition_column, condition_value,
	is_active, last_run_at, last_run_count, created_at, updated_at`

// Create inserts a policy row.
func (r *RetentionRepository) Create(ctx context.Context, p *retention.Policy) error {
	_, err := r.db.DB(ctx).Exec(ctx, `
		INSERT INTO retention_policies (
			id, table_name, retention_days, action, condition_column,
			condition_value, is_active, last_run_at, last_run_count,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.TableName, p.RetentionDays, string(p.Action),
		nullable(p.ConditionColumn), nullable(p.ConditionValue),
		p.IsActive, p.LastRunAt, p.LastRunCount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflictError("a retention policy already exists for this table")
		}
		return errors.NewInternalError("failed to create retention policy").WithCause(err)
	}
	return nil
}

// Update rewrites the mutable columns.
func (r *RetentionRepository) Update(ctx context.Context, p *retention.Policy) error {
	tag, err := r.db.DB(ctx).Exec(ctx, `
		UPDATE retention_policies SET
			retention_days = $2, action = $3, condition_column = $4,
			condition_value = $5, is_active = $6, last_run_at = $7,
			last_run_count = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.RetentionDays, string(p.Action),
		nullable(p.ConditionColumn), nullable(p.ConditionValue),
		p.IsActive, p.LastRunAt, p.LastRunCount, p.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to update retention policy").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrPolicyNotFound
	}
	return nil
}

// GetByID loads one policy.
func (r *RetentionRepository) GetByID(ctx context.Context, id uuid.UUID) (*retention.Policy, error) {
	row := r.db.DB(ctx).QueryRow(ctx, `
		SELECT`+retentionColumns+`
		FROM retention_policies
		WHERE id = $1
	`, id)

	p, err := scanPolicy(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrPolicyNotFound
		}
		return nil, errors.NewInternalError("failed to get retention policy").WithCause(err)
	}
	return p, nil
}

// GetByTable loads the policy covering one table.
func (r *RetentionRepository) GetByTable(ctx context.Context, tableName string) (*retention.Policy, error) {
	row := r.db.DB(ctx).QueryRow(ctx, `
		SELECT`+retentionColumns+`
		FROM retention_policies
		WHERE table_name = $1
	`, tableName)

	p, err := scanPolicy(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrPolicyNotFound
		}
		return nil, errors.NewInternalError("failed to get retention policy").WithCause(err)
	}
	return p, nil
}

// ListActive returns enabled policies in table order, for the daily sweep.
func (r *RetentionRepository) ListActive(ctx context.Context) ([]*retention.Policy, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+retentionColumns+`
		FROM retention_policies
		WHERE is_active = TRUE
		ORDER BY table_name
	`)
	if err != nil {
		return nil, errors.NewInternalError("failed to query retention policies").WithCause(err)
	}
	defer rows.Close()

	return scanPolicies(rows)
}

// ListAll returns every policy, active or not.
func (r *RetentionRepository) ListAll(ctx context.Context) ([]*retention.Policy, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+retentionColumns+`
		FROM retention_policies
		ORDER BY table_name
	`)
	if err != nil {
		return nil, errors.NewInternalError("failed to query retention policies").WithCause(err)
	}
	defer rows.Close()

	return scanPolicies(rows)
}

func scanPolicy(row pgx.Row) (*retention.Policy, error) {
	var p retention.Policy
	var action string
	var condCol, condVal *string
	err := row.Scan(&p.ID, &p.TableName, &p.RetentionDays, &action,
		&condCol, &condVal, &p.IsActive, &p.LastRunAt, &p.LastRunCount,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Action = retention.Action(action)
	p.ConditionColumn = deref(condCol)
	p.ConditionValue = deref(condVal)
	return &p, nil
}

func scanPolicies(rows pgx.Rows) ([]*retention.Policy, error) {
	var out []*retention.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan retention policy").WithCause(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating retention policies").WithCause(err)
	}
	return out, nil
}
