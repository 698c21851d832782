package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
)

// AuditRepository persists the compliance trail. The table is append-only:
// this type exposes no UPDATE or DELETE statement, and none may be added.
type AuditRepository struct {
	db *ConnectionPool
}

// NewAuditRepository creates a new PostgreSQL audit repository
func NewAuditRepository(db *ConnectionPool) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `
	id, action, subject_email, affected_tables, affected_count,
	performed_by, ip_address, user_agent, request_id, details, created_at`

// Record appends one entry. Callers run it inside the same transaction as the
// mutation the entry describes so the two commit together.
func (r *AuditRepository) Record(ctx context.Context, e *audit.Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return errors.NewInternalError("failed to marshal audit details").WithCause(err)
	}

	_, err = r.db.DB(ctx).Exec(ctx, `
		INSERT INTO audit_entries (
			id, action, subject_email, affected_tables, affected_count,
			performed_by, ip_address, user_agent, request_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, string(e.Action), nullable(e.SubjectEmail),
		pq.Array(e.AffectedTables), e.AffectedCount, e.PerformedBy,
		nullable(e.IPAddress), nullable(e.UserAgent), e.RequestID,
		details, e.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to record audit entry").WithCause(err)
	}
	return nil
}

// GetByID loads one entry.
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Entry, error) {
	row := r.db.DB(ctx).QueryRow(ctx, `
		SELECT`+auditColumns+`
		FROM audit_entries
		WHERE id = $1
	`, id)

	e, err := scanAuditEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewNotFoundError("audit entry")
		}
		return nil, errors.NewInternalError("failed to get audit entry").WithCause(err)
	}
	return e, nil
}

// AuditFilter narrows Query. Zero values mean "no filter".
type AuditFilter struct {
	SubjectEmail string
	Action       audit.Action
	RequestID    *uuid.UUID
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

// Query returns entries matching the filter, newest first.
func (r *AuditRepository) Query(ctx context.Context, filter AuditFilter) ([]*audit.Entry, error) {
	query := `SELECT` + auditColumns + ` FROM audit_entries WHERE 1=1`
	args := []any{}

	if filter.SubjectEmail != "" {
		args = append(args, filter.SubjectEmail)
		query += fmt.Sprintf(" AND subject_email = lower($%d)", len(args))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.RequestID != nil {
		args = append(args, *filter.RequestID)
		query += fmt.Sprintf(" AND request_id = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.DB(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternalError("failed to query audit entries").WithCause(err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan audit entry").WithCause(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating audit entries").WithCause(err)
	}
	return out, nil
}

// ListBySubject returns the full trail for one subject, oldest first, for
// inclusion in data exports.
func (r *AuditRepository) ListBySubject(ctx context.Context, email string) ([]*audit.Entry, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+auditColumns+`
		FROM audit_entries
		WHERE subject_email = lower($1)
		ORDER BY created_at
	`, email)
	if err != nil {
		return nil, errors.NewInternalError("failed to query audit entries").WithCause(err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan audit entry").WithCause(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating audit entries").WithCause(err)
	}
	return out, nil
}

func scanAuditEntry(row pgx.Row) (*audit.Entry, error) {
	var e audit.Entry
	var action string
	var email, ip, ua *string
	var details []byte
	err := row.Scan(&e.ID, &action, &email, pq.Array(&e.AffectedTables),
		&e.AffectedCount, &e.PerformedBy, &ip, &ua, &e.RequestID,
		&details, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Action = audit.Action(action)
	e.SubjectEmail = deref(email)
	e.IPAddress = deref(ip)
	e.UserAgent = deref(ua)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
