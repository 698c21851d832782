package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/request"
	requestsvc "github.com/dataguard/gdpr-engine/internal/service/request"
)

// RequestRepository persists subject rights requests. A partial unique index
// on (subject_email, type) WHERE status IN ('PENDING','IN_PROGRESS') backs
// the open-request dedup check under concurrency.
type RequestRepository struct {
	db *ConnectionPool
}

// NewRequestRepository creates a new PostgreSQL request repository
func NewRequestRepository(db *ConnectionPool) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, subject_email, type, status, created_at, deadline_at, completed_at,
	processed_by, rejection_reason, result_file_url, result_file_size,
	ip_address, user_agent, updated_at`

// Create inserts a new request row.
func (r *RequestRepository) Create(ctx context.Context, req *request.Request) error {
	_, err := r.db.DB(ctx).Exec(ctx, `
		INSERT INTO gdpr_requests (
			id, subject_email, type, status, created_at, deadline_at, completed_at,
			processed_by, rejection_reason, result_file_url, result_file_size,
			ip_address, user_agent, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, req.ID, req.SubjectEmail.String(), string(req.Type), string(req.Status),
		req.CreatedAt, req.DeadlineAt, req.CompletedAt,
		nullable(req.ProcessedBy), nullable(req.RejectionReason),
		nullable(req.ResultFileURL), req.ResultFileSize,
		nullable(req.IPAddress), nullable(req.UserAgent), req.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrDuplicateRequest
		}
		return errors.NewInternalError("failed to create request").WithCause(err)
	}
	return nil
}

// Update rewrites the mutable columns. DeadlineAt is deliberately absent: the
// statutory deadline never moves after creation.
func (r *RequestRepository) Update(ctx context.Context, req *request.Request) error {
	tag, err := r.db.DB(ctx).Exec(ctx, `
		UPDATE gdpr_requests SET
			status = $2, completed_at = $3, processed_by = $4,
			rejection_reason = $5, result_file_url = $6, result_file_size = $7,
			updated_at = $8
		WHERE id = $1
	`, req.ID, string(req.Status), req.CompletedAt,
		nullable(req.ProcessedBy), nullable(req.RejectionReason),
		nullable(req.ResultFileURL), req.ResultFileSize, req.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to update request").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrRequestNotFound
	}
	return nil
}

// GetByID loads one request, locked for the ambient transaction.
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*request.Request, error) {
	row := r.db.DB(ctx).QueryRow(ctx, `
		SELECT`+requestColumns+`
		FROM gdpr_requests
		WHERE id = $1
		FOR UPDATE
	`, id)

	req, err := scanRequest(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrRequestNotFound
		}
		return nil, errors.NewInternalError("failed to get request").WithCause(err)
	}
	return req, nil
}

// HasOpenRequest reports whether a PENDING or IN_PROGRESS request already
// exists for the pair.
func (r *RequestRepository) HasOpenRequest(ctx context.Context, email string, requestType request.Type) (bool, error) {
	var exists bool
	err := r.db.DB(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM gdpr_requests
			WHERE subject_email = lower($1) AND type = $2
			  AND status IN ($3, $4)
		)
	`, email, string(requestType),
		string(request.StatusPending), string(request.StatusInProgress)).Scan(&exists)
	if err != nil {
		return false, errors.NewInternalError("failed to check open requests").WithCause(err)
	}
	return exists, nil
}

// ListFilter narrows List. Zero values mean "no filter".
type ListFilter = requestsvc.RepoFilter

// List returns requests matching the filter, newest first.
func (r *RequestRepository) List(ctx context.Context, filter ListFilter) ([]*request.Request, error) {
	query := `SELECT` + requestColumns + ` FROM gdpr_requests WHERE 1=1`
	args := []any{}

	if filter.SubjectEmail != "" {
		args = append(args, filter.SubjectEmail)
		query += fmt.Sprintf(" AND subject_email = lower($%d)", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.OverdueOnly {
		args = append(args, time.Now().UTC(),
			string(request.StatusPending), string(request.StatusInProgress))
		query += fmt.Sprintf(" AND deadline_at < $%d AND status IN ($%d, $%d)",
			len(args)-2, len(args)-1, len(args))
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
		return nil, errors.NewInternalError("failed to query requests").WithCause(err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// FindOverdue returns open requests past their deadline, oldest deadline first.
func (r *RequestRepository) FindOverdue(ctx context.Context, now time.Time) ([]*request.Request, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+requestColumns+`
		FROM gdpr_requests
		WHERE deadline_at < $1 AND status IN ($2, $3)
		ORDER BY deadline_at
	`, now, string(request.StatusPending), string(request.StatusInProgress))
	if err != nil {
		return nil, errors.NewInternalError("failed to query overdue requests").WithCause(err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// CountByStatus returns the number of requests per status.
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[request.Status]int, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM gdpr_requests GROUP BY status`)
	if err != nil {
		return nil, errors.NewInternalError("failed to count requests").WithCause(err)
	}
	defer rows.Close()

	counts := make(map[request.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.NewInternalError("failed to scan request count").WithCause(err)
		}
		counts[request.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating request counts").WithCause(err)
	}
	return counts, nil
}

func scanRequest(row pgx.Row) (*request.Request, error) {
	var req request.Request
	var email, reqType, status string
	var processedBy, reason, fileURL, ip, ua *string
	err := row.Scan(&req.ID, &email, &reqType, &status, &req.CreatedAt,
		&req.DeadlineAt, &req.CompletedAt, &processedBy, &reason, &fileURL,
		&req.ResultFileSize, &ip, &ua, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := req.SubjectEmail.Scan(email); err != nil {
		return nil, err
	}
	req.Type = request.Type(reqType)
	req.Status = request.Status(status)
	req.ProcessedBy = deref(processedBy)
	req.RejectionReason = deref(reason)
	req.ResultFileURL = deref(fileURL)
	req.IPAddress = deref(ip)
	req.UserAgent = deref(ua)
	return &req, nil
}

func scanRequests(rows pgx.Rows) ([]*request.Request, error) {
	var out []*request.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan request").WithCause(err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating requests").WithCause(err)
	}
	return out, nil
}
