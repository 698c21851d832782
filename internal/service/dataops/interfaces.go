package dataops

import (
	"context"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// Service defines the data operator interface: the export, erasure and
// rectification machinery behind subject rights requests.
type Service interface {
	// Export writes the subject's data to one file under the export
	// directory and returns its location and row counts.
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)

	// Erase walks the schema map deleting or anonymizing the subject's
	// rows. Dry run reports counts without mutating.
	Erase(ctx context.Context, req EraseRequest) (*EraseResult, error)

	// Rectify rewrites whitelisted fields per table. A table with an
	// out-of-whitelist field fails alone; the rest proceed.
	Rectify(ctx context.Context, req RectifyRequest) (*RectifyResult, error)

	// RectifyEmail rewrites the identifier column across every table whose
	// whitelist covers it.
	RectifyEmail(ctx context.Context, req RectifyEmailRequest) (*RectifyResult, error)
}

// SubjectDataRepository is the dynamic-SQL dependency over the schema map
type SubjectDataRepository interface {
	CountRows(ctx context.Context, d schema.TableDescriptor, email string) (int64, error)
	SelectRows(ctx context.Context, d schema.TableDescriptor, email string) ([]string, []map[string]any, error)
	DeleteBySubject(ctx context.Context, d schema.TableDescriptor, email string) (int64, error)
	AnonymizeBySubject(ctx context.Context, d schema.TableDescriptor, email string) (int64, error)
	SelectFields(ctx context.Context, d schema.TableDescriptor, email string, fields []string) ([]map[string]any, error)
	RectifyFields(ctx context.Context, d schema.TableDescriptor, email string, fields map[string]any) (int64, error)
}

// RestrictionChecker consults the restriction manager before an operation
type RestrictionChecker interface {
	IsRestricted(ctx context.Context, email, op, table string) (bool, error)
}

// AuditRecorder appends compliance trail entries
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// Transactor runs fn inside one database transaction
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher fans data events out to webhook subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event webhook.Event, data interface{})
}

// ExportRequest carries one export
type ExportRequest struct {
	Email     string     `json:"email"`
	Format    string     `json:"format"`
	Requester string     `json:"requester"`
	RequestID *uuid.UUID `json:"request_id,omitempty"`
}

// ExportResult locates the produced file
type ExportResult struct {
	FilePath       string   `json:"file_path"`
	FileSize       int64    `json:"file_size"`
	TotalRecords   int64    `json:"total_records"`
	TablesExported []string `json:"tables_exported"`
}

// EraseRequest carries one erasure. FromErasureRequest marks an erasure
// driven by a DATA_ERASURE rights request, which no restriction may block.
type EraseRequest struct {
	Email              string     `json:"email"`
	DryRun             bool       `json:"dry_run"`
	Requester          string     `json:"requester"`
	RequestID          *uuid.UUID `json:"request_id,omitempty"`
	FromErasureRequest bool       `json:"-"`
}

// TableOutcome is the per-table result of an erasure
type TableOutcome struct {
	Count             int64    `json:"count"`
	Action            string   `json:"action"`
	ColumnsAnonymized []string `json:"columns_anonymized,omitempty"`
}

// EraseResult accumulates the per-table outcomes of one erasure
type EraseResult struct {
	TotalDeleted    int64                   `json:"total_deleted"`
	TotalAnonymized int64                   `json:"total_anonymized"`
	Tables          map[string]TableOutcome `json:"tables"`
	Errors          []string                `json:"errors,omitempty"`
	DryRun          bool                    `json:"dry_run"`
}

// RectifyRequest carries field rewrites grouped by table
type RectifyRequest struct {
	Email          string                    `json:"email"`
	Rectifications map[string]map[string]any `json:"rectifications"`
	DryRun         bool                      `json:"dry_run"`
	Requester      string                    `json:"requester"`
	RequestID      *uuid.UUID                `json:"request_id,omitempty"`
}

// RectifyEmailRequest rewrites the subject's identifier everywhere
type RectifyEmailRequest struct {
	OldEmail  string     `json:"old_email"`
	NewEmail  string     `json:"new_email"`
	Requester string     `json:"requester"`
	RequestID *uuid.UUID `json:"request_id,omitempty"`
}

// TableRectification is the per-table before/after record
type TableRectification struct {
	RowsUpdated int64            `json:"rows_updated"`
	OldValues   []map[string]any `json:"old_values"`
	NewValues   map[string]any   `json:"new_values"`
}

// RectifyResult accumulates the per-table outcomes of one rectification
type RectifyResult struct {
	Tables map[string]TableRectification `json:"tables"`
	Errors []string                      `json:"errors,omitempty"`
	DryRun bool                          `json:"dry_run"`
}
