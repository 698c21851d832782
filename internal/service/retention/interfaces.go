package retention

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/retention"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// Service defines the retention scheduler interface
type Service interface {
	// CreatePolicy declares a retention rule for one table.
	CreatePolicy(ctx context.Context, req PolicyRequest) (*PolicyResponse, error)

	// UpdatePolicy rewrites an existing rule.
	UpdatePolicy(ctx context.Context, id uuid.UUID, req PolicyRequest) (*PolicyResponse, error)

	// DeactivatePolicy disables a rule, keeping its run history.
	DeactivatePolicy(ctx context.Context, id uuid.UUID, performedBy string) (*PolicyResponse, error)

	// ListPolicies returns every declared rule.
	ListPolicies(ctx context.Context) ([]*PolicyResponse, error)

	// RunCleanup sweeps active policies; a non-empty table narrows the sweep
	// to that table's policy. Dry run reports counts only.
	RunCleanup(ctx context.Context, table string, dryRun bool) (*CleanupResult, error)
}

// RetentionRepository is the policy persistence dependency
type RetentionRepository interface {
	Create(ctx context.Context, p *retention.Policy) error
	Update(ctx context.Context, p *retention.Policy) error
	GetByID(ctx context.Context, id uuid.UUID) (*retention.Policy, error)
	ListActive(ctx context.Context) ([]*retention.Policy, error)
	ListAll(ctx context.Context) ([]*retention.Policy, error)
}

// SweepRepository executes a policy against its table
type SweepRepository interface {
	CountExpired(ctx context.Context, p *retention.Policy) (int64, error)
	DeleteExpired(ctx context.Context, p *retention.Policy) (int64, error)
	AnonymizeExpired(ctx context.Context, p *retention.Policy, d schema.TableDescriptor) (int64, error)
	ArchiveExpired(ctx context.Context, p *retention.Policy) (int64, error)
}

// AuditRecorder appends compliance trail entries
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// Transactor runs fn inside one database transaction
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher fans retention events out to webhook subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event webhook.Event, data interface{})
}

// PolicyRequest declares or rewrites one retention rule
type PolicyRequest struct {
	TableName       string `json:"table_name"`
	RetentionDays   int    `json:"retention_days"`
	Action          string `json:"action"`
	ConditionColumn string `json:"condition_column,omitempty"`
	ConditionValue  string `json:"condition_value,omitempty"`
	PerformedBy     string `json:"performed_by"`
}

// PolicyResponse is the wire view of one policy
type PolicyResponse struct {
	ID              uuid.UUID  `json:"id"`
	TableName       string     `json:"table_name"`
	RetentionDays   int        `json:"retention_days"`
	Action          string     `json:"action"`
	ConditionColumn string     `json:"condition_column,omitempty"`
	ConditionValue  string     `json:"condition_value,omitempty"`
	IsActive        bool       `json:"is_active"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastRunCount    int        `json:"last_run_count"`
}

// TableCleanup is the per-policy outcome of one sweep
type TableCleanup struct {
	Table  string `json:"table"`
	Action string `json:"action"`
	Count  int64  `json:"count"`
	Error  string `json:"error,omitempty"`
}

// CleanupResult accumulates one full sweep
type CleanupResult struct {
	TotalAffected int64          `json:"total_affected"`
	Tables        []TableCleanup `json:"tables"`
	DryRun        bool           `json:"dry_run"`
}

func toResponse(p *retention.Policy) *PolicyResponse {
	return &PolicyResponse{
		ID:              p.ID,
		TableName:       p.TableName,
		RetentionDays:   p.RetentionDays,
		Action:          string(p.Action),
		ConditionColumn: p.ConditionColumn,
		ConditionValue:  p.ConditionValue,
		IsActive:        p.IsActive,
		LastRunAt:       p.LastRunAt,
		LastRunCount:    p.LastRunCount,
	}
}
