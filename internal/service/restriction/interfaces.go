package restriction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/restriction"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// Service defines the processing-restriction service interface
type Service interface {
	// Create places an Art. 18 hold for a subject.
	Create(ctx context.Context, req CreateRequest) (*Response, error)

	// Lift deactivates a restriction, recording who and why.
	Lift(ctx context.Context, id uuid.UUID, req LiftRequest) (*Response, error)

	// Check reports whether op on table is blocked for the subject. Empty
	// op or table means "any".
	Check(ctx context.Context, email, op, table string) (*CheckResult, error)

	// List returns the subject's restrictions, active first.
	List(ctx context.Context, email string) ([]*Response, error)

	// ExpireRestrictions sweeps active rows past their expiry. Returns the
	// number deactivated.
	ExpireRestrictions(ctx context.Context) (int, error)
}

// RestrictionRepository is the persistence dependency
type RestrictionRepository interface {
	Create(ctx context.Context, r *restriction.Restriction) error
	Update(ctx context.Context, r *restriction.Restriction) error
	GetByID(ctx context.Context, id uuid.UUID) (*restriction.Restriction, error)
	ListBySubject(ctx context.Context, email string) ([]*restriction.Restriction, error)
	ListActiveBySubject(ctx context.Context, email string) ([]*restriction.Restriction, error)
	HasActiveForSubject(ctx context.Context, email string) (bool, error)
	FindExpiredActive(ctx context.Context, now time.Time) ([]*restriction.Restriction, error)
}

// AuditRecorder appends compliance trail entries
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// Transactor runs fn inside one database transaction
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher fans restriction events out to webhook subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event webhook.Event, data interface{})
}

// CreateRequest carries one new restriction
type CreateRequest struct {
	Email         string     `json:"email"`
	Reason        string     `json:"reason"`
	Details       string     `json:"details,omitempty"`
	Operations    []string   `json:"operations,omitempty"`
	Tables        []string   `json:"tables,omitempty"`
	ExpiresInDays *int       `json:"expires_in_days,omitempty"`
	RequestID     *uuid.UUID `json:"request_id,omitempty"`
	PerformedBy   string     `json:"performed_by,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
}

// LiftRequest carries the actor and reason for lifting a restriction
type LiftRequest struct {
	LiftedBy   string `json:"lifted_by"`
	LiftReason string `json:"lift_reason,omitempty"`
}

// Response is the wire view of one restriction
type Response struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Reason      string     `json:"reason"`
	Details     string     `json:"details,omitempty"`
	IsActive    bool       `json:"is_active"`
	Operations  []string   `json:"operations"`
	Tables      []string   `json:"tables"`
	RequestedAt time.Time  `json:"requested_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LiftedAt    *time.Time `json:"lifted_at,omitempty"`
	LiftedBy    string     `json:"lifted_by,omitempty"`
	LiftReason  string     `json:"lift_reason,omitempty"`
}

// CheckResult is the outcome of a restriction check
type CheckResult struct {
	Restricted bool       `json:"restricted"`
	Matched    []Response `json:"matched,omitempty"`
}

func toResponse(r *restriction.Restriction) *Response {
	return &Response{
		ID:          r.ID,
		Email:       r.SubjectEmail.String(),
		Reason:      string(r.Reason),
		Details:     r.Details,
		IsActive:    r.IsActive,
		Operations:  r.RestrictedOperations,
		Tables:      r.RestrictedTables,
		RequestedAt: r.RequestedAt,
		ExpiresAt:   r.ExpiresAt,
		LiftedAt:    r.LiftedAt,
		LiftedBy:    r.LiftedBy,
		LiftReason:  r.LiftReason,
	}
}
