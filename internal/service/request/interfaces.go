package request

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/request"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// Service defines the subject rights request engine interface
type Service interface {
	// Create opens a request, refusing while a non-terminal request of the
	// same (email, type) exists.
	Create(ctx context.Context, req CreateRequest) (*Response, error)

	// Process moves the request to IN_PROGRESS and routes it to the data
	// operator. A processing failure reverts the request to PENDING.
	Process(ctx context.Context, id uuid.UUID, req ProcessRequest) (*ProcessResult, error)

	// Complete closes an IN_PROGRESS request whose action ran through the
	// dedicated rectify or restrict operation.
	Complete(ctx context.Context, id uuid.UUID, performedBy string) (*Response, error)

	// Reject closes the request with a mandatory reason.
	Reject(ctx context.Context, id uuid.UUID, reason, performedBy string) (*Response, error)

	// Cancel is the subject withdrawing a still-pending request.
	Cancel(ctx context.Context, id uuid.UUID) (*Response, error)

	// Get returns one request with its deadline arithmetic.
	Get(ctx context.Context, id uuid.UUID) (*Response, error)

	// List returns requests matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Response, error)

	// Overdue enumerates open requests past their statutory deadline.
	Overdue(ctx context.Context) ([]*Response, error)
}

// ListFilter narrows List. Zero values mean "no filter".
type ListFilter struct {
	Email       string
	Status      string
	Type        string
	OverdueOnly bool
	Limit       int
	Offset      int
}

// RequestRepository is the persistence dependency
type RequestRepository interface {
	Create(ctx context.Context, r *request.Request) error
	Update(ctx context.Context, r *request.Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*request.Request, error)
	HasOpenRequest(ctx context.Context, email string, requestType request.Type) (bool, error)
	List(ctx context.Context, filter RepoFilter) ([]*request.Request, error)
	FindOverdue(ctx context.Context, now time.Time) ([]*request.Request, error)
}

// RepoFilter is the repository-level filter shape
type RepoFilter struct {
	SubjectEmail string
	Status       request.Status
	Type         request.Type
	OverdueOnly  bool
	Limit        int
	Offset       int
}

// DataOperator runs the data work behind export and erasure requests
type DataOperator interface {
	ExportFor(ctx context.Context, email string, requestID uuid.UUID, requester string) (fileURL string, fileSize int64, err error)
	EraseFor(ctx context.Context, email string, requestID uuid.UUID, requester string) (affected int64, err error)
}

// Notifier sends subject-facing lifecycle mail. Implementations swallow
// delivery failures; the request lifecycle never blocks on SMTP.
type Notifier interface {
	NotifyRequestCreated(ctx context.Context, r *request.Request)
	NotifyRequestCompleted(ctx context.Context, r *request.Request)
	NotifyRequestRejected(ctx context.Context, r *request.Request)
}

// AuditRecorder appends compliance trail entries
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// Transactor runs fn inside one database transaction
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher fans request events out to webhook subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event webhook.Event, data interface{})
}

// CreateRequest opens one subject rights request
type CreateRequest struct {
	Email     string `json:"email"`
	Type      string `json:"type"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ProcessRequest carries the operator context of a processing run
type ProcessRequest struct {
	PerformedBy string `json:"performed_by"`
	IPAddress   string `json:"ip_address,omitempty"`
}

// Response is the wire view of one request
type Response struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	DeadlineAt      time.Time  `json:"deadline_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ProcessedBy     string     `json:"processed_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ResultFileURL   string     `json:"result_file_url,omitempty"`
	ResultFileSize  int64      `json:"result_file_size,omitempty"`
	DaysRemaining   int        `json:"days_remaining"`
	IsOverdue       bool       `json:"is_overdue"`
	DaysOverdue     int        `json:"days_overdue,omitempty"`
}

// ProcessResult reports one processing run. A failed run carries Error and
// leaves the request back in PENDING.
type ProcessResult struct {
	Request *Response `json:"request"`
	Error   string    `json:"error,omitempty"`
}

func toResponse(r *request.Request) *Response {
	return &Response{
		ID:              r.ID,
		Email:           r.SubjectEmail.String(),
		Type:            string(r.Type),
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		DeadlineAt:      r.DeadlineAt,
		CompletedAt:     r.CompletedAt,
		ProcessedBy:     r.ProcessedBy,
		RejectionReason: r.RejectionReason,
		ResultFileURL:   r.ResultFileURL,
		ResultFileSize:  r.ResultFileSize,
		DaysRemaining:   r.DaysRemaining(),
		IsOverdue:       r.IsOverdue(),
		DaysOverdue:     r.DaysOverdue(),
	}
}
