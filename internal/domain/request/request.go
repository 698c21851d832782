package request

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
)

// DeadlineDays is the statutory response budget (Art. 12(3)). The deadline
// is fixed at creation and never extended.
const DeadlineDays = 30

// Type represents a data-subject rights request category (Art. 15-20)
type Type string

const (
	TypeDataExport            Type = "DATA_EXPORT"
	TypeDataErasure           Type = "DATA_ERASURE"
	TypeDataAccess            Type = "DATA_ACCESS"
	TypeDataRectification     Type = "DATA_RECTIFICATION"
	TypeProcessingRestriction Type = "PROCESSING_RESTRICTION"
	TypeDataPortability       Type = "DATA_PORTABILITY"
)

// String returns the string representation of the request type
func (t Type) String() string { return string(t) }

// ParseType parses a wire string into a request Type
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeDataExport, TypeDataErasure, TypeDataAccess,
		TypeDataRectification, TypeProcessingRestriction, TypeDataPortability:
		return Type(s), nil
	default:
		return "", errors.NewValidationError("INVALID_REQUEST_TYPE", fmt.Sprintf("invalid request type: %s", s))
	}
}

// RequiresManualClose reports whether process() leaves the request open for
// the dedicated rectify/restrict operation to finish.
func (t Type) RequiresManualClose() bool {
	return t == TypeDataRectification || t == TypeProcessingRestriction
}

// Status represents the request lifecycle state
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

// String returns the string representation of the request status
func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transitions are legal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// Request is one subject rights request. At most one non-terminal request may
// exist per (subject_email, type).
type Request struct {
	ID              uuid.UUID
	SubjectEmail    values.Email
	Type            Type
	Status          Status
	CreatedAt       time.Time
	DeadlineAt      time.Time
	CompletedAt     *time.Time
	ProcessedBy     string
	RejectionReason string
	ResultFileURL   string
	ResultFileSize  int64
	IPAddress       string
	UserAgent       string
	UpdatedAt       time.Time
}

// New creates a pending request with the statutory deadline.
func New(email values.Email, requestType Type, ip, userAgent string) (*Request, error) {
	if email.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_EMAIL", "subject email is required")
	}
	if _, err := ParseType(string(requestType)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Request{
		ID:           uuid.New(),
		SubjectEmail: email,
		Type:         requestType,
		Status:       StatusPending,
		CreatedAt:    now,
		DeadlineAt:   now.AddDate(0, 0, DeadlineDays),
		IPAddress:    ip,
		UserAgent:    userAgent,
		UpdatedAt:    now,
	}, nil
}

// StartProcessing transitions PENDING/IN_PROGRESS -> IN_PROGRESS.
func (r *Request) StartProcessing(processedBy string) error {
	if r.Status != StatusPending && r.Status != StatusInProgress {
		return errors.NewPreconditionError("REQUEST_TERMINAL",
			fmt.Sprintf("cannot process request in status %s", r.Status))
	}
	r.Status = StatusInProgress
	r.ProcessedBy = processedBy
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete transitions IN_PROGRESS -> COMPLETED.
func (r *Request) Complete(resultFileURL string, resultFileSize int64) error {
	if r.Status != StatusInProgress {
		return errors.NewPreconditionError("NOT_IN_PROGRESS",
			fmt.Sprintf("cannot complete request in status %s", r.Status))
	}
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.ResultFileURL = resultFileURL
	r.ResultFileSize = resultFileSize
	r.UpdatedAt = now
	return nil
}

// Reject transitions PENDING/IN_PROGRESS -> REJECTED.
func (r *Request) Reject(reason, performedBy string) error {
	if r.Status != StatusPending && r.Status != StatusInProgress {
		return errors.NewPreconditionError("REQUEST_TERMINAL",
			fmt.Sprintf("cannot reject request in status %s", r.Status))
	}
	if reason == "" {
		return errors.NewValidationError("MISSING_REASON", "rejection reason is required")
	}
	now := time.Now().UTC()
	r.Status = StatusRejected
	r.CompletedAt = &now
	r.RejectionReason = reason
	r.ProcessedBy = performedBy
	r.UpdatedAt = now
	return nil
}

// Cancel transitions PENDING -> CANCELLED (subject-initiated).
func (r *Request) Cancel() error {
	if r.Status != StatusPending {
		return errors.NewPreconditionError("NOT_PENDING",
			fmt.Sprintf("cannot cancel request in status %s", r.Status))
	}
	now := time.Now().UTC()
	r.Status = StatusCancelled
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// RevertToPending rolls a failed processing attempt back so the next call can
// retry. Not legal from terminal states.
func (r *Request) RevertToPending() error {
	if r.Status != StatusInProgress {
		return errors.NewPreconditionError("NOT_IN_PROGRESS",
			fmt.Sprintf("cannot revert request in status %s", r.Status))
	}
	r.Status = StatusPending
	r.ProcessedBy = ""
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// IsOverdue reports whether the statutory deadline has passed while the
// request is still open.
func (r *Request) IsOverdue() bool {
	return !r.Status.IsTerminal() && r.DeadlineAt.Before(time.Now())
}

// DaysRemaining returns the whole days left before the deadline, floored at 0.
func (r *Request) DaysRemaining() int {
	remaining := time.Until(r.DeadlineAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}

// DaysOverdue returns the whole days past the deadline, 0 when not overdue.
func (r *Request) DaysOverdue() int {
	if !r.IsOverdue() {
		return 0
	}
	return int(time.Since(r.DeadlineAt).Hours() / 24)
}
