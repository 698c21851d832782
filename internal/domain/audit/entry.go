package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
)

// Action identifies a mutating compliance action. The set is closed; every
// switch over it must be exhaustive.
type Action string

const (
	ActionConsentGranted        Action = "CONSENT_GRANTED"
	ActionConsentWithdrawn      Action = "CONSENT_WITHDRAWN"
	ActionConsentExpired        Action = "CONSENT_EXPIRED"
	ActionDataAccessed          Action = "DATA_ACCESSED"
	ActionDataExported          Action = "DATA_EXPORTED"
	ActionDataDeleted           Action = "DATA_DELETED"
	ActionDataAnonymized        Action = "DATA_ANONYMIZED"
	ActionDataRectified         Action = "DATA_RECTIFIED"
	ActionRequestCreated        Action = "REQUEST_CREATED"
	ActionRequestProcessed      Action = "REQUEST_PROCESSED"
	ActionRequestCompleted      Action = "REQUEST_COMPLETED"
	ActionRequestRejected       Action = "REQUEST_REJECTED"
	ActionRetentionCleanup      Action = "RETENTION_CLEANUP"
	ActionPolicyUpdated         Action = "POLICY_UPDATED"
	ActionVerificationSent      Action = "VERIFICATION_SENT"
	ActionVerificationCompleted Action = "VERIFICATION_COMPLETED"
)

// String returns the wire representation of the action
func (a Action) String() string { return string(a) }

// ParseAction parses a wire string into an Action
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionConsentGranted, ActionConsentWithdrawn, ActionConsentExpired,
		ActionDataAccessed, ActionDataExported, ActionDataDeleted,
		ActionDataAnonymized, ActionDataRectified,
		ActionRequestCreated, ActionRequestProcessed, ActionRequestCompleted,
		ActionRequestRejected, ActionRetentionCleanup, ActionPolicyUpdated,
		ActionVerificationSent, ActionVerificationCompleted:
		return Action(s), nil
	default:
		return "", errors.NewValidationError("INVALID_ACTION", fmt.Sprintf("invalid audit action: %s", s))
	}
}

// Entry is an append-only record of a mutating action. Entries are never
// updated or deleted; the data layer exposes no statement that targets the
// audit table with UPDATE or DELETE.
type Entry struct {
	ID             uuid.UUID
	Action         Action
	SubjectEmail   string
	AffectedTables []string
	AffectedCount  int
	PerformedBy    string
	IPAddress      string
	UserAgent      string
	RequestID      *uuid.UUID
	Details        map[string]interface{}
	CreatedAt      time.Time
}

// NewEntry creates a validated audit entry.
func NewEntry(action Action, performedBy string) (*Entry, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}
	if performedBy == "" {
		return nil, errors.NewValidationError("MISSING_ACTOR", "performed_by is required")
	}
	return &Entry{
		ID:          uuid.New(),
		Action:      action,
		PerformedBy: performedBy,
		Details:     make(map[string]interface{}),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// WithSubject sets the subject email.
func (e *Entry) WithSubject(email string) *Entry {
	e.SubjectEmail = email
	return e
}

// WithTables records the tables touched and the row count.
func (e *Entry) WithTables(tables []string, count int) *Entry {
	e.AffectedTables = tables
	e.AffectedCount = count
	return e
}

// WithActor attaches the caller's network context.
func (e *Entry) WithActor(ip, userAgent string) *Entry {
	e.IPAddress = ip
	e.UserAgent = userAgent
	return e
}

// WithRequest links the entry to a subject request.
func (e *Entry) WithRequest(id uuid.UUID) *Entry {
	e.RequestID = &id
	return e
}

// WithDetail adds one key to the structured detail bag.
func (e *Entry) WithDetail(key string, value interface{}) *Entry {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
