package retention

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
)

// Action is what a retention sweep does with rows past their lifetime
type Action string

const (
	ActionDelete    Action = "DELETE"
	ActionAnonymize Action = "ANONYMIZE"
	ActionArchive   Action = "ARCHIVE"
)

// String returns the string representation of the action
func (a Action) String() string { return string(a) }

// ParseAction parses a wire string into an Action
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionDelete, ActionAnonymize, ActionArchive:
		return Action(s), nil
	default:
		return "", errors.NewValidationError("INVALID_RETENTION_ACTION", fmt.Sprintf("invalid retention action: %s", s))
	}
}

// Policy is one controller-declared retention rule. table_name is unique.
type Policy struct {
	ID              uuid.UUID
	TableName       string
	RetentionDays   int
	Action          Action
	ConditionColumn string
	ConditionValue  string
	IsActive        bool
	LastRunAt       *time.Time
	LastRunCount    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPolicy creates a validated, active retention policy.
func NewPolicy(tableName string, retentionDays int, action Action) (*Policy, error) {
	if tableName == "" {
		return nil, errors.NewValidationError("MISSING_TABLE", "table name is required")
	}
	if retentionDays <= 0 {
		return nil, errors.NewValidationError("INVALID_RETENTION", "retention days must be positive")
	}
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Policy{
		ID:            uuid.New(),
		TableName:     tableName,
		RetentionDays: retentionDays,
		Action:        action,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// WithCondition narrows the sweep to rows where column = value.
func (p *Policy) WithCondition(column, value string) *Policy {
	p.ConditionColumn = column
	p.ConditionValue = value
	return p
}

// Cutoff returns the created_at threshold for the sweep at time now.
func (p *Policy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RetentionDays)
}

// RecordRun captures the result of a completed non-dry-run sweep.
func (p *Policy) RecordRun(count int) {
	now := time.Now().UTC()
	p.LastRunAt = &now
	p.LastRunCount = count
	p.UpdatedAt = now
}

// Deactivate disables the policy without deleting its history.
func (p *Policy) Deactivate() {
	p.IsActive = false
	p.UpdatedAt = time.Now().UTC()
}
