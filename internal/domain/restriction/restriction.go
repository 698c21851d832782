package restriction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
)

// MatchAll is the wildcard entry for restricted operations and tables.
const MatchAll = "all"

// Reason represents the Art. 18(1) ground for a processing restriction
type Reason string

const (
	ReasonAccuracyContested  Reason = "ACCURACY_CONTESTED"
	ReasonUnlawfulProcessing Reason = "UNLAWFUL_PROCESSING"
	ReasonNoLongerNeeded     Reason = "NO_LONGER_NEEDED"
	ReasonObjectionPending   Reason = "OBJECTION_PENDING"
)

// String returns the string representation of the reason
func (r Reason) String() string { return string(r) }

// ParseReason parses a wire string into a Reason
func ParseReason(s string) (Reason, error) {
	switch Reason(s) {
	case ReasonAccuracyContested, ReasonUnlawfulProcessing,
		ReasonNoLongerNeeded, ReasonObjectionPending:
		return Reason(s), nil
	default:
		return "", errors.NewValidationError("INVALID_REASON", fmt.Sprintf("invalid restriction reason: %s", s))
	}
}

// Operation names a restrictable processing operation
type Operation string

const (
	OpRead      Operation = "READ"
	OpUpdate    Operation = "UPDATE"
	OpDelete    Operation = "DELETE"
	OpExport    Operation = "EXPORT"
	OpShare     Operation = "SHARE"
	OpProcess   Operation = "PROCESS"
	OpMarketing Operation = "MARKETING"
)

// String returns the string representation of the operation
func (o Operation) String() string { return string(o) }

// ParseOperation parses a wire string into an Operation; "all" passes through.
func ParseOperation(s string) (string, error) {
	if s == MatchAll {
		return MatchAll, nil
	}
	switch Operation(s) {
	case OpRead, OpUpdate, OpDelete, OpExport, OpShare, OpProcess, OpMarketing:
		return s, nil
	default:
		return "", errors.NewValidationError("INVALID_OPERATION", fmt.Sprintf("invalid restricted operation: %s", s))
	}
}

// Restriction is an Art. 18 processing hold for one subject.
type Restriction struct {
	ID                   uuid.UUID
	SubjectEmail         values.Email
	Reason               Reason
	Details              string
	IsActive             bool
	RestrictedOperations []string
	RestrictedTables     []string
	RequestedAt          time.Time
	ExpiresAt            *time.Time
	LiftedAt             *time.Time
	LiftedBy             string
	LiftReason           string
	RequestID            *uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Params carries the optional scope of a new restriction.
type Params struct {
	Details       string
	Operations    []string
	Tables        []string
	ExpiresInDays *int
	RequestID     *uuid.UUID
}

// New creates an active restriction. Operations and tables default to the
// wildcard when empty.
func New(email values.Email, reason Reason, p Params) (*Restriction, error) {
	if email.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_EMAIL", "subject email is required")
	}
	if _, err := ParseReason(string(reason)); err != nil {
		return nil, err
	}

	ops := p.Operations
	if len(ops) == 0 {
		ops = []string{MatchAll}
	}
	for _, op := range ops {
		if _, err := ParseOperation(op); err != nil {
			return nil, err
		}
	}

	tables := p.Tables
	if len(tables) == 0 {
		tables = []string{MatchAll}
	}

	now := time.Now().UTC()
	r := &Restriction{
		ID:                   uuid.New(),
		SubjectEmail:         email,
		Reason:               reason,
		Details:              p.Details,
		IsActive:             true,
		RestrictedOperations: ops,
		RestrictedTables:     tables,
		RequestedAt:          now,
		RequestID:            p.RequestID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if p.ExpiresInDays != nil && *p.ExpiresInDays > 0 {
		t := now.AddDate(0, 0, *p.ExpiresInDays)
		r.ExpiresAt = &t
	}
	return r, nil
}

// Active reports whether the restriction currently binds.
func (r *Restriction) Active() bool {
	if !r.IsActive {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(time.Now()) {
		return false
	}
	return true
}

// Covers reports whether the restriction blocks op on table. An empty op or
// table is treated as matched, per the check contract.
func (r *Restriction) Covers(op, table string) bool {
	if !r.Active() {
		return false
	}
	if op != "" && !matches(r.RestrictedOperations, op) {
		return false
	}
	if table != "" && !matches(r.RestrictedTables, table) {
		return false
	}
	return true
}

// Lift deactivates the restriction, recording who and why.
func (r *Restriction) Lift(liftedBy, liftReason string) error {
	if !r.IsActive {
		return errors.NewPreconditionError("ALREADY_LIFTED", "restriction is not active")
	}
	if liftedBy == "" {
		return errors.NewValidationError("MISSING_ACTOR", "lifted_by is required")
	}
	now := time.Now().UTC()
	r.IsActive = false
	r.LiftedAt = &now
	r.LiftedBy = liftedBy
	r.LiftReason = liftReason
	r.UpdatedAt = now
	return nil
}

// Expire deactivates the restriction through the clock-driven sweep.
func (r *Restriction) Expire() {
	now := time.Now().UTC()
	r.IsActive = false
	r.UpdatedAt = now
}

func matches(list []string, v string) bool {
	for _, item := range list {
		if item == MatchAll || item == v {
			return true
		}
	}
	return false
}
