package audit

import (
	"time"

	"github.com/google/uuid"
)

// Typed constructors, one per action variant, pre-filling the tables and
// detail bag that variant carries. NewEntry stays available for callers
// composing non-standard entries; the builder methods still apply on top of
// these for extras like network context.

// ConsentGranted records a consent grant or re-grant.
func ConsentGranted(performedBy, email, consentType, version string) (*Entry, error) {
	e, err := NewEntry(ActionConsentGranted, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).
		WithDetail("consent_type", consentType).
		WithDetail("version", version)
	return e, nil
}

// ConsentWithdrawn records a subject-initiated withdrawal.
func ConsentWithdrawn(performedBy, email, consentType string) (*Entry, error) {
	e, err := NewEntry(ActionConsentWithdrawn, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).WithDetail("consent_type", consentType)
	return e, nil
}

// ConsentExpired records a clock-driven lapse.
func ConsentExpired(performedBy, email, consentType string, expiredAt *time.Time) (*Entry, error) {
	e, err := NewEntry(ActionConsentExpired, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).
		WithDetail("consent_type", consentType).
		WithDetail("expired_at", expiredAt)
	return e, nil
}

// DataAccessed records a read or in-place rewrite of subject data.
func DataAccessed(performedBy, email, operation string, tables []string, count int) (*Entry, error) {
	e, err := NewEntry(ActionDataAccessed, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).
		WithTables(tables, count).
		WithDetail("operation", operation)
	return e, nil
}

// DataExported records a completed export and the file it produced.
func DataExported(performedBy, email, fileURL string, tables []string, count int) (*Entry, error) {
	e, err := NewEntry(ActionDataExported, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).
		WithTables(tables, count).
		WithDetail("file_url", fileURL)
	return e, nil
}

// DataDeleted records an erasure that removed rows.
func DataDeleted(performedBy, email string, tables []string, count int) (*Entry, error) {
	e, err := NewEntry(ActionDataDeleted, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).WithTables(tables, count)
	return e, nil
}

// DataAnonymized records an erasure that rewrote rows in place.
func DataAnonymized(performedBy, email string, tables []string, count int) (*Entry, error) {
	e, err := NewEntry(ActionDataAnonymized, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).WithTables(tables, count)
	return e, nil
}

// DataRectified records a field rectification.
func DataRectified(performedBy, email string, tables []string, count int) (*Entry, error) {
	e, err := NewEntry(ActionDataRectified, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).WithTables(tables, count)
	return e, nil
}

// RequestCreated records a new subject rights request.
func RequestCreated(performedBy, email, requestType string, requestID uuid.UUID) (*Entry, error) {
	e, err := NewEntry(ActionRequestCreated, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).
		WithRequest(requestID).
		WithDetail("request_type", requestType)
	return e, nil
}

// RequestProcessed records a request moving into processing.
func RequestProcessed(performedBy, email, requestType string, requestID uuid.UUID) (*Entry, error) {
	e, err := NewEntry(ActionRequestProcessed, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).
		WithRequest(requestID).
		WithDetail("request_type", requestType)
	return e, nil
}

// RequestCompleted records a request reaching its terminal COMPLETED state.
func RequestCompleted(performedBy, email, requestType string, requestID uuid.UUID) (*Entry, error) {
	e, err := NewEntry(ActionRequestCompleted, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).
		WithRequest(requestID).
		WithDetail("request_type", requestType)
	return e, nil
}

// RequestRejected records a rejection and its reason.
func RequestRejected(performedBy, email, requestType, reason string, requestID uuid.UUID) (*Entry, error) {
	e, err := NewEntry(ActionRequestRejected, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).
		WithRequest(requestID).
		WithDetail("request_type", requestType).
		WithDetail("reason", reason)
	return e, nil
}

// RetentionCleanup records one table's sweep under a retention policy.
func RetentionCleanup(table, action string, retentionDays, count int) (*Entry, error) {
	e, err := NewEntry(ActionRetentionCleanup, "system")
	if err != nil {
		return nil, err
	}
	e.WithTables([]string{table}, count).
		WithDetail("retention_action", action).
		WithDetail("retention_days", retentionDays)
	return e, nil
}

// PolicyUpdated records a policy or restriction change; operation names the
// specific mutation.
func PolicyUpdated(performedBy, operation string) (*Entry, error) {
	e, err := NewEntry(ActionPolicyUpdated, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithDetail("operation", operation)
	return e, nil
}

// VerificationSent records an identity-verification challenge leaving.
func VerificationSent(performedBy, email, channel string) (*Entry, error) {
	e, err := NewEntry(ActionVerificationSent, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email).WithDetail("channel", channel)
	return e, nil
}

// VerificationCompleted records a successful identity verification.
func VerificationCompleted(performedBy, email string) (*Entry, error) {
	e, err := NewEntry(ActionVerificationCompleted, performedBy)
	if err != nil {
		return nil, err
	}
	e.WithSubject(email)
	return e, nil
}
