package consent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// Service defines the consent management service interface
type Service interface {
	// Grant records or re-grants consent for one (subject, type) pair.
	Grant(ctx context.Context, req GrantRequest) (*Response, error)

	// Withdraw transitions an active consent to WITHDRAWN.
	Withdraw(ctx context.Context, req WithdrawRequest) (*Response, error)

	// WithdrawAll withdraws every GRANTED consent for the subject, skipping
	// rows in other states.
	WithdrawAll(ctx context.Context, req WithdrawAllRequest) (*WithdrawAllResponse, error)

	// GetStatus returns the per-type consent view for a subject, including
	// NOT_GIVEN entries for types with no stored row.
	GetStatus(ctx context.Context, email string) (*StatusResponse, error)

	// HasActiveConsent reports whether a granted, unexpired consent exists.
	HasActiveConsent(ctx context.Context, email string, consentType consent.Type) (bool, error)

	// ExpireConsents sweeps GRANTED rows past their expiry. Returns the
	// number of rows expired.
	ExpireConsents(ctx context.Context) (int, error)
}

// ConsentRepository is the persistence dependency
type ConsentRepository interface {
	Upsert(ctx context.Context, c *consent.Consent) error
	Update(ctx context.Context, c *consent.Consent) error
	GetBySubjectAndType(ctx context.Context, email string, consentType consent.Type) (*consent.Consent, error)
	ListBySubject(ctx context.Context, email string) ([]*consent.Consent, error)
	FindExpiredGranted(ctx context.Context, now time.Time) ([]*consent.Consent, error)
}

// AuditRecorder appends compliance trail entries
type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// Transactor runs fn inside one database transaction
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher fans consent events out to webhook subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event webhook.Event, data interface{})
}

// GrantRequest carries one consent grant
type GrantRequest struct {
	Email         string `json:"email"`
	Type          string `json:"type"`
	IPAddress     string `json:"ip_address,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty"`
	Version       string `json:"version,omitempty"`
	Text          string `json:"text,omitempty"`
}

// WithdrawRequest carries one consent withdrawal
type WithdrawRequest struct {
	Email     string `json:"email"`
	Type      string `json:"type"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// WithdrawAllRequest carries a blanket withdrawal for one subject
type WithdrawAllRequest struct {
	Email     string `json:"email"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// WithdrawAllResponse lists the consents a blanket withdrawal flipped
type WithdrawAllResponse struct {
	Email     string      `json:"email"`
	Withdrawn []*Response `json:"withdrawn"`
	Count     int         `json:"count"`
}

// Response is the wire view of one consent row
type Response struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	GrantedAt   time.Time  `json:"granted_at"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Version     string     `json:"version,omitempty"`
}

// StatusResponse is the full per-type consent projection for one subject
type StatusResponse struct {
	Email    string                  `json:"email"`
	Consents map[string]consent.View `json:"consents"`
}

func toResponse(c *consent.Consent) *Response {
	return &Response{
		ID:          c.ID,
		Email:       c.SubjectEmail.String(),
		Type:        string(c.Type),
		Status:      string(c.Status),
		GrantedAt:   c.GrantedAt,
		WithdrawnAt: c.WithdrawnAt,
		ExpiresAt:   c.ExpiresAt,
		Version:     c.ConsentVersion,
	}
}
