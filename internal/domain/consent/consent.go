package consent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
)

// DefaultExpiryDays is the consent lifetime applied when the grant carries no
// explicit expiry (two years).
const DefaultExpiryDays = 730

// Type represents a purpose-scoped consent category (Art. 7)
type Type string

const (
	TypeMarketing         Type = "MARKETING"
	TypeDataProcessing    Type = "DATA_PROCESSING"
	TypeAnalytics         Type = "ANALYTICS"
	TypeThirdPartySharing Type = "THIRD_PARTY_SHARING"
)

// AllTypes returns every consent type in a stable order
func AllTypes() []Type {
	return []Type{TypeMarketing, TypeDataProcessing, TypeAnalytics, TypeThirdPartySharing}
}

// String returns the string representation of the consent type
func (t Type) String() string { return string(t) }

// ParseType parses a wire string into a consent Type
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeMarketing, TypeDataProcessing, TypeAnalytics, TypeThirdPartySharing:
		return Type(s), nil
	default:
		return "", errors.NewValidationError("INVALID_CONSENT_TYPE", fmt.Sprintf("invalid consent type: %s", s))
	}
}

// Status represents the current state of a consent row
type Status string

const (
	StatusGranted   Status = "GRANTED"
	StatusWithdrawn Status = "WITHDRAWN"
	StatusExpired   Status = "EXPIRED"

	// StatusNotGiven is a view-only status for types with no stored row.
	StatusNotGiven Status = "NOT_GIVEN"
)

// String returns the string representation of the consent status
func (s Status) String() string { return string(s) }

// Consent is one subject's consent for one type. The store holds at most one
// row per (subject_email, type); a re-grant rewrites the row in place.
type Consent struct {
	ID             uuid.UUID
	SubjectEmail   values.Email
	Type           Type
	Status         Status
	GrantedAt      time.Time
	WithdrawnAt    *time.Time
	ExpiresAt      *time.Time
	IPAddress      string
	UserAgent      string
	ConsentVersion string
	ConsentText    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GrantParams carries the caller context of a grant.
type GrantParams struct {
	IPAddress     string
	UserAgent     string
	ExpiresInDays *int
	Version       string
	Text          string
}

// NewConsent creates a new granted consent.
func NewConsent(email values.Email, consentType Type, p GrantParams) (*Consent, error) {
	if email.IsEmpty() {
		return nil, errors.NewValidationError("INVALID_EMAIL", "subject email is required")
	}
	if _, err := ParseType(string(consentType)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &Consent{
		ID:             uuid.New(),
		SubjectEmail:   email,
		Type:           consentType,
		Status:         StatusGranted,
		GrantedAt:      now,
		IPAddress:      p.IPAddress,
		UserAgent:      p.UserAgent,
		ConsentVersion: p.Version,
		ConsentText:    p.Text,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.ExpiresAt = expiryFrom(now, p.ExpiresInDays)
	return c, nil
}

// Regrant moves any prior state back to GRANTED, resetting the grant
// timestamps and clearing the withdrawal.
func (c *Consent) Regrant(p GrantParams) {
	now := time.Now().UTC()
	c.Status = StatusGranted
	c.GrantedAt = now
	c.WithdrawnAt = nil
	c.ExpiresAt = expiryFrom(now, p.ExpiresInDays)
	if p.IPAddress != "" {
		c.IPAddress = p.IPAddress
	}
	if p.UserAgent != "" {
		c.UserAgent = p.UserAgent
	}
	if p.Version != "" {
		c.ConsentVersion = p.Version
	}
	if p.Text != "" {
		c.ConsentText = p.Text
	}
	c.UpdatedAt = now
}

// Withdraw transitions GRANTED -> WITHDRAWN. Any other source state fails.
func (c *Consent) Withdraw() error {
	if c.Status != StatusGranted {
		return errors.ErrNoActiveConsent
	}
	now := time.Now().UTC()
	c.Status = StatusWithdrawn
	c.WithdrawnAt = &now
	c.UpdatedAt = now
	return nil
}

// Expire transitions GRANTED -> EXPIRED (clock-driven).
func (c *Consent) Expire() error {
	if c.Status != StatusGranted {
		return errors.NewPreconditionError("NOT_GRANTED", "only granted consent can expire")
	}
	now := time.Now().UTC()
	c.Status = StatusExpired
	c.UpdatedAt = now
	return nil
}

// IsValid reports whether the consent currently authorizes processing:
// granted and not past its expiry.
func (c *Consent) IsValid() bool {
	if c.Status != StatusGranted {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(time.Now()) {
		return false
	}
	return true
}

func expiryFrom(now time.Time, days *int) *time.Time {
	d := DefaultExpiryDays
	if days != nil {
		d = *days
	}
	if d <= 0 {
		return nil
	}
	t := now.AddDate(0, 0, d)
	return &t
}

// View is the per-type status projection returned by the status operation.
type View struct {
	Status      Status     `json:"status"`
	GrantedAt   *time.Time `json:"granted_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
	Version     string     `json:"version,omitempty"`
}

// ViewOf projects a stored consent into its status view.
func ViewOf(c *Consent) View {
	v := View{
		Status:      c.Status,
		ExpiresAt:   c.ExpiresAt,
		WithdrawnAt: c.WithdrawnAt,
		Version:     c.ConsentVersion,
	}
	granted := c.GrantedAt
	v.GrantedAt = &granted
	return v
}

// NotGivenView is the projection for a type with no stored row.
func NotGivenView() View {
	return View{Status: StatusNotGiven}
}
