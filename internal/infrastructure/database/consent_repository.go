package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
)

// ConsentRepository persists consent rows. The unique index on
// (subject_email, type) enforces the one-row-per-pair invariant; concurrent
// grants resolve through the upsert.
type ConsentRepository struct {
	db *ConnectionPool
}

// NewConsentRepository creates a new PostgreSQL consent repository
func NewConsentRepository(db *ConnectionPool) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `
	id, subject_email, type, status, granted_at, withdrawn_at, expires_at,
	ip_address, user_agent, consent_version, consent_text, created_at, updated_at`

// Upsert writes a consent row, replacing any existing row for the same
// (subject_email, type).
func (r *ConsentRepository) Upsert(ctx context.Context, c *consent.Consent) error {
	_, err := r.db.DB(ctx).Exec(ctx, `
		INSERT INTO consents (
			id, subject_email, type, status, granted_at, withdrawn_at, expires_at,
			ip_address, user_agent, consent_version, consent_text, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (subject_email, type) DO UPDATE SET
			status = EXCLUDED.status,
			granted_at = EXCLUDED.granted_at,
			withdrawn_at = EXCLUDED.withdrawn_at,
			expires_at = EXCLUDED.expires_at,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			consent_version = EXCLUDED.consent_version,
			consent_text = EXCLUDED.consent_text,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.SubjectEmail.String(), string(c.Type), string(c.Status),
		c.GrantedAt, c.WithdrawnAt, c.ExpiresAt,
		nullable(c.IPAddress), nullable(c.UserAgent),
		nullable(c.ConsentVersion), nullable(c.ConsentText),
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to upsert consent").WithCause(err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing row.
func (r *ConsentRepository) Update(ctx context.Context, c *consent.Consent) error {
	tag, err := r.db.DB(ctx).Exec(ctx, `
		UPDATE consents SET
			status = $2, granted_at = $3, withdrawn_at = $4, expires_at = $5,
			ip_address = $6, user_agent = $7, consent_version = $8,
			consent_text = $9, updated_at = $10
		WHERE id = $1
	`, c.ID, string(c.Status), c.GrantedAt, c.WithdrawnAt, c.ExpiresAt,
		nullable(c.IPAddress), nullable(c.UserAgent),
		nullable(c.ConsentVersion), nullable(c.ConsentText), c.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to update consent").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrConsentNotFound
	}
	return nil
}

// GetBySubjectAndType loads the row for one (subject_email, type) pair,
// locking it for the duration of the ambient transaction.
func (r *ConsentRepository) GetBySubjectAndType(ctx context.Context, email string, consentType consent.Type) (*consent.Consent, error) {
	row := r.db.DB(ctx).QueryRow(ctx, `
		SELECT`+consentColumns+`
		FROM consents
		WHERE subject_email = lower($1) AND type = $2
		FOR UPDATE
	`, email, string(consentType))

	c, err := scanConsent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrConsentNotFound
		}
		return nil, errors.NewInternalError("failed to get consent").WithCause(err)
	}
	return c, nil
}

// ListBySubject returns all consent rows for a subject.
func (r *ConsentRepository) ListBySubject(ctx context.Context, email string) ([]*consent.Consent, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+consentColumns+`
		FROM consents
		WHERE subject_email = lower($1)
		ORDER BY type
	`, email)
	if err != nil {
		return nil, errors.NewInternalError("failed to query consents").WithCause(err)
	}
	defer rows.Close()

	return scanConsents(rows)
}

// FindExpiredGranted returns GRANTED rows whose expiry has passed, locked for
// the expiry sweep.
func (r *ConsentRepository) FindExpiredGranted(ctx context.Context, now time.Time) ([]*consent.Consent, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+consentColumns+`
		FROM consents
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY subject_email, type
		FOR UPDATE SKIP LOCKED
	`, string(consent.StatusGranted), now)
	if err != nil {
		return nil, errors.NewInternalError("failed to query expired consents").WithCause(err)
	}
	defer rows.Close()

	return scanConsents(rows)
}

// FindExpiringGranted returns GRANTED rows expiring within the window
// (now, now+days], for the pre-expiry notice.
func (r *ConsentRepository) FindExpiringGranted(ctx context.Context, now time.Time, days int) ([]*consent.Consent, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+consentColumns+`
		FROM consents
		WHERE status = $1
		  AND expires_at IS NOT NULL
		  AND expires_at > $2
		  AND expires_at <= $3
		ORDER BY expires_at
	`, string(consent.StatusGranted), now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, errors.NewInternalError("failed to query expiring consents").WithCause(err)
	}
	defer rows.Close()

	return scanConsents(rows)
}

func scanConsent(row pgx.Row) (*consent.Consent, error) {
	var c consent.Consent
	var email, cType, status string
	var ip, ua, version, text *string
	err := row.Scan(&c.ID, &email, &cType, &status, &c.GrantedAt,
		&c.WithdrawnAt, &c.ExpiresAt, &ip, &ua, &version, &text,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := c.SubjectEmail.Scan(email); err != nil {
		return nil, err
	}
	c.Type = consent.Type(cType)
	c.Status = consent.Status(status)
	c.IPAddress = deref(ip)
	c.UserAgent = deref(ua)
	c.ConsentVersion = deref(version)
	c.ConsentText = deref(text)
	return &c, nil
}

func scanConsents(rows pgx.Rows) ([]*consent.Consent, error) {
	var out []*consent.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan consent").WithCause(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating consents").WithCause(err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
