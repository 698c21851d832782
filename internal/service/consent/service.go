package consent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/telemetry"
)

// SystemActor is recorded as performed_by for clock-driven mutations.
const SystemActor = "system"

// SubjectActor is recorded as performed_by for subject-initiated mutations.
const SubjectActor = "data_subject"

// Ensure service implements the interface
var _ Service = (*service)(nil)

type service struct {
	logger      *zap.Logger
	consentRepo ConsentRepository
	auditor     AuditRecorder
	tx          Transactor
	publisher   EventPublisher
}

// NewService creates a new consent service
func NewService(
	logger *zap.Logger,
	consentRepo ConsentRepository,
	auditor AuditRecorder,
	tx Transactor,
	publisher EventPublisher,
) Service {
	return &service{
		logger:      logger,
		consentRepo: consentRepo,
		auditor:     auditor,
		tx:          tx,
		publisher:   publisher,
	}
}

// Grant records or re-grants consent. The row and its audit entry commit in
// one transaction; the webhook event fires only after commit.
func (s *service) Grant(ctx context.Context, req GrantRequest) (*Response, error) {
	email, err := values.NewEmail(req.Email)
	if err != nil {
		return nil, err
	}
	consentType, err := consent.ParseType(req.Type)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(
		zap.String("consent_type", consentType.String()),
	)

	params := consent.GrantParams{
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		ExpiresInDays: req.ExpiresInDays,
		Version:       req.Version,
		Text:          req.Text,
	}

	var granted *consent.Consent
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.consentRepo.GetBySubjectAndType(ctx, email.String(), consentType)
		switch {
		case err == nil:
			existing.Regrant(params)
			if err := s.consentRepo.Update(ctx, existing); err != nil {
				return err
			}
			granted = existing
		case errors.IsNotFound(err):
			c, err := consent.NewConsent(email, consentType, params)
			if err != nil {
				return err
			}
			if err := s.consentRepo.Upsert(ctx, c); err != nil {
				return err
			}
			granted = c
		default:
			return err
		}

		entry, err := audit.ConsentGranted(SubjectActor, email.String(), string(consentType), req.Version)
		if err != nil {
			return err
		}
		entry.WithActor(req.IPAddress, req.UserAgent)
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("consent granted",
		zap.Time("expires_at", derefTime(granted.ExpiresAt)))

	telemetry.ConsentTransitions.WithLabelValues(string(consent.StatusGranted)).Inc()
	s.publisher.Publish(ctx, webhook.EventConsentGranted, toResponse(granted))
	return toResponse(granted), nil
}

// Withdraw transitions an active consent to WITHDRAWN. A missing row reports
// the same error as a row in a non-granted state.
func (s *service) Withdraw(ctx context.Context, req WithdrawRequest) (*Response, error) {
	email, err := values.NewEmail(req.Email)
	if err != nil {
		return nil, err
	}
	consentType, err := consent.ParseType(req.Type)
	if err != nil {
		return nil, err
	}

	var withdrawn *consent.Consent
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		c, err := s.consentRepo.GetBySubjectAndType(ctx, email.String(), consentType)
		if err != nil {
			if errors.IsNotFound(err) {
				return errors.ErrNoActiveConsent
			}
			return err
		}
		if err := c.Withdraw(); err != nil {
			return err
		}
		if err := s.consentRepo.Update(ctx, c); err != nil {
			return err
		}
		withdrawn = c

		entry, err := audit.ConsentWithdrawn(SubjectActor, email.String(), string(consentType))
		if err != nil {
			return err
		}
		entry.WithActor(req.IPAddress, req.UserAgent)
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("consent withdrawn",
		zap.String("consent_type", consentType.String()))

	telemetry.ConsentTransitions.WithLabelValues(string(consent.StatusWithdrawn)).Inc()
	s.publisher.Publish(ctx, webhook.EventConsentWithdrawn, toResponse(withdrawn))
	return toResponse(withdrawn), nil
}

// WithdrawAll withdraws every GRANTED consent the subject holds; rows in any
// other state are skipped, not failed. A subject with nothing granted gets an
// empty result, not an error.
func (s *service) WithdrawAll(ctx context.Context, req WithdrawAllRequest) (*WithdrawAllResponse, error) {
	email, err := values.NewEmail(req.Email)
	if err != nil {
		return nil, err
	}

	var withdrawn []*consent.Consent
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		stored, err := s.consentRepo.ListBySubject(ctx, email.String())
		if err != nil {
			return err
		}
		for _, c := range stored {
			if c.Status != consent.StatusGranted {
				continue
			}
			if err := c.Withdraw(); err != nil {
				return err
			}
			if err := s.consentRepo.Update(ctx, c); err != nil {
				return err
			}

			entry, err := audit.ConsentWithdrawn(SubjectActor, email.String(), string(c.Type))
			if err != nil {
				return err
			}
			entry.WithActor(req.IPAddress, req.UserAgent)
			if err := s.auditor.Record(ctx, entry); err != nil {
				return err
			}
			withdrawn = append(withdrawn, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := &WithdrawAllResponse{Email: email.String(), Count: len(withdrawn)}
	for _, c := range withdrawn {
		telemetry.ConsentTransitions.WithLabelValues(string(consent.StatusWithdrawn)).Inc()
		s.publisher.Publish(ctx, webhook.EventConsentWithdrawn, toResponse(c))
		resp.Withdrawn = append(resp.Withdrawn, toResponse(c))
	}

	if len(withdrawn) > 0 {
		s.logger.Info("all consents withdrawn", zap.Int("withdrawn", len(withdrawn)))
	}
	return resp, nil
}

// GetStatus returns the per-type projection, NOT_GIVEN for absent rows.
func (s *service) GetStatus(ctx context.Context, rawEmail string) (*StatusResponse, error) {
	email, err := values.NewEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	stored, err := s.consentRepo.ListBySubject(ctx, email.String())
	if err != nil {
		return nil, err
	}

	views := make(map[string]consent.View, len(consent.AllTypes()))
	for _, t := range consent.AllTypes() {
		views[string(t)] = consent.NotGivenView()
	}
	for _, c := range stored {
		views[string(c.Type)] = consent.ViewOf(c)
	}

	return &StatusResponse{Email: email.String(), Consents: views}, nil
}

// HasActiveConsent reports whether processing under the type is authorized
// right now. Expiry is evaluated against the wall clock even before the
// sweep has flipped the row.
func (s *service) HasActiveConsent(ctx context.Context, rawEmail string, consentType consent.Type) (bool, error) {
	email, err := values.NewEmail(rawEmail)
	if err != nil {
		return false, err
	}

	c, err := s.consentRepo.GetBySubjectAndType(ctx, email.String(), consentType)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return c.IsValid(), nil
}

// ExpireConsents flips GRANTED rows past their expiry to EXPIRED, one audit
// entry per row, all in one transaction.
func (s *service) ExpireConsents(ctx context.Context) (int, error) {
	var expired []*consent.Consent
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		rows, err := s.consentRepo.FindExpiredGranted(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		for _, c := range rows {
			if err := c.Expire(); err != nil {
				return err
			}
			if err := s.consentRepo.Update(ctx, c); err != nil {
				return err
			}

			entry, err := audit.ConsentExpired(SystemActor, c.SubjectEmail.String(),
				string(c.Type), c.ExpiresAt)
			if err != nil {
				return err
			}
			if err := s.auditor.Record(ctx, entry); err != nil {
				return err
			}
		}
		expired = rows
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, c := range expired {
		telemetry.ConsentTransitions.WithLabelValues(string(consent.StatusExpired)).Inc()
		s.publisher.Publish(ctx, webhook.EventConsentExpired, toResponse(c))
	}

	if len(expired) > 0 {
		s.logger.Info("consent expiry sweep completed",
			zap.Int("expired", len(expired)))
	}
	return len(expired), nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
