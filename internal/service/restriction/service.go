package restriction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/restriction"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

const systemActor = "system"

// Ensure service implements the interface
var _ Service = (*service)(nil)

type service struct {
	logger    *zap.Logger
	repo      RestrictionRepository
	auditor   AuditRecorder
	tx        Transactor
	publisher EventPublisher
}

// NewService creates a new restriction service
func NewService(
	logger *zap.Logger,
	repo RestrictionRepository,
	auditor AuditRecorder,
	tx Transactor,
	publisher EventPublisher,
) Service {
	return &service{
		logger:    logger,
		repo:      repo,
		auditor:   auditor,
		tx:        tx,
		publisher: publisher,
	}
}

// Create places a hold. One active restriction per subject; a second request
// while one is in force conflicts.
func (s *service) Create(ctx context.Context, req CreateRequest) (*Response, error) {
	email, err := values.NewEmail(req.Email)
	if err != nil {
		return nil, err
	}

	res, err := restriction.New(email, restriction.Reason(req.Reason), restriction.Params{
		Details:       req.Details,
		Operations:    req.Operations,
		Tables:        req.Tables,
		ExpiresInDays: req.ExpiresInDays,
		RequestID:     req.RequestID,
	})
	if err != nil {
		return nil, err
	}

	performedBy := req.PerformedBy
	if performedBy == "" {
		performedBy = "data_subject"
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		active, err := s.repo.HasActiveForSubject(ctx, email.String())
		if err != nil {
			return err
		}
		if active {
			return errors.ErrRestrictionExists
		}
		if err := s.repo.Create(ctx, res); err != nil {
			return err
		}
		entry, err := audit.NewEntry(audit.ActionPolicyUpdated, performedBy)
		if err != nil {
			return err
		}
		entry.WithSubject(email.String()).
			WithActor(req.IPAddress, req.UserAgent).
			WithDetail("operation", "processing_restriction_requested").
			WithDetail("restriction_id", res.ID.String()).
			WithDetail("reason", req.Reason).
			WithDetail("operations", res.RestrictedOperations).
			WithDetail("tables", res.RestrictedTables)
		if req.RequestID != nil {
			entry.WithRequest(*req.RequestID)
		}
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("processing restriction placed",
		zap.String("restriction_id", res.ID.String()),
		zap.String("reason", req.Reason))

	s.publisher.Publish(ctx, webhook.EventDataRestricted, toResponse(res))
	return toResponse(res), nil
}

// Lift deactivates one restriction.
func (s *service) Lift(ctx context.Context, id uuid.UUID, req LiftRequest) (*Response, error) {
	var lifted *restriction.Restriction
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		res, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := res.Lift(req.LiftedBy, req.LiftReason); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, res); err != nil {
			return err
		}
		lifted = res

		entry, err := audit.NewEntry(audit.ActionPolicyUpdated, req.LiftedBy)
		if err != nil {
			return err
		}
		entry.WithSubject(res.SubjectEmail.String()).
			WithDetail("operation", "processing_restriction_lifted").
			WithDetail("restriction_id", id.String()).
			WithDetail("lift_reason", req.LiftReason)
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("processing restriction lifted",
		zap.String("restriction_id", id.String()),
		zap.String("lifted_by", req.LiftedBy))

	return toResponse(lifted), nil
}

// Check evaluates the subject's active restrictions against op and table.
// A restriction binds when both dimensions match, with "all" as wildcard and
// an empty query dimension treated as matched.
func (s *service) Check(ctx context.Context, rawEmail, op, table string) (*CheckResult, error) {
	email, err := values.NewEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	active, err := s.repo.ListActiveBySubject(ctx, email.String())
	if err != nil {
		return nil, err
	}

	result := &CheckResult{}
	for _, res := range active {
		if res.Covers(op, table) {
			result.Restricted = true
			result.Matched = append(result.Matched, *toResponse(res))
		}
	}
	return result, nil
}

// List returns all of the subject's restrictions, newest first.
func (s *service) List(ctx context.Context, rawEmail string) ([]*Response, error) {
	email, err := values.NewEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.ListBySubject(ctx, email.String())
	if err != nil {
		return nil, err
	}

	out := make([]*Response, len(all))
	for i, res := range all {
		out[i] = toResponse(res)
	}
	return out, nil
}

// ExpireRestrictions deactivates active rows past their expiry. Expired
// restrictions carry no lift metadata; only explicit lifts do.
func (s *service) ExpireRestrictions(ctx context.Context) (int, error) {
	var count int
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		rows, err := s.repo.FindExpiredActive(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		for _, res := range rows {
			res.Expire()
			if err := s.repo.Update(ctx, res); err != nil {
				return err
			}
			entry, err := audit.NewEntry(audit.ActionPolicyUpdated, systemActor)
			if err != nil {
				return err
			}
			entry.WithSubject(res.SubjectEmail.String()).
				WithDetail("operation", "processing_restriction_expired").
				WithDetail("restriction_id", res.ID.String())
			if err := s.auditor.Record(ctx, entry); err != nil {
				return err
			}
		}
		count = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.logger.Info("restriction expiry sweep completed", zap.Int("expired", count))
	}
	return count, nil
}
