package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/request"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
)

type service struct {
	sender    EmailSender
	requests  RequestFinder
	consents  ConsentFinder
	publisher EventPublisher
	dpoEmail  string
	logger    *zap.Logger
}

// NewService creates the notification service
func NewService(
	sender EmailSender,
	requests RequestFinder,
	consents ConsentFinder,
	publisher EventPublisher,
	cfg config.DPOConfig,
	logger *zap.Logger,
) Service {
	return &service{
		sender:    sender,
		requests:  requests,
		consents:  consents,
		publisher: publisher,
		dpoEmail:  cfg.Email,
		logger:    logger,
	}
}

var _ Service = (*service)(nil)

// send delivers one mail, logging instead of propagating failures. Returns
// whether the mail actually left.
func (s *service) send(ctx context.Context, to, subject, body string) bool {
	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		s.logger.Warn("notification email failed",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *service) NotifyRequestCreated(ctx context.Context, r *request.Request) {
	subject, body := createdMail(r)
	s.send(ctx, r.SubjectEmail.String(), subject, body)
}

func (s *service) NotifyRequestCompleted(ctx context.Context, r *request.Request) {
	subject, body := completedMail(r)
	s.send(ctx, r.SubjectEmail.String(), subject, body)
}

func (s *service) NotifyRequestRejected(ctx context.Context, r *request.Request) {
	subject, body := rejectedMail(r)
	s.send(ctx, r.SubjectEmail.String(), subject, body)
}

func (s *service) NotifyOverdue(ctx context.Context) (*NotifyResult, error) {
	overdue, err := s.requests.FindOverdue(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	result := &NotifyResult{CountFound: len(overdue)}
	if len(overdue) == 0 {
		return result, nil
	}

	subject, body := overdueDigest(overdue)
	if s.send(ctx, s.dpoEmail, subject, body) {
		// One digest covers the whole backlog.
		result.CountSent = len(overdue)
	}

	alert := OverdueAlert{Count: len(overdue)}
	for _, r := range overdue {
		alert.Requests = append(alert.Requests, OverdueRequest{
			ID:          r.ID.String(),
			Email:       r.SubjectEmail.String(),
			Type:        string(r.Type),
			Status:      string(r.Status),
			DaysOverdue: r.DaysOverdue(),
		})
	}
	s.publisher.Publish(ctx, webhook.EventOverdueAlert, alert)

	s.logger.Info("overdue digest processed",
		zap.Int("count_found", result.CountFound),
		zap.Int("count_sent", result.CountSent),
	)
	return result, nil
}

func (s *service) NotifyExpiringConsents(ctx context.Context, daysBefore int) (*NotifyResult, error) {
	expiring, err := s.consents.FindExpiringGranted(ctx, time.Now().UTC(), daysBefore)
	if err != nil {
		return nil, err
	}

	result := &NotifyResult{CountFound: len(expiring)}
	for _, c := range expiring {
		if c.ExpiresAt == nil {
			continue
		}
		subject, body := expiringConsentMail(c, *c.ExpiresAt)
		if s.send(ctx, c.SubjectEmail.String(), subject, body) {
			result.CountSent++
		}
	}
	s.logger.Info("consent expiry pre-notice processed",
		zap.Int("days_before", daysBefore),
		zap.Int("count_found", result.CountFound),
		zap.Int("count_sent", result.CountSent),
	)
	return result, nil
}
