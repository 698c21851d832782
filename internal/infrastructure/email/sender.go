package email

import (
	"context"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
)

// Sender delivers one HTML message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends mail through the configured SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewSMTPSender creates an SMTP-backed sender from config.
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPSender{
		dialer: d,
		from:   cfg.From,
		logger: logger,
	}
}

// Send dials the relay and delivers one message. gomail has no context
// support, so cancellation is checked before the dial only.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewDeliveryError("email send cancelled").WithCause(err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("email delivery failed",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
		return errors.NewDeliveryError("failed to send email").WithCause(err)
	}

	s.logger.Debug("email sent",
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}
