package notification

import (
	"context"
	"time"

	"github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/domain/request"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// Service defines the notification interface. Lifecycle notifications are
// best-effort and never return an error; the batch operations report how many
// candidates were found and how many mails actually left.
type Service interface {
	// Subject-facing request lifecycle mail.
	NotifyRequestCreated(ctx context.Context, r *request.Request)
	NotifyRequestCompleted(ctx context.Context, r *request.Request)
	NotifyRequestRejected(ctx context.Context, r *request.Request)

	// NotifyOverdue sends the DPO one digest listing every overdue request.
	NotifyOverdue(ctx context.Context) (*NotifyResult, error)

	// NotifyExpiringConsents mails each subject whose granted consent expires
	// within daysBefore days.
	NotifyExpiringConsents(ctx context.Context, daysBefore int) (*NotifyResult, error)
}

// EmailSender is the delivery seam; SMTP lives behind it.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// RequestFinder surfaces the overdue backlog
type RequestFinder interface {
	FindOverdue(ctx context.Context, now time.Time) ([]*request.Request, error)
}

// ConsentFinder surfaces consents approaching expiry
type ConsentFinder interface {
	FindExpiringGranted(ctx context.Context, now time.Time, days int) ([]*consent.Consent, error)
}

// EventPublisher fans compliance events out to webhook subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event webhook.Event, data interface{})
}

// OverdueAlert is the payload of the compliance.overdue_alert event.
type OverdueAlert struct {
	Count    int              `json:"count"`
	Requests []OverdueRequest `json:"requests"`
}

// OverdueRequest is one backlog entry inside an OverdueAlert.
type OverdueRequest struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	DaysOverdue int    `json:"days_overdue"`
}

// NotifyResult reports one batch notification run
type NotifyResult struct {
	CountFound int `json:"count_found"`
	CountSent  int `json:"count_sent"`
}
