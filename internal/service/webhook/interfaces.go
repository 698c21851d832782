package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// Service defines the webhook dispatcher interface: subscription management
// plus signed event fan-out to every matching subscriber.
type Service interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResponse, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, req UpdateSubscriptionRequest) (*SubscriptionResponse, error)
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*SubscriptionResponse, error)
	ListSubscriptions(ctx context.Context) ([]*SubscriptionResponse, error)

	// ListDeliveries returns delivery logs; the filter's subscription and
	// event dimensions are each optional.
	ListDeliveries(ctx context.Context, f webhook.LogFilter) ([]*DeliveryResponse, error)

	// Dispatch delivers the event to every matching active subscription and
	// blocks until all of them have exhausted their attempt budgets.
	Dispatch(ctx context.Context, event webhook.Event, data interface{}) (*DispatchResult, error)

	// Publish is the fire-and-forget entry point business services call after
	// committing. Delivery runs detached from the caller's transaction and
	// its failures never surface to the originating operation.
	Publish(ctx context.Context, event webhook.Event, data interface{})

	// TrimLogs reaps delivery logs older than the cutoff.
	TrimLogs(ctx context.Context, olderThan time.Time) (int64, error)

	// Drain blocks until all async dispatches spawned by Publish finish.
	// Shutdown paths call it before closing the connection pool.
	Drain()
}

// SubscriptionRepository is the persistence dependency
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, s *webhook.Subscription) error
	UpdateSubscription(ctx context.Context, s *webhook.Subscription) error
	RecordAttempt(ctx context.Context, id uuid.UUID, statusCode *int, success bool) error
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*webhook.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*webhook.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]*webhook.Subscription, error)
	RecordDelivery(ctx context.Context, l *webhook.DeliveryLog) error
	ListDeliveries(ctx context.Context, f webhook.LogFilter) ([]*webhook.DeliveryLog, error)
	TrimDeliveries(ctx context.Context, olderThan time.Time) (int64, error)
}

// CreateSubscriptionRequest registers one subscriber
type CreateSubscriptionRequest struct {
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryCount     int               `json:"retry_count,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// UpdateSubscriptionRequest carries a partial update; nil fields are kept.
type UpdateSubscriptionRequest struct {
	Name           *string           `json:"name,omitempty"`
	URL            *string           `json:"url,omitempty"`
	Secret         *string           `json:"secret,omitempty"`
	Events         []string          `json:"events,omitempty"`
	IsActive       *bool             `json:"is_active,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryCount     *int              `json:"retry_count,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
}

// SubscriptionResponse is the wire view of one subscription. The signing
// secret is never echoed back.
type SubscriptionResponse struct {
	ID             uuid.UUID         `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Events         []string          `json:"events"`
	IsActive       bool              `json:"is_active"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryCount     int               `json:"retry_count"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	LastTriggered  *time.Time        `json:"last_triggered,omitempty"`
	LastStatusCode *int              `json:"last_status_code,omitempty"`
	FailureCount   int               `json:"failure_count"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// DeliveryResponse is the wire view of one delivery-attempt log row
type DeliveryResponse struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	EventType      string    `json:"event_type"`
	AttemptNumber  int       `json:"attempt_number"`
	ResponseStatus *int      `json:"response_status,omitempty"`
	ResponseBody   string    `json:"response_body,omitempty"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// DispatchResult summarizes one synchronous dispatch
type DispatchResult struct {
	Event     string `json:"event"`
	Matched   int    `json:"matched"`
	Delivered int    `json:"delivered"`
}

func toSubscriptionResponse(s *webhook.Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{
		ID:             s.ID,
		Name:           s.Name,
		URL:            s.URL,
		Events:         s.Events,
		IsActive:       s.IsActive,
		Headers:        s.Headers,
		RetryCount:     s.RetryCount,
		TimeoutSeconds: s.TimeoutSeconds,
		LastTriggered:  s.LastTriggered,
		LastStatusCode: s.LastStatusCode,
		FailureCount:   s.FailureCount,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toDeliveryResponse(l *webhook.DeliveryLog) *DeliveryResponse {
	return &DeliveryResponse{
		ID:             l.ID,
		SubscriptionID: l.SubscriptionID,
		EventType:      l.EventType,
		AttemptNumber:  l.AttemptNumber,
		ResponseStatus: l.ResponseStatus,
		ResponseBody:   l.ResponseBody,
		Success:        l.Success,
		ErrorMessage:   l.ErrorMessage,
		DurationMs:     l.DurationMs,
		CreatedAt:      l.CreatedAt,
	}
}
