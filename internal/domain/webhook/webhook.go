package webhook

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
)

// Event names are stable wire strings; subscribers filter on them.
type Event string

const (
	EventConsentGranted    Event = "consent.granted"
	EventConsentWithdrawn  Event = "consent.withdrawn"
	EventConsentExpired    Event = "consent.expired"
	EventRequestCreated    Event = "request.created"
	EventRequestProcessing Event = "request.processing"
	EventRequestCompleted  Event = "request.completed"
	EventRequestRejected   Event = "request.rejected"
	EventDataExported      Event = "data.exported"
	EventDataErased        Event = "data.erased"
	EventDataRectified     Event = "data.rectified"
	EventDataRestricted    Event = "data.restricted"
	EventOverdueAlert      Event = "compliance.overdue_alert"
	EventRetentionCleanup  Event = "compliance.retention_cleanup"
)

// Wildcard subscribes to every event.
const Wildcard = "*"

// String returns the wire representation of the event
func (e Event) String() string { return string(e) }

// ParseEvent parses a wire string into an Event; the wildcard passes through.
func ParseEvent(s string) (string, error) {
	if s == Wildcard {
		return Wildcard, nil
	}
	switch Event(s) {
	case EventConsentGranted, EventConsentWithdrawn, EventConsentExpired,
		EventRequestCreated, EventRequestProcessing, EventRequestCompleted,
		EventRequestRejected, EventDataExported, EventDataErased,
		EventDataRectified, EventDataRestricted, EventOverdueAlert,
		EventRetentionCleanup:
		return s, nil
	default:
		return "", errors.NewValidationError("INVALID_EVENT", fmt.Sprintf("invalid webhook event: %s", s))
	}
}

const (
	// DefaultRetryCount is the per-delivery attempt budget.
	DefaultRetryCount = 3
	// DefaultTimeoutSeconds is the per-attempt HTTP timeout.
	DefaultTimeoutSeconds = 30
	// MaxResponseBodyBytes is the stored response-body truncation limit.
	MaxResponseBodyBytes = 1024
	// LogRetentionDays is how long delivery logs are kept before trimming.
	LogRetentionDays = 90
)

// Subscription is one downstream consumer of signed event deliveries.
type Subscription struct {
	ID             uuid.UUID
	Name           string
	URL            string
	Secret         []byte
	Events         []string
	IsActive       bool
	Headers        map[string]string
	RetryCount     int
	TimeoutSeconds int
	LastTriggered  *time.Time
	LastStatusCode *int
	FailureCount   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewSubscription creates a validated, active subscription with defaults.
func NewSubscription(name, rawURL string, secret []byte, events []string) (*Subscription, error) {
	if name == "" {
		return nil, errors.NewValidationError("MISSING_NAME", "subscription name is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.NewValidationError("INVALID_URL", fmt.Sprintf("invalid webhook URL: %s", rawURL))
	}
	if len(secret) == 0 {
		return nil, errors.NewValidationError("MISSING_SECRET", "signing secret is required")
	}
	if len(events) == 0 {
		return nil, errors.NewValidationError("NO_EVENTS", "at least one event is required")
	}
	for _, ev := range events {
		if _, err := ParseEvent(ev); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	return &Subscription{
		ID:             uuid.New(),
		Name:           name,
		URL:            rawURL,
		Secret:         secret,
		Events:         events,
		IsActive:       true,
		Headers:        make(map[string]string),
		RetryCount:     DefaultRetryCount,
		TimeoutSeconds: DefaultTimeoutSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Matches reports whether the subscription wants the event.
func (s *Subscription) Matches(event Event) bool {
	for _, e := range s.Events {
		if e == Wildcard || e == string(event) {
			return true
		}
	}
	return false
}

// RecordAttempt updates the delivery bookkeeping after one attempt.
// failure_count resets on success and grows monotonically until the next
// success.
func (s *Subscription) RecordAttempt(statusCode *int, success bool) {
	now := time.Now().UTC()
	s.LastTriggered = &now
	s.LastStatusCode = statusCode
	if success {
		s.FailureCount = 0
	} else {
		s.FailureCount++
	}
	s.UpdatedAt = now
}

// Timeout returns the per-attempt timeout as a duration.
func (s *Subscription) Timeout() time.Duration {
	secs := s.TimeoutSeconds
	if secs <= 0 {
		secs = DefaultTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// Attempts returns the attempt budget for one delivery.
func (s *Subscription) Attempts() int {
	if s.RetryCount <= 0 {
		return DefaultRetryCount
	}
	return s.RetryCount
}

// DeliveryLog is one append-only delivery attempt record. Logs are trimmed
// after LogRetentionDays by the daily scheduler, never updated.
type DeliveryLog struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	EventType      string
	Payload        []byte
	AttemptNumber  int
	ResponseStatus *int
	ResponseBody   string
	Success        bool
	ErrorMessage   string
	DurationMs     int64
	CreatedAt      time.Time
}

// LogFilter narrows a delivery-log query. Nil or zero fields match
// everything on that dimension.
type LogFilter struct {
	SubscriptionID *uuid.UUID
	EventType      string
	Limit          int
}

// Envelope is the JSON body of every delivery POST.
type Envelope struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}
