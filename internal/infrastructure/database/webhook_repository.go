package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// WebhookRepository persists subscriptions and their delivery logs. Delivery
// logs are append-only; the only destructive statement is the age-based trim.
type WebhookRepository struct {
	db *ConnectionPool
}

// NewWebhookRepository creates a new PostgreSQL webhook repository
func NewWebhookRepository(db *ConnectionPool) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const subscriptionColumns = `
	id, name, url, secret, events, is_active, headers, retry_count,
	timeout_seconds, last_triggered, last_status_code, failure_count,
	created_at, updated_at`

// CreateSubscription inserts a subscription row.
func (r *WebhookRepository) CreateSubscription(ctx context.Context, s *webhook.Subscription) error {
	headers, err := json.Marshal(s.Headers)
	if err != nil {
		return errors.NewInternalError("failed to marshal headers").WithCause(err)
	}

	_, err = r.db.DB(ctx).Exec(ctx, `
		INSERT INTO webhook_subscriptions (
			id, name, url, secret, events, is_active, headers, retry_count,
			timeout_seconds, last_triggered, last_status_code, failure_count,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, s.ID, s.Name, s.URL, s.Secret, pq.Array(s.Events), s.IsActive,
		headers, s.RetryCount, s.TimeoutSeconds, s.LastTriggered,
		s.LastStatusCode, s.FailureCount, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to create webhook subscription").WithCause(err)
	}
	return nil
}

// UpdateSubscription rewrites the mutable columns.
func (r *WebhookRepository) UpdateSubscription(ctx context.Context, s *webhook.Subscription) error {
	headers, err := json.Marshal(s.Headers)
	if err != nil {
		return errors.NewInternalError("failed to marshal headers").WithCause(err)
	}

	tag, err := r.db.DB(ctx).Exec(ctx, `
		UPDATE webhook_subscriptions SET
			name = $2, url = $3, secret = $4, events = $5, is_active = $6,
			headers = $7, retry_count = $8, timeout_seconds = $9,
			last_triggered = $10, last_status_code = $11, failure_count = $12,
			updated_at = $13
		WHERE id = $1
	`, s.ID, s.Name, s.URL, s.Secret, pq.Array(s.Events), s.IsActive,
		headers, s.RetryCount, s.TimeoutSeconds, s.LastTriggered,
		s.LastStatusCode, s.FailureCount, s.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to update webhook subscription").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrSubscriptionNotFound
	}
	return nil
}

// RecordAttempt updates only the delivery bookkeeping columns. The dispatcher
// calls it outside any business transaction, so it must not clobber
// concurrent edits to the subscription's configuration.
func (r *WebhookRepository) RecordAttempt(ctx context.Context, id uuid.UUID, statusCode *int, success bool) error {
	_, err := r.db.DB(ctx).Exec(ctx, `
		UPDATE webhook_subscriptions SET
			last_triggered = now(),
			last_status_code = $2,
			failure_count = CASE WHEN $3 THEN 0 ELSE failure_count + 1 END,
			updated_at = now()
		WHERE id = $1
	`, id, statusCode, success)
	if err != nil {
		return errors.NewInternalError("failed to record delivery attempt").WithCause(err)
	}
	return nil
}

// DeleteSubscription removes a subscription. Its delivery logs remain until
// the age-based trim reaps them.
func (r *WebhookRepository) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.DB(ctx).Exec(ctx, `
		DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return errors.NewInternalError("failed to delete webhook subscription").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrSubscriptionNotFound
	}
	return nil
}

// GetSubscription loads one subscription.
func (r *WebhookRepository) GetSubscription(ctx context.Context, id uuid.UUID) (*webhook.Subscription, error) {
	row := r.db.DB(ctx).QueryRow(ctx, `
		SELECT`+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE id = $1
	`, id)

	s, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.ErrSubscriptionNotFound
		}
		return nil, errors.NewInternalError("failed to get webhook subscription").WithCause(err)
	}
	return s, nil
}

// ListSubscriptions returns every subscription, newest first.
func (r *WebhookRepository) ListSubscriptions(ctx context.Context) ([]*webhook.Subscription, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+subscriptionColumns+`
		FROM webhook_subscriptions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, errors.NewInternalError("failed to query webhook subscriptions").WithCause(err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// ListActiveSubscriptions returns the dispatch candidates. Event matching
// happens in the dispatcher, where the wildcard lives.
func (r *WebhookRepository) ListActiveSubscriptions(ctx context.Context) ([]*webhook.Subscription, error) {
	rows, err := r.db.DB(ctx).Query(ctx, `
		SELECT`+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE is_active = TRUE
		ORDER BY created_at
	`)
	if err != nil {
		return nil, errors.NewInternalError("failed to query webhook subscriptions").WithCause(err)
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// RecordDelivery appends one delivery-attempt log row.
func (r *WebhookRepository) RecordDelivery(ctx context.Context, l *webhook.DeliveryLog) error {
	_, err := r.db.DB(ctx).Exec(ctx, `
		INSERT INTO webhook_logs (
			id, subscription_id, event_type, payload, attempt_number,
			response_status, response_body, success, error_message,
			duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, l.ID, l.SubscriptionID, l.EventType, l.Payload, l.AttemptNumber,
		l.ResponseStatus, nullable(l.ResponseBody), l.Success,
		nullable(l.ErrorMessage), l.DurationMs, l.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to record webhook delivery").WithCause(err)
	}
	return nil
}

// ListDeliveries returns recent delivery logs, newest first. The filter's
// subscription and event dimensions are each optional.
func (r *WebhookRepository) ListDeliveries(ctx context.Context, f webhook.LogFilter) ([]*webhook.DeliveryLog, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "TRUE"
	args := []any{}
	if f.SubscriptionID != nil {
		args = append(args, *f.SubscriptionID)
		where += fmt.Sprintf(" AND subscription_id = $%d", len(args))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		where += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	args = append(args, limit)

	rows, err := r.db.DB(ctx).Query(ctx, fmt.Sprintf(`
		SELECT id, subscription_id, event_type, payload, attempt_number,
		       response_status, response_body, success, error_message,
		       duration_ms, created_at
		FROM webhook_logs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, where, len(args)), args...)
	if err != nil {
		return nil, errors.NewInternalError("failed to query webhook deliveries").WithCause(err)
	}
	defer rows.Close()

	var out []*webhook.DeliveryLog
	for rows.Next() {
		var l webhook.DeliveryLog
		var body, errMsg *string
		err := rows.Scan(&l.ID, &l.SubscriptionID, &l.EventType, &l.Payload,
			&l.AttemptNumber, &l.ResponseStatus, &body, &l.Success,
			&errMsg, &l.DurationMs, &l.CreatedAt)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan webhook delivery").WithCause(err)
		}
		l.ResponseBody = deref(body)
		l.ErrorMessage = deref(errMsg)
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating webhook deliveries").WithCause(err)
	}
	return out, nil
}

// TrimDeliveries deletes logs older than the retention window and returns
// the count removed.
func (r *WebhookRepository) TrimDeliveries(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.DB(ctx).Exec(ctx, `
		DELETE FROM webhook_logs WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, errors.NewInternalError("failed to trim webhook logs").WithCause(err)
	}
	return tag.RowsAffected(), nil
}

func scanSubscription(row pgx.Row) (*webhook.Subscription, error) {
	var s webhook.Subscription
	var headers []byte
	err := row.Scan(&s.ID, &s.Name, &s.URL, &s.Secret, pq.Array(&s.Events),
		&s.IsActive, &headers, &s.RetryCount, &s.TimeoutSeconds,
		&s.LastTriggered, &s.LastStatusCode, &s.FailureCount,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Headers = make(map[string]string)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &s.Headers); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func scanSubscriptions(rows pgx.Rows) ([]*webhook.Subscription, error) {
	var out []*webhook.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan webhook subscription").WithCause(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("error iterating webhook subscriptions").WithCause(err)
	}
	return out, nil
}
