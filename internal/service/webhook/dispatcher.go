package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/telemetry"
)

// Delivery headers. The signature covers the exact request body.
const (
	headerEvent     = "X-Webhook-Event"
	headerSignature = "X-Webhook-Signature"
	headerTimestamp = "X-Webhook-Timestamp"
)

// dispatcher owns the HTTP delivery machinery: signing, the attempt loop
// with exponential backoff, per-attempt logging and the outbound rate cap.
type dispatcher struct {
	repo       SubscriptionRepository
	client     *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	logger     *zap.Logger
}

func newDispatcher(repo SubscriptionRepository, limiter *rate.Limiter, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		repo:       repo,
		client:     &http.Client{},
		limiter:    limiter,
		retryDelay: time.Second,
		logger:     logger,
	}
}

// signPayload computes the body signature subscribers verify:
// "sha256=" + hex(HMAC-SHA256(secret, body)).
func signPayload(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// deliver runs one subscription's attempt loop. Between attempts n and n+1 it
// waits retryDelay * 2^(n-1), giving 1s, 2s, 4s at the default. Every attempt
// is logged and rolled into the subscription's bookkeeping row, so
// last_triggered and last_status_code always reflect the most recent attempt
// and failure_count grows by one per failed attempt.
func (d *dispatcher) deliver(ctx context.Context, sub *webhook.Subscription, event webhook.Event, payload []byte, timestamp string) bool {
	success := false

	for attempt := 1; attempt <= sub.Attempts(); attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				d.logger.Warn("webhook delivery abandoned",
					zap.String("subscription", sub.Name),
					zap.String("event", string(event)),
					zap.Error(ctx.Err()),
				)
				break
			case <-time.After(d.retryDelay << (attempt - 2)):
			}
		}
		if ctx.Err() != nil {
			break
		}
		if err := d.limiter.Wait(ctx); err != nil {
			break
		}

		start := time.Now()
		status, body, err := d.post(ctx, sub, event, payload, timestamp)
		elapsed := time.Since(start)
		telemetry.WebhookDeliveryDuration.Observe(elapsed.Seconds())
		success = err == nil && status != nil && *status >= 200 && *status < 300
		if success {
			telemetry.WebhookDeliveries.WithLabelValues("success").Inc()
		} else {
			telemetry.WebhookDeliveries.WithLabelValues("failure").Inc()
		}

		log := &webhook.DeliveryLog{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			EventType:      string(event),
			Payload:        payload,
			AttemptNumber:  attempt,
			ResponseStatus: status,
			ResponseBody:   body,
			Success:        success,
			DurationMs:     elapsed.Milliseconds(),
			CreatedAt:      time.Now().UTC(),
		}
		if err != nil {
			log.ErrorMessage = err.Error()
		}
		if recordErr := d.repo.RecordDelivery(ctx, log); recordErr != nil {
			d.logger.Error("failed to record webhook delivery log",
				zap.String("subscription", sub.Name),
				zap.Error(recordErr),
			)
		}
		if err := d.repo.RecordAttempt(ctx, sub.ID, status, success); err != nil {
			d.logger.Error("failed to update webhook bookkeeping",
				zap.String("subscription", sub.Name),
				zap.Error(err),
			)
		}

		if success {
			break
		}
	}

	if !success {
		d.logger.Warn("webhook delivery failed",
			zap.String("subscription", sub.Name),
			zap.String("event", string(event)),
			zap.Int("attempts", sub.Attempts()),
		)
	}
	return success
}

// post performs one signed HTTP attempt. The stored response body is capped
// at MaxResponseBodyBytes.
func (d *dispatcher) post(ctx context.Context, sub *webhook.Subscription, event webhook.Event, payload []byte, timestamp string) (*int, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, sub.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, string(event))
	req.Header.Set(headerSignature, signPayload(sub.Secret, payload))
	req.Header.Set(headerTimestamp, timestamp)
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, webhook.MaxResponseBodyBytes))
	status := resp.StatusCode
	return &status, string(body), nil
}
