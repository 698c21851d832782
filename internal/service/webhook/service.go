package webhook

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
)

type service struct {
	repo       SubscriptionRepository
	dispatcher *dispatcher
	logger     *zap.Logger

	// wg tracks in-flight async dispatches so Close can drain them.
	wg sync.WaitGroup
}

// NewService creates the webhook dispatcher
func NewService(repo SubscriptionRepository, cfg config.WebhookConfig, logger *zap.Logger) Service {
	perSecond := cfg.DeliveriesPerSecond
	if perSecond <= 0 {
		perSecond = 50
	}
	burst := cfg.DeliveryBurst
	if burst <= 0 {
		burst = perSecond
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return &service{
		repo:       repo,
		dispatcher: newDispatcher(repo, limiter, logger),
		logger:     logger,
	}
}

var _ Service = (*service)(nil)

func (s *service) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*SubscriptionResponse, error) {
	sub, err := webhook.NewSubscription(req.Name, req.URL, []byte(req.Secret), req.Events)
	if err != nil {
		return nil, err
	}
	if req.Headers != nil {
		sub.Headers = req.Headers
	}
	if req.RetryCount > 0 {
		sub.RetryCount = req.RetryCount
	}
	if req.TimeoutSeconds > 0 {
		sub.TimeoutSeconds = req.TimeoutSeconds
	}

	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("webhook subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("name", sub.Name),
		zap.Strings("events", sub.Events),
	)
	return toSubscriptionResponse(sub), nil
}

func (s *service) UpdateSubscription(ctx context.Context, id uuid.UUID, req UpdateSubscriptionRequest) (*SubscriptionResponse, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		sub.Name = *req.Name
	}
	if req.URL != nil {
		sub.URL = *req.URL
	}
	if req.Secret != nil {
		sub.Secret = []byte(*req.Secret)
	}
	if req.Events != nil {
		sub.Events = req.Events
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}
	if req.Headers != nil {
		sub.Headers = req.Headers
	}
	if req.RetryCount != nil {
		sub.RetryCount = *req.RetryCount
	}
	if req.TimeoutSeconds != nil {
		sub.TimeoutSeconds = *req.TimeoutSeconds
	}
	sub.UpdatedAt = time.Now().UTC()

	// Re-run domain validation over the merged state.
	if _, err := webhook.NewSubscription(sub.Name, sub.URL, sub.Secret, sub.Events); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return toSubscriptionResponse(sub), nil
}

func (s *service) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSubscription(ctx, id); err != nil {
		return err
	}
	s.logger.Info("webhook subscription deleted", zap.String("subscription_id", id.String()))
	return nil
}

func (s *service) GetSubscription(ctx context.Context, id uuid.UUID) (*SubscriptionResponse, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSubscriptionResponse(sub), nil
}

func (s *service) ListSubscriptions(ctx context.Context) ([]*SubscriptionResponse, error) {
	subs, err := s.repo.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*SubscriptionResponse, len(subs))
	for i, sub := range subs {
		out[i] = toSubscriptionResponse(sub)
	}
	return out, nil
}

func (s *service) ListDeliveries(ctx context.Context, f webhook.LogFilter) ([]*DeliveryResponse, error) {
	logs, err := s.repo.ListDeliveries(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]*DeliveryResponse, len(logs))
	for i, l := range logs {
		out[i] = toDeliveryResponse(l)
	}
	return out, nil
}

func (s *service) Dispatch(ctx context.Context, event webhook.Event, data interface{}) (*DispatchResult, error) {
	subs, err := s.repo.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*webhook.Subscription
	for _, sub := range subs {
		if sub.Matches(event) {
			matched = append(matched, sub)
		}
	}
	result := &DispatchResult{Event: string(event), Matched: len(matched)}
	if len(matched) == 0 {
		return result, nil
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(webhook.Envelope{
		Event:     string(event),
		Timestamp: timestamp,
		Data:      data,
	})
	if err != nil {
		return nil, errors.NewInternalError("failed to marshal webhook payload").WithCause(err)
	}

	// Subscriptions are delivered concurrently; retries within one
	// subscription stay sequential.
	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, sub := range matched {
		wg.Add(1)
		go func(sub *webhook.Subscription) {
			defer wg.Done()
			if s.dispatcher.deliver(ctx, sub, event, payload, timestamp) {
				delivered.Add(1)
			}
		}(sub)
	}
	wg.Wait()

	result.Delivered = int(delivered.Load())
	return result, nil
}

func (s *service) Publish(ctx context.Context, event webhook.Event, data interface{}) {
	// Detach from the caller's cancellation: the business operation has
	// already committed and must not wait on downstream consumers.
	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Dispatch(detached, event, data); err != nil {
			s.logger.Error("async webhook dispatch failed",
				zap.String("event", string(event)),
				zap.Error(err),
			)
		}
	}()
}

func (s *service) TrimLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.repo.TrimDeliveries(ctx, olderThan)
}

func (s *service) Drain() {
	s.wg.Wait()
}
