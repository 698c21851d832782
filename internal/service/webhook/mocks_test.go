package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

type attemptRecord struct {
	id         uuid.UUID
	statusCode *int
	success    bool
}

// memoryRepo is an in-memory SubscriptionRepository. The dispatcher writes
// from several goroutines, so every method locks.
type memoryRepo struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]*webhook.Subscription
	logs     []*webhook.DeliveryLog
	attempts []attemptRecord
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{subs: make(map[uuid.UUID]*webhook.Subscription)}
}

func (m *memoryRepo) CreateSubscription(_ context.Context, s *webhook.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.ID] = s
	return nil
}

func (m *memoryRepo) UpdateSubscription(_ context.Context, s *webhook.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[s.ID]; !ok {
		return errors.ErrSubscriptionNotFound
	}
	m.subs[s.ID] = s
	return nil
}

func (m *memoryRepo) RecordAttempt(_ context.Context, id uuid.UUID, statusCode *int, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attemptRecord{id: id, statusCode: statusCode, success: success})
	return nil
}

func (m *memoryRepo) DeleteSubscription(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return errors.ErrSubscriptionNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *memoryRepo) GetSubscription(_ context.Context, id uuid.UUID) (*webhook.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, errors.ErrSubscriptionNotFound
	}
	return s, nil
}

func (m *memoryRepo) ListSubscriptions(_ context.Context) ([]*webhook.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*webhook.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryRepo) ListActiveSubscriptions(_ context.Context) ([]*webhook.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*webhook.Subscription
	for _, s := range m.subs {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryRepo) RecordDelivery(_ context.Context, l *webhook.DeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *memoryRepo) ListDeliveries(_ context.Context, f webhook.LogFilter) ([]*webhook.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*webhook.DeliveryLog
	for _, l := range m.logs {
		if f.SubscriptionID != nil && l.SubscriptionID != *f.SubscriptionID {
			continue
		}
		if f.EventType != "" && l.EventType != f.EventType {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *memoryRepo) TrimDeliveries(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*webhook.DeliveryLog
	var trimmed int64
	for _, l := range m.logs {
		if l.CreatedAt.Before(olderThan) {
			trimmed++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return trimmed, nil
}

func (m *memoryRepo) logsFor(id uuid.UUID) []*webhook.DeliveryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*webhook.DeliveryLog
	for _, l := range m.logs {
		if l.SubscriptionID == id {
			out = append(out, l)
		}
	}
	return out
}

func (m *memoryRepo) attemptsFor(id uuid.UUID) []attemptRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attemptRecord
	for _, a := range m.attempts {
		if a.id == id {
			out = append(out, a)
		}
	}
	return out
}
