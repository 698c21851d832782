package restriction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/restriction"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

type mockRestrictionRepository struct {
	mock.Mock
}

func (m *mockRestrictionRepository) Create(ctx context.Context, r *restriction.Restriction) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockRestrictionRepository) Update(ctx context.Context, r *restriction.Restriction) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockRestrictionRepository) GetByID(ctx context.Context, id uuid.UUID) (*restriction.Restriction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*restriction.Restriction), args.Error(1)
}

func (m *mockRestrictionRepository) ListBySubject(ctx context.Context, email string) ([]*restriction.Restriction, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*restriction.Restriction), args.Error(1)
}

func (m *mockRestrictionRepository) ListActiveBySubject(ctx context.Context, email string) ([]*restriction.Restriction, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*restriction.Restriction), args.Error(1)
}

func (m *mockRestrictionRepository) HasActiveForSubject(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockRestrictionRepository) FindExpiredActive(ctx context.Context, now time.Time) ([]*restriction.Restriction, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*restriction.Restriction), args.Error(1)
}

type mockAuditRecorder struct {
	mock.Mock
	entries []*audit.Entry
}

func (m *mockAuditRecorder) Record(ctx context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, e)
	args := m.Called(ctx, e)
	return args.Error(0)
}

type passthroughTx struct{}

func (passthroughTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockPublisher struct {
	mock.Mock
	events []webhook.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event webhook.Event, data interface{}) {
	m.events = append(m.events, event)
	m.Called(ctx, event, data)
}
