package retention

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/retention"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

type mockRetentionRepository struct {
	mock.Mock
}

func (m *mockRetentionRepository) Create(ctx context.Context, p *retention.Policy) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockRetentionRepository) Update(ctx context.Context, p *retention.Policy) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockRetentionRepository) GetByID(ctx context.Context, id uuid.UUID) (*retention.Policy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retention.Policy), args.Error(1)
}

func (m *mockRetentionRepository) ListActive(ctx context.Context) ([]*retention.Policy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*retention.Policy), args.Error(1)
}

func (m *mockRetentionRepository) ListAll(ctx context.Context) ([]*retention.Policy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*retention.Policy), args.Error(1)
}

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) CountExpired(ctx context.Context, p *retention.Policy) (int64, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSweeper) DeleteExpired(ctx context.Context, p *retention.Policy) (int64, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSweeper) AnonymizeExpired(ctx context.Context, p *retention.Policy, d schema.TableDescriptor) (int64, error) {
	args := m.Called(ctx, p, d)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSweeper) ArchiveExpired(ctx context.Context, p *retention.Policy) (int64, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(int64), args.Error(1)
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
