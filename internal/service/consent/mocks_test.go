package consent

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

type mockConsentRepository struct {
	mock.Mock
}

func (m *mockConsentRepository) Upsert(ctx context.Context, c *consent.Consent) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockConsentRepository) Update(ctx context.Context, c *consent.Consent) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockConsentRepository) GetBySubjectAndType(ctx context.Context, email string, consentType consent.Type) (*consent.Consent, error) {
	args := m.Called(ctx, email, consentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consent.Consent), args.Error(1)
}

func (m *mockConsentRepository) ListBySubject(ctx context.Context, email string) ([]*consent.Consent, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consent.Consent), args.Error(1)
}

func (m *mockConsentRepository) FindExpiredGranted(ctx context.Context, now time.Time) ([]*consent.Consent, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consent.Consent), args.Error(1)
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

// passthroughTx runs the function directly; transactional bracketing is
// covered by the integration suite.
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
