package request

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/request"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

type mockRequestRepository struct {
	mock.Mock
}

func (m *mockRequestRepository) Create(ctx context.Context, r *request.Request) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRequestRepository) Update(ctx context.Context, r *request.Request) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*request.Request, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*request.Request), args.Error(1)
}

func (m *mockRequestRepository) HasOpenRequest(ctx context.Context, email string, requestType request.Type) (bool, error) {
	args := m.Called(ctx, email, requestType)
	return args.Bool(0), args.Error(1)
}

func (m *mockRequestRepository) List(ctx context.Context, filter RepoFilter) ([]*request.Request, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*request.Request), args.Error(1)
}

func (m *mockRequestRepository) FindOverdue(ctx context.Context, now time.Time) ([]*request.Request, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*request.Request), args.Error(1)
}

type mockDataOperator struct {
	mock.Mock
}

func (m *mockDataOperator) ExportFor(ctx context.Context, email string, requestID uuid.UUID, requester string) (string, int64, error) {
	args := m.Called(ctx, email, requestID, requester)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

func (m *mockDataOperator) EraseFor(ctx context.Context, email string, requestID uuid.UUID, requester string) (int64, error) {
	args := m.Called(ctx, email, requestID, requester)
	return args.Get(0).(int64), args.Error(1)
}

// recordingNotifier counts lifecycle notifications without sending anything.
type recordingNotifier struct {
	created   []*request.Request
	completed []*request.Request
	rejected  []*request.Request
}

func (n *recordingNotifier) NotifyRequestCreated(_ context.Context, r *request.Request) {
	n.created = append(n.created, r)
}

func (n *recordingNotifier) NotifyRequestCompleted(_ context.Context, r *request.Request) {
	n.completed = append(n.completed, r)
}

func (n *recordingNotifier) NotifyRequestRejected(_ context.Context, r *request.Request) {
	n.rejected = append(n.rejected, r)
}

type mockAuditRecorder struct {
	entries []*audit.Entry
	err     error
}

func (m *mockAuditRecorder) Record(_ context.Context, e *audit.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRecorder) byAction(action audit.Action) []*audit.Entry {
	var out []*audit.Entry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type passthroughTx struct{}

func (passthroughTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type publishedEvent struct {
	event webhook.Event
	data  interface{}
}

type mockPublisher struct {
	events []publishedEvent
}

func (m *mockPublisher) Publish(_ context.Context, event webhook.Event, data interface{}) {
	m.events = append(m.events, publishedEvent{event: event, data: data})
}
