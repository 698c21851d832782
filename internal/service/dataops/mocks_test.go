package dataops

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

type mockSubjectData struct {
	mock.Mock
}

func (m *mockSubjectData) CountRows(ctx context.Context, d schema.TableDescriptor, email string) (int64, error) {
	args := m.Called(ctx, d.Name, email)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSubjectData) SelectRows(ctx context.Context, d schema.TableDescriptor, email string) ([]string, []map[string]any, error) {
	args := m.Called(ctx, d.Name, email)
	var cols []string
	var rows []map[string]any
	if args.Get(0) != nil {
		cols = args.Get(0).([]string)
	}
	if args.Get(1) != nil {
		rows = args.Get(1).([]map[string]any)
	}
	return cols, rows, args.Error(2)
}

func (m *mockSubjectData) DeleteBySubject(ctx context.Context, d schema.TableDescriptor, email string) (int64, error) {
	args := m.Called(ctx, d.Name, email)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSubjectData) AnonymizeBySubject(ctx context.Context, d schema.TableDescriptor, email string) (int64, error) {
	args := m.Called(ctx, d.Name, email)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSubjectData) SelectFields(ctx context.Context, d schema.TableDescriptor, email string, fields []string) ([]map[string]any, error) {
	args := m.Called(ctx, d.Name, email, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *mockSubjectData) RectifyFields(ctx context.Context, d schema.TableDescriptor, email string, fields map[string]any) (int64, error) {
	args := m.Called(ctx, d.Name, email, fields)
	return args.Get(0).(int64), args.Error(1)
}

type mockRestrictionChecker struct {
	mock.Mock
}

func (m *mockRestrictionChecker) IsRestricted(ctx context.Context, email, op, table string) (bool, error) {
	args := m.Called(ctx, email, op, table)
	return args.Bool(0), args.Error(1)
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
