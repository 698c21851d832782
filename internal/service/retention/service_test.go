package retention

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/retention"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

func newTestService(t *testing.T) (Service, *mockRetentionRepository, *mockSweeper, *mockAuditRecorder, *mockPublisher) {
	t.Helper()
	policies := &mockRetentionRepository{}
	sweeper := &mockSweeper{}
	auditor := &mockAuditRecorder{}
	publisher := &mockPublisher{}
	svc := NewService(zap.NewNop(), schema.DefaultMap(), policies, sweeper,
		auditor, passthroughTx{}, publisher)
	return svc, policies, sweeper, auditor, publisher
}

func TestCreatePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an active policy", func(t *testing.T) {
		svc, policies, _, auditor, _ := newTestService(t)

		policies.On("Create", mock.Anything, mock.AnythingOfType("*retention.Policy")).Return(nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)

		resp, err := svc.CreatePolicy(ctx, PolicyRequest{
			TableName:     "leads",
			RetentionDays: 365,
			Action:        "DELETE",
			PerformedBy:   "dpo",
		})
		require.NoError(t, err)

		assert.True(t, resp.IsActive)
		assert.Equal(t, 365, resp.RetentionDays)
		require.Len(t, auditor.entries, 1)
		assert.Equal(t, "POLICY_UPDATED", string(auditor.entries[0].Action))
	})

	t.Run("table outside the schema map is rejected", func(t *testing.T) {
		svc, policies, _, _, _ := newTestService(t)

		_, err := svc.CreatePolicy(ctx, PolicyRequest{
			TableName:     "payments",
			RetentionDays: 365,
			Action:        "DELETE",
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		policies.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("non-positive retention is rejected", func(t *testing.T) {
		svc, _, _, _, _ := newTestService(t)

		_, err := svc.CreatePolicy(ctx, PolicyRequest{
			TableName:     "leads",
			RetentionDays: 0,
			Action:        "DELETE",
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestRunCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("sweeps each active policy by its action", func(t *testing.T) {
		svc, policies, sweeper, auditor, publisher := newTestService(t)

		deletePolicy := newPolicy(t, "leads", 365, retention.ActionDelete)
		anonPolicy := newPolicy(t, "users", 730, retention.ActionAnonymize)
		archivePolicy := newPolicy(t, "reviews", 365, retention.ActionArchive)

		policies.On("ListActive", mock.Anything).
			Return([]*retention.Policy{deletePolicy, anonPolicy, archivePolicy}, nil)
		sweeper.On("DeleteExpired", mock.Anything, deletePolicy).Return(int64(10), nil)
		sweeper.On("AnonymizeExpired", mock.Anything, anonPolicy, mock.Anything).Return(int64(4), nil)
		sweeper.On("ArchiveExpired", mock.Anything, archivePolicy).Return(int64(2), nil)
		policies.On("Update", mock.Anything, mock.Anything).Return(nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventRetentionCleanup, mock.Anything).Return()

		result, err := svc.RunCleanup(ctx, "", false)
		require.NoError(t, err)

		assert.Equal(t, int64(16), result.TotalAffected)
		assert.Len(t, result.Tables, 3)

		assert.Equal(t, 10, deletePolicy.LastRunCount)
		require.NotNil(t, deletePolicy.LastRunAt)
		require.Len(t, auditor.entries, 3)
		for _, e := range auditor.entries {
			assert.Equal(t, "RETENTION_CLEANUP", string(e.Action))
			assert.Contains(t, e.Details, "retention_action")
		}
	})

	t.Run("dry run counts without mutating or recording runs", func(t *testing.T) {
		svc, policies, sweeper, auditor, publisher := newTestService(t)

		p := newPolicy(t, "leads", 365, retention.ActionDelete)
		policies.On("ListActive", mock.Anything).Return([]*retention.Policy{p}, nil)
		sweeper.On("CountExpired", mock.Anything, p).Return(int64(9), nil)

		result, err := svc.RunCleanup(ctx, "", true)
		require.NoError(t, err)

		assert.Equal(t, int64(9), result.TotalAffected)
		assert.True(t, result.DryRun)
		assert.Nil(t, p.LastRunAt)
		assert.Empty(t, auditor.entries)
		assert.Empty(t, publisher.events)
		sweeper.AssertNotCalled(t, "DeleteExpired", mock.Anything, mock.Anything)
	})

	t.Run("table filter narrows the sweep to one policy", func(t *testing.T) {
		svc, policies, sweeper, auditor, publisher := newTestService(t)

		leads := newPolicy(t, "leads", 365, retention.ActionDelete)
		users := newPolicy(t, "users", 730, retention.ActionAnonymize)
		policies.On("ListActive", mock.Anything).
			Return([]*retention.Policy{leads, users}, nil)
		sweeper.On("DeleteExpired", mock.Anything, leads).Return(int64(5), nil)
		policies.On("Update", mock.Anything, leads).Return(nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventRetentionCleanup, mock.Anything).Return()

		result, err := svc.RunCleanup(ctx, "leads", false)
		require.NoError(t, err)

		assert.Equal(t, int64(5), result.TotalAffected)
		require.Len(t, result.Tables, 1)
		assert.Equal(t, "leads", result.Tables[0].Table)
		sweeper.AssertNotCalled(t, "AnonymizeExpired", mock.Anything, users, mock.Anything)
		assert.Nil(t, users.LastRunAt)
	})

	t.Run("table filter outside the schema map is rejected", func(t *testing.T) {
		svc, policies, _, _, _ := newTestService(t)

		_, err := svc.RunCleanup(ctx, "payments", false)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		policies.AssertNotCalled(t, "ListActive", mock.Anything)
	})

	t.Run("policy for an unmapped table is skipped with an error", func(t *testing.T) {
		svc, policies, sweeper, auditor, _ := newTestService(t)

		good := newPolicy(t, "leads", 365, retention.ActionDelete)
		bad := newPolicy(t, "payments", 30, retention.ActionDelete)
		policies.On("ListActive", mock.Anything).Return([]*retention.Policy{bad, good}, nil)
		sweeper.On("DeleteExpired", mock.Anything, good).Return(int64(3), nil)
		policies.On("Update", mock.Anything, good).Return(nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)

		result, err := svc.RunCleanup(ctx, "", false)
		require.NoError(t, err)

		assert.Equal(t, int64(3), result.TotalAffected)
		require.Len(t, result.Tables, 2)
		assert.NotEmpty(t, result.Tables[0].Error)
		assert.Empty(t, result.Tables[1].Error)
	})
}

func newPolicy(t *testing.T, table string, days int, action retention.Action) *retention.Policy {
	t.Helper()
	p, err := retention.NewPolicy(table, days, action)
	require.NoError(t, err)
	return p
}
