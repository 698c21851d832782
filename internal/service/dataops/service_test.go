package dataops

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

func newTestService(t *testing.T) (Service, *mockSubjectData, *mockRestrictionChecker, *mockAuditRecorder, *mockPublisher, string) {
	t.Helper()
	data := &mockSubjectData{}
	checker := &mockRestrictionChecker{}
	auditor := &mockAuditRecorder{}
	publisher := &mockPublisher{}
	dir := t.TempDir()
	svc := NewService(zap.NewNop(), schema.DefaultMap(), data, checker, auditor,
		passthroughTx{}, publisher, dir)
	return svc, data, checker, auditor, publisher, dir
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("JSON export includes author-matched tables in schema order", func(t *testing.T) {
		svc, data, checker, auditor, publisher, dir := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "EXPORT", "").Return(false, nil)
		data.On("SelectRows", mock.Anything, "users", "u@x.io").
			Return([]string{"id", "email"}, []map[string]any{{"id": 1, "email": "u@x.io"}}, nil)
		data.On("SelectRows", mock.Anything, "leads", "u@x.io").
			Return([]string{"id", "email"}, []map[string]any{{"id": 7, "email": "u@x.io"}}, nil)
		data.On("SelectRows", mock.Anything, "reviews", "u@x.io").
			Return([]string{"id", "author_name"}, []map[string]any{{"id": 3, "author_name": "u"}}, nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataExported, mock.Anything).Return()

		result, err := svc.Export(ctx, ExportRequest{Email: "u@x.io", Format: "json", Requester: "dpo"})
		require.NoError(t, err)

		assert.Equal(t, int64(3), result.TotalRecords)
		assert.Equal(t, []string{"users", "leads", "reviews"}, result.TablesExported)
		assert.Regexp(t,
			regexp.MustCompile(`gdpr_export_[0-9a-f]{12}_\d{8}_\d{6}\.json$`),
			result.FilePath)

		raw, err := os.ReadFile(result.FilePath)
		require.NoError(t, err)
		var doc struct {
			SubjectEmail string                      `json:"subject_email"`
			Format       string                      `json:"format"`
			Data         map[string][]map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &doc))
		assert.Equal(t, "u@x.io", doc.SubjectEmail)
		assert.Equal(t, "json", doc.Format)
		assert.Len(t, doc.Data, 3)
		assert.Len(t, doc.Data["reviews"], 1)

		assert.Equal(t, dir, filepath.Dir(result.FilePath))
		require.Len(t, auditor.entries, 1)
		assert.Equal(t, "DATA_EXPORTED", string(auditor.entries[0].Action))
		assert.Equal(t, result.FilePath, auditor.entries[0].Details["file_url"])
	})

	t.Run("tables with no rows are omitted", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "EXPORT", "").Return(false, nil)
		data.On("SelectRows", mock.Anything, "users", "u@x.io").
			Return([]string{"id", "email"}, []map[string]any{{"id": 1, "email": "u@x.io"}}, nil)
		data.On("SelectRows", mock.Anything, "leads", "u@x.io").
			Return([]string{"id", "email"}, nil, nil)
		data.On("SelectRows", mock.Anything, "reviews", "u@x.io").
			Return([]string{"id"}, nil, nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataExported, mock.Anything).Return()

		result, err := svc.Export(ctx, ExportRequest{Email: "u@x.io", Format: "json", Requester: "dpo"})
		require.NoError(t, err)
		assert.Equal(t, []string{"users"}, result.TablesExported)
		assert.Equal(t, int64(1), result.TotalRecords)
	})

	t.Run("CSV export carries the metadata preamble and table sections", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "EXPORT", "").Return(false, nil)
		data.On("SelectRows", mock.Anything, "users", "u@x.io").
			Return([]string{"id", "name"}, []map[string]any{{"id": 1, "name": `Quote "Q" User`}}, nil)
		data.On("SelectRows", mock.Anything, "leads", "u@x.io").Return([]string{"id"}, nil, nil)
		data.On("SelectRows", mock.Anything, "reviews", "u@x.io").Return([]string{"id"}, nil, nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataExported, mock.Anything).Return()

		result, err := svc.Export(ctx, ExportRequest{Email: "u@x.io", Format: "csv", Requester: "dpo"})
		require.NoError(t, err)

		raw, err := os.ReadFile(result.FilePath)
		require.NoError(t, err)
		content := string(raw)
		assert.True(t, strings.HasPrefix(content, "GDPR Data Export\n"))
		assert.Contains(t, content, "Subject Email,u@x.io")
		assert.Contains(t, content, "=== users ===")
		assert.Contains(t, content, `"Quote ""Q"" User"`)
	})

	t.Run("active restriction blocks export", func(t *testing.T) {
		svc, _, checker, _, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "EXPORT", "").Return(true, nil)

		_, err := svc.Export(ctx, ExportRequest{Email: "u@x.io", Format: "json", Requester: "dpo"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypePrecondition))
		assert.Empty(t, publisher.events)
	})

	t.Run("invalid format is rejected", func(t *testing.T) {
		svc, _, _, _, _, _ := newTestService(t)

		_, err := svc.Export(ctx, ExportRequest{Email: "u@x.io", Format: "xml", Requester: "dpo"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestErase(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes deletable tables and anonymizes the rest", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "DELETE", "").Return(false, nil)
		data.On("DeleteBySubject", mock.Anything, "users", "u@x.io").Return(int64(1), nil)
		data.On("DeleteBySubject", mock.Anything, "leads", "u@x.io").Return(int64(1), nil)
		data.On("AnonymizeBySubject", mock.Anything, "reviews", "u@x.io").Return(int64(1), nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataErased, mock.Anything).Return()

		result, err := svc.Erase(ctx, EraseRequest{Email: "u@x.io", Requester: "dpo"})
		require.NoError(t, err)

		assert.Equal(t, int64(2), result.TotalDeleted)
		assert.Equal(t, int64(1), result.TotalAnonymized)
		assert.Equal(t, "anonymized", result.Tables["reviews"].Action)
		assert.Contains(t, result.Tables["reviews"].ColumnsAnonymized, "author_name")

		require.Len(t, auditor.entries, 1)
		assert.Equal(t, "DATA_DELETED", string(auditor.entries[0].Action))
		assert.ElementsMatch(t, []string{"users", "leads", "reviews"}, auditor.entries[0].AffectedTables)
	})

	t.Run("second erasure affects nothing", func(t *testing.T) {
		svc, data, checker, _, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "DELETE", "").Return(false, nil)
		data.On("DeleteBySubject", mock.Anything, "users", "u@x.io").Return(int64(0), nil)
		data.On("DeleteBySubject", mock.Anything, "leads", "u@x.io").Return(int64(0), nil)
		data.On("AnonymizeBySubject", mock.Anything, "reviews", "u@x.io").Return(int64(0), nil)

		result, err := svc.Erase(ctx, EraseRequest{Email: "u@x.io", Requester: "dpo"})
		require.NoError(t, err)

		assert.Zero(t, result.TotalDeleted+result.TotalAnonymized)
		assert.Empty(t, publisher.events)
	})

	t.Run("dry run counts without mutating", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "DELETE", "").Return(false, nil)
		data.On("CountRows", mock.Anything, "users", "u@x.io").Return(int64(1), nil)
		data.On("CountRows", mock.Anything, "leads", "u@x.io").Return(int64(2), nil)
		data.On("CountRows", mock.Anything, "reviews", "u@x.io").Return(int64(1), nil)

		result, err := svc.Erase(ctx, EraseRequest{Email: "u@x.io", DryRun: true, Requester: "dpo"})
		require.NoError(t, err)

		assert.Equal(t, int64(3), result.TotalDeleted)
		assert.Equal(t, int64(1), result.TotalAnonymized)
		assert.True(t, result.DryRun)
		assert.Empty(t, auditor.entries)
		assert.Empty(t, publisher.events)
		data.AssertNotCalled(t, "DeleteBySubject", mock.Anything, mock.Anything, mock.Anything)
		data.AssertNotCalled(t, "AnonymizeBySubject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("restriction blocks erasure unless it serves an erasure request", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "DELETE", "").Return(true, nil)

		_, err := svc.Erase(ctx, EraseRequest{Email: "u@x.io", Requester: "dpo"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypePrecondition))

		data.On("DeleteBySubject", mock.Anything, "users", "u@x.io").Return(int64(1), nil)
		data.On("DeleteBySubject", mock.Anything, "leads", "u@x.io").Return(int64(0), nil)
		data.On("AnonymizeBySubject", mock.Anything, "reviews", "u@x.io").Return(int64(0), nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataErased, mock.Anything).Return()

		result, err := svc.Erase(ctx, EraseRequest{Email: "u@x.io", Requester: "dpo", FromErasureRequest: true})
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.TotalDeleted)
	})

	t.Run("one failing table does not abort the walk", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "DELETE", "").Return(false, nil)
		data.On("DeleteBySubject", mock.Anything, "users", "u@x.io").
			Return(int64(0), errors.NewInternalError("connection reset"))
		data.On("DeleteBySubject", mock.Anything, "leads", "u@x.io").Return(int64(1), nil)
		data.On("AnonymizeBySubject", mock.Anything, "reviews", "u@x.io").Return(int64(0), nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataErased, mock.Anything).Return()

		result, err := svc.Erase(ctx, EraseRequest{Email: "u@x.io", Requester: "dpo"})
		require.NoError(t, err)

		assert.Equal(t, int64(1), result.TotalDeleted)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "users")
	})
}

func TestRectify(t *testing.T) {
	ctx := context.Background()

	t.Run("rewrites whitelisted fields with before capture", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "UPDATE", "").Return(false, nil)
		data.On("SelectFields", mock.Anything, "users", "u@x.io", []string{"name"}).
			Return([]map[string]any{{"name": "Old Name"}}, nil)
		data.On("RectifyFields", mock.Anything, "users", "u@x.io",
			map[string]any{"name": "New Name"}).Return(int64(1), nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataRectified, mock.Anything).Return()

		result, err := svc.Rectify(ctx, RectifyRequest{
			Email:          "u@x.io",
			Rectifications: map[string]map[string]any{"users": {"name": "New Name"}},
			Requester:      "dpo",
		})
		require.NoError(t, err)

		assert.Equal(t, int64(1), result.Tables["users"].RowsUpdated)
		assert.Equal(t, "Old Name", result.Tables["users"].OldValues[0]["name"])
		require.Len(t, auditor.entries, 1)
		assert.Equal(t, "DATA_ACCESSED", string(auditor.entries[0].Action))
		assert.Equal(t, "rectification", auditor.entries[0].Details["operation"])
	})

	t.Run("out-of-whitelist field fails its table but not the rest", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "UPDATE", "").Return(false, nil)
		data.On("SelectFields", mock.Anything, "users", "u@x.io", []string{"name"}).
			Return([]map[string]any{{"name": "Old"}}, nil)
		data.On("RectifyFields", mock.Anything, "users", "u@x.io",
			map[string]any{"name": "New"}).Return(int64(1), nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataRectified, mock.Anything).Return()

		result, err := svc.Rectify(ctx, RectifyRequest{
			Email: "u@x.io",
			Rectifications: map[string]map[string]any{
				"users":   {"name": "New"},
				"reviews": {"rating": 5},
			},
			Requester: "dpo",
		})
		require.NoError(t, err)

		assert.Contains(t, result.Tables, "users")
		assert.NotContains(t, result.Tables, "reviews")
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "reviews")
		data.AssertNotCalled(t, "RectifyFields", mock.Anything, "reviews", mock.Anything, mock.Anything)
	})

	t.Run("unknown table is an error entry", func(t *testing.T) {
		svc, _, checker, _, _, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "u@x.io", "UPDATE", "").Return(false, nil)

		result, err := svc.Rectify(ctx, RectifyRequest{
			Email:          "u@x.io",
			Rectifications: map[string]map[string]any{"payments": {"card": "x"}},
			Requester:      "dpo",
		})
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "unknown table")
	})
}

func TestRectifyEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("rewrites the identifier across rectifiable tables", func(t *testing.T) {
		svc, data, checker, auditor, publisher, _ := newTestService(t)

		checker.On("IsRestricted", mock.Anything, "old@x.io", "UPDATE", "").Return(false, nil)
		data.On("SelectFields", mock.Anything, "users", "old@x.io", []string{"email"}).
			Return([]map[string]any{{"email": "old@x.io"}}, nil)
		data.On("RectifyFields", mock.Anything, "users", "old@x.io",
			map[string]any{"email": "new@x.io"}).Return(int64(1), nil)
		data.On("SelectFields", mock.Anything, "leads", "old@x.io", []string{"email"}).
			Return([]map[string]any{{"email": "old@x.io"}}, nil)
		data.On("RectifyFields", mock.Anything, "leads", "old@x.io",
			map[string]any{"email": "new@x.io"}).Return(int64(1), nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventDataRectified, mock.Anything).Return()

		result, err := svc.RectifyEmail(ctx, RectifyEmailRequest{
			OldEmail:  "old@x.io",
			NewEmail:  "new@x.io",
			Requester: "dpo",
		})
		require.NoError(t, err)
		assert.Len(t, result.Tables, 2)
	})

	t.Run("same email is rejected", func(t *testing.T) {
		svc, _, _, _, _, _ := newTestService(t)

		_, err := svc.RectifyEmail(ctx, RectifyEmailRequest{
			OldEmail: "u@x.io", NewEmail: "U@X.IO", Requester: "dpo",
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}
