package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

func newTestService(t *testing.T) (Service, *mockConsentRepository, *mockAuditRecorder, *mockPublisher) {
	t.Helper()
	repo := &mockConsentRepository{}
	auditor := &mockAuditRecorder{}
	publisher := &mockPublisher{}
	svc := NewService(zap.NewNop(), repo, auditor, passthroughTx{}, publisher)
	return svc, repo, auditor, publisher
}

func TestGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("new grant creates a row with default expiry", func(t *testing.T) {
		svc, repo, auditor, publisher := newTestService(t)

		repo.On("GetBySubjectAndType", mock.Anything, "user@example.com", consent.TypeMarketing).
			Return(nil, errors.ErrConsentNotFound)
		repo.On("Upsert", mock.Anything, mock.AnythingOfType("*consent.Consent")).Return(nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventConsentGranted, mock.Anything).Return()

		resp, err := svc.Grant(ctx, GrantRequest{
			Email:     "User@Example.com",
			Type:      "MARKETING",
			IPAddress: "198.51.100.7",
			Version:   "v2",
		})
		require.NoError(t, err)

		assert.Equal(t, "user@example.com", resp.Email)
		assert.Equal(t, "GRANTED", resp.Status)
		require.NotNil(t, resp.ExpiresAt)
		wantExpiry := time.Now().AddDate(0, 0, consent.DefaultExpiryDays)
		assert.WithinDuration(t, wantExpiry, *resp.ExpiresAt, time.Minute)

		require.Len(t, auditor.entries, 1)
		assert.Equal(t, "CONSENT_GRANTED", string(auditor.entries[0].Action))
		assert.Equal(t, "user@example.com", auditor.entries[0].SubjectEmail)
		repo.AssertExpectations(t)
	})

	t.Run("regrant after withdrawal reuses the row", func(t *testing.T) {
		svc, repo, auditor, publisher := newTestService(t)

		existing := grantedConsent(t, "user@example.com", consent.TypeMarketing)
		require.NoError(t, existing.Withdraw())

		repo.On("GetBySubjectAndType", mock.Anything, "user@example.com", consent.TypeMarketing).
			Return(existing, nil)
		repo.On("Update", mock.Anything, existing).Return(nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventConsentGranted, mock.Anything).Return()

		resp, err := svc.Grant(ctx, GrantRequest{Email: "user@example.com", Type: "MARKETING"})
		require.NoError(t, err)

		assert.Equal(t, existing.ID, resp.ID)
		assert.Equal(t, "GRANTED", resp.Status)
		assert.Nil(t, resp.WithdrawnAt)
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("invalid consent type is rejected", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)

		_, err := svc.Grant(ctx, GrantRequest{Email: "user@example.com", Type: "BIOMETRICS"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("withdraws an active consent", func(t *testing.T) {
		svc, repo, auditor, publisher := newTestService(t)

		existing := grantedConsent(t, "user@example.com", consent.TypeAnalytics)
		repo.On("GetBySubjectAndType", mock.Anything, "user@example.com", consent.TypeAnalytics).
			Return(existing, nil)
		repo.On("Update", mock.Anything, existing).Return(nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventConsentWithdrawn, mock.Anything).Return()

		resp, err := svc.Withdraw(ctx, WithdrawRequest{Email: "user@example.com", Type: "ANALYTICS"})
		require.NoError(t, err)

		assert.Equal(t, "WITHDRAWN", resp.Status)
		require.NotNil(t, resp.WithdrawnAt)
		require.Len(t, auditor.entries, 1)
		assert.Equal(t, "CONSENT_WITHDRAWN", string(auditor.entries[0].Action))
	})

	t.Run("no stored row reports no active consent", func(t *testing.T) {
		svc, repo, _, publisher := newTestService(t)

		repo.On("GetBySubjectAndType", mock.Anything, "user@example.com", consent.TypeAnalytics).
			Return(nil, errors.ErrConsentNotFound)

		_, err := svc.Withdraw(ctx, WithdrawRequest{Email: "user@example.com", Type: "ANALYTICS"})
		assert.ErrorIs(t, err, errors.ErrNoActiveConsent)
		assert.Empty(t, publisher.events)
	})

	t.Run("already withdrawn reports no active consent", func(t *testing.T) {
		svc, repo, _, publisher := newTestService(t)

		existing := grantedConsent(t, "user@example.com", consent.TypeAnalytics)
		require.NoError(t, existing.Withdraw())
		repo.On("GetBySubjectAndType", mock.Anything, "user@example.com", consent.TypeAnalytics).
			Return(existing, nil)

		_, err := svc.Withdraw(ctx, WithdrawRequest{Email: "user@example.com", Type: "ANALYTICS"})
		assert.ErrorIs(t, err, errors.ErrNoActiveConsent)
		assert.Empty(t, publisher.events)
	})
}

func TestWithdrawAll(t *testing.T) {
	ctx := context.Background()

	t.Run("withdraws granted rows and skips the rest", func(t *testing.T) {
		svc, repo, auditor, publisher := newTestService(t)

		marketing := grantedConsent(t, "user@example.com", consent.TypeMarketing)
		analytics := grantedConsent(t, "user@example.com", consent.TypeAnalytics)
		withdrawn := grantedConsent(t, "user@example.com", consent.TypeThirdPartySharing)
		require.NoError(t, withdrawn.Withdraw())

		repo.On("ListBySubject", mock.Anything, "user@example.com").
			Return([]*consent.Consent{marketing, analytics, withdrawn}, nil)
		repo.On("Update", mock.Anything, marketing).Return(nil)
		repo.On("Update", mock.Anything, analytics).Return(nil)
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
		publisher.On("Publish", mock.Anything, webhook.EventConsentWithdrawn, mock.Anything).Return()

		resp, err := svc.WithdrawAll(ctx, WithdrawAllRequest{Email: "User@Example.com"})
		require.NoError(t, err)

		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Withdrawn, 2)
		assert.Equal(t, "WITHDRAWN", resp.Withdrawn[0].Status)
		repo.AssertNotCalled(t, "Update", mock.Anything, withdrawn)

		require.Len(t, auditor.entries, 2)
		for _, e := range auditor.entries {
			assert.Equal(t, "CONSENT_WITHDRAWN", string(e.Action))
		}
		assert.Len(t, publisher.events, 2)
	})

	t.Run("nothing granted yields an empty result", func(t *testing.T) {
		svc, repo, auditor, publisher := newTestService(t)

		repo.On("ListBySubject", mock.Anything, "user@example.com").
			Return([]*consent.Consent{}, nil)

		resp, err := svc.WithdrawAll(ctx, WithdrawAllRequest{Email: "user@example.com"})
		require.NoError(t, err)

		assert.Zero(t, resp.Count)
		assert.Empty(t, auditor.entries)
		assert.Empty(t, publisher.events)
	})
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t)

	granted := grantedConsent(t, "user@example.com", consent.TypeMarketing)
	repo.On("ListBySubject", mock.Anything, "user@example.com").
		Return([]*consent.Consent{granted}, nil)

	resp, err := svc.GetStatus(ctx, "user@example.com")
	require.NoError(t, err)

	assert.Len(t, resp.Consents, len(consent.AllTypes()))
	assert.Equal(t, consent.StatusGranted, resp.Consents["MARKETING"].Status)
	assert.Equal(t, consent.StatusNotGiven, resp.Consents["ANALYTICS"].Status)
	assert.Equal(t, consent.StatusNotGiven, resp.Consents["DATA_PROCESSING"].Status)
}

func TestHasActiveConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("granted and unexpired is active", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetBySubjectAndType", mock.Anything, "user@example.com", consent.TypeMarketing).
			Return(grantedConsent(t, "user@example.com", consent.TypeMarketing), nil)

		active, err := svc.HasActiveConsent(ctx, "user@example.com", consent.TypeMarketing)
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("past expiry is inactive even before the sweep", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		c := grantedConsent(t, "user@example.com", consent.TypeMarketing)
		past := time.Now().Add(-time.Hour)
		c.ExpiresAt = &past
		repo.On("GetBySubjectAndType", mock.Anything, "user@example.com", consent.TypeMarketing).
			Return(c, nil)

		active, err := svc.HasActiveConsent(ctx, "user@example.com", consent.TypeMarketing)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("no stored row is inactive", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetBySubjectAndType", mock.Anything, "user@example.com", consent.TypeMarketing).
			Return(nil, errors.ErrConsentNotFound)

		active, err := svc.HasActiveConsent(ctx, "user@example.com", consent.TypeMarketing)
		require.NoError(t, err)
		assert.False(t, active)
	})
}

func TestExpireConsents(t *testing.T) {
	ctx := context.Background()
	svc, repo, auditor, publisher := newTestService(t)

	first := grantedConsent(t, "a@example.com", consent.TypeMarketing)
	second := grantedConsent(t, "b@example.com", consent.TypeAnalytics)
	past := time.Now().Add(-time.Hour)
	first.ExpiresAt = &past
	second.ExpiresAt = &past

	repo.On("FindExpiredGranted", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]*consent.Consent{first, second}, nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(nil)
	auditor.On("Record", mock.Anything, mock.Anything).Return(nil)
	publisher.On("Publish", mock.Anything, webhook.EventConsentExpired, mock.Anything).Return()

	count, err := svc.ExpireConsents(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	assert.Equal(t, consent.StatusExpired, first.Status)
	assert.Equal(t, consent.StatusExpired, second.Status)
	require.Len(t, auditor.entries, 2)
	for _, e := range auditor.entries {
		assert.Equal(t, SystemActor, e.PerformedBy)
	}
	assert.Len(t, publisher.events, 2)
}

func grantedConsent(t *testing.T, email string, consentType consent.Type) *consent.Consent {
	t.Helper()
	c, err := consent.NewConsent(values.MustNewEmail(email), consentType, consent.GrantParams{})
	require.NoError(t, err)
	return c
}
