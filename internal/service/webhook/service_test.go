package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
)

func newTestService(t *testing.T, repo SubscriptionRepository) *service {
	t.Helper()
	svc := NewService(repo, config.WebhookConfig{
		DeliveriesPerSecond: 1000,
		DeliveryBurst:       1000,
	}, zap.NewNop()).(*service)
	svc.dispatcher.retryDelay = time.Millisecond
	return svc
}

func subscribe(t *testing.T, svc Service, url string, events ...string) *SubscriptionResponse {
	t.Helper()
	sub, err := svc.CreateSubscription(context.Background(), CreateSubscriptionRequest{
		Name:   "crm-sync",
		URL:    url,
		Secret: "whsec_test",
		Events: events,
	})
	require.NoError(t, err)
	return sub
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers signed envelope with event headers", func(t *testing.T) {
		var gotBody []byte
		var gotHeader http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotHeader = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		sub, err := svc.CreateSubscription(ctx, CreateSubscriptionRequest{
			Name:    "crm-sync",
			URL:     srv.URL,
			Secret:  "whsec_test",
			Events:  []string{"consent.granted"},
			Headers: map[string]string{"X-Tenant": "acme"},
		})
		require.NoError(t, err)

		result, err := svc.Dispatch(ctx, webhook.EventConsentGranted, map[string]string{"email": "alice@example.com"})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Matched)
		assert.Equal(t, 1, result.Delivered)

		var envelope webhook.Envelope
		require.NoError(t, json.Unmarshal(gotBody, &envelope))
		assert.Equal(t, "consent.granted", envelope.Event)
		assert.NotEmpty(t, envelope.Timestamp)

		mac := hmac.New(sha256.New, []byte("whsec_test"))
		mac.Write(gotBody)
		wantSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		assert.Equal(t, wantSig, gotHeader.Get("X-Webhook-Signature"))
		assert.Equal(t, "consent.granted", gotHeader.Get("X-Webhook-Event"))
		assert.Equal(t, envelope.Timestamp, gotHeader.Get("X-Webhook-Timestamp"))
		assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
		assert.Equal(t, "acme", gotHeader.Get("X-Tenant"))

		logs := repo.logsFor(sub.ID)
		require.Len(t, logs, 1)
		assert.True(t, logs[0].Success)
		assert.Equal(t, 1, logs[0].AttemptNumber)
		require.NotNil(t, logs[0].ResponseStatus)
		assert.Equal(t, http.StatusOK, *logs[0].ResponseStatus)
	})

	t.Run("retries until success and logs every attempt", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		sub := subscribe(t, svc, srv.URL, "request.completed")

		result, err := svc.Dispatch(ctx, webhook.EventRequestCompleted, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Delivered)
		assert.Equal(t, int32(3), calls.Load())

		logs := repo.logsFor(sub.ID)
		require.Len(t, logs, 3)
		assert.False(t, logs[0].Success)
		assert.False(t, logs[1].Success)
		assert.True(t, logs[2].Success)
		assert.Equal(t, 3, logs[2].AttemptNumber)

		attempts := repo.attemptsFor(sub.ID)
		require.Len(t, attempts, 3)
		assert.False(t, attempts[0].success)
		require.NotNil(t, attempts[0].statusCode)
		assert.Equal(t, http.StatusBadGateway, *attempts[0].statusCode)
		assert.False(t, attempts[1].success)
		assert.True(t, attempts[2].success)
		require.NotNil(t, attempts[2].statusCode)
		assert.Equal(t, http.StatusNoContent, *attempts[2].statusCode)
	})

	t.Run("exhausts the attempt budget on persistent failure", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		sub := subscribe(t, svc, srv.URL, "*")

		result, err := svc.Dispatch(ctx, webhook.EventDataErased, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Matched)
		assert.Equal(t, 0, result.Delivered)
		assert.Equal(t, int32(webhook.DefaultRetryCount), calls.Load())

		require.Len(t, repo.logsFor(sub.ID), webhook.DefaultRetryCount)
		attempts := repo.attemptsFor(sub.ID)
		require.Len(t, attempts, webhook.DefaultRetryCount)
		for _, a := range attempts {
			assert.False(t, a.success)
		}
	})

	t.Run("truncates stored response bodies", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
		}))
		defer srv.Close()

		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		sub := subscribe(t, svc, srv.URL, "*")

		_, err := svc.Dispatch(ctx, webhook.EventDataExported, nil)
		require.NoError(t, err)

		logs := repo.logsFor(sub.ID)
		require.Len(t, logs, 1)
		assert.Len(t, logs[0].ResponseBody, webhook.MaxResponseBodyBytes)
	})

	t.Run("only matching subscriptions receive the event", func(t *testing.T) {
		var consentCalls, requestCalls atomic.Int32
		consentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			consentCalls.Add(1)
		}))
		defer consentSrv.Close()
		requestSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCalls.Add(1)
		}))
		defer requestSrv.Close()

		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		subscribe(t, svc, consentSrv.URL, "consent.granted", "consent.withdrawn")
		subscribe(t, svc, requestSrv.URL, "request.created")

		result, err := svc.Dispatch(ctx, webhook.EventConsentWithdrawn, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Matched)
		assert.Equal(t, int32(1), consentCalls.Load())
		assert.Equal(t, int32(0), requestCalls.Load())
	})

	t.Run("inactive subscriptions are skipped", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		sub := subscribe(t, svc, srv.URL, "*")
		inactive := false
		_, err := svc.UpdateSubscription(ctx, sub.ID, UpdateSubscriptionRequest{IsActive: &inactive})
		require.NoError(t, err)

		result, err := svc.Dispatch(ctx, webhook.EventDataErased, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Matched)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("connection failures are logged as attempts", func(t *testing.T) {
		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		// Nothing listens on this port.
		sub := subscribe(t, svc, "http://127.0.0.1:1", "*")

		result, err := svc.Dispatch(ctx, webhook.EventDataErased, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Delivered)

		logs := repo.logsFor(sub.ID)
		require.Len(t, logs, webhook.DefaultRetryCount)
		assert.Nil(t, logs[0].ResponseStatus)
		assert.NotEmpty(t, logs[0].ErrorMessage)
	})
}

func TestPublish(t *testing.T) {
	t.Run("delivers without blocking the caller", func(t *testing.T) {
		received := make(chan struct{}, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received <- struct{}{}
		}))
		defer srv.Close()

		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		subscribe(t, svc, srv.URL, "*")

		// A cancelled caller context must not abort the detached dispatch.
		ctx, cancel := context.WithCancel(context.Background())
		svc.Publish(ctx, webhook.EventRequestCreated, nil)
		cancel()
		svc.Drain()

		select {
		case <-received:
		default:
			t.Fatal("expected delivery to have happened")
		}
	})
}

func TestSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("create applies defaults and hides the secret", func(t *testing.T) {
		svc := newTestService(t, newMemoryRepo())
		sub, err := svc.CreateSubscription(ctx, CreateSubscriptionRequest{
			Name:   "dashboard",
			URL:    "https://hooks.example.com/gdpr",
			Secret: "whsec_test",
			Events: []string{"*"},
		})
		require.NoError(t, err)

		assert.Equal(t, webhook.DefaultRetryCount, sub.RetryCount)
		assert.Equal(t, webhook.DefaultTimeoutSeconds, sub.TimeoutSeconds)
		assert.True(t, sub.IsActive)
		assert.Zero(t, sub.FailureCount)
	})

	t.Run("rejects unknown events", func(t *testing.T) {
		svc := newTestService(t, newMemoryRepo())
		_, err := svc.CreateSubscription(ctx, CreateSubscriptionRequest{
			Name:   "dashboard",
			URL:    "https://hooks.example.com/gdpr",
			Secret: "whsec_test",
			Events: []string{"consent.revoked"},
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("rejects non-http urls", func(t *testing.T) {
		svc := newTestService(t, newMemoryRepo())
		_, err := svc.CreateSubscription(ctx, CreateSubscriptionRequest{
			Name:   "dashboard",
			URL:    "ftp://hooks.example.com",
			Secret: "whsec_test",
			Events: []string{"*"},
		})
		require.Error(t, err)
	})

	t.Run("delete missing subscription is not found", func(t *testing.T) {
		svc := newTestService(t, newMemoryRepo())
		err := svc.DeleteSubscription(ctx, uuid.New())
		require.ErrorIs(t, err, errors.ErrSubscriptionNotFound)
	})
}

func TestListDeliveries(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, repo *memoryRepo, subID uuid.UUID, event string) {
		t.Helper()
		require.NoError(t, repo.RecordDelivery(ctx, &webhook.DeliveryLog{
			ID:             uuid.New(),
			SubscriptionID: subID,
			EventType:      event,
			AttemptNumber:  1,
			Success:        true,
			CreatedAt:      time.Now().UTC(),
		}))
	}

	t.Run("empty filter returns every log", func(t *testing.T) {
		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		seed(t, repo, uuid.New(), "consent.granted")
		seed(t, repo, uuid.New(), "data.erased")

		logs, err := svc.ListDeliveries(ctx, webhook.LogFilter{})
		require.NoError(t, err)
		assert.Len(t, logs, 2)
	})

	t.Run("narrows by subscription and by event independently", func(t *testing.T) {
		repo := newMemoryRepo()
		svc := newTestService(t, repo)
		subA, subB := uuid.New(), uuid.New()
		seed(t, repo, subA, "consent.granted")
		seed(t, repo, subA, "data.erased")
		seed(t, repo, subB, "data.erased")

		bySub, err := svc.ListDeliveries(ctx, webhook.LogFilter{SubscriptionID: &subA})
		require.NoError(t, err)
		assert.Len(t, bySub, 2)

		byEvent, err := svc.ListDeliveries(ctx, webhook.LogFilter{EventType: "data.erased"})
		require.NoError(t, err)
		assert.Len(t, byEvent, 2)

		both, err := svc.ListDeliveries(ctx, webhook.LogFilter{
			SubscriptionID: &subB,
			EventType:      "data.erased",
		})
		require.NoError(t, err)
		require.Len(t, both, 1)
		assert.Equal(t, subB, both[0].SubscriptionID)
	})
}

func TestTrimLogs(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(t, repo)

	old := &webhook.DeliveryLog{CreatedAt: time.Now().UTC().AddDate(0, 0, -120)}
	fresh := &webhook.DeliveryLog{CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.RecordDelivery(ctx, old))
	require.NoError(t, repo.RecordDelivery(ctx, fresh))

	trimmed, err := svc.TrimLogs(ctx, time.Now().UTC().AddDate(0, 0, -webhook.LogRetentionDays))
	require.NoError(t, err)
	assert.Equal(t, int64(1), trimmed)
}
