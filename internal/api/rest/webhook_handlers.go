package rest

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	domainwebhook "github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/service/webhook"
)

type createSubscriptionRequest struct {
	Name           string            `json:"name" validate:"required"`
	URL            string            `json:"url" validate:"required,url"`
	Secret         string            `json:"secret" validate:"required,min=16"`
	Events         []string          `json:"events" validate:"required,min=1"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryCount     int               `json:"retry_count,omitempty" validate:"omitempty,min=1,max=10"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=120"`
}

type updateSubscriptionRequest struct {
	Name           *string           `json:"name,omitempty"`
	URL            *string           `json:"url,omitempty" validate:"omitempty,url"`
	Secret         *string           `json:"secret,omitempty" validate:"omitempty,min=16"`
	Events         []string          `json:"events,omitempty"`
	IsActive       *bool             `json:"is_active,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryCount     *int              `json:"retry_count,omitempty" validate:"omitempty,min=1,max=10"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=120"`
}

type testFireRequest struct {
	Event string `json:"event" validate:"required"`
}

func (h *Handlers) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Webhook.CreateSubscription(r.Context(), webhook.CreateSubscriptionRequest{
		Name:           req.Name,
		URL:            req.URL,
		Secret:         req.Secret,
		Events:         req.Events,
		Headers:        req.Headers,
		RetryCount:     req.RetryCount,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	var req updateSubscriptionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Webhook.UpdateSubscription(r.Context(), id, webhook.UpdateSubscriptionRequest{
		Name:           req.Name,
		URL:            req.URL,
		Secret:         req.Secret,
		Events:         req.Events,
		IsActive:       req.IsActive,
		Headers:        req.Headers,
		RetryCount:     req.RetryCount,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.services.Webhook.DeleteSubscription(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	resp, err := h.services.Webhook.GetSubscription(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.services.Webhook.ListSubscriptions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": resp, "count": len(resp)})
}

// handleListDeliveries queries the delivery log across subscriptions; sub
// and event query parameters each narrow it.
func (h *Handlers) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	filter := domainwebhook.LogFilter{
		EventType: r.URL.Query().Get("event"),
		Limit:     queryInt(r, "limit", 50),
	}
	if raw := r.URL.Query().Get("sub"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, r, errors.NewValidationError("INVALID_ID", "sub must be a valid UUID"))
			return
		}
		filter.SubscriptionID = &id
	}
	h.writeDeliveries(w, r, filter)
}

func (h *Handlers) handleListSubscriptionDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	h.writeDeliveries(w, r, domainwebhook.LogFilter{
		SubscriptionID: &id,
		EventType:      r.URL.Query().Get("event"),
		Limit:          queryInt(r, "limit", 50),
	})
}

func (h *Handlers) writeDeliveries(w http.ResponseWriter, r *http.Request, filter domainwebhook.LogFilter) {
	resp, err := h.services.Webhook.ListDeliveries(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": resp, "count": len(resp)})
}

// handleTestFire dispatches a synthetic event synchronously so operators can
// verify a subscription end to end.
func (h *Handlers) handleTestFire(w http.ResponseWriter, r *http.Request) {
	var req testFireRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	result, err := h.services.Webhook.Dispatch(r.Context(), domainwebhook.Event(req.Event), map[string]interface{}{
		"test":         true,
		"triggered_by": Actor(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
