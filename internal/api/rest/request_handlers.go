package rest

import (
	"net/http"

	"github.com/dataguard/gdpr-engine/internal/service/request"
)

type createRightsRequest struct {
	Email string `json:"email" validate:"required,email"`
	Type  string `json:"type" validate:"required"`
}

type rejectRightsRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handlers) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRightsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Request.Create(r.Context(), request.CreateRequest{
		Email:     req.Email,
		Type:      req.Type,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	result, err := h.services.Request.Process(r.Context(), id, request.ProcessRequest{
		PerformedBy: Actor(r.Context()),
		IPAddress:   clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleCompleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	resp, err := h.services.Request.Complete(r.Context(), id, Actor(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	var req rejectRightsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Request.Reject(r.Context(), id, req.Reason, Actor(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	resp, err := h.services.Request.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	resp, err := h.services.Request.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.services.Request.List(r.Context(), request.ListFilter{
		Email:       q.Get("email"),
		Status:      q.Get("status"),
		Type:        q.Get("type"),
		OverdueOnly: q.Get("overdue") == "true",
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requests": resp, "count": len(resp)})
}

func (h *Handlers) handleOverdueRequests(w http.ResponseWriter, r *http.Request) {
	resp, err := h.services.Request.Overdue(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"requests": resp, "count": len(resp)})
}
