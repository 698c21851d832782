package rest

import (
	"net/http"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/service/restriction"
)

type createRestrictionRequest struct {
	Email         string   `json:"email" validate:"required,email"`
	Reason        string   `json:"reason" validate:"required"`
	Details       string   `json:"details,omitempty"`
	Operations    []string `json:"operations,omitempty"`
	Tables        []string `json:"tables,omitempty"`
	ExpiresInDays *int     `json:"expires_in_days,omitempty" validate:"omitempty,min=1"`
}

type liftRestrictionRequest struct {
	LiftReason string `json:"lift_reason,omitempty"`
}

func (h *Handlers) handleCreateRestriction(w http.ResponseWriter, r *http.Request) {
	var req createRestrictionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Restriction.Create(r.Context(), restriction.CreateRequest{
		Email:         req.Email,
		Reason:        req.Reason,
		Details:       req.Details,
		Operations:    req.Operations,
		Tables:        req.Tables,
		ExpiresInDays: req.ExpiresInDays,
		PerformedBy:   Actor(r.Context()),
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) handleLiftRestriction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	var req liftRestrictionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Restriction.Lift(r.Context(), id, restriction.LiftRequest{
		LiftedBy:   Actor(r.Context()),
		LiftReason: req.LiftReason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleCheckRestriction(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := q.Get("email")
	if email == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_EMAIL", "email query parameter is required"))
		return
	}

	result, err := h.services.Restriction.Check(r.Context(), email, q.Get("operation"), q.Get("table"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleListRestrictions(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_EMAIL", "email query parameter is required"))
		return
	}

	resp, err := h.services.Restriction.List(r.Context(), email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"restrictions": resp, "count": len(resp)})
}
