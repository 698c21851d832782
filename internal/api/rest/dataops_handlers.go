package rest

import (
	"net/http"

	"github.com/dataguard/gdpr-engine/internal/service/dataops"
)

type exportDataRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=json csv"`
}

type eraseDataRequest struct {
	Email  string `json:"email" validate:"required,email"`
	DryRun bool   `json:"dry_run,omitempty"`
}

type rectifyDataRequest struct {
	Email          string                    `json:"email" validate:"required,email"`
	Rectifications map[string]map[string]any `json:"rectifications" validate:"required,min=1"`
	DryRun         bool                      `json:"dry_run,omitempty"`
}

type rectifyEmailRequest struct {
	OldEmail string `json:"old_email" validate:"required,email"`
	NewEmail string `json:"new_email" validate:"required,email"`
}

func (h *Handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportDataRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Format == "" {
		req.Format = "json"
	}

	result, err := h.services.DataOps.Export(r.Context(), dataops.ExportRequest{
		Email:     req.Email,
		Format:    req.Format,
		Requester: Actor(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleErase(w http.ResponseWriter, r *http.Request) {
	var req eraseDataRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	result, err := h.services.DataOps.Erase(r.Context(), dataops.EraseRequest{
		Email:     req.Email,
		DryRun:    req.DryRun,
		Requester: Actor(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleRectify(w http.ResponseWriter, r *http.Request) {
	var req rectifyDataRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	result, err := h.services.DataOps.Rectify(r.Context(), dataops.RectifyRequest{
		Email:          req.Email,
		Rectifications: req.Rectifications,
		DryRun:         req.DryRun,
		Requester:      Actor(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleRectifyEmail(w http.ResponseWriter, r *http.Request) {
	var req rectifyEmailRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	result, err := h.services.DataOps.RectifyEmail(r.Context(), dataops.RectifyEmailRequest{
		OldEmail:  req.OldEmail,
		NewEmail:  req.NewEmail,
		Requester: Actor(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
