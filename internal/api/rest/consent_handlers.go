package rest

import (
	"net/http"

	domainconsent "github.com/dataguard/gdpr-engine/internal/domain/consent"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/service/consent"
)

type grantConsentRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Type          string `json:"type" validate:"required"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty" validate:"omitempty,min=1"`
	Version       string `json:"version,omitempty"`
	Text          string `json:"text,omitempty"`
}

type withdrawConsentRequest struct {
	Email string `json:"email" validate:"required,email"`
	Type  string `json:"type" validate:"required"`
}

type withdrawAllConsentsRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handlers) handleGrantConsent(w http.ResponseWriter, r *http.Request) {
	var req grantConsentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Consent.Grant(r.Context(), consent.GrantRequest{
		Email:         req.Email,
		Type:          req.Type,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
		ExpiresInDays: req.ExpiresInDays,
		Version:       req.Version,
		Text:          req.Text,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) handleWithdrawConsent(w http.ResponseWriter, r *http.Request) {
	var req withdrawConsentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Consent.Withdraw(r.Context(), consent.WithdrawRequest{
		Email:     req.Email,
		Type:      req.Type,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleWithdrawAllConsents(w http.ResponseWriter, r *http.Request) {
	var req withdrawAllConsentsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Consent.WithdrawAll(r.Context(), consent.WithdrawAllRequest{
		Email:     req.Email,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleConsentCheck(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_EMAIL", "email query parameter is required"))
		return
	}
	consentType, err := domainconsent.ParseType(r.URL.Query().Get("type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	valid, err := h.services.Consent.HasActiveConsent(r.Context(), email, consentType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"email":       email,
		"type":        string(consentType),
		"has_consent": valid,
	})
}

func (h *Handlers) handleConsentStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_EMAIL", "email query parameter is required"))
		return
	}

	resp, err := h.services.Consent.GetStatus(r.Context(), email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}
