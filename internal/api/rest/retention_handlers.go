package rest

import (
	"net/http"

	"github.com/dataguard/gdpr-engine/internal/service/retention"
)

type retentionPolicyRequest struct {
	TableName       string `json:"table_name" validate:"required"`
	RetentionDays   int    `json:"retention_days" validate:"required,min=1"`
	Action          string `json:"action" validate:"required,oneof=DELETE ANONYMIZE ARCHIVE"`
	ConditionColumn string `json:"condition_column,omitempty"`
	ConditionValue  string `json:"condition_value,omitempty"`
}

func (h *Handlers) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req retentionPolicyRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Retention.CreatePolicy(r.Context(), retention.PolicyRequest{
		TableName:       req.TableName,
		RetentionDays:   req.RetentionDays,
		Action:          req.Action,
		ConditionColumn: req.ConditionColumn,
		ConditionValue:  req.ConditionValue,
		PerformedBy:     Actor(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	var req retentionPolicyRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.services.Retention.UpdatePolicy(r.Context(), id, retention.PolicyRequest{
		TableName:       req.TableName,
		RetentionDays:   req.RetentionDays,
		Action:          req.Action,
		ConditionColumn: req.ConditionColumn,
		ConditionValue:  req.ConditionValue,
		PerformedBy:     Actor(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleDeactivatePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	resp, err := h.services.Retention.DeactivatePolicy(r.Context(), id, Actor(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	resp, err := h.services.Retention.ListPolicies(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"policies": resp, "count": len(resp)})
}

func (h *Handlers) handleRunCleanup(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	dryRun := r.URL.Query().Get("dry_run") == "true"

	result, err := h.services.Retention.RunCleanup(r.Context(), table, dryRun)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
