package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/database"
)

// AuditQuerier is the read-only audit trail dependency. The API never
// exposes writes; entries are recorded by the services themselves.
type AuditQuerier interface {
	Query(ctx context.Context, filter database.AuditFilter) ([]*audit.Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*audit.Entry, error)
}

func (h *Handlers) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.AuditFilter{
		SubjectEmail: q.Get("email"),
		Action:       audit.Action(q.Get("action")),
		Limit:        queryInt(r, "limit", 100),
		Offset:       queryInt(r, "offset", 0),
	}

	if raw := q.Get("request_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, r, errors.NewValidationError("INVALID_REQUEST_ID", "request_id must be a valid UUID"))
			return
		}
		filter.RequestID = &id
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, r, errors.NewValidationError("INVALID_FROM", "from must be RFC 3339"))
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, r, errors.NewValidationError("INVALID_TO", "to must be RFC 3339"))
			return
		}
		filter.To = t
	}

	entries, err := h.services.Audit.Query(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

func (h *Handlers) handleGetAuditEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	entry, err := h.services.Audit.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}
