package rest

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports dependency health and compliance backlog counters.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Backlog(ctx context.Context) (pending int, overdue int, err error)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Pending   int       `json:"pending_requests"`
	Overdue   int       `json:"overdue_requests"`
}

// handleHealthz is the liveness probe: process up, nothing more.
func (h *Handlers) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady is the readiness probe: reports database reachability and the
// rights-request backlog so dashboards surface compliance pressure.
func (h *Handlers) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Database:  "ok",
	}

	if err := h.services.Health.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	pending, overdue, err := h.services.Health.Backlog(ctx)
	if err != nil {
		h.logger.Warn("backlog counters unavailable", "error", err)
	} else {
		resp.Pending = pending
		resp.Overdue = overdue
	}

	h.writeJSON(w, http.StatusOK, resp)
}
