package rest

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeError maps a domain error onto an HTTP response. AppError carries its
// own status code; anything else is an opaque 500 so internals never leak.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		if appErr.StatusCode >= 500 {
			h.logger.Error("request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"code", appErr.Code,
				"error", err,
			)
		}
		h.writeJSON(w, appErr.StatusCode, errorBody{Error: errorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}})
		return
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		h.writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: errorDetail{
			Code:    "TIMEOUT",
			Message: "request timed out",
		}})
	case stderrors.Is(err, context.Canceled):
		h.writeJSON(w, 499, errorBody{Error: errorDetail{
			Code:    "CANCELLED",
			Message: "request was cancelled",
		}})
	default:
		h.logger.Error("unhandled error",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Code:    "INTERNAL_ERROR",
			Message: "an internal error occurred",
		}})
	}
}
