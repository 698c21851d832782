package rest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/service/consent"
	"github.com/dataguard/gdpr-engine/internal/service/dataops"
	"github.com/dataguard/gdpr-engine/internal/service/request"
	"github.com/dataguard/gdpr-engine/internal/service/restriction"
	"github.com/dataguard/gdpr-engine/internal/service/retention"
	"github.com/dataguard/gdpr-engine/internal/service/webhook"
)

const maxBodyBytes = 1 << 20 // 1MB

// Services bundles every business service the API fronts.
type Services struct {
	Consent     consent.Service
	Request     request.Service
	DataOps     dataops.Service
	Restriction restriction.Service
	Retention   retention.Service
	Webhook     webhook.Service
	Audit       AuditQuerier
	Health      HealthChecker
}

// Handlers holds the HTTP handler state shared across endpoint groups.
type Handlers struct {
	services *Services
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandlers creates the handler set over the given services.
func NewHandlers(services *Services, logger *slog.Logger) *Handlers {
	return &Handlers{
		services: services,
		validate: validator.New(),
		logger:   logger,
	}
}

// writeJSON sends a JSON response with the given status code.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// decodeJSON reads and validates a request body into dst. The body is capped
// at maxBodyBytes.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			h.writeError(w, r, errors.NewValidationError("EMPTY_BODY", "request body is required"))
			return false
		}
		h.writeError(w, r, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON").WithCause(err))
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			h.writeError(w, r, validationError(verrs))
			return false
		}
		h.writeError(w, r, errors.NewValidationError("INVALID_REQUEST", "request failed validation").WithCause(err))
		return false
	}
	return true
}

func validationError(verrs validator.ValidationErrors) *errors.AppError {
	fields := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return errors.NewValidationError("INVALID_REQUEST", "request failed validation").WithDetails(fields)
}

// pathUUID parses the {id} path segment. A malformed value yields a
// validation error instead of a repository round trip.
func (h *Handlers) pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_ID", "id must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
