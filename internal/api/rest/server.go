package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
)

// Server is the HTTP front of the compliance engine.
type Server struct {
	config   *config.Config
	handlers *Handlers
	logger   *slog.Logger
	server   *http.Server

	// rateLimiter is optional; nil disables distributed rate limiting.
	rateLimiter *RedisRateLimiter
}

// NewServer wires the router and middleware over the given services.
func NewServer(cfg *config.Config, services *Services, rateLimiter *RedisRateLimiter, logger *slog.Logger) *Server {
	s := &Server{
		config:      cfg,
		handlers:    NewHandlers(services, logger),
		logger:      logger,
		rateLimiter: rateLimiter,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	h := s.handlers
	api := http.NewServeMux()

	// Consent manager
	api.HandleFunc("POST /api/v1/consents", h.handleGrantConsent)
	api.HandleFunc("POST /api/v1/consents/withdraw", h.handleWithdrawConsent)
	api.HandleFunc("POST /api/v1/consents/withdraw-all", h.handleWithdrawAllConsents)
	api.HandleFunc("GET /api/v1/consents/status", h.handleConsentStatus)
	api.HandleFunc("GET /api/v1/consents/check", h.handleConsentCheck)

	// Subject rights requests
	api.HandleFunc("POST /api/v1/requests", h.handleCreateRequest)
	api.HandleFunc("GET /api/v1/requests", h.handleListRequests)
	api.HandleFunc("GET /api/v1/requests/overdue", h.handleOverdueRequests)
	api.HandleFunc("GET /api/v1/requests/{id}", h.handleGetRequest)
	api.HandleFunc("POST /api/v1/requests/{id}/process", h.handleProcessRequest)
	api.HandleFunc("POST /api/v1/requests/{id}/complete", h.handleCompleteRequest)
	api.HandleFunc("POST /api/v1/requests/{id}/reject", h.handleRejectRequest)
	api.HandleFunc("POST /api/v1/requests/{id}/cancel", h.handleCancelRequest)

	// Direct data operations
	api.HandleFunc("POST /api/v1/data/export", h.handleExport)
	api.HandleFunc("POST /api/v1/data/erase", h.handleErase)
	api.HandleFunc("POST /api/v1/data/rectify", h.handleRectify)
	api.HandleFunc("POST /api/v1/data/rectify-email", h.handleRectifyEmail)

	// Processing restrictions
	api.HandleFunc("POST /api/v1/restrictions", h.handleCreateRestriction)
	api.HandleFunc("GET /api/v1/restrictions", h.handleListRestrictions)
	api.HandleFunc("GET /api/v1/restrictions/check", h.handleCheckRestriction)
	api.HandleFunc("POST /api/v1/restrictions/{id}/lift", h.handleLiftRestriction)

	// Retention policies
	api.HandleFunc("POST /api/v1/retention/policies", h.handleCreatePolicy)
	api.HandleFunc("GET /api/v1/retention/policies", h.handleListPolicies)
	api.HandleFunc("PUT /api/v1/retention/policies/{id}", h.handleUpdatePolicy)
	api.HandleFunc("DELETE /api/v1/retention/policies/{id}", h.handleDeactivatePolicy)
	api.HandleFunc("POST /api/v1/retention/run", h.handleRunCleanup)

	// Webhook subscriptions
	api.HandleFunc("POST /api/v1/webhooks", h.handleCreateSubscription)
	api.HandleFunc("GET /api/v1/webhooks", h.handleListSubscriptions)
	api.HandleFunc("GET /api/v1/webhooks/{id}", h.handleGetSubscription)
	api.HandleFunc("PATCH /api/v1/webhooks/{id}", h.handleUpdateSubscription)
	api.HandleFunc("DELETE /api/v1/webhooks/{id}", h.handleDeleteSubscription)
	api.HandleFunc("GET /api/v1/webhooks/deliveries", h.handleListDeliveries)
	api.HandleFunc("GET /api/v1/webhooks/{id}/deliveries", h.handleListSubscriptionDeliveries)
	api.HandleFunc("POST /api/v1/webhooks/test", h.handleTestFire)

	// Audit trail (read-only)
	api.HandleFunc("GET /api/v1/audit", h.handleQueryAudit)
	api.HandleFunc("GET /api/v1/audit/{id}", h.handleGetAuditEntry)

	protected := []Middleware{h.authMiddleware([]byte(s.config.Security.JWTSecret))}
	if s.rateLimiter != nil && s.config.Security.RateLimit.Enabled {
		protected = append([]Middleware{s.rateLimiter.Middleware()}, protected...)
	}

	root := http.NewServeMux()
	root.Handle("/api/v1/", chain(api, protected...))
	root.HandleFunc("GET /healthz", h.handleHealthz)
	root.HandleFunc("GET /ready", h.handleReady)
	root.Handle("GET /metrics", promhttp.Handler())

	return chain(root,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		timeoutMiddleware(s.config.Server.WriteTimeout),
	)
}

// Handler exposes the composed router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the server until ctx is cancelled or SIGINT/SIGTERM arrives,
// then shuts down within the configured grace period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
