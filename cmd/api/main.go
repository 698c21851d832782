package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/api/rest"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/database"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/email"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/telemetry"
	"github.com/dataguard/gdpr-engine/internal/service/consent"
	"github.com/dataguard/gdpr-engine/internal/service/dataops"
	"github.com/dataguard/gdpr-engine/internal/service/notification"
	"github.com/dataguard/gdpr-engine/internal/service/request"
	"github.com/dataguard/gdpr-engine/internal/service/restriction"
	"github.com/dataguard/gdpr-engine/internal/service/retention"
	"github.com/dataguard/gdpr-engine/internal/service/webhook"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "gdpr-engine: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	slogger := telemetry.SetupLogger(cfg.LogLevel)

	ctx := context.Background()

	provider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "gdpr-engine",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	pool, err := database.NewConnectionPool(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	auditRepo := database.NewAuditRepository(pool)
	consentRepo := database.NewConsentRepository(pool)
	requestRepo := database.NewRequestRepository(pool)
	restrictionRepo := database.NewRestrictionRepository(pool)
	retentionRepo := database.NewRetentionRepository(pool)
	subjectData := database.NewSubjectDataRepository(pool)
	webhookRepo := database.NewWebhookRepository(pool)

	schemaMap := schema.DefaultMap()

	webhookSvc := webhook.NewService(webhookRepo, cfg.Webhook, logger)
	defer webhookSvc.Drain()

	consentSvc := consent.NewService(logger, consentRepo, auditRepo, pool, webhookSvc)
	restrictionSvc := restriction.NewService(logger, restrictionRepo, auditRepo, pool, webhookSvc)
	dataopsSvc := dataops.NewService(logger, schemaMap, subjectData,
		dataops.NewRestrictionChecker(restrictionSvc), auditRepo, pool, webhookSvc, cfg.Export.Dir)
	retentionSvc := retention.NewService(logger, schemaMap, retentionRepo, subjectData,
		auditRepo, pool, webhookSvc)

	sender := email.NewSMTPSender(cfg.SMTP, logger)
	notifySvc := notification.NewService(sender, requestRepo, consentRepo, webhookSvc, cfg.DPO, logger)

	requestSvc := request.NewService(requestRepo, request.NewDataOperator(dataopsSvc),
		notifySvc, auditRepo, pool, webhookSvc, logger)

	var rateLimiter *rest.RedisRateLimiter
	if cfg.Security.RateLimit.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		opts.Password = cfg.Redis.Password
		opts.DB = cfg.Redis.DB
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()

		rateLimiter = rest.NewRedisRateLimiter(client, rest.RateLimiterConfig{
			RequestsPerMinute: cfg.Security.RateLimit.RequestsPerMinute,
		}, slogger)
	}

	services := &rest.Services{
		Consent:     consentSvc,
		Request:     requestSvc,
		DataOps:     dataopsSvc,
		Restriction: restrictionSvc,
		Retention:   retentionSvc,
		Webhook:     webhookSvc,
		Audit:       auditRepo,
		Health:      database.NewHealthStore(pool),
	}

	server := rest.NewServer(cfg, services, rateLimiter, slogger)

	logger.Info("starting gdpr-engine",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
	)
	return server.Start(ctx)
}
