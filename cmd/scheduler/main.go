// Command scheduler runs the daily compliance chores once and exits. It is
// meant to be driven by cron or a Kubernetes CronJob; a cluster-wide advisory
// lock makes concurrent invocations harmless.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/database"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/email"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/telemetry"
	"github.com/dataguard/gdpr-engine/internal/service/consent"
	"github.com/dataguard/gdpr-engine/internal/service/notification"
	"github.com/dataguard/gdpr-engine/internal/service/restriction"
	"github.com/dataguard/gdpr-engine/internal/service/scheduler"
	"github.com/dataguard/gdpr-engine/internal/service/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall run deadline")
	flag.Parse()

	if err := run(*configPath, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := database.NewConnectionPool(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	auditRepo := database.NewAuditRepository(pool)
	consentRepo := database.NewConsentRepository(pool)
	requestRepo := database.NewRequestRepository(pool)
	restrictionRepo := database.NewRestrictionRepository(pool)
	webhookRepo := database.NewWebhookRepository(pool)

	webhookSvc := webhook.NewService(webhookRepo, cfg.Webhook, logger)
	defer webhookSvc.Drain()

	consentSvc := consent.NewService(logger, consentRepo, auditRepo, pool, webhookSvc)
	restrictionSvc := restriction.NewService(logger, restrictionRepo, auditRepo, pool, webhookSvc)

	sender := email.NewSMTPSender(cfg.SMTP, logger)
	notifySvc := notification.NewService(sender, requestRepo, consentRepo, webhookSvc, cfg.DPO, logger)

	sched := scheduler.New(consentSvc, restrictionSvc, notifySvc, webhookSvc, pool, logger)

	result, err := sched.RunDaily(ctx)
	if err != nil {
		return err
	}
	if result.Skipped {
		logger.Info("daily run skipped, another worker holds the lock")
		return nil
	}

	failed := 0
	for _, step := range result.Steps {
		if step.Error != "" {
			failed++
			logger.Error("daily step failed",
				zap.String("step", step.Name),
				zap.String("error", step.Error),
			)
			continue
		}
		logger.Info("daily step completed",
			zap.String("step", step.Name),
			zap.Int("count", step.Count),
		)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d daily steps failed", failed, len(result.Steps))
	}
	return nil
}
