// Package scheduler is the clock-driven maintenance entry point. One
// invocation performs the daily compliance chores in a fixed order; a failed
// step is recorded and the remaining steps still run.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/service/notification"
)

// LockName keys the cross-process advisory lock; at most one daily run may
// be in flight at a time.
const LockName = "gdpr_daily_scheduler"

// ConsentExpiryNoticeDays is how far ahead the pre-notice looks.
const ConsentExpiryNoticeDays = 30

// ConsentExpirer lapses granted consents whose expiry has passed
type ConsentExpirer interface {
	ExpireConsents(ctx context.Context) (int, error)
}

// RestrictionExpirer deactivates restrictions whose expiry has passed
type RestrictionExpirer interface {
	ExpireRestrictions(ctx context.Context) (int, error)
}

// Notifier runs the batch notification jobs
type Notifier interface {
	NotifyOverdue(ctx context.Context) (*notification.NotifyResult, error)
	NotifyExpiringConsents(ctx context.Context, daysBefore int) (*notification.NotifyResult, error)
}

// LogTrimmer reaps aged webhook delivery logs
type LogTrimmer interface {
	TrimLogs(ctx context.Context, olderThan time.Time) (int64, error)
}

// Locker serializes runs across workers
type Locker interface {
	TryAdvisoryLock(ctx context.Context, jobName string) (bool, func(), error)
}

// StepResult reports one step of a daily run
type StepResult struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// RunResult reports one full daily run
type RunResult struct {
	Skipped bool         `json:"skipped"`
	Steps   []StepResult `json:"steps,omitempty"`
	RanAt   time.Time    `json:"ran_at"`
}

// Scheduler wires the daily chores together
type Scheduler struct {
	consents     ConsentExpirer
	restrictions RestrictionExpirer
	notifier     Notifier
	trimmer      LogTrimmer
	locker       Locker
	logger       *zap.Logger
}

// New creates the daily scheduler
func New(
	consents ConsentExpirer,
	restrictions RestrictionExpirer,
	notifier Notifier,
	trimmer LogTrimmer,
	locker Locker,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		consents:     consents,
		restrictions: restrictions,
		notifier:     notifier,
		trimmer:      trimmer,
		locker:       locker,
		logger:       logger,
	}
}

// RunDaily performs one maintenance pass. When another worker holds the
// advisory lock the run is skipped, not queued.
func (s *Scheduler) RunDaily(ctx context.Context) (*RunResult, error) {
	acquired, release, err := s.locker.TryAdvisoryLock(ctx, LockName)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.logger.Info("daily run skipped, another worker holds the lock")
		return &RunResult{Skipped: true, RanAt: time.Now().UTC()}, nil
	}
	defer release()

	result := &RunResult{RanAt: time.Now().UTC()}

	result.record(s.logger, "notify_overdue", func() (int, error) {
		r, err := s.notifier.NotifyOverdue(ctx)
		if err != nil {
			return 0, err
		}
		return r.CountSent, nil
	})

	result.record(s.logger, "expire_consents", func() (int, error) {
		return s.consents.ExpireConsents(ctx)
	})

	result.record(s.logger, "expire_restrictions", func() (int, error) {
		return s.restrictions.ExpireRestrictions(ctx)
	})

	result.record(s.logger, "notify_expiring_consents", func() (int, error) {
		r, err := s.notifier.NotifyExpiringConsents(ctx, ConsentExpiryNoticeDays)
		if err != nil {
			return 0, err
		}
		return r.CountSent, nil
	})

	result.record(s.logger, "trim_webhook_logs", func() (int, error) {
		cutoff := time.Now().UTC().AddDate(0, 0, -webhook.LogRetentionDays)
		n, err := s.trimmer.TrimLogs(ctx, cutoff)
		return int(n), err
	})

	s.logger.Info("daily run finished", zap.Int("steps", len(result.Steps)))
	return result, nil
}

// record runs one step and appends its outcome. Step errors are captured,
// never returned.
func (r *RunResult) record(logger *zap.Logger, name string, fn func() (int, error)) {
	count, err := fn()
	step := StepResult{Name: name, Count: count}
	if err != nil {
		step.Error = err.Error()
		logger.Error("daily step failed", zap.String("step", name), zap.Error(err))
	} else {
		logger.Info("daily step finished", zap.String("step", name), zap.Int("count", count))
	}
	r.Steps = append(r.Steps, step)
}
