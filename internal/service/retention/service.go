package retention

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/retention"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
	"github.com/dataguard/gdpr-engine/internal/infrastructure/telemetry"
)

const systemActor = "system"

// Ensure service implements the interface
var _ Service = (*service)(nil)

type service struct {
	logger     *zap.Logger
	schemaMap  *schema.Map
	policyRepo RetentionRepository
	sweeper    SweepRepository
	auditor    AuditRecorder
	tx         Transactor
	publisher  EventPublisher
}

// NewService creates a new retention service
func NewService(
	logger *zap.Logger,
	schemaMap *schema.Map,
	policyRepo RetentionRepository,
	sweeper SweepRepository,
	auditor AuditRecorder,
	tx Transactor,
	publisher EventPublisher,
) Service {
	return &service{
		logger:     logger,
		schemaMap:  schemaMap,
		policyRepo: policyRepo,
		sweeper:    sweeper,
		auditor:    auditor,
		tx:         tx,
		publisher:  publisher,
	}
}

// CreatePolicy declares a rule. The table must be in the schema map: the
// sweep never touches a table the engine does not know.
func (s *service) CreatePolicy(ctx context.Context, req PolicyRequest) (*PolicyResponse, error) {
	if !s.schemaMap.Contains(req.TableName) {
		return nil, errors.NewValidationError("UNKNOWN_TABLE",
			fmt.Sprintf("table %s is not in the schema map", req.TableName))
	}

	p, err := retention.NewPolicy(req.TableName, req.RetentionDays, retention.Action(req.Action))
	if err != nil {
		return nil, err
	}
	if req.ConditionColumn != "" {
		p.WithCondition(req.ConditionColumn, req.ConditionValue)
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.policyRepo.Create(ctx, p); err != nil {
			return err
		}
		return s.auditPolicyChange(ctx, p, req.PerformedBy, "retention_policy_created")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("retention policy created",
		zap.String("table", p.TableName),
		zap.Int("retention_days", p.RetentionDays),
		zap.String("action", string(p.Action)))
	return toResponse(p), nil
}

// UpdatePolicy rewrites a rule in place.
func (s *service) UpdatePolicy(ctx context.Context, id uuid.UUID, req PolicyRequest) (*PolicyResponse, error) {
	if _, err := retention.ParseAction(req.Action); err != nil {
		return nil, err
	}
	if req.RetentionDays <= 0 {
		return nil, errors.NewValidationError("INVALID_RETENTION", "retention days must be positive")
	}

	var updated *retention.Policy
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		p, err := s.policyRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		p.RetentionDays = req.RetentionDays
		p.Action = retention.Action(req.Action)
		p.ConditionColumn = req.ConditionColumn
		p.ConditionValue = req.ConditionValue
		if err := s.policyRepo.Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return s.auditPolicyChange(ctx, p, req.PerformedBy, "retention_policy_updated")
	})
	if err != nil {
		return nil, err
	}
	return toResponse(updated), nil
}

// DeactivatePolicy disables a rule.
func (s *service) DeactivatePolicy(ctx context.Context, id uuid.UUID, performedBy string) (*PolicyResponse, error) {
	var p *retention.Policy
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		loaded, err := s.policyRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		loaded.Deactivate()
		if err := s.policyRepo.Update(ctx, loaded); err != nil {
			return err
		}
		p = loaded
		return s.auditPolicyChange(ctx, loaded, performedBy, "retention_policy_deactivated")
	})
	if err != nil {
		return nil, err
	}
	return toResponse(p), nil
}

// ListPolicies returns every declared rule.
func (s *service) ListPolicies(ctx context.Context) ([]*PolicyResponse, error) {
	policies, err := s.policyRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*PolicyResponse, len(policies))
	for i, p := range policies {
		out[i] = toResponse(p)
	}
	return out, nil
}

// RunCleanup sweeps active policies in one transaction; a non-empty table
// narrows the sweep to that table's policy. One policy's failure is recorded
// and the sweep continues. Dry run only counts.
func (s *service) RunCleanup(ctx context.Context, table string, dryRun bool) (*CleanupResult, error) {
	if table != "" && !s.schemaMap.Contains(table) {
		return nil, errors.NewValidationError("UNKNOWN_TABLE",
			fmt.Sprintf("table %s is not in the schema map", table))
	}

	result := &CleanupResult{DryRun: dryRun}

	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		policies, err := s.policyRepo.ListActive(ctx)
		if err != nil {
			return err
		}

		for _, p := range policies {
			if table != "" && p.TableName != table {
				continue
			}
			outcome := TableCleanup{Table: p.TableName, Action: string(p.Action)}

			d, ok := s.schemaMap.Lookup(p.TableName)
			if !ok {
				outcome.Error = "table is not in the schema map"
				result.Tables = append(result.Tables, outcome)
				continue
			}

			count, err := s.sweepPolicy(ctx, p, d, dryRun)
			if err != nil {
				outcome.Error = err.Error()
				result.Tables = append(result.Tables, outcome)
				continue
			}
			outcome.Count = count
			result.Tables = append(result.Tables, outcome)
			result.TotalAffected += count

			if dryRun {
				continue
			}
			telemetry.RetentionRowsRemoved.WithLabelValues(p.TableName, string(p.Action)).Add(float64(count))

			p.RecordRun(int(count))
			if err := s.policyRepo.Update(ctx, p); err != nil {
				return err
			}

			entry, err := audit.RetentionCleanup(p.TableName, string(p.Action),
				p.RetentionDays, int(count))
			if err != nil {
				return err
			}
			if err := s.auditor.Record(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !dryRun && result.TotalAffected > 0 {
		s.publisher.Publish(ctx, webhook.EventRetentionCleanup, result)
	}
	s.logger.Info("retention sweep completed",
		zap.Int64("affected", result.TotalAffected),
		zap.Int("policies", len(result.Tables)),
		zap.Bool("dry_run", dryRun))
	return result, nil
}

func (s *service) sweepPolicy(ctx context.Context, p *retention.Policy, d schema.TableDescriptor, dryRun bool) (int64, error) {
	if dryRun {
		return s.sweeper.CountExpired(ctx, p)
	}
	switch p.Action {
	case retention.ActionDelete:
		return s.sweeper.DeleteExpired(ctx, p)
	case retention.ActionAnonymize:
		return s.sweeper.AnonymizeExpired(ctx, p, d)
	case retention.ActionArchive:
		return s.sweeper.ArchiveExpired(ctx, p)
	default:
		return 0, errors.NewValidationError("INVALID_RETENTION_ACTION",
			fmt.Sprintf("invalid retention action: %s", p.Action))
	}
}

func (s *service) auditPolicyChange(ctx context.Context, p *retention.Policy, performedBy, operation string) error {
	if performedBy == "" {
		performedBy = systemActor
	}
	entry, err := audit.PolicyUpdated(performedBy, operation)
	if err != nil {
		return err
	}
	entry.WithTables([]string{p.TableName}, 0).
		WithDetail("policy_id", p.ID.String()).
		WithDetail("retention_days", p.RetentionDays).
		WithDetail("action", string(p.Action))
	return s.auditor.Record(ctx, entry)
}
