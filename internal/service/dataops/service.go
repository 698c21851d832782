package dataops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/domain/audit"
	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/restriction"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
	"github.com/dataguard/gdpr-engine/internal/domain/webhook"
)

// Ensure service implements the interface
var _ Service = (*service)(nil)

type service struct {
	logger       *zap.Logger
	schemaMap    *schema.Map
	subjectData  SubjectDataRepository
	restrictions RestrictionChecker
	auditor      AuditRecorder
	tx           Transactor
	publisher    EventPublisher
	exportDir    string
}

// NewService creates a new data operator service
func NewService(
	logger *zap.Logger,
	schemaMap *schema.Map,
	subjectData SubjectDataRepository,
	restrictions RestrictionChecker,
	auditor AuditRecorder,
	tx Transactor,
	publisher EventPublisher,
	exportDir string,
) Service {
	return &service{
		logger:       logger,
		schemaMap:    schemaMap,
		subjectData:  subjectData,
		restrictions: restrictions,
		auditor:      auditor,
		tx:           tx,
		publisher:    publisher,
		exportDir:    exportDir,
	}
}

// Export loads the subject's rows from every exportable table inside one
// transaction, so counts match the database at a single instant, and writes
// one file under the export directory.
func (s *service) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	email, err := values.NewEmail(req.Email)
	if err != nil {
		return nil, err
	}
	format, err := values.NewExportFormat(req.Format)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_FORMAT", err.Error())
	}
	if err := s.checkRestriction(ctx, email.String(), string(restriction.OpExport)); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	fileName := exportFileName(email.String(), format, ts)
	filePath := filepath.Join(s.exportDir, fileName)

	var result *ExportResult
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var sections []exportSection
		var total int64
		var tables []string

		for _, d := range s.schemaMap.TablesForExport() {
			columns, rows, err := s.subjectData.SelectRows(ctx, d, email.String())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			sections = append(sections, exportSection{Table: d.Name, Columns: columns, Rows: rows})
			tables = append(tables, d.Name)
			total += int64(len(rows))
		}

		if err := os.MkdirAll(s.exportDir, 0o750); err != nil {
			return errors.NewInternalError("failed to create export directory").WithCause(err)
		}
		f, err := os.Create(filePath)
		if err != nil {
			return errors.NewInternalError("failed to create export file").WithCause(err)
		}
		defer f.Close()

		if format.IsJSON() {
			err = writeJSONExport(f, email.String(), ts, sections)
		} else {
			err = writeCSVExport(f, email.String(), ts, sections)
		}
		if err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return errors.NewInternalError("failed to sync export file").WithCause(err)
		}
		info, err := f.Stat()
		if err != nil {
			return errors.NewInternalError("failed to stat export file").WithCause(err)
		}

		result = &ExportResult{
			FilePath:       filePath,
			FileSize:       info.Size(),
			TotalRecords:   total,
			TablesExported: tables,
		}

		entry, err := audit.NewEntry(audit.ActionDataExported, req.Requester)
		if err != nil {
			return err
		}
		entry.WithSubject(email.String()).
			WithTables(tables, int(total)).
			WithDetail("file_url", filePath).
			WithDetail("format", format.String())
		if req.RequestID != nil {
			entry.WithRequest(*req.RequestID)
		}
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		// Do not leave a partial file behind on a failed export.
		os.Remove(filePath)
		return nil, err
	}

	s.logger.Info("subject data exported",
		zap.String("format", format.String()),
		zap.Int64("records", result.TotalRecords),
		zap.Strings("tables", result.TablesExported))

	s.publisher.Publish(ctx, webhook.EventDataExported, result)
	return result, nil
}

// Erase walks the schema map in declared order: deletable tables lose the
// subject's rows, the rest are anonymized in place. One table's failure is
// recorded and the walk continues. Dry run only counts.
func (s *service) Erase(ctx context.Context, req EraseRequest) (*EraseResult, error) {
	email, err := values.NewEmail(req.Email)
	if err != nil {
		return nil, err
	}
	// The right to erasure cannot be blocked by a restriction when the
	// erasure itself is the subject's rights request.
	if !req.FromErasureRequest {
		if err := s.checkRestriction(ctx, email.String(), string(restriction.OpDelete)); err != nil {
			return nil, err
		}
	}

	result := &EraseResult{
		Tables: make(map[string]TableOutcome),
		DryRun: req.DryRun,
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var affectedTables []string

		for _, d := range s.schemaMap.TablesForErasure() {
			outcome, err := s.eraseTable(ctx, d, email.String(), req.DryRun)
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: %v", d.Name, err))
				continue
			}
			result.Tables[d.Name] = outcome
			if outcome.Count == 0 {
				continue
			}
			affectedTables = append(affectedTables, d.Name)
			if outcome.Action == "deleted" {
				result.TotalDeleted += outcome.Count
			} else {
				result.TotalAnonymized += outcome.Count
			}
		}

		if req.DryRun || len(affectedTables) == 0 {
			return nil
		}

		entry, err := audit.NewEntry(audit.ActionDataDeleted, req.Requester)
		if err != nil {
			return err
		}
		entry.WithSubject(email.String()).
			WithTables(affectedTables, int(result.TotalDeleted+result.TotalAnonymized)).
			WithDetail("total_deleted", result.TotalDeleted).
			WithDetail("total_anonymized", result.TotalAnonymized)
		if req.RequestID != nil {
			entry.WithRequest(*req.RequestID)
		}
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	if !req.DryRun && result.TotalDeleted+result.TotalAnonymized > 0 {
		s.logger.Info("subject data erased",
			zap.Int64("deleted", result.TotalDeleted),
			zap.Int64("anonymized", result.TotalAnonymized))
		s.publisher.Publish(ctx, webhook.EventDataErased, result)
	}
	return result, nil
}

func (s *service) eraseTable(ctx context.Context, d schema.TableDescriptor, email string, dryRun bool) (TableOutcome, error) {
	if d.CanDelete {
		if dryRun {
			count, err := s.subjectData.CountRows(ctx, d, email)
			return TableOutcome{Count: count, Action: "deleted"}, err
		}
		count, err := s.subjectData.DeleteBySubject(ctx, d, email)
		return TableOutcome{Count: count, Action: "deleted"}, err
	}

	cols := make([]string, 0, len(d.AnonymizeTo))
	for col := range d.AnonymizeTo {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	if dryRun {
		count, err := s.subjectData.CountRows(ctx, d, email)
		return TableOutcome{Count: count, Action: "anonymized", ColumnsAnonymized: cols}, err
	}
	count, err := s.subjectData.AnonymizeBySubject(ctx, d, email)
	return TableOutcome{Count: count, Action: "anonymized", ColumnsAnonymized: cols}, err
}

// Rectify validates every (table, field) pair against the whitelist, then
// rewrites the allowed tables in one transaction with before/after capture.
func (s *service) Rectify(ctx context.Context, req RectifyRequest) (*RectifyResult, error) {
	email, err := values.NewEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Rectifications) == 0 {
		return nil, errors.NewValidationError("NO_RECTIFICATIONS", "no rectifications supplied")
	}
	if err := s.checkRestriction(ctx, email.String(), string(restriction.OpUpdate)); err != nil {
		return nil, err
	}

	// Deterministic table order regardless of map iteration.
	tables := make([]string, 0, len(req.Rectifications))
	for table := range req.Rectifications {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	result := &RectifyResult{
		Tables: make(map[string]TableRectification),
		DryRun: req.DryRun,
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		details := make(map[string]interface{})

		for _, table := range tables {
			fields := req.Rectifications[table]
			d, ok := s.schemaMap.Lookup(table)
			if !ok {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: unknown table", table))
				continue
			}
			if rejected := rejectedFields(s.schemaMap, table, fields); rejected != "" {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: field %s is not rectifiable", table, rejected))
				continue
			}

			fieldNames := make([]string, 0, len(fields))
			for f := range fields {
				fieldNames = append(fieldNames, f)
			}
			sort.Strings(fieldNames)

			oldValues, err := s.subjectData.SelectFields(ctx, d, email.String(), fieldNames)
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: %v", table, err))
				continue
			}

			var updated int64
			if !req.DryRun {
				updated, err = s.subjectData.RectifyFields(ctx, d, email.String(), fields)
				if err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("%s: %v", table, err))
					continue
				}
			} else {
				updated = int64(len(oldValues))
			}

			result.Tables[table] = TableRectification{
				RowsUpdated: updated,
				OldValues:   oldValues,
				NewValues:   fields,
			}
			details[table] = map[string]interface{}{
				"old_values": oldValues,
				"new_values": fields,
			}
		}

		if req.DryRun || len(result.Tables) == 0 {
			return nil
		}

		entry, err := audit.NewEntry(audit.ActionDataAccessed, req.Requester)
		if err != nil {
			return err
		}
		affected := make([]string, 0, len(result.Tables))
		var count int64
		for table, tr := range result.Tables {
			affected = append(affected, table)
			count += tr.RowsUpdated
		}
		sort.Strings(affected)
		entry.WithSubject(email.String()).
			WithTables(affected, int(count)).
			WithDetail("operation", "rectification").
			WithDetail("changes", details)
		if req.RequestID != nil {
			entry.WithRequest(*req.RequestID)
		}
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	if !req.DryRun && len(result.Tables) > 0 {
		s.logger.Info("subject data rectified",
			zap.Int("tables", len(result.Tables)),
			zap.Int("errors", len(result.Errors)))
		s.publisher.Publish(ctx, webhook.EventDataRectified, result)
	}
	return result, nil
}

// RectifyEmail rewrites the identifier column across every table whose
// whitelist covers it. Everything shares one transaction.
func (s *service) RectifyEmail(ctx context.Context, req RectifyEmailRequest) (*RectifyResult, error) {
	oldEmail, err := values.NewEmail(req.OldEmail)
	if err != nil {
		return nil, err
	}
	newEmail, err := values.NewEmail(req.NewEmail)
	if err != nil {
		return nil, err
	}
	if oldEmail.Equal(newEmail) {
		return nil, errors.NewValidationError("SAME_EMAIL", "old and new email are identical")
	}

	rectifications := make(map[string]map[string]any)
	for _, name := range s.schemaMap.Tables() {
		d, _ := s.schemaMap.Lookup(name)
		if d.IdentifierColumn == "" || !s.schemaMap.IsRectifiable(name, d.IdentifierColumn) {
			continue
		}
		rectifications[name] = map[string]any{d.IdentifierColumn: newEmail.String()}
	}
	if len(rectifications) == 0 {
		return nil, errors.NewValidationError("NO_RECTIFIABLE_TABLES",
			"no table allows rewriting its identifier column")
	}

	return s.Rectify(ctx, RectifyRequest{
		Email:          oldEmail.String(),
		Rectifications: rectifications,
		Requester:      req.Requester,
		RequestID:      req.RequestID,
	})
}

func (s *service) checkRestriction(ctx context.Context, email, op string) error {
	restricted, err := s.restrictions.IsRestricted(ctx, email, op, "")
	if err != nil {
		return err
	}
	if restricted {
		return errors.NewPreconditionError("PROCESSING_RESTRICTED",
			fmt.Sprintf("operation %s is blocked by an active processing restriction", op))
	}
	return nil
}

func rejectedFields(m *schema.Map, table string, fields map[string]any) string {
	for f := range fields {
		if !m.IsRectifiable(table, f) {
			return f
		}
	}
	return ""
}
