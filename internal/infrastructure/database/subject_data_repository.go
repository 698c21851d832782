package database

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/retention"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
)

// SubjectDataRepository runs the dynamic SQL behind export, erasure,
// rectification and retention. Every statement is built exclusively from
// schema.TableDescriptor fields; table and column names never come from
// request input, and all identifiers pass through pgx sanitization.
type SubjectDataRepository struct {
	db *ConnectionPool
}

// NewSubjectDataRepository creates a new PostgreSQL subject-data repository
func NewSubjectDataRepository(db *ConnectionPool) *SubjectDataRepository {
	return &SubjectDataRepository{db: db}
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// subjectMatch builds the WHERE fragment matching a subject in one table.
// Identifier columns compare lowercased; author columns match user-generated
// content either by exact email or by a case-insensitive LIKE on the email's
// local part.
func subjectMatch(d schema.TableDescriptor, email string, argOffset int) (string, []any) {
	var conds []string
	var args []any

	if d.IdentifierColumn != "" {
		args = append(args, strings.ToLower(email))
		conds = append(conds, fmt.Sprintf("lower(%s) = $%d",
			quoteIdent(d.IdentifierColumn), argOffset+len(args)))
	}
	if d.AuthorColumn != "" {
		if d.AuthorColumnIsEmail {
			args = append(args, strings.ToLower(email))
			conds = append(conds, fmt.Sprintf("lower(%s) = $%d",
				quoteIdent(d.AuthorColumn), argOffset+len(args)))
		} else {
			local := email
			if i := strings.Index(email, "@"); i > 0 {
				local = email[:i]
			}
			args = append(args, "%"+local+"%")
			conds = append(conds, fmt.Sprintf("%s ILIKE $%d",
				quoteIdent(d.AuthorColumn), argOffset+len(args)))
		}
	}
	if len(conds) == 0 {
		return "FALSE", nil
	}
	return "(" + strings.Join(conds, " OR ") + ")", args
}

// CountRows returns how many rows in the table match the subject.
func (r *SubjectDataRepository) CountRows(ctx context.Context, d schema.TableDescriptor, email string) (int64, error) {
	where, args := subjectMatch(d, email, 0)
	var count int64
	err := r.db.DB(ctx).QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", quoteIdent(d.Name), where),
		args...).Scan(&count)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to count rows in %s", d.Name)).WithCause(err)
	}
	return count, nil
}

// SelectRows returns the subject's rows as column->value maps, plus the
// column order, for the export writers.
func (r *SubjectDataRepository) SelectRows(ctx context.Context, d schema.TableDescriptor, email string) ([]string, []map[string]any, error) {
	where, args := subjectMatch(d, email, 0)
	rows, err := r.db.DB(ctx).Query(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s", quoteIdent(d.Name), where),
		args...)
	if err != nil {
		return nil, nil, errors.NewInternalError(
			fmt.Sprintf("failed to select rows from %s", d.Name)).WithCause(err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	columns := make([]string, len(descs))
	for i, fd := range descs {
		columns[i] = fd.Name
	}

	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, errors.NewInternalError(
				fmt.Sprintf("failed to read row from %s", d.Name)).WithCause(err)
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.NewInternalError(
			fmt.Sprintf("error iterating rows of %s", d.Name)).WithCause(err)
	}
	return columns, out, nil
}

// DeleteBySubject removes the subject's rows from a deletable table.
func (r *SubjectDataRepository) DeleteBySubject(ctx context.Context, d schema.TableDescriptor, email string) (int64, error) {
	if !d.CanDelete {
		return 0, errors.NewIntegrityError(d.Name, "table is not deletable")
	}
	where, args := subjectMatch(d, email, 0)
	tag, err := r.db.DB(ctx).Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(d.Name), where),
		args...)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to delete from %s", d.Name)).WithCause(err)
	}
	return tag.RowsAffected(), nil
}

// AnonymizeBySubject rewrites the subject's rows in place using the SET
// clauses from anonymizeSetClauses.
func (r *SubjectDataRepository) AnonymizeBySubject(ctx context.Context, d schema.TableDescriptor, email string) (int64, error) {
	sets, args := anonymizeSetClauses(d, email)
	if len(sets) == 0 {
		return 0, errors.NewIntegrityError(d.Name, "no anonymizable columns declared")
	}

	where, whereArgs := subjectMatch(d, email, len(args))
	args = append(args, whereArgs...)

	tag, err := r.db.DB(ctx).Exec(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			quoteIdent(d.Name), strings.Join(sets, ", "), where),
		args...)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to anonymize %s", d.Name)).WithCause(err)
	}
	return tag.RowsAffected(), nil
}

// SelectFields returns the current values of the named columns for the
// subject's rows, for the rectification before/after trail.
func (r *SubjectDataRepository) SelectFields(ctx context.Context, d schema.TableDescriptor, email string, fields []string) ([]map[string]any, error) {
	if len(fields) == 0 {
		return nil, errors.NewValidationError("NO_FIELDS", "no fields to select")
	}

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoteIdent(f)
	}

	where, args := subjectMatch(d, email, 0)
	rows, err := r.db.DB(ctx).Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s",
			strings.Join(quoted, ", "), quoteIdent(d.Name), where),
		args...)
	if err != nil {
		return nil, errors.NewInternalError(
			fmt.Sprintf("failed to select fields from %s", d.Name)).WithCause(err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.NewInternalError(
				fmt.Sprintf("failed to read row from %s", d.Name)).WithCause(err)
		}
		record := make(map[string]any, len(fields))
		for i, f := range fields {
			record[f] = values[i]
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError(
			fmt.Sprintf("error iterating rows of %s", d.Name)).WithCause(err)
	}
	return out, nil
}

// RectifyFields rewrites whitelisted columns for the subject's rows in one
// UPDATE, touching updated_at. Tables with rectifiable columns must carry an
// updated_at column. Callers validate the whitelist; this layer re-checks as
// a guard.
func (r *SubjectDataRepository) RectifyFields(ctx context.Context, d schema.TableDescriptor, email string, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, errors.NewValidationError("NO_FIELDS", "no fields to rectify")
	}

	allowed := make(map[string]bool, len(d.RectifiableColumns))
	for _, c := range d.RectifiableColumns {
		allowed[c] = true
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !allowed[col] {
			return 0, errors.NewIntegrityError(d.Name,
				fmt.Sprintf("column %s is not rectifiable", col))
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sets []string
	var args []any
	for _, col := range cols {
		args = append(args, fields[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(col), len(args)))
	}
	sets = append(sets, "updated_at = now()")

	where, whereArgs := subjectMatch(d, email, len(args))
	args = append(args, whereArgs...)

	tag, err := r.db.DB(ctx).Exec(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			quoteIdent(d.Name), strings.Join(sets, ", "), where),
		args...)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to rectify %s", d.Name)).WithCause(err)
	}
	return tag.RowsAffected(), nil
}

// anonymizeSetClauses builds the full SET list for an in-place erasure: the
// AnonymizeTo literals, plus the deterministic replacement address for the
// identifier column when it is itself a PII column and the map does not
// already cover it.
func anonymizeSetClauses(d schema.TableDescriptor, email string) ([]string, []any) {
	sets, args := anonymizeSets(d, nil)
	if d.IdentifierColumn != "" &&
		slices.Contains(d.PIIColumns, d.IdentifierColumn) &&
		!anonymizeCovers(d, d.IdentifierColumn) {
		args = append(args, schema.AnonymizeEmail(email))
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(d.IdentifierColumn), len(args)))
	}
	return sets, args
}

// anonymizeSets builds SET clauses from a descriptor's AnonymizeTo map in
// sorted column order so the generated SQL is deterministic.
func anonymizeSets(d schema.TableDescriptor, args []any) ([]string, []any) {
	cols := make([]string, 0, len(d.AnonymizeTo))
	for col := range d.AnonymizeTo {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sets []string
	for _, col := range cols {
		repl := d.AnonymizeTo[col]
		if repl == nil {
			sets = append(sets, fmt.Sprintf("%s = NULL", quoteIdent(col)))
		} else {
			args = append(args, *repl)
			sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(col), len(args)))
		}
	}
	return sets, args
}

func anonymizeCovers(d schema.TableDescriptor, col string) bool {
	_, ok := d.AnonymizeTo[col]
	return ok
}

// retentionWhere builds the age filter for a policy sweep. The cutoff is
// computed in SQL so repeated sweeps within one second stay idempotent.
func retentionWhere(p *retention.Policy) (string, []any) {
	where := "created_at < now() - $1 * interval '1 day'"
	args := []any{p.RetentionDays}
	if p.ConditionColumn != "" {
		args = append(args, p.ConditionValue)
		where += fmt.Sprintf(" AND %s = $2", quoteIdent(p.ConditionColumn))
	}
	return where, args
}

// CountExpired returns how many rows a policy sweep would touch (dry run).
func (r *SubjectDataRepository) CountExpired(ctx context.Context, p *retention.Policy) (int64, error) {
	where, args := retentionWhere(p)
	var count int64
	err := r.db.DB(ctx).QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", quoteIdent(p.TableName), where),
		args...).Scan(&count)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to count expired rows in %s", p.TableName)).WithCause(err)
	}
	return count, nil
}

// DeleteExpired removes rows past the policy cutoff.
func (r *SubjectDataRepository) DeleteExpired(ctx context.Context, p *retention.Policy) (int64, error) {
	where, args := retentionWhere(p)
	tag, err := r.db.DB(ctx).Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(p.TableName), where),
		args...)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to delete expired rows from %s", p.TableName)).WithCause(err)
	}
	return tag.RowsAffected(), nil
}

// AnonymizeExpired nulls the table's declared PII columns in rows past the
// policy cutoff. A table with no PII columns is a no-op.
func (r *SubjectDataRepository) AnonymizeExpired(ctx context.Context, p *retention.Policy, d schema.TableDescriptor) (int64, error) {
	if len(d.PIIColumns) == 0 {
		return 0, nil
	}

	sets := make([]string, len(d.PIIColumns))
	for i, col := range d.PIIColumns {
		sets[i] = fmt.Sprintf("%s = NULL", quoteIdent(col))
	}

	where, args := retentionWhere(p)
	tag, err := r.db.DB(ctx).Exec(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			quoteIdent(p.TableName), strings.Join(sets, ", "), where),
		args...)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to anonymize expired rows in %s", p.TableName)).WithCause(err)
	}
	return tag.RowsAffected(), nil
}

// ArchiveExpired moves rows past the cutoff into <table>_archive, creating
// the companion table with an archived_at column on first use, then deletes
// the originals. Runs inside the caller's transaction so the copy and delete
// commit together.
func (r *SubjectDataRepository) ArchiveExpired(ctx context.Context, p *retention.Policy) (int64, error) {
	src := quoteIdent(p.TableName)
	dst := quoteIdent(p.TableName + "_archive")

	_, err := r.db.DB(ctx).Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s AS SELECT *, now() AS archived_at FROM %s WHERE false",
		dst, src))
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to create archive table for %s", p.TableName)).WithCause(err)
	}

	where, args := retentionWhere(p)
	_, err = r.db.DB(ctx).Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s SELECT *, now() FROM %s WHERE %s", dst, src, where), args...)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to archive rows from %s", p.TableName)).WithCause(err)
	}

	tag, err := r.db.DB(ctx).Exec(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE %s", src, where), args...)
	if err != nil {
		return 0, errors.NewInternalError(
			fmt.Sprintf("failed to delete archived rows from %s", p.TableName)).WithCause(err)
	}
	return tag.RowsAffected(), nil
}
