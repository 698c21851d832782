package dataops

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dataguard/gdpr-engine/internal/domain/errors"
	"github.com/dataguard/gdpr-engine/internal/domain/schema"
	"github.com/dataguard/gdpr-engine/internal/domain/values"
)

// exportSection is one table's slice of the export, in schema-map order.
type exportSection struct {
	Table   string
	Columns []string
	Rows    []map[string]any
}

// exportFileName builds the stable export file name:
// gdpr_export_<12-hex short hash>_<UTC timestamp>.<ext>
func exportFileName(email string, format values.ExportFormat, ts time.Time) string {
	return fmt.Sprintf("gdpr_export_%s_%s.%s",
		schema.ShortHash(email),
		ts.UTC().Format("20060102_150405"),
		format.Extension())
}

// jsonExport is the persisted JSON document. The shape is a stable wire
// format and must round-trip.
type jsonExport struct {
	SubjectEmail    string                      `json:"subject_email"`
	ExportTimestamp string                      `json:"export_timestamp"`
	Format          string                      `json:"format"`
	Data            map[string][]map[string]any `json:"data"`
}

func writeJSONExport(w io.Writer, email string, ts time.Time, sections []exportSection) error {
	doc := jsonExport{
		SubjectEmail:    email,
		ExportTimestamp: ts.UTC().Format(time.RFC3339),
		Format:          "json",
		Data:            make(map[string][]map[string]any, len(sections)),
	}
	for _, s := range sections {
		rows := s.Rows
		if rows == nil {
			rows = []map[string]any{}
		}
		doc.Data[s.Table] = rows
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.NewInternalError("failed to encode JSON export").WithCause(err)
	}
	return nil
}

func writeCSVExport(w io.Writer, email string, ts time.Time, sections []exportSection) error {
	cw := csv.NewWriter(w)

	// Metadata preamble, then one === TABLE === section per table.
	records := [][]string{
		{"GDPR Data Export"},
		{"Subject Email", email},
		{"Export Timestamp", ts.UTC().Format(time.RFC3339)},
		{},
	}
	for _, s := range sections {
		records = append(records, []string{fmt.Sprintf("=== %s ===", s.Table)})
		records = append(records, s.Columns)
		for _, row := range s.Rows {
			line := make([]string, len(s.Columns))
			for i, col := range s.Columns {
				line[i] = stringifyValue(row[col])
			}
			records = append(records, line)
		}
		records = append(records, []string{})
	}

	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return errors.NewInternalError("failed to write CSV export").WithCause(err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.NewInternalError("failed to flush CSV export").WithCause(err)
	}
	return nil
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
