package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ExportFormat represents the on-disk serialization of a subject data export.
type ExportFormat struct {
	format string
}

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

var validFormats = map[string]bool{
	formatJSON: true,
	formatCSV:  true,
}

// NewExportFormat creates a validated export format from a wire string.
func NewExportFormat(format string) (ExportFormat, error) {
	normalized := strings.ToLower(strings.TrimSpace(format))
	if !validFormats[normalized] {
		return ExportFormat{}, fmt.Errorf("invalid export format: %s (must be json or csv)", format)
	}
	return ExportFormat{format: normalized}, nil
}

// MustNewExportFormat creates ExportFormat and panics on error (for tests)
func MustNewExportFormat(format string) ExportFormat {
	f, err := NewExportFormat(format)
	if err != nil {
		panic(err)
	}
	return f
}

// FormatJSON returns the JSON export format
func FormatJSON() ExportFormat { return ExportFormat{format: formatJSON} }

// FormatCSV returns the CSV export format
func FormatCSV() ExportFormat { return ExportFormat{format: formatCSV} }

// String returns the wire representation
func (f ExportFormat) String() string { return f.format }

// Extension returns the file extension without the dot
func (f ExportFormat) Extension() string { return f.format }

// IsJSON reports whether the format is JSON
func (f ExportFormat) IsJSON() bool { return f.format == formatJSON }

// IsCSV reports whether the format is CSV
func (f ExportFormat) IsCSV() bool { return f.format == formatCSV }

// ContentType returns the MIME type for HTTP responses
func (f ExportFormat) ContentType() string {
	if f.format == formatCSV {
		return "text/csv"
	}
	return "application/json"
}

// MarshalJSON implements json.Marshaler
func (f ExportFormat) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.format)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *ExportFormat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	format, err := NewExportFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}

// Value implements driver.Valuer
func (f ExportFormat) Value() (driver.Value, error) {
	return f.format, nil
}

// Scan implements sql.Scanner
func (f *ExportFormat) Scan(value interface{}) error {
	if value == nil {
		*f = ExportFormat{}
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot scan %T into ExportFormat", value)
	}
	format, err := NewExportFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}
