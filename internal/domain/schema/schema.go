package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// TableDescriptor declares how the engine may touch one tenant table.
// The schema map is the security boundary: any table without a descriptor is
// invisible to export, erasure, rectification, and retention.
type TableDescriptor struct {
	// Name is the physical table name.
	Name string

	// IdentifierColumn matches the subject email (lowercased comparison).
	// Empty means the table cannot be selected by subject and is excluded
	// from export.
	IdentifierColumn string

	// AuthorColumn, when set, matches user-generated content by display name
	// using a case-insensitive LIKE on the email local part. A tenant that
	// stores an author email should point this at that column instead and
	// set AuthorColumnIsEmail.
	AuthorColumn        string
	AuthorColumnIsEmail bool

	// CanDelete controls erasure: true deletes rows, false anonymizes them.
	CanDelete bool

	// PIIColumns are the columns considered personal data.
	PIIColumns []string

	// AnonymizeTo maps column -> replacement literal used when CanDelete is
	// false. A nil map value means SET NULL.
	AnonymizeTo map[string]*string

	// RectifiableColumns is the whitelist of columns rectification may
	// rewrite. Usually a strict subset of PIIColumns. Rectification touches
	// updated_at, so a table listed here must carry that column.
	RectifiableColumns []string

	// Skip excludes the table from erasure and retention while keeping it
	// visible for export.
	Skip bool
}

// Map is the ordered set of table descriptors. Iteration order is the
// declared insertion order, which fixes the order of export sections and
// erasure sweeps.
type Map struct {
	order  []string
	tables map[string]TableDescriptor
}

// NewMap builds a schema map, rejecting duplicate or unnamed tables.
func NewMap(descriptors ...TableDescriptor) (*Map, error) {
	m := &Map{tables: make(map[string]TableDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("schema map: descriptor with empty table name")
		}
		if _, dup := m.tables[d.Name]; dup {
			return nil, fmt.Errorf("schema map: duplicate table %q", d.Name)
		}
		m.order = append(m.order, d.Name)
		m.tables[d.Name] = d
	}
	return m, nil
}

// MustNewMap builds a schema map and panics on error (for static config).
func MustNewMap(descriptors ...TableDescriptor) *Map {
	m, err := NewMap(descriptors...)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup returns the descriptor for a table and whether it exists.
func (m *Map) Lookup(table string) (TableDescriptor, bool) {
	d, ok := m.tables[table]
	return d, ok
}

// Contains reports whether the table is known to the engine.
func (m *Map) Contains(table string) bool {
	_, ok := m.tables[table]
	return ok
}

// Tables returns all table names in declaration order.
func (m *Map) Tables() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// TablesForExport returns descriptors the subject can be matched in, in
// order. A table qualifies through its identifier column or, for
// user-generated content, its author column.
func (m *Map) TablesForExport() []TableDescriptor {
	var out []TableDescriptor
	for _, name := range m.order {
		d := m.tables[name]
		if d.IdentifierColumn != "" || d.AuthorColumn != "" {
			out = append(out, d)
		}
	}
	return out
}

// TablesForErasure returns non-skip descriptors in order. Callers branch on
// CanDelete for the delete vs anonymize path.
func (m *Map) TablesForErasure() []TableDescriptor {
	var out []TableDescriptor
	for _, name := range m.order {
		d := m.tables[name]
		if !d.Skip {
			out = append(out, d)
		}
	}
	return out
}

// RectifiableFields returns the rectification whitelist for a table.
// The second return is false when the table is unknown or has no whitelist.
func (m *Map) RectifiableFields(table string) ([]string, bool) {
	d, ok := m.tables[table]
	if !ok || len(d.RectifiableColumns) == 0 {
		return nil, false
	}
	out := make([]string, len(d.RectifiableColumns))
	copy(out, d.RectifiableColumns)
	return out, true
}

// IsRectifiable reports whether a single field of a table may be rewritten.
func (m *Map) IsRectifiable(table, field string) bool {
	d, ok := m.tables[table]
	if !ok {
		return false
	}
	for _, c := range d.RectifiableColumns {
		if c == field {
			return true
		}
	}
	return false
}

// AnonymizeEmail derives the deterministic replacement for an erased email.
// The value stays syntactically an email while preventing re-identification.
func AnonymizeEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return "deleted_" + hex.EncodeToString(sum[:4]) + "@anonymized.local"
}

// ShortHash returns the 12-hex-character digest used in export file names.
func ShortHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:6])
}
