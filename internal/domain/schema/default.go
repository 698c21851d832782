package schema

func strptr(s string) *string { return &s }

// DefaultMap is the built-in descriptor set for the stock tenant schema.
// Deployments with additional PII tables extend this from configuration;
// nothing outside this list is reachable by the engine.
func DefaultMap() *Map {
	return MustNewMap(
		TableDescriptor{
			Name:             "users",
			IdentifierColumn: "email",
			CanDelete:        true,
			PIIColumns:       []string{"email", "name", "phone", "ip_address"},
			RectifiableColumns: []string{
				"email", "name", "phone",
			},
		},
		TableDescriptor{
			Name:             "leads",
			IdentifierColumn: "email",
			CanDelete:        true,
			PIIColumns:       []string{"email", "name", "company", "phone", "notes"},
			RectifiableColumns: []string{
				"email", "name", "company", "phone",
			},
		},
		TableDescriptor{
			Name:         "reviews",
			AuthorColumn: "author_name",
			CanDelete:    false,
			PIIColumns:   []string{"author_name", "author_url"},
			AnonymizeTo: map[string]*string{
				"author_name": strptr("Anonymous User"),
				"author_url":  nil,
			},
		},
	)
}
