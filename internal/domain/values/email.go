package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// Email represents a validated, lowercased subject email address.
// Subjects are keyed by email throughout the engine, so normalization
// happens exactly once, here.
type Email struct {
	address string
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NewEmail creates a new Email value object with validation
func NewEmail(address string) (Email, error) {
	if address == "" {
		return Email{}, fmt.Errorf("email address cannot be empty")
	}

	normalized := strings.ToLower(strings.TrimSpace(address))

	parsed, err := mail.ParseAddress(normalized)
	if err != nil {
		return Email{}, fmt.Errorf("invalid email format: %w", err)
	}

	if !emailRegex.MatchString(parsed.Address) {
		return Email{}, fmt.Errorf("email address does not meet format requirements")
	}

	if len(parsed.Address) > 254 {
		return Email{}, fmt.Errorf("email address too long (max 254 characters)")
	}

	return Email{address: parsed.Address}, nil
}

// MustNewEmail creates Email and panics on error (for constants/tests)
func MustNewEmail(address string) Email {
	email, err := NewEmail(address)
	if err != nil {
		panic(err)
	}
	return email
}

// String returns the email address
func (e Email) String() string {
	return e.address
}

// LocalPart returns the local part of the email (before @)
func (e Email) LocalPart() string {
	parts := strings.Split(e.address, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// Domain returns the domain part of the email (after @)
func (e Email) Domain() string {
	parts := strings.Split(e.address, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// IsEmpty reports whether the value carries no address.
func (e Email) IsEmpty() bool {
	return e.address == ""
}

// Equal compares two emails for equality
func (e Email) Equal(other Email) bool {
	return e.address == other.address
}

// MarshalJSON implements json.Marshaler
func (e Email) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.address)
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Email) UnmarshalJSON(data []byte) error {
	var address string
	if err := json.Unmarshal(data, &address); err != nil {
		return err
	}
	email, err := NewEmail(address)
	if err != nil {
		return err
	}
	*e = email
	return nil
}

// Value implements driver.Valuer for database storage
func (e Email) Value() (driver.Value, error) {
	return e.address, nil
}

// Scan implements sql.Scanner for database retrieval
func (e *Email) Scan(value interface{}) error {
	if value == nil {
		*e = Email{}
		return nil
	}
	switch v := value.(type) {
	case string:
		e.address = strings.ToLower(v)
		return nil
	case []byte:
		e.address = strings.ToLower(string(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Email", value)
	}
}
