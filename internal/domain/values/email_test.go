package values

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmail(t *testing.T) {
	t.Run("normalizes to lowercase", func(t *testing.T) {
		e, err := NewEmail("  Subject@Example.COM ")
		require.NoError(t, err)
		assert.Equal(t, "subject@example.com", e.String())
	})

	t.Run("parts", func(t *testing.T) {
		e := MustNewEmail("u@x.io")
		assert.Equal(t, "u", e.LocalPart())
		assert.Equal(t, "x.io", e.Domain())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		for _, bad := range []string{"", "plain", "@no-local.io", "spaces in@x.io"} {
			_, err := NewEmail(bad)
			assert.Error(t, err, bad)
		}
	})
}

func TestEmailJSON(t *testing.T) {
	e := MustNewEmail("u@x.io")

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `"u@x.io"`, string(data))

	var back Email
	require.NoError(t, json.Unmarshal([]byte(`"U@X.io"`), &back))
	assert.True(t, e.Equal(back))
}

func TestExportFormat(t *testing.T) {
	f, err := NewExportFormat("JSON")
	require.NoError(t, err)
	assert.True(t, f.IsJSON())
	assert.Equal(t, "json", f.Extension())
	assert.Equal(t, "application/json", f.ContentType())

	c := FormatCSV()
	assert.True(t, c.IsCSV())
	assert.Equal(t, "text/csv", c.ContentType())

	_, err = NewExportFormat("xml")
	assert.Error(t, err)
}
