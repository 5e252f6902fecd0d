// File: internal/session/hiddenfields_test.go
package session

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFields(t *testing.T, markup string) FieldSet {
	t.Helper()
	fields, err := ParseHiddenFields(strings.NewReader(markup))
	require.NoError(t, err)
	return fields
}

func TestExtractHiddenFields(t *testing.T) {
	t.Run("basic extraction", func(t *testing.T) {
		fields := parseFields(t, `<form>
			<input type="hidden" name="csrf" value="tok-123">
			<input type="hidden" name="lang" value="ro">
			<input type="text" name="username">
		</form>`)
		assert.True(t, fields.Extracted)
		want := map[string]string{"csrf": "tok-123", "lang": "ro"}
		if diff := cmp.Diff(want, fields.Values); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("no hidden fields is still extracted", func(t *testing.T) {
		fields := parseFields(t, `<form><input type="text" name="q"></form>`)
		assert.True(t, fields.Extracted)
		assert.Empty(t, fields.Values)
	})

	t.Run("duplicate names last write wins", func(t *testing.T) {
		fields := parseFields(t, `<div>
			<input type="hidden" name="step" value="one">
			<input type="hidden" name="step" value="two">
		</div>`)
		assert.Equal(t, "two", fields.Values["step"])
	})

	t.Run("case insensitive type and tag", func(t *testing.T) {
		fields := parseFields(t, `<INPUT TYPE="HIDDEN" NAME="sid" VALUE="s1">`)
		assert.Equal(t, "s1", fields.Values["sid"])
	})

	t.Run("missing value yields empty string", func(t *testing.T) {
		fields := parseFields(t, `<input type="hidden" name="marker">`)
		val, ok := fields.Values["marker"]
		assert.True(t, ok)
		assert.Equal(t, "", val)
	})

	t.Run("nameless hidden inputs skipped", func(t *testing.T) {
		fields := parseFields(t, `<input type="hidden" value="orphan">`)
		assert.Empty(t, fields.Values)
	})

	t.Run("nested structure walked fully", func(t *testing.T) {
		fields := parseFields(t, `<table><tr><td>
			<span><input type="hidden" name="deep" value="yes"></span>
		</td></tr></table>`)
		assert.Equal(t, "yes", fields.Values["deep"])
	})

	t.Run("nil document", func(t *testing.T) {
		fields := ExtractHiddenFields(nil)
		assert.True(t, fields.Extracted)
		assert.Empty(t, fields.Values)
	})
}

func FuzzParseHiddenFields(f *testing.F) {
	f.Add([]byte(`<input type="hidden" name="a" value="b">`))
	f.Add([]byte(`<<<>>> not html at all`))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		markup, err := c.GetString()
		if err != nil {
			return
		}
		fields, err := ParseHiddenFields(strings.NewReader(markup))
		if err != nil {
			return
		}
		if !fields.Extracted {
			t.Fatal("successful parse must mark the set extracted")
		}
		if fields.Values == nil {
			t.Fatal("values map must be non-nil")
		}
	})
}
