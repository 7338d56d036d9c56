package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c := Default()
	pan, ok := c.Lookup("pan_card")
	require.True(t, ok)
	assert.Equal(t, "Income Tax Department", pan.Authority)
	assert.Equal(t, "Form 49A", pan.FormNumber)
	assert.Len(t, pan.Fields, 8)
	assert.Equal(t, 8, pan.TotalFields)
	assert.False(t, pan.Universal)
	assert.True(t, pan.Verified)

	assert.Len(t, c.List(), 3)
	assert.Equal(t, []string{"Permanent Account Number (PAN)", "Driving License", "Indian Passport"}, c.Names())

	_, ok = c.Lookup("gst_registration")
	assert.False(t, ok)
}

func TestLookupReturnsCopy(t *testing.T) {
	t.Parallel()

	c := Default()
	pan, _ := c.Lookup("pan_card")
	pan.Fields[0] = "mutated"

	again, _ := c.Lookup("pan_card")
	assert.Equal(t, "title", again.Fields[0])
}

func TestParseRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("forms:\n  - type: a\n  - type: a\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse([]byte("forms:\n  - name: nameless\n"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "forms.yaml")
	doc := "forms:\n  - type: gst\n    name: GST Registration\n    fields: [gstin, pan]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	gst, ok := c.Lookup("gst")
	require.True(t, ok)
	assert.Equal(t, 2, gst.FieldCount())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNilCatalog(t *testing.T) {
	t.Parallel()

	var c *Catalog
	_, ok := c.Lookup("pan_card")
	assert.False(t, ok)
	assert.Nil(t, c.List())
}
