package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dermscan/internal/reference"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 9, c.Len())
	assert.Equal(t, "Actinic keratosis", c.Labels[0])
	assert.Equal(t, "Vascular lesion", c.Labels[8])

	r := c.Resolver(reference.Options{})
	for _, label := range c.Labels {
		assert.NotEqual(t, reference.MatchNone, r.Lookup(label).Kind, label)
	}
	assert.Equal(t, reference.MatchExplicitFallback, r.Lookup("Vascular lesion").Kind)
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	a := Default()
	a.Labels[0] = "mutated"
	assert.Equal(t, "Actinic keratosis", Default().Labels[0])
}

func TestParseKeepsNullReferences(t *testing.T) {
	c, err := Parse([]byte(`
labels:
  - Melanoma
  - Vascular lesion
  - Rosacea
references:
  melanoma: https://dermnetnz.org/topics/melanoma
  vascular lesion: null
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Melanoma", "Vascular lesion", "Rosacea"}, c.Labels)

	require.Contains(t, c.References, "vascular lesion")
	assert.Nil(t, c.References["vascular lesion"])

	r := c.Resolver(reference.Options{})
	assert.Equal(t, reference.MatchExactURL, r.Lookup("Melanoma").Kind)
	assert.Equal(t, reference.MatchExplicitFallback, r.Lookup("Vascular lesion").Kind)
	assert.Equal(t, reference.MatchNone, r.Lookup("Rosacea").Kind)
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	for name, doc := range map[string]string{
		"no labels":    "references: {}\n",
		"blank label":  "labels: [a, '  ']\n",
		"duplicate":    "labels: [Melanoma, melanoma]\n",
		"invalid yaml": "labels: [a\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("labels: [a, b]\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, c.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
