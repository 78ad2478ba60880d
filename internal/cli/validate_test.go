package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalTaxonomy = `
taxonomy: {
	priority_tiers: [{priority: 5, keywords: ["urgent"]}]
	categories: legal: ["contract"]
	risk: {
		keywords: {"lawsuit": 100}
		priority_tier: {"5": 20}
	}
	reply_templates: default: "Hi {name}"
}
`

func TestValidate_EmbeddedDefault(t *testing.T) {
	w := newTestWorkspace(t)

	out, err := w.run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Taxonomy valid (embedded default)")

	var res ValidateResult
	_, err = w.runJSON(t, &res, "validate")
	require.NoError(t, err)
	assert.Len(t, res.Categories, 8)
	assert.Positive(t, res.Keywords)
}

func TestValidate_File(t *testing.T) {
	w := newTestWorkspace(t)
	path := w.writeFile(t, "taxonomy.cue", minimalTaxonomy)

	var res ValidateResult
	_, err := w.runJSON(t, &res, "validate", path)
	require.NoError(t, err)
	assert.Equal(t, path, res.Source)
	assert.Equal(t, []string{"legal"}, res.Categories)
}

func TestValidate_ConfiguredPathAndDomains(t *testing.T) {
	w := newTestWorkspace(t)
	tax := w.writeFile(t, "taxonomy.cue", minimalTaxonomy)
	cfg := w.writeFile(t, "aiemployee.yaml", "taxonomy:\n  path: "+tax+"\n  known_domains: [acme.com, example.org]\n")

	var res ValidateResult
	_, err := w.runJSON(t, &res, "--config", cfg, "validate")
	require.NoError(t, err)
	assert.Equal(t, tax, res.Source)
	assert.Equal(t, 2, res.KnownDomains)
}

func TestValidate_Invalid(t *testing.T) {
	w := newTestWorkspace(t)
	path := w.writeFile(t, "bad.cue", "other: 1\n")

	resp, err := w.runJSON(t, nil, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTaxonomyInvalid, resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "taxonomy", details["field"])

	out, err := w.run(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
}

func TestValidate_Missing(t *testing.T) {
	w := newTestWorkspace(t)

	_, err := w.run(t, "validate", w.dir+"/missing.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
