package taxonomy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
)

const minimal = `
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

func TestDefault(t *testing.T) {
	tax, err := Default()
	require.NoError(t, err)

	assert.Len(t, tax.PriorityTiers, 5)
	assert.Contains(t, tax.PriorityTiers[5], "urgent")
	assert.Contains(t, tax.PriorityTiers[1], "newsletter")
	assert.Len(t, tax.Categories, 8)
	assert.Equal(t, 2, tax.SubjectWeight)
	assert.InDelta(t, 0.2, tax.ConfidenceFloor, 1e-9)
	assert.Equal(t, 5, tax.ConfidenceSaturation)
	assert.Equal(t, 25, tax.RiskKeywords["contract"])
	assert.Equal(t, 20, tax.PriorityRisk[5])
	assert.Equal(t, 10, tax.UnknownSenderWeight)
	assert.Contains(t, tax.ReplyTemplates, scoring.TemplateDefault)
	assert.Contains(t, tax.ReplyTemplates, scoring.TemplateAcknowledge)
	assert.Contains(t, tax.ReplyTemplates[string(model.CategoryMeeting)], "{name}")

	_, err = scoring.NewEngine(tax)
	require.NoError(t, err)
}

func TestParse_MinimalAppliesDefaults(t *testing.T) {
	tax, err := Parse("min.cue", []byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 2, tax.SubjectWeight)
	assert.Equal(t, 5, tax.ConfidenceSaturation)
	assert.Equal(t, 15, tax.SensitiveWeight)
	assert.Equal(t, 10, tax.UnknownSenderWeight)
	assert.Equal(t, 5, tax.MaxActionItems)
	assert.Equal(t, []string{"contract"}, tax.Categories[model.CategoryLegal])
}

func TestParse_MissingTaxonomy(t *testing.T) {
	_, err := Parse("empty.cue", []byte(`other: 1`))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "taxonomy", ce.Field)
}

func TestParse_RejectsUnknownField(t *testing.T) {
	src := `taxonomy: {
	priority_tiers: []
	categories: {}
	risk: {keywords: {}, priority_tier: {}}
	reply_templates: default: "x"
	colour: "blue"
}`
	_, err := Parse("bad.cue", []byte(src))
	require.Error(t, err)
}

func TestParse_RejectsOutOfRangeWeight(t *testing.T) {
	src := `taxonomy: {
	priority_tiers: []
	categories: {}
	risk: {keywords: {"breach": 250}, priority_tier: {}}
	reply_templates: default: "x"
}`
	_, err := Parse("bad.cue", []byte(src))
	require.Error(t, err)
}

func TestParse_RejectsUnknownCategory(t *testing.T) {
	src := `taxonomy: {
	priority_tiers: []
	categories: sales: ["deal"]
	risk: {keywords: {}, priority_tier: {}}
	reply_templates: default: "x"
}`
	_, err := Parse("bad.cue", []byte(src))
	require.Error(t, err)
}

func TestParse_RejectsDuplicateTier(t *testing.T) {
	src := `taxonomy: {
	priority_tiers: [{priority: 3, keywords: ["a"]}, {priority: 3, keywords: ["b"]}]
	categories: {}
	risk: {keywords: {}, priority_tier: {}}
	reply_templates: default: "x"
}`
	_, err := Parse("dup.cue", []byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared more than once")
}

func TestParse_RejectsMissingDefaultTemplate(t *testing.T) {
	src := `taxonomy: {
	priority_tiers: []
	categories: {}
	risk: {keywords: {}, priority_tier: {}}
	reply_templates: {}
}`
	_, err := Parse("bad.cue", []byte(src))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tax.cue")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	tax, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, tax.PriorityTiers[5])

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
}

func TestKeywords(t *testing.T) {
	tax, err := Parse("min.cue", []byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, []string{"contract", "lawsuit", "urgent"}, Keywords(tax))
}
