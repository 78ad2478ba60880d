package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/policy"
)

func TestScore_ContractNeedsReview(t *testing.T) {
	w := newTestWorkspace(t)

	out, err := w.run(t, "score",
		"--sender", "client@acme.com",
		"--subject", "Urgent: Contract Review Needed",
		"--body", "urgent contract schedule a call")
	require.NoError(t, err)
	assert.Contains(t, out, "priority=5")
	assert.Contains(t, out, "category=legal")
	assert.Contains(t, out, "Decision: needs_review")
}

func TestScore_NewsletterJSON(t *testing.T) {
	w := newTestWorkspace(t)

	var res ScoreOutput
	_, err := w.runJSON(t, &res, "score",
		"--sender", "news@techweekly.io",
		"--subject", "Weekly Tech Digest",
		"--body", "newsletter update?")
	require.NoError(t, err)
	assert.Equal(t, policy.AutoSend, res.Decision.Decision)
	assert.True(t, res.Score.NeedsReply)
	assert.NotEmpty(t, res.Reply)
}

func TestScore_FromFile(t *testing.T) {
	w := newTestWorkspace(t)
	path := w.writeFile(t, "contract.yaml", contractYAML)

	var res ScoreOutput
	_, err := w.runJSON(t, &res, "score", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Score.Priority)
	assert.Equal(t, policy.NeedsReview, res.Decision.Decision)

	_, err = w.run(t, "score", "--file", path, "--body", "x")
	require.Error(t, err)

	_, err = w.run(t, "score", "--file", w.dir+"/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScore_EmptyMessageIsDegraded(t *testing.T) {
	w := newTestWorkspace(t)

	var res ScoreOutput
	_, err := w.runJSON(t, &res, "score")
	require.NoError(t, err)
	assert.True(t, res.Score.Degraded)
	assert.Equal(t, policy.NeedsReview, res.Decision.Decision)
}
