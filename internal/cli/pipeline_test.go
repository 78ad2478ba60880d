package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
)

// ingestBoth stores the newsletter (auto-sent) and the contract (held for
// review) and returns their results.
func ingestBoth(t *testing.T, w *testWorkspace) []IngestResult {
	t.Helper()
	newsletter := w.writeFile(t, "msgs/newsletter.yaml", newsletterYAML)
	contract := w.writeFile(t, "msgs/contract.yaml", contractYAML)

	var results []IngestResult
	resp, err := w.runJSON(t, &results, "ingest", newsletter, contract)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
	require.Len(t, results, 2)
	return results
}

func TestIngest_AutoSendAndReview(t *testing.T) {
	w := newTestWorkspace(t)
	results := ingestBoth(t, w)

	news := results[0]
	assert.Equal(t, "gmail:1", news.MessageID)
	assert.Equal(t, model.ActionItemID("gmail:1"), news.ActionItemID)
	assert.Equal(t, "done", news.State)
	assert.Equal(t, "auto_send", news.Decision)
	assert.True(t, news.AutoSent)
	assert.Equal(t, "outbox:"+news.ActionItemID+".yaml", news.ProviderRef)
	assert.FileExists(t, filepath.Join(w.spool, "outbox", news.ActionItemID+".yaml"))

	contract := results[1]
	assert.Equal(t, "planned", contract.State)
	assert.Equal(t, "needs_review", contract.Decision)
	assert.Equal(t, 5, contract.Priority)
	assert.Equal(t, "legal", contract.Category)
	assert.Equal(t, 70, contract.Risk)
	assert.False(t, contract.AutoSent)
}

func TestIngest_DuplicateAcrossRuns(t *testing.T) {
	w := newTestWorkspace(t)
	ingestBoth(t, w)

	path := filepath.Join(w.dir, "msgs", "contract.yaml")
	var results []IngestResult
	_, err := w.runJSON(t, &results, "ingest", path)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Duplicate)
	assert.Empty(t, results[0].ActionItemID)

	out, err := w.run(t, "ingest", path)
	require.NoError(t, err)
	assert.Contains(t, out, "gmail:2: duplicate, skipped")
}

func TestIngest_Errors(t *testing.T) {
	w := newTestWorkspace(t)

	_, err := w.run(t, "ingest", filepath.Join(w.dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	noID := w.writeFile(t, "noid.yaml", "subject: hello\n")
	_, err = w.run(t, "ingest", noID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, model.ErrMissingMessageID)
}

func TestItems_FilterAndCounts(t *testing.T) {
	w := newTestWorkspace(t)
	ingestBoth(t, w)

	var out ItemsOutput
	_, err := w.runJSON(t, &out, "items", "--state", "planned")
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "gmail:2", out.Items[0].SourceMessageID)
	assert.Equal(t, map[string]int{"done": 1, "planned": 1}, out.Counts)

	_, err = w.runJSON(t, &out, "items", "--category", "legal", "--min-priority", "5")
	require.NoError(t, err)
	assert.Len(t, out.Items, 1)

	text, err := w.run(t, "items")
	require.NoError(t, err)
	assert.Contains(t, text, "gmail:1")
	assert.Contains(t, text, "planned: 1")

	_, err = w.run(t, "items", "--state", "archived")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReviewFlow_PlanApproveSend(t *testing.T) {
	w := newTestWorkspace(t)
	ingestBoth(t, w)
	itemID := model.ActionItemID("gmail:2")

	var plan PlanOutput
	_, err := w.runJSON(t, &plan, "plan", "gmail:2", "--body", "We will call Tuesday.", "--revision", "1")
	require.NoError(t, err)
	assert.Equal(t, PlanOutput{
		ActionItemID: itemID,
		State:        "planned",
		Revision:     2,
		ContentHash:  model.PlanContentHash(itemID, "We will call Tuesday."),
	}, plan)

	// Approving a stale revision is rejected.
	resp, err := w.runJSON(t, nil, "transition", "gmail:2", "human-approves", "--revision", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "GUARD_FAILED", resp.Error.Code)

	var tr TransitionOutput
	_, err = w.runJSON(t, &tr, "transition", itemID, "human-approves", "--revision", "2", "--note", "looks right")
	require.NoError(t, err)
	assert.Equal(t, TransitionOutput{
		ActionItemID: itemID, Event: "human-approves", From: "planned", To: "approved", Applied: true,
	}, tr)

	_, err = w.runJSON(t, &tr, "transition", "gmail:2", "response-sent")
	require.NoError(t, err)
	assert.Equal(t, "done", tr.To)
	assert.True(t, tr.Applied)
	assert.Equal(t, "outbox:"+itemID+".yaml", tr.ProviderRef)

	sent, err := os.ReadFile(filepath.Join(w.spool, "outbox", itemID+".yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(sent), "We will call Tuesday.")
	assert.Contains(t, string(sent), "client@acme.com")

	// Re-sending a done item is an idempotent no-op.
	text, err := w.run(t, "transition", "gmail:2", "response-sent")
	require.NoError(t, err)
	assert.Contains(t, text, itemID+" already done")

	var trace TraceResult
	_, err = w.runJSON(t, &trace, "trace", "gmail:2")
	require.NoError(t, err)
	assert.Equal(t, model.StateDone, trace.Item.State)
	require.NotNil(t, trace.Message)
	assert.Equal(t, "client@acme.com", trace.Message.Sender)
	require.NotEmpty(t, trace.History)
	last := trace.History[len(trace.History)-1]
	assert.Equal(t, model.EventResponseSent, last.Event)
	assert.Equal(t, ActorCLI, last.Actor)

	var approval *model.ActionEvent
	for i := range trace.History {
		if trace.History[i].Event == model.EventHumanApproves {
			approval = &trace.History[i]
		}
	}
	require.NotNil(t, approval)
	assert.Equal(t, "looks right", approval.Note)

	events := make([]string, len(trace.Activity))
	for i, n := range trace.Activity {
		events[i] = n.Event
	}
	assert.Contains(t, events, orchestrator.EventIngested)
}

func TestReviewFlow_Reject(t *testing.T) {
	w := newTestWorkspace(t)
	ingestBoth(t, w)

	out, err := w.run(t, "transition", "gmail:2", "human-rejects", "--note", "not ours", "--actor", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "planned -> rejected")

	// Terminal: nothing leaves rejected.
	_, err = w.run(t, "transition", "gmail:2", "human-approves", "--revision", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "INVALID_TRANSITION", ErrorCode(err))

	_, err = w.run(t, "plan", "gmail:2", "--body", "too late")
	require.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", ErrorCode(err))
}

func TestTransition_Errors(t *testing.T) {
	w := newTestWorkspace(t)

	_, err := w.run(t, "transition", "gmail:1", "archive")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown event "archive"`)

	resp, err := w.runJSON(t, nil, "transition", "gmail:404", "human-rejects")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestPlan_BodyFromFile(t *testing.T) {
	w := newTestWorkspace(t)
	ingestBoth(t, w)
	body := w.writeFile(t, "reply.txt", "Thanks, see you Thursday.\n")

	var plan PlanOutput
	_, err := w.runJSON(t, &plan, "plan", "gmail:2", "--body-file", body)
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Revision)

	_, err = w.run(t, "plan", "gmail:2")
	require.Error(t, err)

	_, err = w.run(t, "plan", "gmail:2", "--body", "   ")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTrace_ActivityLog(t *testing.T) {
	w := newTestWorkspace(t)
	ingestBoth(t, w)

	var activity []model.Notification
	_, err := w.runJSON(t, &activity, "trace", "--event", orchestrator.EventIngested)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, "gmail", activity[0].Component)
	assert.Less(t, activity[0].Seq, activity[1].Seq)

	_, err = w.runJSON(t, &activity, "trace", "--limit", "1")
	require.NoError(t, err)
	assert.Len(t, activity, 1)

	out, err := w.run(t, "trace", "--result", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "No activity.")
}

func TestReplay(t *testing.T) {
	w := newTestWorkspace(t)
	ingestBoth(t, w)

	var report orchestrator.ReplayReport
	_, err := w.runJSON(t, &report, "replay")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Messages)
	assert.Equal(t, 2, report.Matched)
	assert.True(t, report.Clean())

	// Trusting acme.com after the fact lowers the contract's risk.
	cfg := w.writeFile(t, "trusted.yaml", "taxonomy:\n  known_domains: [acme.com]\n")
	_, err = w.runJSON(t, &report, "--config", cfg, "replay")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.Len(t, report.Drift, 1)
	assert.Equal(t, "gmail:2", report.Drift[0].MessageID)
	assert.Contains(t, report.Drift[0].Fields, "risk")

	out, err := w.run(t, "--config", cfg, "replay")
	require.Error(t, err)
	assert.Contains(t, out, "drift gmail:2")
	assert.Contains(t, out, "Determinism verification failed")
}
