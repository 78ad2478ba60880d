package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/dedup"
	"github.com/khanzadigithubid/AI-Employee-System/internal/lifecycle"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
	"github.com/khanzadigithubid/AI-Employee-System/internal/taxonomy"
	"github.com/khanzadigithubid/AI-Employee-System/internal/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// flakyStore fails a fixed number of writes before delegating.
type flakyStore struct {
	*store.Store
	mu              sync.Mutex
	failCreates     int
	failTransitions int
}

var errLocked = errors.New("database is locked")

func (f *flakyStore) take(n *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *n > 0 {
		*n--
		return true
	}
	return false
}

func (f *flakyStore) CreateActionItem(ctx context.Context, msg model.Message, item model.ActionItem) error {
	if f.take(&f.failCreates) {
		return errLocked
	}
	return f.Store.CreateActionItem(ctx, msg, item)
}

func (f *flakyStore) ApplyTransition(ctx context.Context, t store.Transition) (int64, error) {
	if f.take(&f.failTransitions) {
		return 0, errLocked
	}
	return f.Store.ApplyTransition(ctx, t)
}

type recordingSender struct {
	mu      sync.Mutex
	replies []model.Reply
	err     error
}

func (s *recordingSender) Send(_ context.Context, r model.Reply) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.replies = append(s.replies, r)
	return "out-" + r.InReplyTo, nil
}

type recordingSink struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (r *recordingSink) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingSink) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, n := range r.notes {
		out = append(out, n.Event+"/"+n.Result)
	}
	return out
}

type fixture struct {
	store    *store.Store
	flaky    *flakyStore
	sender   *recordingSender
	sink     *recordingSink
	notifier *Notifier
	domains  *scoring.DomainSet
	orch     *Orchestrator
	manager  *lifecycle.Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return newFixtureOn(t, st, opts...)
}

func newFixtureOn(t *testing.T, st *store.Store, opts ...Option) *fixture {
	t.Helper()
	clk := testutil.NewFakeClock(epoch)
	f := &fixture{
		store:   st,
		flaky:   &flakyStore{Store: st},
		sender:  &recordingSender{},
		sink:    &recordingSink{},
		domains: scoring.NewDomainSet(),
	}
	f.notifier = NewNotifier(FanOut{NewStoreSink(st), f.sink}, clk, nil)

	engine, err := scoring.NewEngine(taxonomy.MustDefault(), scoring.WithSenderDirectory(f.domains))
	require.NoError(t, err)
	f.manager = lifecycle.New(f.flaky,
		lifecycle.WithClock(clk),
		lifecycle.WithIDGenerator(testutil.NewSequenceIDs("plan")),
	)
	cache := dedup.New(st, dedup.WithNow(clk.Now))

	opts = append([]Option{
		WithDomains(f.domains),
		WithSender(f.sender),
		WithNotifier(f.notifier),
		WithRetry(RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	}, opts...)
	f.orch = New(engine, f.manager, cache, opts...)
	return f
}

func newsletter(id string) model.Message {
	return model.Message{
		ID:      id,
		Source:  "gmail",
		Sender:  "news@techweekly.io",
		Subject: "Weekly Tech Digest",
		Body:    "newsletter update",
	}
}

func contract(id string) model.Message {
	return model.Message{
		ID:      id,
		Source:  "gmail",
		Sender:  "client@acme.com",
		Subject: "Urgent: Contract Review Needed",
		Body:    "urgent contract schedule a call",
	}
}

func TestProcess_NewsletterAutoApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.orch.Process(ctx, newsletter("gmail:1"))
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.True(t, out.Decision.AutoSend())
	assert.Equal(t, model.StateDone, out.State)
	assert.False(t, out.AutoSent, "no reply needed")
	assert.Empty(t, f.sender.replies)

	item, err := f.manager.Get(ctx, out.ActionItemID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDone, item.State)

	history, err := f.manager.History(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.EventAutoApprove, history[0].Event)
	assert.Equal(t, ActorPolicy, history[0].Actor)

	assert.Equal(t, []string{"ingested/ok", "auto-approve/ok"}, f.sink.events())
	assert.Equal(t, int64(1), f.sink.notes[0].Seq)
	assert.Equal(t, int64(2), f.sink.notes[1].Seq)
	assert.Equal(t, epoch, f.sink.notes[0].Timestamp)
}

func TestProcess_UrgentContractPlanned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.orch.Process(ctx, contract("gmail:2"))
	require.NoError(t, err)
	assert.False(t, out.Decision.AutoSend())
	assert.Contains(t, out.Decision.Reasons, "risk 70 >= ceiling 30")
	assert.Equal(t, model.StatePlanned, out.State)

	item, err := f.manager.Get(ctx, out.ActionItemID)
	require.NoError(t, err)
	require.NotNil(t, item.Plan)
	assert.NotEmpty(t, item.Plan.Body)
	assert.True(t, item.Plan.Intact())
	assert.Equal(t, 1, item.Plan.Revision)

	assert.Equal(t, []string{"ingested/ok", "plan-created/ok"}, f.sink.events())
}

func TestProcess_DuplicateIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Process(ctx, newsletter("gmail:1"))
	require.NoError(t, err)
	out, err := f.orch.Process(ctx, newsletter("gmail:1"))
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	items, err := f.store.ListActionItems(ctx, store.ActionItemFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	stats := f.orch.Stats()
	assert.Equal(t, int64(1), stats.Ingested)
	assert.Equal(t, int64(1), stats.Duplicates)
	assert.Len(t, f.sink.events(), 2, "duplicates are not notified")
}

func TestProcess_StoreBackstopCatchesLostDedupMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Item exists but the message was never marked seen.
	_, err := f.manager.Create(ctx, newsletter("gmail:1"), model.ScoreResult{Priority: 1, Category: model.CategoryGeneral})
	require.NoError(t, err)

	out, err := f.orch.Process(ctx, newsletter("gmail:1"))
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	seen, err := f.store.LoadSeen(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gmail:1"}, seen)
}

func TestProcess_AutoSendsReplyWhenNeeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := newsletter("gmail:3")
	msg.Body = "newsletter update?"

	out, err := f.orch.Process(ctx, msg)
	require.NoError(t, err)
	assert.True(t, out.AutoSent)
	assert.Equal(t, "out-gmail:3", out.ProviderRef)
	assert.Equal(t, model.StateDone, out.State)

	require.Len(t, f.sender.replies, 1)
	reply := f.sender.replies[0]
	assert.Equal(t, "news@techweekly.io", reply.Recipient)
	assert.Equal(t, "Re: Weekly Tech Digest", reply.Subject)

	item, err := f.manager.Get(ctx, out.ActionItemID)
	require.NoError(t, err)
	require.NotNil(t, item.SentResponse)
	require.NotNil(t, item.Plan)
	assert.Equal(t, "out-gmail:3", item.SentResponse.ProviderRef)
	assert.Equal(t, reply.Body, item.Plan.Body)

	assert.Equal(t, []string{"ingested/ok", "auto-send/ok", "auto-approve/ok"}, f.sink.events())
}

func TestProcess_FailedAutoSendFallsBackToReview(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp unavailable")
	ctx := context.Background()
	msg := newsletter("gmail:3")
	msg.Body = "newsletter update?"

	out, err := f.orch.Process(ctx, msg)
	require.NoError(t, err)
	assert.True(t, out.FellBack)
	assert.False(t, out.AutoSent)
	assert.Equal(t, model.StatePlanned, out.State)

	item, err := f.manager.Get(ctx, out.ActionItemID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePlanned, item.State)
	assert.Nil(t, item.SentResponse)

	assert.Equal(t, []string{"ingested/ok", "auto-send/failed", "plan-created/ok"}, f.sink.events())
}

func TestProcess_NoSenderFallsBack(t *testing.T) {
	f := newFixture(t, WithSender(nil))
	msg := newsletter("gmail:3")
	msg.Body = "newsletter update?"

	out, err := f.orch.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, model.StatePlanned, out.State)
	assert.Contains(t, f.sink.notes[1].Detail, ErrNoSender.Error())
}

func TestProcess_RetriesTransientStoreFailures(t *testing.T) {
	f := newFixture(t)
	f.flaky.failCreates = 2

	out, err := f.orch.Process(context.Background(), newsletter("gmail:1"))
	require.NoError(t, err)
	assert.Equal(t, model.StateDone, out.State)
}

func TestProcess_PersistenceFailureAfterRetries(t *testing.T) {
	f := newFixture(t)
	f.flaky.failCreates = 10
	ctx := context.Background()

	_, err := f.orch.Process(ctx, newsletter("gmail:1"))
	require.Error(t, err)
	assert.True(t, IsPersistenceFailure(err))
	assert.ErrorIs(t, err, errLocked)

	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 3, oe.Attempts)

	assert.Equal(t, []string{"persist/failed"}, f.sink.events())
	seen, err := f.store.LoadSeen(ctx)
	require.NoError(t, err)
	assert.Empty(t, seen, "message can be redelivered")
	assert.Equal(t, int64(1), f.orch.Stats().Failures)
}

func TestProcess_FallbackFailureLeavesNeedsAction(t *testing.T) {
	f := newFixture(t)
	f.flaky.failTransitions = 10
	ctx := context.Background()

	out, err := f.orch.Process(ctx, contract("gmail:2"))
	require.NoError(t, err)
	assert.Equal(t, model.StateNeedsAction, out.State)

	item, err := f.manager.Get(ctx, out.ActionItemID)
	require.NoError(t, err)
	assert.Equal(t, model.StateNeedsAction, item.State)
	assert.Equal(t, []string{"ingested/ok", "plan-created/failed"}, f.sink.events())
}

func TestProcess_LearnsSenderDomains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.Process(ctx, contract("gmail:1"))
	require.NoError(t, err)
	second, err := f.orch.Process(ctx, contract("gmail:2"))
	require.NoError(t, err)

	assert.Equal(t, 70, first.Score.Risk)
	assert.Equal(t, 60, second.Score.Risk)
	assert.True(t, f.domains.Known("acme.com"))
}

func TestProcess_RejectsMissingID(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Process(context.Background(), model.Message{})
	assert.ErrorIs(t, err, model.ErrMissingMessageID)
	assert.ErrorIs(t, f.orch.TryIngest(model.Message{}), model.ErrMissingMessageID)
}

func TestRun_DrainsQueueAndStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.Ingest(ctx, newsletter("gmail:1")))
	require.NoError(t, f.orch.Ingest(ctx, contract("gmail:2")))
	require.NoError(t, f.orch.Ingest(ctx, newsletter("gmail:1")))
	f.orch.Stop()

	require.NoError(t, f.orch.Run(ctx))

	counts, err := f.store.CountActionItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.State]int{model.StateDone: 1, model.StatePlanned: 1}, counts)
	assert.Equal(t, int64(1), f.orch.Stats().Duplicates)
	assert.ErrorIs(t, f.orch.TryIngest(newsletter("gmail:9")), ErrQueueClosed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	require.NoError(t, f.orch.Ingest(ctx, newsletter("gmail:1")))
	require.Eventually(t, func() bool {
		return f.orch.Stats().Ingested == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTryIngest_QueueFull(t *testing.T) {
	f := newFixture(t, WithQueueSize(1))

	require.NoError(t, f.orch.TryIngest(newsletter("gmail:1")))
	assert.ErrorIs(t, f.orch.TryIngest(newsletter("gmail:2")), ErrQueueFull)
	assert.Equal(t, 1, f.orch.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.orch.Ingest(ctx, newsletter("gmail:2")), context.DeadlineExceeded)
}

func TestLoad_RestoresState(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	first := newFixtureOn(t, st)
	_, err = first.orch.Process(ctx, contract("gmail:1"))
	require.NoError(t, err)
	last := first.notifier.Last()

	second := newFixtureOn(t, st)
	require.NoError(t, second.orch.Load(ctx, st))
	assert.True(t, second.domains.Known("acme.com"))
	assert.Equal(t, last, second.notifier.Last())

	out, err := second.orch.Process(ctx, contract("gmail:1"))
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	out, err = second.orch.Process(ctx, contract("gmail:2"))
	require.NoError(t, err)
	assert.Equal(t, 60, out.Score.Risk)
	assert.Equal(t, last+1, second.sink.notes[0].Seq)
}

func TestReplay_CleanAfterProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, msg := range []model.Message{contract("gmail:1"), newsletter("gmail:2"), contract("gmail:3")} {
		_, err := f.orch.Process(ctx, msg)
		require.NoError(t, err)
	}

	rep, err := Replay(ctx, f.store, taxonomy.MustDefault())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Messages)
	assert.Equal(t, 3, rep.Matched)
	assert.True(t, rep.Clean())
}

func TestReplay_ReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out, err := f.orch.Process(ctx, contract("gmail:1"))
	require.NoError(t, err)

	tampered := out.Score
	tampered.Risk = 5
	raw, err := json.Marshal(tampered)
	require.NoError(t, err)
	_, err = f.store.DB().ExecContext(ctx, `UPDATE action_items SET score = ? WHERE id = ?`, string(raw), out.ActionItemID)
	require.NoError(t, err)

	rep, err := Replay(ctx, f.store, taxonomy.MustDefault())
	require.NoError(t, err)
	assert.False(t, rep.Clean())
	require.Len(t, rep.Drift, 1)
	assert.Equal(t, []string{"risk"}, rep.Drift[0].Fields)
	assert.Equal(t, 70, rep.Drift[0].Rescored.Risk)
}
