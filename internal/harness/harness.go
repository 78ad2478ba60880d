package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khanzadigithubid/AI-Employee-System/internal/dedup"
	"github.com/khanzadigithubid/AI-Employee-System/internal/health"
	"github.com/khanzadigithubid/AI-Employee-System/internal/lifecycle"
	"github.com/khanzadigithubid/AI-Employee-System/internal/logging"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
	"github.com/khanzadigithubid/AI-Employee-System/internal/policy"
	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
	"github.com/khanzadigithubid/AI-Employee-System/internal/taxonomy"
	"github.com/khanzadigithubid/AI-Employee-System/internal/testutil"
)

// ActorHarness is recorded in the history of transitions a scenario applies.
const ActorHarness = "harness"

// SentRefPrefix prefixes provider references returned by the harness sender.
const SentRefPrefix = "sent:"

// Error codes reported in the trace for failures that carry no code.
const (
	CodeSendFailed       = "SEND_FAILED"
	CodeMissingMessageID = "MISSING_MESSAGE_ID"
	CodeUnknownCollector = "UNKNOWN_COLLECTOR"
	CodeError            = "ERROR"
)

var errSenderDown = errors.New("sender is down")

// switchSender is the outbound sender. Scenarios take it up and down.
type switchSender struct {
	mu   sync.Mutex
	down bool
}

func (s *switchSender) Send(_ context.Context, r model.Reply) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", errSenderDown
	}
	return SentRefPrefix + r.InReplyTo, nil
}

func (s *switchSender) set(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = !up
}

// recordingRestarter stands in for the collector runner.
type recordingRestarter struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingRestarter) Restart(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return nil
}

// recordingSink keeps every stamped notification.
type recordingSink struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (s *recordingSink) Notify(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	return nil
}

func (s *recordingSink) all() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.notes))
	copy(out, s.notes)
	return out
}

// Harness executes one scenario against a private store.
type Harness struct {
	store     *store.Store
	clock     *testutil.FakeClock
	manager   *lifecycle.Manager
	orch      *orchestrator.Orchestrator
	monitor   *health.Monitor
	sender    *switchSender
	restarter *recordingRestarter
	sink      *recordingSink
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite file that is removed afterwards.
// Step failures the scenario can expect (invalid transitions, send
// failures) are recorded in the trace; an error is returned only when the
// pipeline cannot be built.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "aiemployee-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	h, err := build(scenario, st)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		h.execute(ctx, i+1, step, result)
	}
	result.Notifications = h.sink.all()

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Monitor: h.monitor,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func build(scenario *Scenario, st *store.Store) (*Harness, error) {
	start, err := scenario.Start()
	if err != nil {
		return nil, err
	}
	tax, err := taxonomy.Default()
	if scenario.Taxonomy != "" {
		tax, err = taxonomy.Load(scenario.Taxonomy)
	}
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	h := &Harness{
		store:     st,
		clock:     testutil.NewFakeClock(start),
		sender:    &switchSender{},
		restarter: &recordingRestarter{},
		sink:      &recordingSink{},
		logger:    logging.Discard(),
	}

	domains := scoring.NewDomainSet(scenario.KnownDomains...)
	engine, err := scoring.NewEngine(tax, scoring.WithSenderDirectory(domains))
	if err != nil {
		return nil, fmt.Errorf("build scorer: %w", err)
	}

	pol := policy.Default()
	if scenario.Policy != nil {
		pol = *scenario.Policy
	}
	h.manager = lifecycle.New(st,
		lifecycle.WithPolicy(pol),
		lifecycle.WithClock(h.clock),
		lifecycle.WithIDGenerator(testutil.NewSequenceIDs("plan")),
		lifecycle.WithLogger(h.logger),
	)

	notifier := orchestrator.NewNotifier(
		orchestrator.FanOut{orchestrator.NewStoreSink(st), h.sink},
		h.clock,
		h.logger,
	)

	var hcfg health.Config
	if scenario.Health != nil {
		hcfg = scenario.Health.Monitor()
	}
	h.monitor = health.NewMonitor(hcfg,
		health.WithClock(h.clock),
		health.WithRestarter(h.restarter),
		health.WithNotifier(notifier),
		health.WithCheckpointer(st),
		health.WithLogger(h.logger),
	)
	for _, name := range scenario.Collectors {
		h.monitor.Register(name)
	}

	cache := dedup.New(st, dedup.WithNow(h.clock.Now))
	h.orch = orchestrator.New(engine, h.manager, cache,
		orchestrator.WithMonitor(h.monitor),
		orchestrator.WithDomains(domains),
		orchestrator.WithSender(h.sender),
		orchestrator.WithNotifier(notifier),
		orchestrator.WithRetry(orchestrator.RetryConfig{Attempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		orchestrator.WithLogger(h.logger),
	)
	return h, nil
}

// execute runs one step, records it in the trace and checks its expectation.
func (h *Harness) execute(ctx context.Context, n int, step Step, result *Result) {
	var (
		target string
		res    map[string]any
		err    error
	)
	op := step.Op()
	switch op {
	case OpIngest:
		target = step.Ingest.ID
		res, err = h.ingest(ctx, *step.Ingest, result)
	case OpTransition:
		target = step.Transition.Message
		res, err = h.transition(ctx, *step.Transition)
	case OpPlan:
		target = step.Plan.Message
		res, err = h.plan(ctx, *step.Plan)
	case OpHeartbeat:
		target = step.Heartbeat
		h.monitor.Heartbeat(target)
		res = h.collectorResult(target)
	case OpFail:
		target = step.Fail.Collector
		h.monitor.ReportFailure(target, errors.New(step.Fail.Error))
		res = h.collectorResult(target)
		if r, ok := h.monitor.Record(target); ok {
			res["consecutive_failures"] = r.ConsecutiveFailures
		}
	case OpEnable:
		target = step.Enable
		if err = h.monitor.Enable(target); err == nil {
			res = h.collectorResult(target)
		}
	case OpAdvance:
		target = step.Advance.String()
		now := h.clock.Advance(step.Advance.Std())
		res = map[string]any{"now": now.Format(time.RFC3339)}
	case OpCheck:
		res, err = h.check(ctx)
	case OpSender:
		up := step.Sender == "up"
		h.sender.set(up)
		res = map[string]any{"available": up}
	default:
		result.AddError(fmt.Sprintf("step %d: malformed step", n))
		return
	}

	code := ""
	if err != nil {
		code = errorCode(err)
		res = map[string]any{"error": code}
	}
	result.AddTrace(n, op, target, res)

	if step.Expect != nil {
		h.checkExpect(ctx, n, op, target, step.Expect, code, result)
	}
}

func (h *Harness) ingest(ctx context.Context, msg model.Message, result *Result) (map[string]any, error) {
	result.messages[model.ActionItemID(msg.ID)] = msg.ID
	out, err := h.orch.Process(ctx, msg)
	if err != nil {
		return nil, err
	}
	if out.Duplicate {
		return map[string]any{"duplicate": true}, nil
	}
	return map[string]any{
		"state":     string(out.State),
		"decision":  string(out.Decision.Decision),
		"priority":  out.Score.Priority,
		"category":  string(out.Score.Category),
		"risk":      out.Score.Risk,
		"auto_sent": out.AutoSent,
	}, nil
}

func (h *Harness) transition(ctx context.Context, ts TransitionStep) (map[string]any, error) {
	ev, _ := model.ParseEvent(ts.Event)
	id := model.ActionItemID(ts.Message)

	opts := []lifecycle.TransitionOption{lifecycle.WithActor(ActorHarness)}
	if ts.Note != "" {
		opts = append(opts, lifecycle.WithNote(ts.Note))
	}
	if ts.Revision > 0 {
		opts = append(opts, lifecycle.WithExpectedRevision(ts.Revision))
	}
	if ts.Send {
		sent, err := h.send(ctx, id, ts.Message)
		if err != nil {
			return nil, err
		}
		opts = append(opts, lifecycle.WithSentResponse(sent))
	}

	res, err := h.manager.Transition(ctx, id, ev, opts...)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"from":    string(res.From),
		"to":      string(res.To),
		"applied": res.Applied,
	}, nil
}

// send delivers the item's plan to the original sender.
func (h *Harness) send(ctx context.Context, itemID, messageID string) (model.SentResponse, error) {
	item, err := h.manager.Get(ctx, itemID)
	if err != nil {
		return model.SentResponse{}, err
	}
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		return model.SentResponse{}, fmt.Errorf("load message %s: %w", messageID, err)
	}
	reply := model.Reply{
		ActionItemID: item.ID,
		Recipient:    model.SenderAddress(msg.Sender),
		Subject:      model.ReplySubject(msg.Subject),
		InReplyTo:    msg.ID,
	}
	if item.Plan != nil {
		reply.Body = item.Plan.Body
	}
	ref, err := h.sender.Send(ctx, reply)
	if err != nil {
		return model.SentResponse{}, err
	}
	return model.SentResponse{
		Recipient:   reply.Recipient,
		Subject:     reply.Subject,
		Body:        reply.Body,
		ProviderRef: ref,
	}, nil
}

func (h *Harness) plan(ctx context.Context, ps PlanStep) (map[string]any, error) {
	id := model.ActionItemID(ps.Message)
	item, err := h.manager.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if item.State == model.StateNeedsAction {
		res, err := h.manager.Transition(ctx, id, model.EventPlanCreated,
			lifecycle.WithPlan(ps.Body),
			lifecycle.WithActor(ActorHarness),
		)
		if err != nil {
			return nil, err
		}
		return map[string]any{"state": string(res.To), "revision": res.Item.Plan.Revision}, nil
	}

	p, err := h.manager.RevisePlan(ctx, id, ps.Body, ps.Revision)
	if err != nil {
		return nil, err
	}
	return map[string]any{"state": string(model.StatePlanned), "revision": p.Revision}, nil
}

func (h *Harness) check(ctx context.Context) (map[string]any, error) {
	if err := h.monitor.Check(ctx); err != nil {
		return nil, err
	}
	collectors := make(map[string]any)
	for _, r := range h.monitor.Records() {
		collectors[r.Name] = map[string]any{
			"status":        string(r.Status),
			"restart_count": r.RestartCount,
		}
	}
	return map[string]any{"collectors": collectors}, nil
}

func (h *Harness) collectorResult(name string) map[string]any {
	r, ok := h.monitor.Record(name)
	if !ok {
		return map[string]any{}
	}
	return map[string]any{"status": string(r.Status)}
}

func (h *Harness) checkExpect(ctx context.Context, n int, op, target string, want *StepExpect, code string, result *Result) {
	if want.Error != code {
		switch {
		case want.Error == "":
			result.AddError(fmt.Sprintf("step %d (%s %s): unexpected error %s", n, op, target, code))
		case code == "":
			result.AddError(fmt.Sprintf("step %d (%s %s): expected error %s, got success", n, op, target, want.Error))
		default:
			result.AddError(fmt.Sprintf("step %d (%s %s): expected error %s, got %s", n, op, target, want.Error, code))
		}
	}

	if want.State != "" {
		got := "missing"
		if item, err := h.store.GetActionItemBySource(ctx, h.messageID(op, target)); err == nil {
			got = string(item.State)
		}
		if got != want.State {
			result.AddError(fmt.Sprintf("step %d (%s %s): expected state %s, got %s", n, op, target, want.State, got))
		}
	}

	if want.Status != "" {
		got := "unregistered"
		if r, ok := h.monitor.Record(target); ok {
			got = string(r.Status)
		}
		if got != want.Status {
			result.AddError(fmt.Sprintf("step %d (%s %s): expected status %s, got %s", n, op, target, want.Status, got))
		}
	}
}

// messageID returns the message a step targeted. Every item step targets
// a message ID directly.
func (h *Harness) messageID(op, target string) string {
	switch op {
	case OpIngest, OpTransition, OpPlan:
		return target
	}
	return ""
}

// errorCode maps a step error to the code shown in the trace.
func errorCode(err error) string {
	var lerr *lifecycle.Error
	if errors.As(err, &lerr) {
		return string(lerr.Code)
	}
	var oerr *orchestrator.Error
	if errors.As(err, &oerr) {
		return string(oerr.Code)
	}
	switch {
	case errors.Is(err, errSenderDown):
		return CodeSendFailed
	case errors.Is(err, model.ErrMissingMessageID):
		return CodeMissingMessageID
	case errors.Is(err, health.ErrUnknownCollector):
		return CodeUnknownCollector
	}
	return CodeError
}
