package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/khanzadigithubid/AI-Employee-System/internal/clock"
	"github.com/khanzadigithubid/AI-Employee-System/internal/ids"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/policy"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
)

// DefaultActor is recorded in history when the caller names no actor.
const DefaultActor = "system"

// Store is the persistence the Manager needs. *store.Store implements it.
type Store interface {
	CreateActionItem(ctx context.Context, msg model.Message, item model.ActionItem) error
	GetActionItem(ctx context.Context, id string) (model.ActionItem, error)
	ListActionItems(ctx context.Context, f store.ActionItemFilter) ([]model.ActionItem, error)
	ApplyTransition(ctx context.Context, t store.Transition) (int64, error)
	History(ctx context.Context, actionItemID string) ([]model.ActionEvent, error)
	RevisePlan(ctx context.Context, actionItemID, body string, expectedRevision int, at time.Time) (model.Plan, error)
}

// Manager drives action items through the transition table.
//
// Transitions on one item are serialized by a per-item lock held only
// around the read, guard evaluation and the store transaction; the item is
// re-read after the lock is released. Callers
// perform network I/O (sending a reply) before calling Transition and pass
// the confirmation in with WithSentResponse.
type Manager struct {
	store  Store
	policy policy.Policy
	clock  clock.Clock
	ids    ids.Generator
	locks  *keyedMutex
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy sets the auto-approval policy checked by the auto-approve guard.
func WithPolicy(p policy.Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithClock sets the wall clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = clock.Or(c)
	}
}

// WithIDGenerator sets the generator used for plan IDs.
func WithIDGenerator(g ids.Generator) Option {
	return func(m *Manager) {
		m.ids = ids.Or(g)
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Manager over st.
func New(st Store, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		policy: policy.Default(),
		clock:  clock.Real{},
		ids:    ids.UUIDv7{},
		locks:  newKeyedMutex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the policy used by the auto-approve guard.
func (m *Manager) Policy() policy.Policy {
	return m.policy
}

// Create persists msg and a new needs_action item scored as s.
// The item ID is derived from msg.ID, so a second Create for the same
// message fails with a CodeDuplicate error and writes nothing.
func (m *Manager) Create(ctx context.Context, msg model.Message, s model.ScoreResult) (model.ActionItem, error) {
	if err := msg.Validate(); err != nil {
		return model.ActionItem{}, fmt.Errorf("create action item: %w", err)
	}
	now := m.clock.Now()
	item := model.ActionItem{
		ID:              model.ActionItemID(msg.ID),
		SourceMessageID: msg.ID,
		Score:           s,
		State:           model.StateNeedsAction,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := m.store.CreateActionItem(ctx, msg, item)
	if errors.Is(err, store.ErrDuplicate) {
		return model.ActionItem{}, &Error{
			Code:         CodeDuplicate,
			Message:      "action item already exists for message " + msg.ID,
			ActionItemID: item.ID,
			Err:          err,
		}
	}
	if err != nil {
		return model.ActionItem{}, fmt.Errorf("create action item: %w", err)
	}

	m.logger.Debug("action item created",
		"item_id", item.ID,
		"message_id", msg.ID,
		"priority", s.Priority,
		"category", s.Category,
		"risk", s.Risk,
	)
	return item, nil
}

// Get returns an item with its plan and sent response.
func (m *Manager) Get(ctx context.Context, id string) (model.ActionItem, error) {
	item, err := m.store.GetActionItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.ActionItem{}, NewNotFoundError(id, err)
	}
	return item, err
}

// List returns items matching f.
func (m *Manager) List(ctx context.Context, f store.ActionItemFilter) ([]model.ActionItem, error) {
	return m.store.ListActionItems(ctx, f)
}

// History returns an item's transition history, oldest first.
func (m *Manager) History(ctx context.Context, id string) ([]model.ActionEvent, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.History(ctx, id)
}

// TransitionOption configures one Transition call.
type TransitionOption func(*transitionConfig)

type transitionConfig struct {
	planBody         *string
	sent             *model.SentResponse
	expectedRevision int
	actor            string
	note             string
}

// WithPlan attaches a plan body. Required by plan-created unless a plan
// is already stored; recorded alongside auto-approve.
func WithPlan(body string) TransitionOption {
	return func(c *transitionConfig) {
		c.planBody = &body
	}
}

// WithSentResponse supplies the delivery confirmation required by
// response-sent, and by auto-approve when the item needs a reply.
func WithSentResponse(r model.SentResponse) TransitionOption {
	return func(c *transitionConfig) {
		c.sent = &r
	}
}

// WithExpectedRevision makes human-approves fail unless the stored plan is
// at revision n. Zero disables the check.
func WithExpectedRevision(n int) TransitionOption {
	return func(c *transitionConfig) {
		c.expectedRevision = n
	}
}

// WithActor names who triggered the transition.
func WithActor(actor string) TransitionOption {
	return func(c *transitionConfig) {
		c.actor = actor
	}
}

// WithNote records a free-form note in the history row.
func WithNote(note string) TransitionOption {
	return func(c *transitionConfig) {
		c.note = note
	}
}

// Result describes the outcome of a Transition.
type Result struct {
	Item model.ActionItem
	From model.State
	To   model.State
	// Applied is false when the call was an idempotent no-op.
	Applied bool
	// Seq is the history row written, zero for no-ops.
	Seq int64
}

// Transition applies ev to the item.
//
// Re-applying the event that last moved the item succeeds without writing
// anything. Any other pair outside the table, or a failed guard, returns an
// *Error and leaves the item unchanged.
func (m *Manager) Transition(ctx context.Context, id string, ev model.Event, opts ...TransitionOption) (Result, error) {
	cfg := transitionConfig{actor: DefaultActor}
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, ok := TargetOf(ev); !ok {
		return Result{}, &Error{
			Code:         CodeInvalidTransition,
			Message:      fmt.Sprintf("unknown event %q", ev),
			ActionItemID: id,
			Event:        ev,
		}
	}

	res, err := m.apply(ctx, id, ev, cfg)
	if err != nil || !res.Applied {
		return res, err
	}

	// The write is committed; re-read outside the lock.
	updated, err := m.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	res.Item = updated
	m.logger.Info("transition applied",
		"item_id", id,
		"event", ev,
		"from", res.From,
		"to", res.To,
		"actor", cfg.actor,
		"seq", res.Seq,
	)
	return res, nil
}

// apply reads the item, evaluates the guard and writes the transition
// under the item's lock. For a no-op the returned Result carries the item.
func (m *Manager) apply(ctx context.Context, id string, ev model.Event, cfg transitionConfig) (Result, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	item, err := m.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}

	if target, _ := TargetOf(ev); target == item.State {
		return m.noOp(ctx, item, ev)
	}

	to, ok := Target(item.State, ev)
	if !ok {
		return Result{}, NewInvalidTransitionError(id, item.State, ev)
	}

	now := m.clock.Now()
	t := store.Transition{
		ActionItemID: id,
		Event:        ev,
		From:         item.State,
		To:           to,
		Actor:        cfg.actor,
		Note:         cfg.note,
		At:           now,
	}
	if err := m.guard(item, ev, cfg, &t, now); err != nil {
		m.logger.Info("transition rejected", "item_id", id, "event", ev, "state", item.State, "reason", err.Error())
		return Result{}, err
	}

	seq, err := m.store.ApplyTransition(ctx, t)
	switch {
	case errors.Is(err, store.ErrStateConflict):
		// Another process moved the item between our read and write.
		current, gerr := m.Get(ctx, id)
		if gerr != nil {
			return Result{}, gerr
		}
		if current.State == to {
			return m.noOp(ctx, current, ev)
		}
		return Result{}, NewInvalidTransitionError(id, current.State, ev)
	case errors.Is(err, store.ErrNotFound):
		return Result{}, NewNotFoundError(id, err)
	case err != nil:
		return Result{}, fmt.Errorf("apply %s to %s: %w", ev, id, err)
	}
	return Result{From: t.From, To: t.To, Applied: true, Seq: seq}, nil
}

// noOp accepts ev on an item already at its target only when ev is the
// event that brought it there. Reaching done through auto-approve does not
// make response-sent acceptable, nor the reverse.
func (m *Manager) noOp(ctx context.Context, item model.ActionItem, ev model.Event) (Result, error) {
	history, err := m.store.History(ctx, item.ID)
	if err != nil {
		return Result{}, fmt.Errorf("read history of %s: %w", item.ID, err)
	}
	if n := len(history); n == 0 || history[n-1].Event != ev || history[n-1].ToState != item.State {
		return Result{}, NewInvalidTransitionError(item.ID, item.State, ev)
	}
	m.logger.Debug("transition no-op", "item_id", item.ID, "event", ev, "state", item.State)
	return Result{Item: item, From: item.State, To: item.State}, nil
}

// guard evaluates the guard for ev and fills the rows t must carry.
func (m *Manager) guard(item model.ActionItem, ev model.Event, cfg transitionConfig, t *store.Transition, now time.Time) error {
	fail := func(format string, args ...any) error {
		return NewGuardError(item.ID, item.State, ev, fmt.Sprintf(format, args...))
	}

	switch ev {
	case model.EventAutoApprove:
		decision := m.policy.Decide(item.Score)
		if !decision.AutoSend() {
			return fail("policy requires review: %s", strings.Join(decision.Reasons, "; "))
		}
		if item.Score.NeedsReply && cfg.sent == nil {
			return fail("auto-approve of an item needing a reply requires a sent-response confirmation")
		}
		if cfg.planBody != nil {
			t.Plan = m.newPlan(item, *cfg.planBody, now)
		}
		if cfg.sent != nil {
			t.SentResponse = sentResponse(item.ID, *cfg.sent, now)
		}

	case model.EventPlanCreated:
		switch {
		case cfg.planBody != nil && strings.TrimSpace(*cfg.planBody) != "":
			t.Plan = m.newPlan(item, *cfg.planBody, now)
		case cfg.planBody == nil && item.Plan != nil && strings.TrimSpace(item.Plan.Body) != "":
			// Stored plan is kept as is.
		default:
			return fail("plan-created requires a non-empty plan")
		}

	case model.EventHumanApproves:
		if item.Plan == nil {
			return fail("no plan to approve")
		}
		if !item.Plan.Intact() {
			return fail("plan body does not match its content hash")
		}
		if cfg.expectedRevision > 0 && cfg.expectedRevision != item.Plan.Revision {
			return fail("plan is at revision %d, expected %d", item.Plan.Revision, cfg.expectedRevision)
		}

	case model.EventResponseSent:
		if cfg.sent == nil {
			return fail("response-sent requires a sent-response confirmation")
		}
		t.SentResponse = sentResponse(item.ID, *cfg.sent, now)
	}
	return nil
}

func (m *Manager) newPlan(item model.ActionItem, body string, now time.Time) *model.Plan {
	p := &model.Plan{
		ID:           m.ids.Generate(),
		ActionItemID: item.ID,
		Body:         body,
		ContentHash:  model.PlanContentHash(item.ID, body),
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if item.Plan != nil {
		p.ID = item.Plan.ID
		p.CreatedAt = item.Plan.CreatedAt
	}
	return p
}

func sentResponse(itemID string, r model.SentResponse, now time.Time) *model.SentResponse {
	r.ActionItemID = itemID
	if r.SentAt.IsZero() {
		r.SentAt = now
	}
	return &r
}

// RevisePlan replaces the plan body of a planned item. If expectedRevision
// is positive it must match the stored revision. Returns the new plan.
func (m *Manager) RevisePlan(ctx context.Context, id, body string, expectedRevision int) (model.Plan, error) {
	if strings.TrimSpace(body) == "" {
		return model.Plan{}, NewGuardError(id, model.StatePlanned, model.EventPlanCreated, "plan body is empty")
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	plan, err := m.store.RevisePlan(ctx, id, body, expectedRevision, m.clock.Now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return model.Plan{}, NewNotFoundError(id, err)
	case errors.Is(err, store.ErrStateConflict):
		return model.Plan{}, &Error{
			Code:         CodeInvalidTransition,
			Message:      "plan can only be revised while planned",
			ActionItemID: id,
			Err:          err,
		}
	case errors.Is(err, store.ErrRevisionConflict):
		return model.Plan{}, &Error{
			Code:         CodeGuardFailed,
			Message:      "plan revision mismatch",
			ActionItemID: id,
			State:        model.StatePlanned,
			Err:          err,
		}
	case err != nil:
		return model.Plan{}, fmt.Errorf("revise plan %s: %w", id, err)
	}

	m.logger.Info("plan revised", "item_id", id, "revision", plan.Revision)
	return plan, nil
}
