package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

func TestCreateActionItem_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	item := mustCreateItem(t, s, "gmail:1")

	got, err := s.GetActionItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item, got)
	assert.Nil(t, got.Plan)
	assert.Nil(t, got.SentResponse)

	bySource, err := s.GetActionItemBySource(ctx, "gmail:1")
	require.NoError(t, err)
	assert.Equal(t, item.ID, bySource.ID)

	msg, err := s.GetMessage(ctx, "gmail:1")
	require.NoError(t, err)
	assert.Equal(t, createTestMessage("gmail:1"), msg)
}

func TestCreateActionItem_DuplicateMessage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustCreateItem(t, s, "gmail:1")

	dup := createTestItem("gmail:1")
	dup.ID = "other-id"
	err := s.CreateActionItem(ctx, createTestMessage("gmail:1"), dup)
	require.ErrorIs(t, err, ErrDuplicate)

	items, err := s.ListActionItems(ctx, ActionItemFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestGetActionItem_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetActionItem(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyTransition_WritesStatePlanAndHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	item := mustCreateItem(t, s, "gmail:1")
	plan := createTestPlan(item.ID, "Thanks, will do.")

	seq, err := s.ApplyTransition(ctx, Transition{
		ActionItemID: item.ID,
		Event:        model.EventPlanCreated,
		From:         model.StateNeedsAction,
		To:           model.StatePlanned,
		Actor:        "orchestrator",
		At:           testTime(2),
		Plan:         plan,
	})
	require.NoError(t, err)
	assert.Greater(t, seq, int64(0))

	got, err := s.GetActionItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePlanned, got.State)
	assert.True(t, got.UpdatedAt.Equal(testTime(2)))
	require.NotNil(t, got.Plan)
	assert.Equal(t, *plan, *got.Plan)
	assert.True(t, got.Plan.Intact())

	history, err := s.History(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.EventPlanCreated, history[0].Event)
	assert.Equal(t, model.StateNeedsAction, history[0].FromState)
	assert.Equal(t, model.StatePlanned, history[0].ToState)
	assert.Equal(t, "orchestrator", history[0].Actor)
	assert.Equal(t, seq, history[0].Seq)
}

func TestApplyTransition_CompareAndSet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	item := mustCreateItem(t, s, "gmail:1")

	_, err := s.ApplyTransition(ctx, Transition{
		ActionItemID: item.ID,
		Event:        model.EventHumanApproves,
		From:         model.StatePlanned,
		To:           model.StateApproved,
		At:           testTime(2),
		Plan:         createTestPlan(item.ID, "x"),
	})
	require.ErrorIs(t, err, ErrStateConflict)

	// Nothing from the failed transaction is visible.
	got, err := s.GetActionItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateNeedsAction, got.State)
	assert.Nil(t, got.Plan)

	history, err := s.History(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)
}

func TestApplyTransition_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ApplyTransition(context.Background(), Transition{
		ActionItemID: "missing",
		Event:        model.EventHumanRejects,
		From:         model.StatePlanned,
		To:           model.StateRejected,
		At:           testTime(2),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyTransition_SentResponse(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	item := mustCreateItem(t, s, "gmail:1")

	sent := &model.SentResponse{
		ActionItemID: item.ID,
		Recipient:    "jane@corp.io",
		Subject:      "Re: Subject gmail:1",
		Body:         "ack",
		SentAt:       testTime(3),
		ProviderRef:  "outbox/1.eml",
	}
	_, err := s.ApplyTransition(ctx, Transition{
		ActionItemID: item.ID,
		Event:        model.EventAutoApprove,
		From:         model.StateNeedsAction,
		To:           model.StateDone,
		At:           testTime(3),
		Plan:         createTestPlan(item.ID, "ack"),
		SentResponse: sent,
	})
	require.NoError(t, err)

	got, err := s.GetActionItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDone, got.State)
	require.NotNil(t, got.SentResponse)
	assert.Equal(t, *sent, *got.SentResponse)
}

func TestRevisePlan(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	item := mustCreateItem(t, s, "gmail:1")

	_, err := s.RevisePlan(ctx, item.ID, "new", 0, testTime(3))
	require.ErrorIs(t, err, ErrStateConflict)

	_, err = s.ApplyTransition(ctx, Transition{
		ActionItemID: item.ID,
		Event:        model.EventPlanCreated,
		From:         model.StateNeedsAction,
		To:           model.StatePlanned,
		At:           testTime(2),
		Plan:         createTestPlan(item.ID, "draft"),
	})
	require.NoError(t, err)

	plan, err := s.RevisePlan(ctx, item.ID, "final", 1, testTime(3))
	require.NoError(t, err)
	assert.Equal(t, "final", plan.Body)
	assert.Equal(t, 2, plan.Revision)
	assert.True(t, plan.Intact())
	assert.True(t, plan.UpdatedAt.Equal(testTime(3)))
	assert.True(t, plan.CreatedAt.Equal(testTime(2)))

	_, err = s.RevisePlan(ctx, item.ID, "stale", 1, testTime(4))
	require.ErrorIs(t, err, ErrRevisionConflict)

	_, err = s.RevisePlan(ctx, "missing", "x", 0, testTime(4))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListActionItems_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := mustCreateItem(t, s, "m1")
	mustCreateItem(t, s, "m2")

	urgent := createTestItem("m3")
	urgent.Score.Priority = 5
	urgent.Score.Category = model.CategoryLegal
	urgent.CreatedAt = testTime(5)
	require.NoError(t, s.CreateActionItem(ctx, createTestMessage("m3"), urgent))

	_, err := s.ApplyTransition(ctx, Transition{
		ActionItemID: a.ID, Event: model.EventPlanCreated,
		From: model.StateNeedsAction, To: model.StatePlanned,
		At: testTime(2), Plan: createTestPlan(a.ID, "p"),
	})
	require.NoError(t, err)

	all, err := s.ListActionItems(ctx, ActionItemFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	planned, err := s.ListActionItems(ctx, ActionItemFilter{State: model.StatePlanned})
	require.NoError(t, err)
	require.Len(t, planned, 1)
	assert.Equal(t, a.ID, planned[0].ID)

	legal, err := s.ListActionItems(ctx, ActionItemFilter{Category: model.CategoryLegal})
	require.NoError(t, err)
	require.Len(t, legal, 1)
	assert.Equal(t, urgent.ID, legal[0].ID)

	high, err := s.ListActionItems(ctx, ActionItemFilter{MinPriority: 4})
	require.NoError(t, err)
	assert.Len(t, high, 1)

	limited, err := s.ListActionItems(ctx, ActionItemFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.ListActionItems(ctx, ActionItemFilter{State: model.StateDone})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	counts, err := s.CountActionItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.State]int{model.StateNeedsAction: 2, model.StatePlanned: 1}, counts)
}

func TestMessages_ListAndDomains(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustSaveMessage(t, s, "m2")
	mustSaveMessage(t, s, "m1")
	mustSaveMessage(t, s, "m2")

	other := createTestMessage("m3")
	other.Sender = "bob@Example.COM"
	require.NoError(t, s.SaveMessage(ctx, other))

	msgs, err := s.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m1", msgs[1].ID)

	domains, err := s.SenderDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"corp.io", "example.com"}, domains)

	_, err = s.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
