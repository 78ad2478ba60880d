package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

func TestTarget(t *testing.T) {
	tests := []struct {
		from model.State
		ev   model.Event
		to   model.State
		ok   bool
	}{
		{model.StateNeedsAction, model.EventAutoApprove, model.StateDone, true},
		{model.StateNeedsAction, model.EventPlanCreated, model.StatePlanned, true},
		{model.StatePlanned, model.EventHumanApproves, model.StateApproved, true},
		{model.StatePlanned, model.EventHumanRejects, model.StateRejected, true},
		{model.StateApproved, model.EventResponseSent, model.StateDone, true},
		{model.StateNeedsAction, model.EventHumanApproves, "", false},
		{model.StatePlanned, model.EventAutoApprove, "", false},
		{model.StateApproved, model.EventHumanRejects, "", false},
		{model.StateDone, model.EventPlanCreated, "", false},
		{model.StateRejected, model.EventHumanApproves, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			to, ok := Target(tt.from, tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	for _, s := range []model.State{model.StateDone, model.StateRejected} {
		assert.True(t, s.Terminal())
		assert.Empty(t, Allowed(s), s)
	}
}

func TestAllowed(t *testing.T) {
	assert.Equal(t, []model.Event{model.EventAutoApprove, model.EventPlanCreated}, Allowed(model.StateNeedsAction))
	assert.Equal(t, []model.Event{model.EventHumanApproves, model.EventHumanRejects}, Allowed(model.StatePlanned))
	assert.Equal(t, []model.Event{model.EventResponseSent}, Allowed(model.StateApproved))
}

func TestTargetOf(t *testing.T) {
	for _, ev := range model.Events {
		_, ok := TargetOf(ev)
		assert.True(t, ok, ev)
	}
	_, ok := TargetOf("archive")
	assert.False(t, ok)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	assert.Equal(t, 1, k.size())
	unlock()
	assert.Equal(t, 0, k.size())
}

func TestErrorMessages(t *testing.T) {
	err := NewInvalidTransitionError("item-1", model.StateDone, model.EventPlanCreated)
	assert.Equal(t, "INVALID_TRANSITION: no transition from done on plan-created (item=item-1, state=done, event=plan-created)", err.Error())

	nf := NewNotFoundError("item-2", nil)
	assert.Equal(t, "NOT_FOUND: action item not found (item=item-2)", nf.Error())
	assert.False(t, IsInvalidTransition(nf))
}
