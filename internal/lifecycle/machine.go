package lifecycle

import "github.com/khanzadigithubid/AI-Employee-System/internal/model"

type edge struct {
	from  model.State
	event model.Event
}

// transitions is the complete table. Any pair not listed is invalid.
var transitions = map[edge]model.State{
	{model.StateNeedsAction, model.EventAutoApprove}: model.StateDone,
	{model.StateNeedsAction, model.EventPlanCreated}: model.StatePlanned,
	{model.StatePlanned, model.EventHumanApproves}:   model.StateApproved,
	{model.StatePlanned, model.EventHumanRejects}:    model.StateRejected,
	{model.StateApproved, model.EventResponseSent}:   model.StateDone,
}

// Target returns the state reached from `from` on ev.
func Target(from model.State, ev model.Event) (model.State, bool) {
	to, ok := transitions[edge{from, ev}]
	return to, ok
}

// TargetOf returns the state ev leads to, regardless of origin.
func TargetOf(ev model.Event) (model.State, bool) {
	for e, to := range transitions {
		if e.event == ev {
			return to, true
		}
	}
	return "", false
}

// Allowed returns the events accepted in state s, in model.Events order.
func Allowed(s model.State) []model.Event {
	out := []model.Event{}
	for _, ev := range model.Events {
		if _, ok := transitions[edge{s, ev}]; ok {
			out = append(out, ev)
		}
	}
	return out
}
