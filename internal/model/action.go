package model

import "time"

// State is the lifecycle state of an ActionItem.
type State string

const (
	StateNeedsAction State = "needs_action"
	StatePlanned     State = "planned"
	StateApproved    State = "approved"
	StateRejected    State = "rejected"
	StateDone        State = "done"
)

// Terminal reports whether no event can leave the state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateRejected
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateNeedsAction, StatePlanned, StateApproved, StateRejected, StateDone:
		return true
	}
	return false
}

// Event drives a lifecycle transition.
type Event string

const (
	EventAutoApprove   Event = "auto-approve"
	EventPlanCreated   Event = "plan-created"
	EventHumanApproves Event = "human-approves"
	EventHumanRejects  Event = "human-rejects"
	EventResponseSent  Event = "response-sent"
)

// Events lists every lifecycle event.
var Events = []Event{
	EventAutoApprove,
	EventPlanCreated,
	EventHumanApproves,
	EventHumanRejects,
	EventResponseSent,
}

// ParseEvent returns the Event named s.
func ParseEvent(s string) (Event, bool) {
	for _, ev := range Events {
		if string(ev) == s {
			return ev, true
		}
	}
	return "", false
}

// ActionItem is the unit of work derived from one message.
// Items are never deleted; State only moves along the transition table.
type ActionItem struct {
	ID              string        `json:"id"`
	SourceMessageID string        `json:"source_message_id"`
	Score           ScoreResult   `json:"score"`
	State           State         `json:"state"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Plan            *Plan         `json:"plan,omitempty"`
	SentResponse    *SentResponse `json:"sent_response,omitempty"`
}

// Plan is the proposed response for an ActionItem.
type Plan struct {
	ID           string    `json:"id"`
	ActionItemID string    `json:"action_item_id"`
	Body         string    `json:"body"`
	ContentHash  string    `json:"content_hash"`
	Revision     int       `json:"revision"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Intact reports whether the plan body still matches its content hash.
func (p Plan) Intact() bool {
	return p.ContentHash == PlanContentHash(p.ActionItemID, p.Body)
}

// SentResponse confirms that a reply was delivered.
type SentResponse struct {
	ActionItemID string    `json:"action_item_id"`
	Recipient    string    `json:"recipient"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	SentAt       time.Time `json:"sent_at"`
	ProviderRef  string    `json:"provider_ref"`
}

// ActionEvent is one row of an item's transition history.
type ActionEvent struct {
	Seq          int64     `json:"seq"`
	ActionItemID string    `json:"action_item_id"`
	Event        Event     `json:"event"`
	FromState    State     `json:"from_state"`
	ToState      State     `json:"to_state"`
	Actor        string    `json:"actor"`
	Note         string    `json:"note,omitempty"`
	At           time.Time `json:"at"`
}

// Reply is an outbound message handed to a Sender.
type Reply struct {
	ActionItemID string `json:"action_item_id"`
	Recipient    string `json:"recipient"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	InReplyTo    string `json:"in_reply_to"`
}

// ReplySubject prefixes subject with "Re: " unless it already has one.
func ReplySubject(subject string) string {
	if len(subject) >= 3 && (subject[:3] == "Re:" || subject[:3] == "RE:" || subject[:3] == "re:") {
		return subject
	}
	return "Re: " + subject
}
