package harness

import "github.com/khanzadigithubid/AI-Employee-System/internal/model"

// TraceEvent records one executed step.
type TraceEvent struct {
	// Step is the 1-based step index.
	Step int `json:"step"`
	// Op is the operation name (OpIngest, OpCheck, ...).
	Op string `json:"op"`
	// Target is the message ID, collector name or duration the step acted on.
	Target string `json:"target,omitempty"`
	// Result holds canonical-JSON-safe values only: strings, bools, ints
	// and nested maps of them.
	Result map[string]any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Notifications are the operator notifications emitted during the run,
	// in sequence order.
	Notifications []model.Notification `json:"notifications"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// messages maps action item IDs back to source message IDs.
	messages map[string]string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Notifications: []model.Notification{},
		Errors:        []string{},
		messages:      make(map[string]string),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends one step to the trace.
func (r *Result) AddTrace(step int, op, target string, result map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:   step,
		Op:     op,
		Target: target,
		Result: result,
	})
}

// MessageFor returns the source message ID of an action item, or "" if
// the item was not created during the run.
func (r *Result) MessageFor(itemID string) string {
	return r.messages[itemID]
}
