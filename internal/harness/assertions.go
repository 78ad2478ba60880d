package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/khanzadigithubid/AI-Employee-System/internal/health"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", ev.Step, ev.Op, ev.Target, ev.Result)
		}
	}
	return buf.String()
}

// AssertionContext provides the final state assertions inspect.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Monitor *health.Monitor
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertItemState:
		return assertItemState(result, a, actx)
	case AssertItemCount:
		return assertItemCount(result, a, actx)
	case AssertHealthStatus:
		return assertHealthStatus(result, a, actx)
	case AssertRestartCount:
		return assertRestartCount(result, a, actx)
	case AssertNotificationCount:
		return assertNotificationCount(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertItemState(result *Result, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("item_state requires a store")
	}
	item, err := actx.Store.GetActionItemBySource(actx.Ctx, a.Message)
	if err != nil {
		return &AssertionError{
			Type:     AssertItemState,
			Expected: fmt.Sprintf("item for %s in state %s", a.Message, a.State),
			Actual:   fmt.Sprintf("no item (%v)", err),
			Trace:    result.Trace,
		}
	}
	if string(item.State) != a.State {
		return &AssertionError{
			Type:     AssertItemState,
			Expected: fmt.Sprintf("item for %s in state %s", a.Message, a.State),
			Actual:   fmt.Sprintf("state %s", item.State),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertItemCount(result *Result, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("item_count requires a store")
	}
	counts, err := actx.Store.CountActionItems(actx.Ctx)
	if err != nil {
		return fmt.Errorf("count items: %w", err)
	}

	got, what := 0, "items"
	if a.State == "" {
		for _, n := range counts {
			got += n
		}
	} else {
		got = counts[model.State(a.State)]
		what = a.State + " items"
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertItemCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", got, what),
			Trace:    result.Trace,
		}
	}
	return nil
}

func record(a Assertion, actx *AssertionContext) (model.HealthRecord, error) {
	if actx == nil || actx.Monitor == nil {
		return model.HealthRecord{}, fmt.Errorf("%s requires a monitor", a.Type)
	}
	r, ok := actx.Monitor.Record(a.Collector)
	if !ok {
		return model.HealthRecord{}, fmt.Errorf("collector %s: %w", a.Collector, health.ErrUnknownCollector)
	}
	return r, nil
}

func assertHealthStatus(result *Result, a Assertion, actx *AssertionContext) error {
	r, err := record(a, actx)
	if err != nil {
		return err
	}
	if string(r.Status) != a.Status {
		return &AssertionError{
			Type:     AssertHealthStatus,
			Expected: fmt.Sprintf("%s %s", a.Collector, a.Status),
			Actual:   fmt.Sprintf("%s %s", a.Collector, r.Status),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertRestartCount(result *Result, a Assertion, actx *AssertionContext) error {
	r, err := record(a, actx)
	if err != nil {
		return err
	}
	if r.RestartCount != a.Count {
		return &AssertionError{
			Type:     AssertRestartCount,
			Expected: fmt.Sprintf("%s restarted %d times", a.Collector, a.Count),
			Actual:   fmt.Sprintf("%s restarted %d times", a.Collector, r.RestartCount),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertNotificationCount(result *Result, a Assertion) error {
	got := 0
	for _, n := range result.Notifications {
		if n.Event == a.Event && (a.Result == "" || n.Result == a.Result) {
			got++
		}
	}
	if got != a.Count {
		label := a.Event
		if a.Result != "" {
			label += "/" + a.Result
		}
		return &AssertionError{
			Type:     AssertNotificationCount,
			Expected: fmt.Sprintf("%d %s notifications", a.Count, label),
			Actual:   fmt.Sprintf("%d %s notifications", got, label),
			Trace:    result.Trace,
		}
	}
	return nil
}
