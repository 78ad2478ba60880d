package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// Snapshot converts a result to the canonical form stored in golden files.
//
// Only values fixed by the scenario appear: item IDs are replaced by
// message IDs, and timestamps, plan bodies and notification details are
// left out.
func Snapshot(name string, result *Result) map[string]any {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"step": ev.Step,
			"op":   ev.Op,
		}
		if ev.Target != "" {
			m["target"] = ev.Target
		}
		if ev.Result != nil {
			m["result"] = ev.Result
		}
		trace[i] = m
	}

	notes := make([]any, len(result.Notifications))
	for i, n := range result.Notifications {
		m := map[string]any{
			"seq":    n.Seq,
			"event":  n.Event,
			"result": n.Result,
		}
		if n.Component != "" {
			m["component"] = n.Component
		}
		if msg := result.MessageFor(n.ActionItemID); msg != "" {
			m["message"] = msg
		}
		notes[i] = m
	}

	return map[string]any{
		"scenario":      name,
		"trace":         trace,
		"notifications": notes,
	}
}

// MarshalSnapshot renders a result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	return model.MarshalCanonical(Snapshot(name, result))
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
