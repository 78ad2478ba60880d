package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khanzadigithubid/AI-Employee-System/internal/config"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/policy"
)

// DefaultStart is the fake clock's start when a scenario sets none.
var DefaultStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Scenario is one executable test of the triage pipeline.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock is the RFC 3339 start time of the fake clock.
	Clock string `yaml:"clock,omitempty"`

	// Taxonomy is an optional CUE taxonomy file replacing the embedded
	// default. Relative paths resolve against the scenario file.
	Taxonomy string `yaml:"taxonomy,omitempty"`

	// KnownDomains seeds the trusted sender set.
	KnownDomains []string `yaml:"known_domains,omitempty"`

	// Policy overrides the default auto-approval thresholds.
	Policy *policy.Policy `yaml:"policy,omitempty"`

	// Health overrides supervision thresholds. Zero fields take defaults.
	Health *config.HealthConfig `yaml:"health,omitempty"`

	// Collectors are registered with the monitor at the start time.
	Collectors []string `yaml:"collectors,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action. Exactly one operation field is set.
type Step struct {
	Ingest     *model.Message   `yaml:"ingest,omitempty"`
	Transition *TransitionStep  `yaml:"transition,omitempty"`
	Plan       *PlanStep        `yaml:"plan,omitempty"`
	Heartbeat  string           `yaml:"heartbeat,omitempty"`
	Fail       *FailStep        `yaml:"fail,omitempty"`
	Enable     string           `yaml:"enable,omitempty"`
	Advance    *config.Duration `yaml:"advance,omitempty"`
	Check      bool             `yaml:"check,omitempty"`
	Sender     string           `yaml:"sender,omitempty"`

	// Expect is checked right after the step runs.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// TransitionStep applies a lifecycle event to the item created for Message.
type TransitionStep struct {
	Message string `yaml:"message"`
	Event   string `yaml:"event"`
	// Revision is the plan revision human-approves must find.
	Revision int    `yaml:"revision,omitempty"`
	Note     string `yaml:"note,omitempty"`
	// Send delivers the plan through the sender and attaches the
	// confirmation. Used with response-sent.
	Send bool `yaml:"send,omitempty"`
}

// PlanStep attaches a plan to a needs_action item or revises a planned one.
type PlanStep struct {
	Message  string `yaml:"message"`
	Body     string `yaml:"body"`
	Revision int    `yaml:"revision,omitempty"`
}

// FailStep reports a failed poll.
type FailStep struct {
	Collector string `yaml:"collector"`
	Error     string `yaml:"error,omitempty"`
}

// StepExpect is the expected outcome of one step. Error is an error code
// such as INVALID_TRANSITION; an empty Error expects success.
type StepExpect struct {
	State  string `yaml:"state,omitempty"`
	Status string `yaml:"status,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Step operation names, as they appear in the trace.
const (
	OpIngest     = "ingest"
	OpTransition = "transition"
	OpPlan       = "plan"
	OpHeartbeat  = "heartbeat"
	OpFail       = "fail"
	OpEnable     = "enable"
	OpAdvance    = "advance"
	OpCheck      = "check"
	OpSender     = "sender"
)

// ops lists the operations set on s.
func (s Step) ops() []string {
	var out []string
	if s.Ingest != nil {
		out = append(out, OpIngest)
	}
	if s.Transition != nil {
		out = append(out, OpTransition)
	}
	if s.Plan != nil {
		out = append(out, OpPlan)
	}
	if s.Heartbeat != "" {
		out = append(out, OpHeartbeat)
	}
	if s.Fail != nil {
		out = append(out, OpFail)
	}
	if s.Enable != "" {
		out = append(out, OpEnable)
	}
	if s.Advance != nil {
		out = append(out, OpAdvance)
	}
	if s.Check {
		out = append(out, OpCheck)
	}
	if s.Sender != "" {
		out = append(out, OpSender)
	}
	return out
}

// Op returns the step's operation name, or "" if it is malformed.
func (s Step) Op() string {
	if ops := s.ops(); len(ops) == 1 {
		return ops[0]
	}
	return ""
}

// Assertion checks final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Message   string `yaml:"message,omitempty"`
	State     string `yaml:"state,omitempty"`
	Collector string `yaml:"collector,omitempty"`
	Status    string `yaml:"status,omitempty"`
	Event     string `yaml:"event,omitempty"`
	Result    string `yaml:"result,omitempty"`
	Count     int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertItemState         = "item_state"
	AssertItemCount         = "item_count"
	AssertHealthStatus      = "health_status"
	AssertRestartCount      = "restart_count"
	AssertNotificationCount = "notification_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly. A relative taxonomy
// path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Taxonomy != "" && !filepath.IsAbs(s.Taxonomy) {
		s.Taxonomy = filepath.Join(filepath.Dir(path), s.Taxonomy)
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Start returns the fake clock's start time.
func (s *Scenario) Start() (time.Time, error) {
	if s.Clock == "" {
		return DefaultStart, nil
	}
	t, err := time.Parse(time.RFC3339, s.Clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: %w", err)
	}
	return t.UTC(), nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := s.Start(); err != nil {
		return err
	}
	if s.Policy != nil {
		if err := s.Policy.Validate(); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	if s.Health != nil {
		if err := s.Health.Monitor().Validate(); err != nil {
			return fmt.Errorf("health: %w", err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, s Step) error {
	ops := s.ops()
	switch len(ops) {
	case 0:
		return fmt.Errorf("steps[%d]: no operation set", i)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: exactly one operation allowed, got %v", i, ops)
	}

	switch ops[0] {
	case OpIngest:
		if s.Ingest.ID == "" {
			return fmt.Errorf("steps[%d]: ingest.id is required", i)
		}
	case OpTransition:
		if s.Transition.Message == "" {
			return fmt.Errorf("steps[%d]: transition.message is required", i)
		}
		if _, ok := model.ParseEvent(s.Transition.Event); !ok {
			return fmt.Errorf("steps[%d]: unknown event %q", i, s.Transition.Event)
		}
	case OpPlan:
		if s.Plan.Message == "" {
			return fmt.Errorf("steps[%d]: plan.message is required", i)
		}
	case OpFail:
		if s.Fail.Collector == "" {
			return fmt.Errorf("steps[%d]: fail.collector is required", i)
		}
	case OpAdvance:
		if s.Advance.Std() <= 0 {
			return fmt.Errorf("steps[%d]: advance must be positive", i)
		}
	case OpSender:
		if s.Sender != "up" && s.Sender != "down" {
			return fmt.Errorf("steps[%d]: sender must be \"up\" or \"down\", got %q", i, s.Sender)
		}
	}

	if s.Expect != nil && s.Expect.State != "" && !model.State(s.Expect.State).Valid() {
		return fmt.Errorf("steps[%d].expect: unknown state %q", i, s.Expect.State)
	}
	return nil
}

func validateAssertion(i int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", i)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", i)
	}

	switch a.Type {
	case AssertItemState:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for item_state", i)
		}
		if !model.State(a.State).Valid() {
			return fmt.Errorf("assertions[%d]: unknown state %q", i, a.State)
		}
	case AssertItemCount:
		if a.State != "" && !model.State(a.State).Valid() {
			return fmt.Errorf("assertions[%d]: unknown state %q", i, a.State)
		}
	case AssertHealthStatus:
		if a.Collector == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: collector and status are required for health_status", i)
		}
	case AssertRestartCount:
		if a.Collector == "" {
			return fmt.Errorf("assertions[%d]: collector is required for restart_count", i)
		}
	case AssertNotificationCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for notification_count", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
