// Package policy decides whether a scored message may be answered without
// human review.
package policy

import (
	"fmt"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// Decision is the outcome of Policy.Decide.
type Decision string

const (
	AutoSend    Decision = "auto_send"
	NeedsReview Decision = "needs_review"
)

// Default thresholds.
const (
	DefaultRiskCeiling     = 30
	DefaultMaxPriority     = 2
	DefaultConfidenceFloor = 0.5
)

// Policy is a conjunctive, fail-closed auto-approval rule.
type Policy struct {
	RiskCeiling     int     `yaml:"risk_ceiling" json:"risk_ceiling"`
	MaxPriority     int     `yaml:"max_priority" json:"max_priority"`
	ConfidenceFloor float64 `yaml:"confidence_floor" json:"confidence_floor"`
}

// Default returns the policy with default thresholds.
func Default() Policy {
	return Policy{
		RiskCeiling:     DefaultRiskCeiling,
		MaxPriority:     DefaultMaxPriority,
		ConfidenceFloor: DefaultConfidenceFloor,
	}
}

// Validate reports thresholds that would make the policy meaningless.
func (p Policy) Validate() error {
	if p.RiskCeiling < 0 || p.RiskCeiling > 100 {
		return fmt.Errorf("risk_ceiling must be within [0,100], got %d", p.RiskCeiling)
	}
	if p.MaxPriority < model.MinPriority || p.MaxPriority > model.MaxPriority {
		return fmt.Errorf("max_priority must be within [%d,%d], got %d", model.MinPriority, model.MaxPriority, p.MaxPriority)
	}
	if p.ConfidenceFloor < 0 || p.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence_floor must be within [0,1], got %v", p.ConfidenceFloor)
	}
	return nil
}

// Result carries the decision and every condition that blocked auto-send.
type Result struct {
	Decision Decision `json:"decision"`
	Reasons  []string `json:"reasons"`
}

// AutoSend reports whether the decision is AutoSend.
func (r Result) AutoSend() bool {
	return r.Decision == AutoSend
}

// Decide evaluates s. Any failing condition yields NeedsReview.
func (p Policy) Decide(s model.ScoreResult) Result {
	reasons := []string{}
	if s.Degraded {
		reasons = append(reasons, "classification degraded")
	}
	if s.Risk >= p.RiskCeiling {
		reasons = append(reasons, fmt.Sprintf("risk %d >= ceiling %d", s.Risk, p.RiskCeiling))
	}
	if s.Priority > p.MaxPriority {
		reasons = append(reasons, fmt.Sprintf("priority %d > %d", s.Priority, p.MaxPriority))
	}
	// NaN fails this comparison too.
	if !(s.Confidence > p.ConfidenceFloor) {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f <= floor %.2f", s.Confidence, p.ConfidenceFloor))
	}
	if len(reasons) > 0 {
		return Result{Decision: NeedsReview, Reasons: reasons}
	}
	return Result{Decision: AutoSend, Reasons: reasons}
}
