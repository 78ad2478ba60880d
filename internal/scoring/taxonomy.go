package scoring

import (
	"fmt"
	"regexp"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// Taxonomy holds every keyword set and weight the Engine uses.
// It is plain data; build one with the taxonomy package or by hand in tests.
type Taxonomy struct {
	// PriorityTiers maps a priority (1..5) to its keyword phrases.
	PriorityTiers map[int][]string `json:"priority_tiers"`

	// Categories maps each category to its keyword phrases.
	Categories map[model.Category][]string `json:"categories"`

	// RiskKeywords maps a phrase to the risk it contributes once present.
	RiskKeywords map[string]int `json:"risk_keywords"`

	// SensitiveTerms each add SensitiveWeight when present.
	SensitiveTerms  []string `json:"sensitive_terms"`
	SensitiveWeight int      `json:"sensitive_weight"`

	// PriorityRisk is the risk contributed by the resolved priority tier.
	PriorityRisk map[int]int `json:"priority_risk"`

	// UnknownSenderWeight is added when the sender's domain is not known.
	UnknownSenderWeight int      `json:"unknown_sender_weight"`
	KnownDomains        []string `json:"known_domains"`

	// SubjectWeight multiplies keyword hits found in the subject.
	SubjectWeight int `json:"subject_weight"`

	ConfidenceFloor      float64 `json:"confidence_floor"`
	ConfidenceSaturation int     `json:"confidence_saturation"`

	// ActionPatterns are regular expressions run over the normalized text.
	ActionPatterns    []string `json:"action_patterns"`
	MaxActionItems    int      `json:"max_action_items"`
	RequestIndicators []string `json:"request_indicators"`
	SafePatterns      []string `json:"safe_patterns"`

	// ReplyTemplates are keyed by category name, plus "default" and
	// "acknowledge". "{name}" is replaced with the sender's name.
	ReplyTemplates map[string]string `json:"reply_templates"`
}

// Reply template keys that are not categories.
const (
	TemplateDefault     = "default"
	TemplateAcknowledge = "acknowledge"
)

// Validate reports the first structural problem in t.
func (t *Taxonomy) Validate() error {
	for p := range t.PriorityTiers {
		if p < model.MinPriority || p > model.MaxPriority {
			return fmt.Errorf("priority tier %d out of range %d..%d", p, model.MinPriority, model.MaxPriority)
		}
	}
	for c := range t.Categories {
		if !c.Valid() {
			return fmt.Errorf("unknown category %q", c)
		}
	}
	for kw, w := range t.RiskKeywords {
		if w < 0 {
			return fmt.Errorf("risk keyword %q has negative weight %d", kw, w)
		}
	}
	if t.SubjectWeight < 1 {
		return fmt.Errorf("subject_weight must be >= 1, got %d", t.SubjectWeight)
	}
	if t.ConfidenceFloor < 0 || t.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence_floor must be within [0,1], got %v", t.ConfidenceFloor)
	}
	if t.ConfidenceSaturation < 1 {
		return fmt.Errorf("confidence_saturation must be >= 1, got %d", t.ConfidenceSaturation)
	}
	for _, p := range t.ActionPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("action pattern %q: %w", p, err)
		}
	}
	if _, ok := t.ReplyTemplates[TemplateDefault]; !ok {
		return fmt.Errorf("reply_templates must include %q", TemplateDefault)
	}
	return nil
}
