package model

import "strconv"

// Category classifies what a message is about.
type Category string

const (
	CategoryFinance   Category = "finance"
	CategoryLegal     Category = "legal"
	CategoryHR        Category = "hr"
	CategoryProject   Category = "project"
	CategoryMeeting   Category = "meeting"
	CategorySupport   Category = "support"
	CategoryTechnical Category = "technical"
	CategoryGeneral   Category = "general"
)

// CategoryPrecedence lists categories in tie-break order, highest first.
var CategoryPrecedence = []Category{
	CategoryFinance,
	CategoryLegal,
	CategoryHR,
	CategoryProject,
	CategoryMeeting,
	CategorySupport,
	CategoryTechnical,
	CategoryGeneral,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range CategoryPrecedence {
		if c == known {
			return true
		}
	}
	return false
}

// Priority bounds.
const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 2
)

// PriorityLabel returns the human label for a priority tier.
func PriorityLabel(p int) string {
	switch {
	case p >= 5:
		return "urgent"
	case p == 4:
		return "high"
	case p == 3:
		return "medium"
	case p == 2:
		return "normal"
	default:
		return "low"
	}
}

// RiskLevel labels a 0..100 risk score.
func RiskLevel(risk int) string {
	switch {
	case risk >= 75:
		return "critical"
	case risk >= 50:
		return "high"
	case risk >= 25:
		return "medium"
	case risk >= 10:
		return "low"
	default:
		return "safe"
	}
}

// ScoreResult is the output of scoring one message. It is a pure function
// of (sender, subject, body, taxonomy).
type ScoreResult struct {
	Priority        int      `json:"priority"`
	PriorityLabel   string   `json:"priority_label"`
	Category        Category `json:"category"`
	Risk            int      `json:"risk"`
	RiskLevel       string   `json:"risk_level"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matched_keywords"`
	RiskFactors     []string `json:"risk_factors"`
	ActionItems     []string `json:"action_items"`
	NeedsReply      bool     `json:"needs_reply"`
	Degraded        bool     `json:"degraded"`
}

// ConfidencePercent returns confidence rounded to a whole percentage.
func (s ScoreResult) ConfidencePercent() int {
	return int(s.Confidence*100 + 0.5)
}

// canonicalFields returns the score as a float-free map. Confidence is
// carried as basis points so canonical JSON can represent it.
func (s ScoreResult) canonicalFields() map[string]any {
	return map[string]any{
		"priority":         s.Priority,
		"category":         string(s.Category),
		"risk":             s.Risk,
		"confidence_bp":    int(s.Confidence*10000 + 0.5),
		"matched_keywords": nonNilStrings(s.MatchedKeywords),
		"risk_factors":     nonNilStrings(s.RiskFactors),
		"action_items":     nonNilStrings(s.ActionItems),
		"needs_reply":      s.NeedsReply,
		"degraded":         s.Degraded,
	}
}

// Summary renders the score on one line for logs and CLI text output.
func (s ScoreResult) Summary() string {
	out := "priority=" + strconv.Itoa(s.Priority) + "(" + s.PriorityLabel + ")" +
		" category=" + string(s.Category) +
		" risk=" + strconv.Itoa(s.Risk) + "(" + s.RiskLevel + ")" +
		" confidence=" + strconv.Itoa(s.ConfidencePercent()) + "%"
	if s.Degraded {
		out += " degraded"
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
