package scoring

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// Engine scores messages against a compiled Taxonomy.
// An Engine is immutable after NewEngine and safe for concurrent use.
type Engine struct {
	tax        Taxonomy
	tiers      [model.MaxPriority + 1][]phrase
	categories map[model.Category][]phrase
	riskTerms  []weightedPhrase
	sensitive  []phrase
	requests   []phrase
	safe       []phrase
	actions    []*regexp.Regexp
	directory  SenderDirectory
}

type weightedPhrase struct {
	phrase
	weight int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSenderDirectory sets the directory consulted for sender-domain
// familiarity. The taxonomy's KnownDomains are always known.
func WithSenderDirectory(d SenderDirectory) Option {
	return func(e *Engine) {
		e.directory = d
	}
}

// NewEngine validates and compiles tax.
func NewEngine(tax Taxonomy, opts ...Option) (*Engine, error) {
	if err := tax.Validate(); err != nil {
		return nil, fmt.Errorf("invalid taxonomy: %w", err)
	}
	e := &Engine{
		tax:        tax,
		categories: make(map[model.Category][]phrase, len(tax.Categories)),
	}
	for p, kws := range tax.PriorityTiers {
		e.tiers[p] = compilePhrases(kws)
	}
	for c, kws := range tax.Categories {
		e.categories[c] = compilePhrases(kws)
	}
	riskKeys := make([]string, 0, len(tax.RiskKeywords))
	for kw := range tax.RiskKeywords {
		riskKeys = append(riskKeys, kw)
	}
	sort.Strings(riskKeys)
	for _, kw := range riskKeys {
		if p, ok := compilePhrase(kw); ok {
			e.riskTerms = append(e.riskTerms, weightedPhrase{phrase: p, weight: tax.RiskKeywords[kw]})
		}
	}
	e.sensitive = compilePhrases(tax.SensitiveTerms)
	e.requests = compilePhrases(tax.RequestIndicators)
	e.safe = compilePhrases(tax.SafePatterns)
	for _, p := range tax.ActionPatterns {
		e.actions = append(e.actions, regexp.MustCompile(p))
	}

	known := NewDomainSet(tax.KnownDomains...)
	e.directory = known
	for _, opt := range opts {
		opt(e)
	}
	if e.directory != known {
		e.directory = chainDirectory{known, e.directory}
	}
	return e, nil
}

type chainDirectory []SenderDirectory

func (c chainDirectory) Known(domain string) bool {
	for _, d := range c {
		if d != nil && d.Known(domain) {
			return true
		}
	}
	return false
}

// Taxonomy returns the taxonomy the engine was built from.
func (e *Engine) Taxonomy() Taxonomy {
	return e.tax
}

// input is the tokenized form of one message.
type input struct {
	subject  []string
	body     []string
	combined string
}

func (in input) empty() bool {
	return len(in.subject) == 0 && len(in.body) == 0
}

// weighted counts phrase hits with subject hits multiplied.
func (e *Engine) weighted(p phrase, in input) int {
	return p.count(in.subject)*e.tax.SubjectWeight + p.count(in.body)
}

// Score classifies one message. It never fails.
func (e *Engine) Score(sender, subject, body string) model.ScoreResult {
	subjectNorm := Normalize(subject)
	bodyNorm := Normalize(ExtractText(model.TruncateBody(body)))
	in := input{
		subject:  Tokenize(subjectNorm),
		body:     Tokenize(bodyNorm),
		combined: strings.TrimSpace(subjectNorm + " " + bodyNorm),
	}

	matched := make(map[string]struct{})
	res := model.ScoreResult{
		MatchedKeywords: []string{},
		RiskFactors:     []string{},
		ActionItems:     []string{},
	}

	if in.empty() {
		res.Degraded = true
		res.Priority = model.MinPriority
		res.Category = model.CategoryGeneral
	} else {
		res.Priority = e.priority(in, matched)
		res.Category = e.category(in, matched)
		res.ActionItems = e.actionItems(in.combined)
		res.NeedsReply = e.needsReply(subject, body, in, res.ActionItems)
	}
	res.PriorityLabel = model.PriorityLabel(res.Priority)

	res.Risk, res.RiskFactors = e.risk(sender, res.Priority, in, matched, res.Degraded)
	res.RiskLevel = model.RiskLevel(res.Risk)

	res.Confidence = e.confidence(len(matched))
	for kw := range matched {
		res.MatchedKeywords = append(res.MatchedKeywords, kw)
	}
	sort.Strings(res.MatchedKeywords)
	return res
}

// priority returns the highest tier with at least one hit.
func (e *Engine) priority(in input, matched map[string]struct{}) int {
	for p := model.MaxPriority; p >= model.MinPriority; p-- {
		hit := false
		for _, ph := range e.tiers[p] {
			if e.weighted(ph, in) > 0 {
				matched[ph.text] = struct{}{}
				hit = true
			}
		}
		if hit {
			return p
		}
	}
	return model.DefaultPriority
}

// category returns the category with the highest weighted hit count,
// breaking ties by model.CategoryPrecedence.
func (e *Engine) category(in input, matched map[string]struct{}) model.Category {
	best := model.CategoryGeneral
	bestScore := 0
	for _, c := range model.CategoryPrecedence {
		score := 0
		for _, ph := range e.categories[c] {
			if n := e.weighted(ph, in); n > 0 {
				score += n
				matched[ph.text] = struct{}{}
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

func (e *Engine) risk(sender string, priority int, in input, matched map[string]struct{}, degraded bool) (int, []string) {
	total := 0
	factors := []string{}
	if !degraded {
		for _, rp := range e.riskTerms {
			if e.weighted(rp.phrase, in) > 0 {
				total += rp.weight
				matched[rp.text] = struct{}{}
				factors = append(factors, fmt.Sprintf("keyword %q (+%d)", rp.text, rp.weight))
			}
		}
		for _, sp := range e.sensitive {
			if e.weighted(sp, in) > 0 {
				total += e.tax.SensitiveWeight
				matched[sp.text] = struct{}{}
				factors = append(factors, fmt.Sprintf("sensitive term %q (+%d)", sp.text, e.tax.SensitiveWeight))
			}
		}
		if w := e.tax.PriorityRisk[priority]; w > 0 {
			total += w
			factors = append(factors, fmt.Sprintf("priority %d (+%d)", priority, w))
		}
	}
	if domain := model.SenderDomain(sender); !e.directory.Known(domain) && e.tax.UnknownSenderWeight > 0 {
		total += e.tax.UnknownSenderWeight
		label := domain
		if label == "" {
			label = "unknown"
		}
		factors = append(factors, fmt.Sprintf("unfamiliar sender %s (+%d)", label, e.tax.UnknownSenderWeight))
	}
	return clamp(total, 0, 100), factors
}

// confidence grows linearly with distinct hits until saturation.
func (e *Engine) confidence(hits int) float64 {
	floor := e.tax.ConfidenceFloor
	ratio := math.Min(1, float64(hits)/float64(e.tax.ConfidenceSaturation))
	c := floor + (1-floor)*ratio
	// Round to 4 places so stored snapshots compare equal after a JSON round trip.
	return math.Round(c*10000) / 10000
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
