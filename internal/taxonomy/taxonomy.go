// Package taxonomy loads keyword taxonomies written in CUE and compiles them
// into scoring.Taxonomy values.
//
// A taxonomy file declares a top-level "taxonomy" struct which is unified
// with the embedded #Taxonomy schema, so unknown fields and out-of-range
// weights are rejected with a source position.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed default.cue
var defaultSource []byte

// CompileError describes an invalid taxonomy document.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// document mirrors #Taxonomy for decoding.
type document struct {
	SubjectWeight int `json:"subject_weight"`
	Confidence    struct {
		Floor      float64 `json:"floor"`
		Saturation int     `json:"saturation"`
	} `json:"confidence"`
	PriorityTiers []struct {
		Priority int      `json:"priority"`
		Keywords []string `json:"keywords"`
	} `json:"priority_tiers"`
	Categories map[string][]string `json:"categories"`
	Risk       struct {
		Keywords        map[string]int `json:"keywords"`
		SensitiveTerms  []string       `json:"sensitive_terms"`
		SensitiveWeight int            `json:"sensitive_weight"`
		PriorityTier    map[string]int `json:"priority_tier"`
		UnknownSender   int            `json:"unknown_sender"`
	} `json:"risk"`
	KnownDomains []string `json:"known_domains"`
	Actions      struct {
		Patterns          []string `json:"patterns"`
		MaxItems          int      `json:"max_items"`
		RequestIndicators []string `json:"request_indicators"`
		SafePatterns      []string `json:"safe_patterns"`
	} `json:"actions"`
	ReplyTemplates map[string]string `json:"reply_templates"`
}

// Default returns the built-in taxonomy.
func Default() (scoring.Taxonomy, error) {
	return Parse("default.cue", defaultSource)
}

// MustDefault is like Default but panics on error.
// The embedded taxonomy is covered by tests, so this only fails on a bad build.
func MustDefault() scoring.Taxonomy {
	tax, err := Default()
	if err != nil {
		panic(err)
	}
	return tax
}

// Load reads and compiles the taxonomy file at path.
func Load(path string) (scoring.Taxonomy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return scoring.Taxonomy{}, fmt.Errorf("read taxonomy: %w", err)
	}
	return Parse(path, src)
}

// Parse compiles CUE source into a Taxonomy. filename is used in error
// positions only.
func Parse(filename string, src []byte) (scoring.Taxonomy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Taxonomy"))
	if err := schema.Err(); err != nil {
		return scoring.Taxonomy{}, fmt.Errorf("compile schema: %w", err)
	}

	file := ctx.CompileBytes(src, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return scoring.Taxonomy{}, formatCUEError(err)
	}
	v := file.LookupPath(cue.ParsePath("taxonomy"))
	if !v.Exists() {
		return scoring.Taxonomy{}, &CompileError{
			Field:   "taxonomy",
			Message: "taxonomy is required",
			Pos:     file.Pos(),
		}
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return scoring.Taxonomy{}, formatCUEError(err)
	}

	var doc document
	if err := unified.Decode(&doc); err != nil {
		return scoring.Taxonomy{}, formatCUEError(err)
	}
	return compile(doc, v.Pos())
}

func compile(doc document, pos token.Pos) (scoring.Taxonomy, error) {
	tax := scoring.Taxonomy{
		PriorityTiers:        make(map[int][]string),
		Categories:           make(map[model.Category][]string),
		RiskKeywords:         doc.Risk.Keywords,
		SensitiveTerms:       doc.Risk.SensitiveTerms,
		SensitiveWeight:      doc.Risk.SensitiveWeight,
		PriorityRisk:         make(map[int]int),
		UnknownSenderWeight:  doc.Risk.UnknownSender,
		KnownDomains:         doc.KnownDomains,
		SubjectWeight:        doc.SubjectWeight,
		ConfidenceFloor:      doc.Confidence.Floor,
		ConfidenceSaturation: doc.Confidence.Saturation,
		ActionPatterns:       doc.Actions.Patterns,
		MaxActionItems:       doc.Actions.MaxItems,
		RequestIndicators:    doc.Actions.RequestIndicators,
		SafePatterns:         doc.Actions.SafePatterns,
		ReplyTemplates:       doc.ReplyTemplates,
	}

	for _, tier := range doc.PriorityTiers {
		if _, dup := tax.PriorityTiers[tier.Priority]; dup {
			return scoring.Taxonomy{}, &CompileError{
				Field:   "priority_tiers",
				Message: fmt.Sprintf("priority %d declared more than once", tier.Priority),
				Pos:     pos,
			}
		}
		tax.PriorityTiers[tier.Priority] = tier.Keywords
	}
	for name, kws := range doc.Categories {
		tax.Categories[model.Category(name)] = kws
	}
	for label, w := range doc.Risk.PriorityTier {
		p, err := strconv.Atoi(label)
		if err != nil {
			return scoring.Taxonomy{}, &CompileError{Field: "risk.priority_tier", Message: err.Error(), Pos: pos}
		}
		tax.PriorityRisk[p] = w
	}
	if tax.RiskKeywords == nil {
		tax.RiskKeywords = map[string]int{}
	}

	if err := tax.Validate(); err != nil {
		return scoring.Taxonomy{}, &CompileError{Field: "taxonomy", Message: err.Error(), Pos: pos}
	}
	return tax, nil
}

// Keywords returns every distinct keyword in tax, sorted.
func Keywords(tax scoring.Taxonomy) []string {
	set := make(map[string]struct{})
	for _, kws := range tax.PriorityTiers {
		for _, kw := range kws {
			set[kw] = struct{}{}
		}
	}
	for _, kws := range tax.Categories {
		for _, kw := range kws {
			set[kw] = struct{}{}
		}
	}
	for kw := range tax.RiskKeywords {
		set[kw] = struct{}{}
	}
	for _, kw := range tax.SensitiveTerms {
		set[kw] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for kw := range set {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
