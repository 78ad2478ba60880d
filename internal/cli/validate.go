package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
	"github.com/khanzadigithubid/AI-Employee-System/internal/taxonomy"
)

// Error codes for validate.
const (
	ErrCodeTaxonomyInvalid = "TAXONOMY_INVALID"
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
)

// ValidateResult summarizes a valid taxonomy.
type ValidateResult struct {
	Source       string   `json:"source"`
	Keywords     int      `json:"keywords"`
	Categories   []string `json:"categories"`
	KnownDomains int      `json:"known_domains"`
}

// ValidateErrorDetails locates a taxonomy error.
type ValidateErrorDetails struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Field  string `json:"field,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [taxonomy.cue]",
		Short: "Validate the config and a keyword taxonomy",
		Long: `Validate the configuration and a CUE keyword taxonomy without starting
anything. With no argument the configured taxonomy (or the embedded
default) is checked.

Examples:
  aiemployee validate ./taxonomy.cue
  aiemployee validate --config ./aiemployee.yaml --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return outputValidateError(f, ErrCodeConfigInvalid, err, nil)
	}
	if path == "" {
		path = cfg.Taxonomy.Path
	}

	source := "embedded default"
	var tax scoring.Taxonomy
	if path == "" {
		tax, err = taxonomy.Default()
	} else {
		source = path
		f.VerboseLog("Loading taxonomy from %s", path)
		tax, err = taxonomy.Load(path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.Fail(ExitCommandError, "taxonomy not found", err)
		}
		return outputValidateError(f, ErrCodeTaxonomyInvalid, err, compileDetails(err))
	}

	result := ValidateResult{
		Source:       source,
		Keywords:     len(taxonomy.Keywords(tax)),
		KnownDomains: len(tax.KnownDomains) + len(cfg.Taxonomy.KnownDomains),
	}
	for c := range tax.Categories {
		result.Categories = append(result.Categories, string(c))
	}
	sort.Strings(result.Categories)

	return f.Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Taxonomy valid (%s)\n", result.Source)
		fmt.Fprintf(w, "  %d keywords, %d categories, %d known domains\n",
			result.Keywords, len(result.Categories), result.KnownDomains)
	})
}

func compileDetails(err error) *ValidateErrorDetails {
	var cerr *taxonomy.CompileError
	if !errors.As(err, &cerr) {
		return nil
	}
	d := &ValidateErrorDetails{Field: cerr.Field}
	if cerr.Pos.IsValid() {
		d.File = cerr.Pos.Filename()
		d.Line = cerr.Pos.Line()
		d.Column = cerr.Pos.Column()
	}
	return d
}

// outputValidateError reports err with code. JSON output carries the
// details; text output prints the located message.
func outputValidateError(f *OutputFormatter, code string, err error, details *ValidateErrorDetails) error {
	if f.Format == "json" {
		var d any
		if details != nil {
			d = details
		}
		_ = f.Error(code, err.Error(), d)
	} else {
		fmt.Fprintln(f.Writer, "✗ Validation failed")
		fmt.Fprintf(f.Writer, "  %s: %v\n", code, err)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %v", code, err))
}
