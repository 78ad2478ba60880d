package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/policy"
	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
	"github.com/khanzadigithubid/AI-Employee-System/internal/spool"
)

// ScoreOptions holds flags for the score command.
type ScoreOptions struct {
	*RootOptions
	Sender  string
	Subject string
	Body    string
	File    string
}

// ScoreOutput is the result of scoring one message without storing it.
type ScoreOutput struct {
	Score    model.ScoreResult `json:"score"`
	Decision policy.Result     `json:"decision"`
	Reply    string            `json:"suggested_reply,omitempty"`
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a message and show the policy decision",
		Long: `Score a message against the taxonomy without storing anything.

The message comes from flags or from a message file (JSON or YAML, the
same format collectors read).

Examples:
  aiemployee score --sender client@acme.com --subject "Invoice overdue" --body "please pay"
  aiemployee score --file ./inbox/gmail/0001.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Sender, "sender", "", "sender address")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "message subject")
	cmd.Flags().StringVar(&opts.Body, "body", "", "message body (plain text or HTML)")
	cmd.Flags().StringVar(&opts.File, "file", "", "read the message from a JSON or YAML file")
	cmd.MarkFlagsMutuallyExclusive("file", "body")

	return cmd
}

func runScore(opts *ScoreOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	msg := model.Message{Sender: opts.Sender, Subject: opts.Subject, Body: opts.Body}
	if opts.File != "" {
		m, err := spool.ReadMessage(opts.File)
		if err != nil {
			return f.Fail(ExitCommandError, "failed to read message", err)
		}
		msg = m
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return f.Fail(ExitCommandError, "failed to load config", err)
	}
	tax, err := loadTaxonomy(cfg)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to load taxonomy", err)
	}
	engine, err := scoring.NewEngine(tax)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to build scorer", err)
	}

	score := engine.Score(msg.Sender, msg.Subject, msg.Body)
	out := ScoreOutput{Score: score, Decision: cfg.Policy.Decide(score)}
	if score.NeedsReply {
		out.Reply = engine.SuggestReply(msg, score)
	}

	return f.Render(out, func(w io.Writer) {
		fmt.Fprintln(w, score.Summary())
		if len(score.MatchedKeywords) > 0 {
			fmt.Fprintf(w, "Keywords: %s\n", strings.Join(score.MatchedKeywords, ", "))
		}
		if len(score.RiskFactors) > 0 {
			fmt.Fprintf(w, "Risk factors: %s\n", strings.Join(score.RiskFactors, ", "))
		}
		for _, a := range score.ActionItems {
			fmt.Fprintf(w, "- %s\n", a)
		}
		fmt.Fprintf(w, "Decision: %s\n", out.Decision.Decision)
		for _, r := range out.Decision.Reasons {
			fmt.Fprintf(w, "  %s\n", r)
		}
		if out.Reply != "" {
			fmt.Fprintf(w, "\nSuggested reply:\n%s\n", out.Reply)
		}
	})
}
