package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
	"github.com/khanzadigithubid/AI-Employee-System/internal/spool"
)

// IngestResult reports what happened to one message file.
type IngestResult struct {
	File         string `json:"file"`
	MessageID    string `json:"message_id"`
	ActionItemID string `json:"action_item_id,omitempty"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	State        string `json:"state,omitempty"`
	Decision     string `json:"decision,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	Category     string `json:"category,omitempty"`
	Risk         int    `json:"risk,omitempty"`
	AutoSent     bool   `json:"auto_sent,omitempty"`
	ProviderRef  string `json:"provider_ref,omitempty"`
	FellBack     bool   `json:"fell_back,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <message-file>...",
		Short: "Process message files through the pipeline",
		Long: `Process one or more message files (JSON or YAML) synchronously.

Each message is deduplicated, scored, decided by the policy and stored as
an action item. Auto-approved replies are written to the spool outbox.

Example:
  aiemployee ingest ./msg-0001.yaml ./msg-0002.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runIngest(opts *RootOptions, files []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	e, err := opts.openEnv(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, "", err)
	}
	defer e.Close()

	ctx := context.Background()
	p, err := e.pipeline(ctx, nil)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to start pipeline", err)
	}

	results := make([]IngestResult, 0, len(files))
	for _, path := range files {
		msg, err := spool.ReadMessage(path)
		if err != nil {
			return f.Fail(ExitCommandError, "failed to read message", err)
		}
		out, err := p.orch.Process(ctx, msg)
		if err != nil {
			return f.Fail(ExitFailure, fmt.Sprintf("failed to ingest %s", path), err)
		}
		results = append(results, ingestResult(path, out))
	}

	return f.Render(results, func(w io.Writer) {
		for _, r := range results {
			if r.Duplicate {
				fmt.Fprintf(w, "%s: duplicate, skipped\n", r.MessageID)
				continue
			}
			fmt.Fprintf(w, "%s -> %s [%s] priority=%d category=%s risk=%d\n",
				r.MessageID, r.ActionItemID, r.State, r.Priority, r.Category, r.Risk)
			if r.AutoSent {
				fmt.Fprintf(w, "  reply sent (%s)\n", r.ProviderRef)
			}
			if r.FellBack {
				fmt.Fprintln(w, "  auto-send failed, held for review")
			}
		}
	})
}

func ingestResult(path string, out orchestrator.Outcome) IngestResult {
	r := IngestResult{File: path, MessageID: out.MessageID, Duplicate: out.Duplicate}
	if out.Duplicate {
		return r
	}
	r.ActionItemID = out.ActionItemID
	r.State = string(out.State)
	r.Decision = string(out.Decision.Decision)
	r.Priority = out.Score.Priority
	r.Category = string(out.Score.Category)
	r.Risk = out.Score.Risk
	r.AutoSent = out.AutoSent
	r.ProviderRef = out.ProviderRef
	r.FellBack = out.FellBack
	return r
}
