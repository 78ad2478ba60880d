package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
)

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-score stored messages and verify determinism",
		Long: `Re-score every stored message in arrival order with the current taxonomy
and compare each result with the score recorded on its action item.

Exits 1 if any score drifted or a message has no action item. Run it after
editing the taxonomy to see which stored decisions it would change.

Example:
  aiemployee replay --db ./aiemployee.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}
	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	e, err := opts.openEnv(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, "", err)
	}
	defer e.Close()

	report, err := orchestrator.Replay(context.Background(), e.store, e.tax)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to replay", err)
	}

	if err := f.Render(report, func(w io.Writer) {
		printReplayText(w, report)
	}); err != nil {
		return err
	}
	if !report.Clean() {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func printReplayText(w io.Writer, r orchestrator.ReplayReport) {
	fmt.Fprintf(w, "Replayed %d message(s): %d matched\n", r.Messages, r.Matched)
	for _, id := range r.Missing {
		fmt.Fprintf(w, "  missing action item: %s\n", id)
	}
	for _, d := range r.Drift {
		fmt.Fprintf(w, "  drift %s (%s): %s\n", d.MessageID, d.ActionItemID, strings.Join(d.Fields, ", "))
	}
	if r.Clean() {
		fmt.Fprintln(w, "✓ All scores reproduced")
	} else {
		fmt.Fprintln(w, "✗ Determinism verification failed")
	}
}
