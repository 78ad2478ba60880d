package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/khanzadigithubid/AI-Employee-System/internal/health"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// HealthOptions holds flags for the health command.
type HealthOptions struct {
	*RootOptions
	Strict bool
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HealthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the last checkpointed collector health",
		Long: `Show the collector health records last checkpointed by a running
pipeline, with an overall status.

The database is pinged first; an unreachable database exits 1.
With --strict the command exits 1 unless every collector is healthy.

Examples:
  aiemployee health
  aiemployee health --strict --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 unless overall status is healthy")

	return cmd
}

func runHealth(opts *HealthOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	e, err := opts.openEnv(cmd)
	if err != nil {
		return f.Fail(ExitCommandError, "", err)
	}
	defer e.Close()

	ctx := context.Background()
	if err := e.store.Ping(ctx); err != nil {
		return f.Fail(ExitFailure, "database unreachable", err)
	}
	records, err := e.store.LoadHealthRecords(ctx)
	if err != nil {
		return f.Fail(ExitFailure, "failed to load health records", err)
	}
	report := health.Summarize(records)

	if opts.Strict && report.Total > 0 && report.Overall != model.HealthHealthy {
		return f.Fail(ExitFailure, fmt.Sprintf("overall health is %s", report.Overall), nil)
	}
	return f.Render(report, func(w io.Writer) {
		if report.Total == 0 {
			fmt.Fprintln(w, "No collectors recorded.")
			return
		}
		fmt.Fprintf(w, "Overall: %s (%d collectors)\n", report.Overall, report.Total)
		for _, r := range report.Records {
			line := fmt.Sprintf("  %-10s %-9s failures=%d restarts=%d", r.Name, r.Status, r.ConsecutiveFailures, r.RestartCount)
			if !r.LastHeartbeat.IsZero() {
				line += " last_heartbeat=" + humanize.Time(r.LastHeartbeat)
			}
			if r.LastError != "" {
				line += " error=" + r.LastError
			}
			fmt.Fprintln(w, line)
		}
		if len(report.Disabled) > 0 {
			fmt.Fprintf(w, "Disabled: %s\n", strings.Join(report.Disabled, ", "))
		}
	})
}
