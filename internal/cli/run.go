package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
	"github.com/khanzadigithubid/AI-Employee-System/internal/spool"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Once bool
}

// RunSummary is printed when run exits.
type RunSummary struct {
	Collectors []string           `json:"collectors"`
	Stats      orchestrator.Stats `json:"stats"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the collectors, the orchestrator and the health monitor",
		Long: `Start the triage pipeline.

Each enabled collector polls its inbox under the spool directory and hands
messages to the orchestrator. Items that need review are exported to
pending/; moving a review file to approved/ or rejected/ applies the
decision. The health monitor restarts collectors that go silent.

With --once every collector and the decision watcher are polled a single
time and the queue is drained before exiting.

Example:
  aiemployee run --config ./aiemployee.yaml
  aiemployee run --db /tmp/triage.db --once`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "poll every collector once, drain the queue and exit")

	return cmd
}

// runnerRef lets the monitor restart collectors on a runner that is built
// after it.
type runnerRef struct {
	runner *spool.Runner
}

func (r *runnerRef) Restart(ctx context.Context, name string) error {
	if r.runner == nil {
		return spool.ErrNotStarted
	}
	return r.runner.Restart(ctx, name)
}

func runPipeline(opts *RunOptions, cmd *cobra.Command) error {
	e, err := opts.openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	logger := e.logger

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	ref := &runnerRef{}
	p, err := e.pipeline(ctx, ref)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start pipeline", err)
	}

	collectors := e.cfg.EnabledCollectors()
	if err := p.layout.Ensure(collectors...); err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare spool", err)
	}

	runner := spool.NewRunner(p.orch,
		spool.WithPollInterval(e.cfg.Spool.PollInterval.Std()),
		spool.WithPollTimeout(e.cfg.Spool.PollTimeout.Std()),
		spool.WithRunnerLogger(logger),
	)
	ref.runner = runner

	pollers := make([]spool.Poller, 0, len(collectors)+1)
	for _, name := range collectors {
		pollers = append(pollers, spool.NewCollector(name, p.layout.Inbox(name), p.orch, logger))
	}
	watcher := spool.NewDecisionWatcher(p.layout, p.manager, e.store, p.outbox, logger)
	for _, pl := range pollers {
		p.monitor.Register(pl.Name())
		runner.Add(pl)
	}
	p.monitor.Register(watcher.Name())
	runner.Add(watcher)

	names := append(slices.Clone(collectors), watcher.Name())
	if opts.Once {
		return runOnce(ctx, opts, cmd, p, runner, pollers, watcher, names)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("pipeline starting", "db", e.cfg.Database.Path, "spool", e.cfg.Spool.Dir, "collectors", names)
	if opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Pipeline started. Watching %s\n", e.cfg.Spool.Dir)
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	}

	// A failing orchestrator cancels gctx and with it the collectors.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.monitor.Run(gctx)
	})
	g.Go(func() error {
		if err := p.orch.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	runner.Start(gctx)

	<-gctx.Done()
	runner.Wait()
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "orchestrator error", err)
	}

	logger.Info("pipeline stopped gracefully")
	return opts.formatter(cmd).Render(RunSummary{Collectors: names, Stats: p.orch.Stats()}, func(w io.Writer) {
		printStats(w, p.orch.Stats())
	})
}

// runOnce polls the collectors while the orchestrator drains the queue,
// then lets the decision watcher act on what was produced.
func runOnce(ctx context.Context, opts *RunOptions, cmd *cobra.Command, p *pipeline, runner *spool.Runner,
	collectors []spool.Poller, watcher *spool.DecisionWatcher, names []string) error {
	done := make(chan error, 1)
	go func() {
		done <- p.orch.Run(ctx)
	}()

	var pollErrs []error
	for _, c := range collectors {
		if err := runner.PollOnce(ctx, c); err != nil {
			pollErrs = append(pollErrs, err)
		}
	}
	p.orch.Stop()
	if err := <-done; err != nil {
		return WrapExitError(ExitFailure, "orchestrator error", err)
	}
	if err := runner.PollOnce(ctx, watcher); err != nil {
		pollErrs = append(pollErrs, err)
	}
	if err := p.monitor.Flush(ctx); err != nil {
		pollErrs = append(pollErrs, err)
	}

	stats := p.orch.Stats()
	f := opts.formatter(cmd)
	if len(pollErrs) > 0 {
		return f.Fail(ExitFailure, "poll failed", errors.Join(pollErrs...))
	}
	return f.Render(RunSummary{Collectors: names, Stats: stats}, func(w io.Writer) {
		printStats(w, stats)
	})
}

func printStats(w io.Writer, s orchestrator.Stats) {
	fmt.Fprintf(w, "Ingested: %d (duplicates %d)\n", s.Ingested, s.Duplicates)
	fmt.Fprintf(w, "Auto-sent: %d  Auto-approved: %d  Planned: %d\n", s.AutoSent, s.AutoApproved, s.Planned)
	if s.Failures > 0 {
		fmt.Fprintf(w, "Failures: %d\n", s.Failures)
	}
}
