package cli

import (
	"context"
	"fmt"

	"github.com/khanzadigithubid/AI-Employee-System/internal/clock"
	"github.com/khanzadigithubid/AI-Employee-System/internal/dedup"
	"github.com/khanzadigithubid/AI-Employee-System/internal/health"
	"github.com/khanzadigithubid/AI-Employee-System/internal/ids"
	"github.com/khanzadigithubid/AI-Employee-System/internal/lifecycle"
	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
	"github.com/khanzadigithubid/AI-Employee-System/internal/spool"
)

// ActorCLI is recorded for transitions issued from the command line.
const ActorCLI = "cli"

// pipeline is the wired triage stack shared by run and the one-shot
// commands.
type pipeline struct {
	domains  *scoring.DomainSet
	scorer   *scoring.Engine
	manager  *lifecycle.Manager
	notifier *orchestrator.Notifier
	monitor  *health.Monitor
	orch     *orchestrator.Orchestrator
	layout   spool.Layout
	outbox   *spool.Outbox
}

// manager builds a lifecycle manager over the env's store.
func (e *env) manager() *lifecycle.Manager {
	return lifecycle.New(e.store,
		lifecycle.WithPolicy(e.cfg.Policy),
		lifecycle.WithClock(clock.Real{}),
		lifecycle.WithIDGenerator(ids.UUIDv7{}),
		lifecycle.WithLogger(e.logger),
	)
}

// pipeline wires scorer, lifecycle, dedup, monitor and orchestrator and
// restores their state from the store. restarter may be nil for commands
// that never supervise collectors.
func (e *env) pipeline(ctx context.Context, restarter health.Restarter) (*pipeline, error) {
	p := &pipeline{
		domains: scoring.NewDomainSet(),
		layout:  spool.Layout{Root: e.cfg.Spool.Dir},
		manager: e.manager(),
	}
	p.outbox = spool.NewOutbox(p.layout.Outbox(), clock.Real{})

	scorer, err := scoring.NewEngine(e.tax, scoring.WithSenderDirectory(p.domains))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build scorer", err)
	}
	p.scorer = scorer

	p.notifier = orchestrator.NewNotifier(
		orchestrator.FanOut{orchestrator.NewStoreSink(e.store), orchestrator.NewLogSink(e.logger)},
		clock.Real{},
		e.logger,
	)

	monitorOpts := []health.Option{
		health.WithNotifier(p.notifier),
		health.WithCheckpointer(e.store),
		health.WithLogger(e.logger),
	}
	if restarter != nil {
		monitorOpts = append(monitorOpts, health.WithRestarter(restarter))
	}
	p.monitor = health.NewMonitor(e.cfg.Health.Monitor(), monitorOpts...)

	cache := dedup.New(e.store)
	p.orch = orchestrator.New(scorer, p.manager, cache,
		orchestrator.WithMonitor(p.monitor),
		orchestrator.WithDomains(p.domains),
		orchestrator.WithSender(p.outbox),
		orchestrator.WithNotifier(p.notifier),
		orchestrator.WithQueueSize(e.cfg.Orchestrator.QueueSize),
		orchestrator.WithRetry(e.cfg.Orchestrator.Retry()),
		orchestrator.WithLogger(e.logger),
	)
	if err := p.orch.Load(ctx, e.store); err != nil {
		return nil, fmt.Errorf("restore state: %w", err)
	}
	return p, nil
}
