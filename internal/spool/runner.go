package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
)

// Runner defaults.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollTimeout  = 30 * time.Second
)

var (
	// ErrUnknownPoller is returned by Restart for names never added.
	ErrUnknownPoller = errors.New("unknown collector")

	// ErrNotStarted is returned by Restart before Start.
	ErrNotStarted = errors.New("runner not started")
)

// HealthReporter receives the outcome of each poll.
// *orchestrator.Orchestrator implements it.
type HealthReporter interface {
	Heartbeat(name string)
	ReportFailure(name string, err error)
}

// Runner polls each Poller on its own goroutine.
//
// A successful poll is a heartbeat; a failed, timed-out or panicking poll
// is reported as a failure. Restart implements health.Restarter: it
// cancels the poller's goroutine and starts a fresh one.
type Runner struct {
	health   HealthReporter
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pollers map[string]Poller
	workers map[string]*worker
	base    context.Context
	wg      sync.WaitGroup
}

type worker struct {
	cancel  context.CancelFunc
	done    chan struct{}
	release sync.Once
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPollInterval sets the delay between polls.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithPollTimeout bounds a single poll.
func WithPollTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner reporting to h, which may be nil.
func NewRunner(h HealthReporter, opts ...RunnerOption) *Runner {
	r := &Runner{
		health:   h,
		interval: DefaultPollInterval,
		timeout:  DefaultPollTimeout,
		logger:   slog.Default(),
		pollers:  make(map[string]Poller),
		workers:  make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers p. Pollers added after Start are started immediately.
func (r *Runner) Add(p Poller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollers[p.Name()] = p
	if r.base != nil {
		r.startLocked(p)
	}
}

// Names returns the registered poller names, sorted.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.pollers))
	for n := range r.pollers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start launches every poller. The goroutines stop when ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base != nil {
		return
	}
	r.base = ctx
	for _, name := range sortedKeys(r.pollers) {
		r.startLocked(r.pollers[name])
	}
	r.logger.Info("collectors started", "count", len(r.pollers), "interval", r.interval)
}

// Wait blocks until every poller goroutine has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Restart stops the named poller's goroutine and starts a new one.
//
// The old goroutine gets one poll timeout to exit. A poller that ignores
// its cancelled context is abandoned: Wait no longer waits for it and the
// replacement starts anyway.
func (r *Runner) Restart(ctx context.Context, name string) error {
	r.mu.Lock()
	p, ok := r.pollers[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("restart %s: %w", name, ErrUnknownPoller)
	}
	if r.base == nil {
		r.mu.Unlock()
		return fmt.Errorf("restart %s: %w", name, ErrNotStarted)
	}
	old := r.workers[name]
	delete(r.workers, name)
	r.mu.Unlock()

	if old != nil {
		old.cancel()
		grace := time.NewTimer(r.timeout)
		select {
		case <-old.done:
			grace.Stop()
		case <-grace.C:
			old.release.Do(r.wg.Done)
			r.logger.Warn("collector ignored cancellation, abandoning it", "collector", name, "grace", r.timeout)
		case <-ctx.Done():
			grace.Stop()
			return fmt.Errorf("restart %s: %w", name, ctx.Err())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.workers[name]; !running {
		r.startLocked(p)
	}
	r.logger.Info("collector restarted", "collector", name)
	return nil
}

// startLocked starts p's loop. Caller must hold r.mu.
func (r *Runner) startLocked(p Poller) {
	ctx, cancel := context.WithCancel(r.base)
	w := &worker{cancel: cancel, done: make(chan struct{})}
	r.workers[p.Name()] = w

	r.wg.Add(1)
	go func() {
		defer w.release.Do(r.wg.Done)
		defer close(w.done)
		defer cancel()
		r.loop(ctx, p)
	}()
}

func (r *Runner) loop(ctx context.Context, p Poller) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.PollOnce(ctx, p)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce runs one bounded poll of p and reports the outcome. Polls cut
// short by ctx are not reported.
func (r *Runner) PollOnce(ctx context.Context, p Poller) error {
	n, err := r.poll(ctx, p)
	if ctx.Err() != nil {
		return err
	}
	if r.health == nil {
		return err
	}
	if err != nil {
		r.logger.Warn("collector poll failed", "collector", p.Name(), "error", err)
		r.health.ReportFailure(p.Name(), err)
		return err
	}
	if n > 0 {
		r.logger.Debug("collector poll", "collector", p.Name(), "items", n)
	}
	r.health.Heartbeat(p.Name())
	return nil
}

func (r *Runner) poll(ctx context.Context, p Poller) (n int, err error) {
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	defer func() {
		if v := recover(); v != nil {
			err = orchestrator.NewCollectorError(orchestrator.CodeCollectorCrash, p.Name(), fmt.Errorf("panic: %v", v))
		}
	}()

	n, err = p.Poll(pctx)
	if err != nil && ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded) {
		err = orchestrator.NewCollectorError(orchestrator.CodeCollectorTimeout, p.Name(), err)
	}
	return n, err
}

func sortedKeys(m map[string]Poller) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
