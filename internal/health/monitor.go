// Package health supervises the collectors feeding the pipeline.
//
// Each collector heartbeats on every successful poll and reports failures
// on every failed one. Check classifies collectors by heartbeat age and
// failure count, restarts failed collectors with exponential backoff, and
// disables collectors that keep failing inside a rolling window.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/khanzadigithubid/AI-Employee-System/internal/clock"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// Notification events emitted by the monitor.
const (
	EventRestart  = "restart"
	EventDisabled = "collector-disabled"
)

// ErrUnknownCollector is returned for names that were never registered.
var ErrUnknownCollector = errors.New("unknown collector")

// Restarter restarts a collector. Implementations perform I/O and are
// never called with the monitor lock held.
type Restarter interface {
	Restart(ctx context.Context, name string) error
}

// Notifier receives restart outcomes and disable alerts.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Checkpointer persists health records.
type Checkpointer interface {
	SaveHealthRecord(ctx context.Context, r model.HealthRecord) error
	LoadHealthRecords(ctx context.Context) ([]model.HealthRecord, error)
}

// Monitor tracks one HealthRecord per collector.
//
// Thread-safety: all methods are safe for concurrent use. Every
// read-modify-write of a record happens under one mutex.
type Monitor struct {
	mu      sync.Mutex
	records map[string]*model.HealthRecord
	dirty   map[string]bool

	cfg       Config
	clock     clock.Clock
	restarter Restarter
	notifier  Notifier
	store     Checkpointer
	logger    *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the wall clock.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock.Or(c)
	}
}

// WithRestarter sets who restarts failed collectors. Without one, failed
// collectors are only reported.
func WithRestarter(r Restarter) Option {
	return func(m *Monitor) {
		m.restarter = r
	}
}

// WithNotifier sets where restart outcomes and alerts go.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) {
		m.notifier = n
	}
}

// WithCheckpointer sets where records are persisted.
func WithCheckpointer(c Checkpointer) Option {
	return func(m *Monitor) {
		m.store = c
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a Monitor with cfg (zero fields take defaults).
func NewMonitor(cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		records: make(map[string]*model.HealthRecord),
		dirty:   make(map[string]bool),
		cfg:     cfg.withDefaults(),
		clock:   clock.Real{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective thresholds.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Load restores records from the checkpointer. Records already in memory
// are replaced.
func (m *Monitor) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	recs, err := m.store.LoadHealthRecords(ctx)
	if err != nil {
		return fmt.Errorf("load health records: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		r := r.Clone()
		m.records[r.Name] = &r
	}
	return nil
}

// Register adds a collector as healthy with a fresh heartbeat. Registering
// an existing collector is a no-op.
func (m *Monitor) Register(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookup(name)
}

// lookup returns the record for name, registering it if needed.
// Caller must hold m.mu.
func (m *Monitor) lookup(name string) *model.HealthRecord {
	if r, ok := m.records[name]; ok {
		return r
	}
	now := m.clock.Now()
	r := &model.HealthRecord{
		Name:          name,
		LastHeartbeat: now,
		Status:        model.HealthHealthy,
		RestartTimes:  []time.Time{},
		UpdatedAt:     now,
	}
	m.records[name] = r
	m.dirty[name] = true
	m.logger.Debug("collector registered", "collector", name)
	return r
}

// Heartbeat records a successful poll. It clears consecutive failures and
// re-enables a disabled collector.
func (m *Monitor) Heartbeat(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.lookup(name)
	now := m.clock.Now()
	if r.Status != model.HealthHealthy {
		m.logger.Info("collector recovered", "collector", name, "from", r.Status)
	}
	r.LastHeartbeat = now
	r.ConsecutiveFailures = 0
	r.Status = model.HealthHealthy
	r.UpdatedAt = now
	m.dirty[name] = true
}

// ReportFailure records a failed poll.
func (m *Monitor) ReportFailure(name string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.lookup(name)
	r.ConsecutiveFailures++
	r.ErrorCount++
	if cause != nil {
		r.LastError = cause.Error()
	}
	r.UpdatedAt = m.clock.Now()
	if r.Status != model.HealthDisabled {
		r.Status = worse(r.Status, m.failureStatus(r))
	}
	m.dirty[name] = true

	m.logger.Warn("collector failure",
		"collector", name,
		"consecutive_failures", r.ConsecutiveFailures,
		"status", r.Status,
		"error", r.LastError,
	)
}

// Enable clears a disabled collector's restart history and gives it a
// fresh heartbeat.
func (m *Monitor) Enable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[name]
	if !ok {
		return fmt.Errorf("enable %s: %w", name, ErrUnknownCollector)
	}
	now := m.clock.Now()
	r.Status = model.HealthHealthy
	r.ConsecutiveFailures = 0
	r.RestartTimes = []time.Time{}
	r.NextRestartAt = time.Time{}
	r.LastHeartbeat = now
	r.UpdatedAt = now
	m.dirty[name] = true
	m.logger.Info("collector enabled", "collector", name)
	return nil
}

// Record returns a copy of one record.
func (m *Monitor) Record(name string) (model.HealthRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[name]
	if !ok {
		return model.HealthRecord{}, false
	}
	return r.Clone(), true
}

// Records returns copies of all records ordered by name.
func (m *Monitor) Records() []model.HealthRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.HealthRecord, 0, len(m.records))
	for _, name := range m.names() {
		out = append(out, m.records[name].Clone())
	}
	return out
}

// Report summarizes all records.
func (m *Monitor) Report() model.HealthReport {
	return Summarize(m.Records())
}

// Summarize builds a report from records. Overall is the worst status,
// with disabled counted as failed.
func Summarize(records []model.HealthRecord) model.HealthReport {
	rep := model.HealthReport{
		Total: len(records),
		Counts: map[string]int{
			string(model.HealthHealthy):  0,
			string(model.HealthDegraded): 0,
			string(model.HealthFailed):   0,
			string(model.HealthDisabled): 0,
		},
		Records:  records,
		Overall:  model.HealthHealthy,
		Disabled: []string{},
	}
	for _, r := range records {
		rep.Counts[string(r.Status)]++
		status := r.Status
		if status == model.HealthDisabled {
			rep.Disabled = append(rep.Disabled, r.Name)
			status = model.HealthFailed
		}
		rep.Overall = worse(rep.Overall, status)
	}
	return rep
}

// restart is a restart slot claimed under the lock, run after it is released.
type restart struct {
	name    string
	attempt int
}

// Check classifies every collector, restarts failed ones whose backoff
// has elapsed, disables those over the restart ceiling, and checkpoints
// changed records.
func (m *Monitor) Check(ctx context.Context) error {
	restarts, alerts := m.evaluate()

	for _, rs := range restarts {
		m.runRestart(ctx, rs)
	}
	for _, a := range alerts {
		m.notify(ctx, a)
	}
	return m.Flush(ctx)
}

// evaluate applies status rules and claims restart slots under the lock.
func (m *Monitor) evaluate() ([]restart, []model.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var (
		restarts []restart
		alerts   []model.Notification
	)
	for _, name := range m.names() {
		r := m.records[name]
		if r.Status == model.HealthDisabled {
			continue
		}

		status := worse(m.staleStatus(r, now), m.failureStatus(r))
		if status != r.Status {
			m.logger.Info("collector status changed",
				"collector", name,
				"from", r.Status,
				"to", status,
				"heartbeat_age", now.Sub(r.LastHeartbeat).String(),
			)
			r.Status = status
			r.UpdatedAt = now
			m.dirty[name] = true
		}
		if status != model.HealthFailed || m.restarter == nil {
			continue
		}
		if now.Before(r.NextRestartAt) {
			continue
		}

		r.RestartTimes = pruneBefore(r.RestartTimes, now.Add(-m.cfg.RestartWindow))
		if len(r.RestartTimes) >= m.cfg.MaxRestarts {
			r.Status = model.HealthDisabled
			r.UpdatedAt = now
			m.dirty[name] = true
			m.logger.Error("collector disabled",
				"collector", name,
				"restarts", len(r.RestartTimes),
				"window", m.cfg.RestartWindow.String(),
			)
			alerts = append(alerts, model.Notification{
				Timestamp: now,
				Component: name,
				Event:     EventDisabled,
				Result:    model.ResultFailed,
				Detail: fmt.Sprintf("%d restarts within %s; automatic restart stopped until re-enabled",
					len(r.RestartTimes), m.cfg.RestartWindow),
			})
			continue
		}

		// Claim the slot before releasing the lock so an overlapping Check
		// sees NextRestartAt in the future.
		r.RestartTimes = append(r.RestartTimes, now)
		r.RestartCount++
		r.NextRestartAt = now.Add(m.cfg.Backoff(len(r.RestartTimes)))
		r.UpdatedAt = now
		m.dirty[name] = true
		restarts = append(restarts, restart{name: name, attempt: len(r.RestartTimes)})
	}
	return restarts, alerts
}

func (m *Monitor) runRestart(ctx context.Context, rs restart) {
	m.logger.Warn("restarting collector", "collector", rs.name, "attempt", rs.attempt)
	err := m.restarter.Restart(ctx, rs.name)

	n := model.Notification{
		Timestamp: m.clock.Now(),
		Component: rs.name,
		Event:     EventRestart,
		Result:    model.ResultOK,
		Detail:    fmt.Sprintf("attempt %d", rs.attempt),
	}
	if err != nil {
		m.mu.Lock()
		if r, ok := m.records[rs.name]; ok {
			r.ErrorCount++
			r.LastError = err.Error()
			r.UpdatedAt = n.Timestamp
			m.dirty[rs.name] = true
		}
		m.mu.Unlock()

		m.logger.Error("collector restart failed", "collector", rs.name, "error", err)
		n.Result = model.ResultFailed
		n.Detail = fmt.Sprintf("attempt %d: %v", rs.attempt, err)
	}
	m.notify(ctx, n)
}

func (m *Monitor) notify(ctx context.Context, n model.Notification) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Error("health notification failed", "event", n.Event, "collector", n.Component, "error", err)
	}
}

// Flush checkpoints records changed since the last flush.
func (m *Monitor) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	pending := make([]model.HealthRecord, 0, len(m.dirty))
	for name := range m.dirty {
		if r, ok := m.records[name]; ok {
			pending = append(pending, r.Clone())
		}
	}
	m.dirty = make(map[string]bool)
	m.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].Name < pending[j].Name })
	var errs []error
	for _, r := range pending {
		if err := m.store.SaveHealthRecord(ctx, r); err != nil {
			errs = append(errs, err)
			m.mu.Lock()
			m.dirty[r.Name] = true
			m.mu.Unlock()
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("checkpoint health records: %w", errors.Join(errs...))
	}
	return nil
}

// Run calls Check every CheckInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final checkpoint on a context that is still live.
			if err := m.Flush(context.WithoutCancel(ctx)); err != nil {
				m.logger.Error("final health checkpoint failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if err := m.Check(ctx); err != nil {
				m.logger.Error("health check failed", "error", err)
			}
		}
	}
}

// names returns record names sorted. Caller must hold m.mu.
func (m *Monitor) names() []string {
	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Monitor) staleStatus(r *model.HealthRecord, now time.Time) model.HealthStatus {
	age := now.Sub(r.LastHeartbeat)
	switch {
	case age >= m.cfg.FailedThreshold:
		return model.HealthFailed
	case age >= m.cfg.HealthyThreshold:
		return model.HealthDegraded
	}
	return model.HealthHealthy
}

func (m *Monitor) failureStatus(r *model.HealthRecord) model.HealthStatus {
	switch {
	case r.ConsecutiveFailures >= m.cfg.FailureThreshold:
		return model.HealthFailed
	case r.ConsecutiveFailures >= 1:
		return model.HealthDegraded
	}
	return model.HealthHealthy
}

var severity = map[model.HealthStatus]int{
	model.HealthHealthy:  0,
	model.HealthDegraded: 1,
	model.HealthFailed:   2,
	model.HealthDisabled: 3,
}

func worse(a, b model.HealthStatus) model.HealthStatus {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
