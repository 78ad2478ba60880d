package health

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
	"github.com/khanzadigithubid/AI-Employee-System/internal/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingRestarter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingRestarter) Restart(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return r.err
}

func (r *recordingRestarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []string{}
	for _, s := range n.sent {
		out = append(out, s.Event+"/"+s.Result)
	}
	return out
}

type fixture struct {
	clock     *testutil.FakeClock
	restarter *recordingRestarter
	notifier  *recordingNotifier
	monitor   *Monitor
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:     testutil.NewFakeClock(epoch),
		restarter: &recordingRestarter{},
		notifier:  &recordingNotifier{},
	}
	opts = append([]Option{
		WithClock(f.clock),
		WithRestarter(f.restarter),
		WithNotifier(f.notifier),
	}, opts...)
	f.monitor = NewMonitor(cfg, opts...)
	return f
}

func (f *fixture) status(t *testing.T, name string) model.HealthStatus {
	t.Helper()
	r, ok := f.monitor.Record(name)
	require.True(t, ok)
	return r.Status
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60*time.Second, cfg.HealthyThreshold)
	assert.Equal(t, 180*time.Second, cfg.FailedThreshold)
	assert.Equal(t, 3, cfg.FailureThreshold)
	require.NoError(t, cfg.Validate())

	bad := Config{HealthyThreshold: time.Minute, FailedThreshold: 30 * time.Second}
	assert.Error(t, bad.Validate())
}

func TestConfig_Backoff(t *testing.T) {
	cfg := Config{BaseBackoff: 10 * time.Second, MaxBackoff: time.Minute}
	assert.Equal(t, 10*time.Second, cfg.Backoff(1))
	assert.Equal(t, 20*time.Second, cfg.Backoff(2))
	assert.Equal(t, 40*time.Second, cfg.Backoff(3))
	assert.Equal(t, time.Minute, cfg.Backoff(4))
	assert.Equal(t, time.Minute, cfg.Backoff(60))
}

func TestCheck_StalenessThresholds(t *testing.T) {
	f := newFixture(t, Config{HealthyThreshold: time.Minute}, WithRestarter(nil))
	ctx := context.Background()
	f.monitor.Register("gmail")

	f.clock.Advance(59 * time.Second)
	require.NoError(t, f.monitor.Check(ctx))
	assert.Equal(t, model.HealthHealthy, f.status(t, "gmail"))

	f.clock.Advance(time.Second)
	require.NoError(t, f.monitor.Check(ctx))
	assert.Equal(t, model.HealthDegraded, f.status(t, "gmail"))

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.monitor.Check(ctx))
	assert.Equal(t, model.HealthFailed, f.status(t, "gmail"))

	f.monitor.Heartbeat("gmail")
	assert.Equal(t, model.HealthHealthy, f.status(t, "gmail"))
}

func TestCheck_SilentCollectorRestartedOnce(t *testing.T) {
	f := newFixture(t, Config{HealthyThreshold: time.Minute, BaseBackoff: time.Minute})
	ctx := context.Background()
	f.monitor.Register("gmail")

	f.clock.Advance(3 * time.Minute)
	require.NoError(t, f.monitor.Check(ctx))

	r, _ := f.monitor.Record("gmail")
	assert.Equal(t, model.HealthFailed, r.Status)
	assert.Equal(t, 1, r.RestartCount)
	assert.Equal(t, []string{"gmail"}, f.restarter.calls)
	assert.Equal(t, epoch.Add(4*time.Minute), r.NextRestartAt)
	assert.Equal(t, []string{"restart/ok"}, f.notifier.events())

	// Further ticks inside the backoff interval do not restart again.
	for i := 0; i < 5; i++ {
		f.clock.Advance(10 * time.Second)
		require.NoError(t, f.monitor.Check(ctx))
	}
	assert.Equal(t, 1, f.restarter.count())

	// Once the interval elapses, the second attempt waits twice as long.
	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.monitor.Check(ctx))
	assert.Equal(t, 2, f.restarter.count())
	r, _ = f.monitor.Record("gmail")
	assert.Equal(t, f.clock.Now().Add(2*time.Minute), r.NextRestartAt)
}

func TestCheck_OverlappingChecksClaimOneSlot(t *testing.T) {
	f := newFixture(t, Config{HealthyThreshold: time.Minute})
	f.monitor.Register("gmail")
	f.clock.Advance(time.Hour - time.Second)

	const ticks = 10
	var wg sync.WaitGroup
	wg.Add(ticks)
	for i := 0; i < ticks; i++ {
		go func() {
			defer wg.Done()
			_ = f.monitor.Check(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.restarter.count())
}

func TestCheck_RestartStormDisables(t *testing.T) {
	f := newFixture(t, Config{
		HealthyThreshold: time.Minute,
		BaseBackoff:      time.Second,
		MaxBackoff:       time.Second,
		MaxRestarts:      3,
		RestartWindow:    time.Hour,
	})
	ctx := context.Background()
	f.monitor.Register("gmail")
	f.clock.Advance(3 * time.Minute)

	for i := 0; i < 6; i++ {
		require.NoError(t, f.monitor.Check(ctx))
		f.clock.Advance(2 * time.Second)
	}

	r, _ := f.monitor.Record("gmail")
	assert.Equal(t, model.HealthDisabled, r.Status)
	assert.Equal(t, 3, r.RestartCount)
	assert.Equal(t, 3, f.restarter.count())
	assert.Equal(t, []string{"restart/ok", "restart/ok", "restart/ok", "collector-disabled/failed"}, f.notifier.events())

	rep := f.monitor.Report()
	assert.Equal(t, []string{"gmail"}, rep.Disabled)
	assert.Equal(t, model.HealthFailed, rep.Overall)

	// Enable restores supervision.
	require.NoError(t, f.monitor.Enable("gmail"))
	assert.Equal(t, model.HealthHealthy, f.status(t, "gmail"))
	assert.ErrorIs(t, f.monitor.Enable("nope"), ErrUnknownCollector)
}

func TestCheck_RestartWindowRolls(t *testing.T) {
	f := newFixture(t, Config{
		HealthyThreshold: time.Minute,
		BaseBackoff:      time.Minute,
		MaxBackoff:       time.Minute,
		MaxRestarts:      2,
		RestartWindow:    10 * time.Minute,
	})
	ctx := context.Background()
	f.monitor.Register("gmail")
	f.clock.Advance(3 * time.Minute)

	require.NoError(t, f.monitor.Check(ctx))
	f.clock.Advance(time.Minute)
	require.NoError(t, f.monitor.Check(ctx))
	assert.Equal(t, 2, f.restarter.count())

	// Both restarts fall out of the window before the next attempt.
	f.clock.Advance(15 * time.Minute)
	require.NoError(t, f.monitor.Check(ctx))
	assert.Equal(t, 3, f.restarter.count())
	assert.Equal(t, model.HealthFailed, f.status(t, "gmail"))
}

func TestReportFailure_Thresholds(t *testing.T) {
	f := newFixture(t, Config{}, WithRestarter(nil))
	f.monitor.Register("gmail")

	f.monitor.ReportFailure("gmail", errors.New("timeout"))
	assert.Equal(t, model.HealthDegraded, f.status(t, "gmail"))

	f.monitor.ReportFailure("gmail", errors.New("timeout"))
	f.monitor.ReportFailure("gmail", errors.New("auth expired"))
	r, _ := f.monitor.Record("gmail")
	assert.Equal(t, model.HealthFailed, r.Status)
	assert.Equal(t, 3, r.ConsecutiveFailures)
	assert.Equal(t, 3, r.ErrorCount)
	assert.Equal(t, "auth expired", r.LastError)

	// Check keeps the failure-derived status even with a fresh heartbeat age.
	require.NoError(t, f.monitor.Check(context.Background()))
	assert.Equal(t, model.HealthFailed, f.status(t, "gmail"))

	f.monitor.Heartbeat("gmail")
	r, _ = f.monitor.Record("gmail")
	assert.Equal(t, model.HealthHealthy, r.Status)
	assert.Zero(t, r.ConsecutiveFailures)
	assert.Equal(t, 3, r.ErrorCount)
}

func TestReportFailure_RegistersUnknown(t *testing.T) {
	f := newFixture(t, Config{})
	f.monitor.ReportFailure("calendar", nil)
	assert.Equal(t, model.HealthDegraded, f.status(t, "calendar"))
}

func TestCheck_FailedRestartRecorded(t *testing.T) {
	f := newFixture(t, Config{HealthyThreshold: time.Minute})
	f.restarter.err = errors.New("process not found")
	f.monitor.Register("gmail")
	f.clock.Advance(5 * time.Minute)

	require.NoError(t, f.monitor.Check(context.Background()))

	r, _ := f.monitor.Record("gmail")
	assert.Equal(t, 1, r.RestartCount)
	assert.Equal(t, 1, r.ErrorCount)
	assert.Equal(t, "process not found", r.LastError)
	assert.Equal(t, []string{"restart/failed"}, f.notifier.events())
}

func TestCheckpointAndLoad(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	f := newFixture(t, Config{HealthyThreshold: time.Minute}, WithCheckpointer(st))
	f.monitor.Register("gmail")
	f.monitor.Register("whatsapp")
	f.clock.Advance(3 * time.Minute)
	f.monitor.Heartbeat("whatsapp")
	require.NoError(t, f.monitor.Check(ctx))

	stored, err := st.LoadHealthRecords(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "gmail", stored[0].Name)
	assert.Equal(t, model.HealthFailed, stored[0].Status)
	assert.Equal(t, 1, stored[0].RestartCount)

	restored := NewMonitor(Config{}, WithCheckpointer(st), WithClock(f.clock))
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, f.monitor.Records(), restored.Records())
}

func TestSummarize(t *testing.T) {
	rep := Summarize([]model.HealthRecord{
		{Name: "a", Status: model.HealthHealthy},
		{Name: "b", Status: model.HealthDegraded},
	})
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.Counts["degraded"])
	assert.Equal(t, 0, rep.Counts["failed"])
	assert.Equal(t, model.HealthDegraded, rep.Overall)
	assert.Empty(t, rep.Disabled)

	empty := Summarize(nil)
	assert.Equal(t, model.HealthHealthy, empty.Overall)
}
