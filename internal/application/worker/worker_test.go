package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/compliance-pulse/internal/application"
	scanapp "github.com/bryanwahyu/compliance-pulse/internal/application/scans"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/jobs"
	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlite"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/compliance-pulse/internal/logging"
)

type scriptedExecutor struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	// advance moves the clock to simulate a long scan
	advance time.Duration
	clock   *application.ManualClock
}

func (s *scriptedExecutor) ExecuteJob(_ context.Context, job *jobs.Job) (*domain.Execution, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[job.ID]++
	s.mu.Unlock()
	if s.clock != nil && s.advance > 0 {
		s.clock.Advance(s.advance)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Execution{Scan: &domain.Scan{ID: domain.ScanID("scan-" + job.ID)}}, nil
}

func setupStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	conn, err := sqlite.Connect(ctx, filepath.Join(t.TempDir(), "pulse.db"))
	require.NoError(t, err)
	store := sqlstore.New(conn, sqlite.Dialect{})
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueue(t *testing.T, store *sqlstore.Store, id, org, group, schedule string, at time.Time) {
	t.Helper()
	require.NoError(t, store.Jobs().Enqueue(context.Background(), &jobs.Job{
		ID: id, OrganizationID: org, GroupID: group, ScheduleID: schedule, Hostname: "web-1", CreatedAt: at,
	}))
}

func TestProcessNextCompletesJob(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	clock := application.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.Schedules().SaveSchedule(ctx, &jobs.Schedule{ID: "s-1", OrganizationID: "org-a",
		GroupID: "g-1", Frequency: jobs.FrequencyHourly, IntervalMinutes: 60, Enabled: true}))
	enqueue(t, store, "j-1", "org-a", "g-1", "s-1", clock.Now())

	exec := &scriptedExecutor{clock: clock, advance: 30 * time.Second}
	w := &Worker{Jobs: store.Jobs(), Schedules: store.Schedules(), Executor: exec, Logger: logging.Discard(), Clock: clock}

	processed, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	job, err := store.Jobs().Get(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, "scan-j-1", job.ScanID)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, 30*time.Second, job.Runtime())

	sc, err := store.Schedules().GetSchedule(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, sc.LastRun)
	assert.True(t, sc.LastRun.Equal(*job.CompletedAt))

	processed, err = w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRuntimeCeilingFailsSuccessfulJob(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	clock := application.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	enqueue(t, store, "j-slow", "org-a", "g-1", "", clock.Now())

	exec := &scriptedExecutor{clock: clock, advance: 901 * time.Second}
	w := &Worker{Jobs: store.Jobs(), Executor: exec, MaxRuntime: 900 * time.Second, Logger: logging.Discard(), Clock: clock}

	_, err := w.ProcessNext(ctx)
	require.NoError(t, err)

	job, err := store.Jobs().Get(ctx, "j-slow")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "Runtime exceeded 900 seconds")
	assert.Equal(t, "scan-j-slow", job.ScanID)
}

func TestRepeatedFailuresRaiseAlert(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		enqueue(t, store, fmt.Sprintf("j-%d", i), "org-a", "g-1", "", base.Add(time.Duration(i)*time.Second))
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	w := &Worker{Jobs: store.Jobs(), Executor: &scriptedExecutor{err: errors.New("host unreachable")}, Logger: logger}

	for i := 0; i < 3; i++ {
		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		require.True(t, processed)
		if i < 2 {
			assert.NotContains(t, buf.String(), "repeated job failures")
		}
	}
	assert.Equal(t, 3, w.ConsecutiveFailures("g-1"))
	assert.Contains(t, buf.String(), `"msg":"repeated job failures"`)
	assert.Contains(t, buf.String(), `"alert":true`)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)

	job, err := store.Jobs().Get(ctx, "j-2")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "host unreachable", job.Error)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	enqueue(t, store, "j-1", "org-a", "g-1", "", time.Now().Add(-time.Minute))
	enqueue(t, store, "j-2", "org-a", "g-1", "", time.Now())

	exec := &scriptedExecutor{err: errors.New("boom")}
	w := &Worker{Jobs: store.Jobs(), Executor: exec, Logger: logging.Discard()}
	_, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, w.ConsecutiveFailures("g-1"))

	exec.err = nil
	_, err = w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, w.ConsecutiveFailures("g-1"))
}

func TestTenantMismatchMarksJobFailed(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	enqueue(t, store, "j-foreign", "org-b", "g-1", "", time.Now())

	executor := &scanapp.Executor{
		OrganizationID: "org-a",
		Rules:          store.Rules(),
		Groups:         store.Groups(),
		Repo:           store.Scans(),
		Logger:         logging.Discard(),
	}
	w := &Worker{Jobs: store.Jobs(), Executor: executor, Logger: logging.Discard()}

	processed, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	job, err := store.Jobs().Get(ctx, "j-foreign")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, domain.ErrTenantMismatch.Error())
	assert.Empty(t, job.ScanID)
}

func TestOrganizationBoundWorkerOnlyClaimsOwnJobs(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	enqueue(t, store, "j-b", "org-b", "g-2", "", time.Now().Add(-time.Minute))

	w := &Worker{Jobs: store.Jobs(), Executor: &scriptedExecutor{}, OrganizationID: "org-a", Logger: logging.Discard()}
	processed, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	job, err := store.Jobs().Get(ctx, "j-b")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
}

func TestConcurrentWorkersRunEachJobOnce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	const total = 12
	base := time.Now().Add(-time.Hour)
	for i := 0; i < total; i++ {
		enqueue(t, store, fmt.Sprintf("j-%02d", i), "org-a", "g-1", "", base.Add(time.Duration(i)*time.Second))
	}

	exec := &scriptedExecutor{}
	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		w := &Worker{Jobs: store.Jobs(), Executor: exec, Logger: logging.Discard()}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				processed, err := w.ProcessNext(ctx)
				if err != nil || !processed {
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Len(t, exec.calls, total)
	for id, n := range exec.calls {
		assert.Equal(t, 1, n, "job %s ran %d times", id, n)
		assert.True(t, strings.HasPrefix(id, "j-"))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{Jobs: store.Jobs(), Executor: &scriptedExecutor{}, PollInterval: 10 * time.Millisecond, Logger: logging.Discard()}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
