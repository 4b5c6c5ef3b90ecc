package schedules

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/compliance-pulse/internal/application"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/jobs"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlite"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/compliance-pulse/internal/logging"
)

type flakyQueue struct {
	jobs.Repository
	failSchedule string
}

func (f *flakyQueue) EnqueueFromSchedule(ctx context.Context, j *jobs.Job, next time.Time) error {
	if j.ScheduleID == f.failSchedule {
		return errors.New("disk full")
	}
	return f.Repository.EnqueueFromSchedule(ctx, j, next)
}

func setup(t *testing.T) (*sqlstore.Store, *Manager, *application.ManualClock) {
	t.Helper()
	ctx := context.Background()
	conn, err := sqlite.Connect(ctx, filepath.Join(t.TempDir(), "pulse.db"))
	require.NoError(t, err)
	store := sqlstore.New(conn, sqlite.Dialect{})
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { store.Close() })

	for _, g := range []string{"g-1", "g-2"} {
		require.NoError(t, store.Groups().SaveGroup(ctx, &rules.Group{ID: g, OrganizationID: "org-a",
			Name: g, BenchmarkID: "cis", DefaultHostname: g + ".internal"}))
	}

	clock := application.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	m := &Manager{
		Schedules:     store.Schedules(),
		Jobs:          store.Jobs(),
		Groups:        store.Groups(),
		MaxConcurrent: 2,
		Logger:        logging.Discard(),
		Clock:         clock,
	}
	return store, m, clock
}

func saveSchedule(t *testing.T, store *sqlstore.Store, id, group string, interval int, next *time.Time) {
	t.Helper()
	require.NoError(t, store.Schedules().SaveSchedule(context.Background(), &jobs.Schedule{
		ID: id, OrganizationID: "org-a", GroupID: group, Frequency: jobs.FrequencyCustom,
		IntervalMinutes: interval, Enabled: true, NextRun: next,
	}))
}

func TestTickEnqueuesDueSchedulesAndAdvancesNextRun(t *testing.T) {
	store, m, clock := setup(t)
	ctx := context.Background()
	future := clock.Now().Add(time.Hour)
	saveSchedule(t, store, "due", "g-1", 30, nil)
	saveSchedule(t, store, "later", "g-2", 30, &future)

	res, err := m.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Due: 1, Enqueued: 1}, res)

	sc, err := store.Schedules().GetSchedule(ctx, "due")
	require.NoError(t, err)
	require.NotNil(t, sc.NextRun)
	assert.True(t, sc.NextRun.Equal(clock.Now().Add(30*time.Minute)))

	job, err := store.Jobs().ClaimNext(ctx, "org-a", clock.Now())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "due", job.ScheduleID)
	assert.Equal(t, "g-1.internal", job.Hostname)

	// not due again until next_run
	res, err = m.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
}

func TestTickEnforcesMinimumInterval(t *testing.T) {
	store, m, clock := setup(t)
	saveSchedule(t, store, "fast", "g-1", 1, nil)

	_, err := m.Tick(context.Background())
	require.NoError(t, err)
	sc, err := store.Schedules().GetSchedule(context.Background(), "fast")
	require.NoError(t, err)
	assert.True(t, sc.NextRun.Equal(clock.Now().Add(jobs.MinInterval)))
}

func TestTickSkipsGroupAtCapacity(t *testing.T) {
	store, m, clock := setup(t)
	ctx := context.Background()
	for _, id := range []string{"busy-1", "busy-2"} {
		require.NoError(t, store.Jobs().Enqueue(ctx, &jobs.Job{ID: id, OrganizationID: "org-a", GroupID: "g-1",
			CreatedAt: clock.Now()}))
	}
	past := clock.Now().Add(-time.Minute)
	saveSchedule(t, store, "s-1", "g-1", 60, &past)

	res, err := m.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, TickResult{Due: 1, Skipped: 1}, res)

	n, err := store.Jobs().CountActive(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sc, err := store.Schedules().GetSchedule(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, sc.NextRun.Equal(past))
}

func TestTickIsolatesScheduleFailures(t *testing.T) {
	store, m, _ := setup(t)
	ctx := context.Background()
	m.Jobs = &flakyQueue{Repository: store.Jobs(), failSchedule: "broken"}
	saveSchedule(t, store, "broken", "g-1", 60, nil)
	saveSchedule(t, store, "healthy", "g-2", 60, nil)
	saveSchedule(t, store, "orphan", "missing-group", 60, nil)

	res, err := m.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Due)
	assert.Equal(t, 1, res.Enqueued)
	assert.Equal(t, 2, res.Failed)

	broken, err := store.Schedules().GetSchedule(ctx, "broken")
	require.NoError(t, err)
	assert.Nil(t, broken.NextRun)

	n, err := store.Jobs().CountActive(ctx, "g-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateSchedule(t *testing.T) {
	_, m, _ := setup(t)
	ctx := context.Background()

	sc, err := m.Create(ctx, CreateCommand{OrganizationID: "org-a", GroupID: "g-1", Frequency: jobs.FrequencyDaily})
	require.NoError(t, err)
	assert.Equal(t, 1440, sc.IntervalMinutes)
	assert.True(t, sc.Enabled)

	_, err = m.Create(ctx, CreateCommand{OrganizationID: "org-b", GroupID: "g-1", Frequency: jobs.FrequencyDaily})
	assert.ErrorIs(t, err, rules.ErrGroupNotFound)

	_, err = m.Create(ctx, CreateCommand{OrganizationID: "org-a", GroupID: "g-1", Frequency: jobs.FrequencyCustom})
	assert.ErrorIs(t, err, jobs.ErrIntervalRequired)
}
