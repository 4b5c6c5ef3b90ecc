package schedules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/compliance-pulse/internal/application"
	auditapp "github.com/bryanwahyu/compliance-pulse/internal/application/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/jobs"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
	"github.com/bryanwahyu/compliance-pulse/internal/metrics"
)

const (
	DefaultPollInterval  = 60 * time.Second
	DefaultMaxConcurrent = 3
)

// Manager turns due schedules into pending scan jobs.
type Manager struct {
	Schedules     jobs.ScheduleRepository
	Jobs          jobs.Repository
	Groups        rules.GroupRepository
	MaxConcurrent int
	PollInterval  time.Duration
	Audit         *auditapp.Recorder
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Clock         application.Clock
}

// TickResult summarizes one pass over the schedules.
type TickResult struct {
	Due      int
	Enqueued int
	Skipped  int
	Failed   int
}

func (m *Manager) clock() application.Clock {
	if m.Clock == nil {
		return application.SystemClock{}
	}
	return m.Clock
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *Manager) capacity() int {
	if m.MaxConcurrent <= 0 {
		return DefaultMaxConcurrent
	}
	return m.MaxConcurrent
}

// Run ticks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	m.logger().Info("scheduler started", "poll_interval", interval.String(), "max_concurrent", m.capacity())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.Tick(ctx); err != nil {
			m.logger().Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			m.logger().Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick processes every due schedule independently. Only a failure to list
// schedules is returned; per-schedule failures are logged and counted.
func (m *Manager) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	now := m.clock().Now().UTC()

	enabled, err := m.Schedules.ListEnabled(ctx)
	if err != nil {
		return res, fmt.Errorf("list schedules: %w", err)
	}
	for _, sc := range enabled {
		if !sc.Due(now) {
			continue
		}
		res.Due++
		enqueued, err := m.process(ctx, sc, now)
		switch {
		case err != nil:
			res.Failed++
			m.logger().Error("schedule processing failed",
				"schedule_id", sc.ID,
				"organization_id", sc.OrganizationID,
				"group_id", sc.GroupID,
				"error", err,
			)
		case enqueued:
			res.Enqueued++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// process enqueues one job for sc unless its group is at capacity, in which
// case next_run is left untouched so the schedule is retried next tick.
func (m *Manager) process(ctx context.Context, sc jobs.Schedule, now time.Time) (bool, error) {
	group, err := m.Groups.GetGroup(ctx, sc.OrganizationID, sc.GroupID)
	if err != nil {
		return false, fmt.Errorf("resolve group: %w", err)
	}

	active, err := m.Jobs.CountActive(ctx, group.ID)
	if err != nil {
		return false, fmt.Errorf("count active jobs: %w", err)
	}
	if active >= m.capacity() {
		m.Metrics.IncJobsSkipped()
		m.logger().Info("group at capacity, deferring schedule",
			"schedule_id", sc.ID, "group_id", group.ID, "active", active, "max_concurrent", m.capacity())
		return false, nil
	}

	job := &jobs.Job{
		ID:             uuid.NewString(),
		OrganizationID: group.OrganizationID,
		GroupID:        group.ID,
		ScheduleID:     sc.ID,
		Hostname:       group.DefaultHostname,
		TriggeredBy:    "schedule:" + sc.ID,
		Status:         jobs.StatusPending,
		CreatedAt:      now,
	}
	next := now.Add(sc.Interval())
	if err := m.Jobs.EnqueueFromSchedule(ctx, job, next); err != nil {
		return false, err
	}

	m.Metrics.IncJobsEnqueued()
	m.Audit.Record(ctx, audit.Event{
		OrganizationID: job.OrganizationID,
		Action:         audit.ActionJobEnqueued,
		ResourceType:   "scan_job",
		ResourceID:     job.ID,
		Metadata:       map[string]any{"schedule_id": sc.ID, "group_id": group.ID},
	})
	m.logger().Info("scan job enqueued",
		"job_id", job.ID, "schedule_id", sc.ID, "group_id", group.ID, "next_run", next)
	return true, nil
}

// CreateCommand describes a new schedule.
type CreateCommand struct {
	OrganizationID  string
	GroupID         string
	Name            string
	Frequency       jobs.Frequency
	IntervalMinutes int
}

// Create validates the group and frequency and stores an enabled schedule
// that is due on the next tick.
func (m *Manager) Create(ctx context.Context, cmd CreateCommand) (*jobs.Schedule, error) {
	if _, err := m.Groups.GetGroup(ctx, cmd.OrganizationID, cmd.GroupID); err != nil {
		return nil, err
	}
	interval, err := jobs.ResolveInterval(cmd.Frequency, cmd.IntervalMinutes)
	if err != nil {
		return nil, err
	}
	sc := &jobs.Schedule{
		ID:              uuid.NewString(),
		OrganizationID:  cmd.OrganizationID,
		GroupID:         cmd.GroupID,
		Name:            cmd.Name,
		Frequency:       cmd.Frequency,
		IntervalMinutes: interval,
		Enabled:         true,
	}
	if err := m.Schedules.SaveSchedule(ctx, sc); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	return sc, nil
}
