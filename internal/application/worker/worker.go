package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bryanwahyu/compliance-pulse/internal/application"
	auditapp "github.com/bryanwahyu/compliance-pulse/internal/application/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/jobs"
	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
	"github.com/bryanwahyu/compliance-pulse/internal/metrics"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxRuntime   = 900 * time.Second
	// FailureAlertThreshold is the consecutive failure count per group that
	// raises an alert.
	FailureAlertThreshold = 3
)

// JobExecutor runs one claimed job.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, job *jobs.Job) (*domain.Execution, error)
}

// Worker drains the job queue one job at a time. Several workers may share
// a queue; the store's claim guarantees each job runs at most once.
type Worker struct {
	Jobs      jobs.Repository
	Schedules jobs.ScheduleRepository
	Executor  JobExecutor
	// OrganizationID restricts claims to one organization when set.
	OrganizationID string
	PollInterval   time.Duration
	MaxRuntime     time.Duration
	Audit          *auditapp.Recorder
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Clock          application.Clock

	mu       sync.Mutex
	failures map[string]int
}

func (w *Worker) clock() application.Clock {
	if w.Clock == nil {
		return application.SystemClock{}
	}
	return w.Clock
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

func (w *Worker) maxRuntime() time.Duration {
	if w.MaxRuntime <= 0 {
		return DefaultMaxRuntime
	}
	return w.MaxRuntime
}

// Run loops until ctx is cancelled, sleeping only when the queue is empty.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w.logger().Info("worker started",
		"poll_interval", interval.String(),
		"max_runtime", w.maxRuntime().String(),
		"organization_id", w.OrganizationID,
	)
	for {
		if ctx.Err() != nil {
			w.logger().Info("worker stopped")
			return nil
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger().Error("worker iteration failed", "error", err)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			w.logger().Info("worker stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// ProcessNext claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.Jobs.ClaimNext(ctx, w.OrganizationID, w.clock().Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	return true, w.process(ctx, job)
}

// process runs a claimed job to the end. Shutdown does not interrupt it: a
// claimed job always reaches a terminal state.
func (w *Worker) process(ctx context.Context, job *jobs.Job) error {
	ctx = context.WithoutCancel(ctx)
	log := w.logger().With("job_id", job.ID, "organization_id", job.OrganizationID, "group_id", job.GroupID)
	log.Info("job claimed")

	exec, err := w.Executor.ExecuteJob(ctx, job)
	if err != nil {
		job.Status = jobs.StatusFailed
		job.Error = err.Error()
		w.onFailure(ctx, log, job, err)
	} else {
		job.Status = jobs.StatusCompleted
		job.Error = ""
		if exec != nil && exec.Scan != nil {
			job.ScanID = string(exec.Scan.ID)
		}
		w.resetFailures(job.GroupID)
	}

	completed := w.clock().Now().UTC()
	job.CompletedAt = &completed
	if job.ScheduleID != "" && w.Schedules != nil {
		if err := w.Schedules.MarkRun(ctx, job.ScheduleID, completed); err != nil {
			log.Warn("failed to stamp schedule last_run", "schedule_id", job.ScheduleID, "error", err)
		}
	}

	if runtime := job.Runtime(); runtime > w.maxRuntime() {
		job.Status = jobs.StatusFailed
		job.Error = fmt.Sprintf("Runtime exceeded %d seconds (took %d seconds)",
			int(w.maxRuntime()/time.Second), int(runtime/time.Second))
		w.Metrics.IncRuntimeExceeded()
		log.Warn("job runtime exceeded",
			"runtime_seconds", runtime.Seconds(),
			"max_runtime_seconds", w.maxRuntime().Seconds(),
			"scan_id", job.ScanID,
		)
		w.Audit.Record(ctx, audit.Event{
			OrganizationID: job.OrganizationID,
			Action:         audit.ActionRuntimeExceeded,
			ResourceType:   "scan_job",
			ResourceID:     job.ID,
			Message:        job.Error,
			Metadata:       map[string]any{"scan_id": job.ScanID, "runtime_seconds": runtime.Seconds()},
		})
	}

	if err := w.Jobs.Finish(ctx, job); err != nil {
		return err
	}
	w.Metrics.ObserveJob(string(job.Status))
	log.Info("job finished", "status", job.Status, "scan_id", job.ScanID)
	return nil
}

func (w *Worker) onFailure(ctx context.Context, log *slog.Logger, job *jobs.Job, err error) {
	action := audit.ActionJobFailed
	if errors.Is(err, domain.ErrTenantMismatch) {
		action = audit.ActionTenantMismatch
		log.Error("tenant mismatch, job rejected", "error", err)
	} else {
		log.Error("job failed", "error", err)
	}
	w.Audit.Record(ctx, audit.Event{
		OrganizationID: job.OrganizationID,
		Action:         action,
		ResourceType:   "scan_job",
		ResourceID:     job.ID,
		Message:        err.Error(),
		Metadata:       map[string]any{"group_id": job.GroupID},
	})

	count := w.recordFailure(job.GroupID)
	if count >= FailureAlertThreshold {
		w.Metrics.IncFailureAlerts()
		log.Error("repeated job failures",
			"alert", true,
			"consecutive_failures", count,
		)
		w.Audit.Record(ctx, audit.Event{
			OrganizationID: job.OrganizationID,
			Action:         audit.ActionRepeatedFailures,
			ResourceType:   "rule_group",
			ResourceID:     job.GroupID,
			Message:        fmt.Sprintf("%d consecutive failed jobs", count),
			Metadata:       map[string]any{"last_job_id": job.ID},
		})
	}
}

func (w *Worker) recordFailure(groupID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures == nil {
		w.failures = map[string]int{}
	}
	w.failures[groupID]++
	return w.failures[groupID]
}

func (w *Worker) resetFailures(groupID string) {
	w.mu.Lock()
	delete(w.failures, groupID)
	w.mu.Unlock()
}

// ConsecutiveFailures reports the current failure streak of a group.
func (w *Worker) ConsecutiveFailures(groupID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures[groupID]
}
