package jobs

import (
	"context"
	"time"
)

// Repository is the shared job queue.
type Repository interface {
	Enqueue(ctx context.Context, j *Job) error
	// EnqueueFromSchedule inserts j and sets the schedule's next_run in one transaction.
	EnqueueFromSchedule(ctx context.Context, j *Job, nextRun time.Time) error
	// CountActive counts pending and running jobs for a group.
	CountActive(ctx context.Context, groupID string) (int, error)
	// Claim is the compare-and-swap pending -> running. It reports true for
	// at most one concurrent caller per job id.
	Claim(ctx context.Context, id string, startedAt time.Time) (bool, error)
	// ClaimNext claims the oldest pending job, optionally restricted to one
	// organization. It returns nil when nothing could be claimed.
	ClaimNext(ctx context.Context, organizationID string, startedAt time.Time) (*Job, error)
	Finish(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
}

// ScheduleRepository persists schedules.
type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, s *Schedule) error
	ListEnabled(ctx context.Context) ([]Schedule, error)
	MarkRun(ctx context.Context, id string, at time.Time) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
}
