package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/jobs"
)

const jobColumns = `id, organization_id, group_id, schedule_id, hostname, triggered_by, status,
 error, scan_id, created_at, started_at, completed_at`

// claimBatch bounds how many candidates one ClaimNext call will race for.
const claimBatch = 16

func (s *JobRepository) insertJob(ctx context.Context, q execer, j *jobs.Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.Status == "" {
		j.Status = jobs.StatusPending
	}
	_, err := s.exec(ctx, q, `INSERT INTO scan_jobs (`+jobColumns+`) VALUES (`+placeholders(12)+`)`,
		j.ID, j.OrganizationID, j.GroupID, nullString(j.ScheduleID), j.Hostname, j.TriggeredBy, string(j.Status),
		nullString(j.Error), nullString(j.ScanID), j.CreatedAt.UTC(), nullTime(j.StartedAt), nullTime(j.CompletedAt),
	)
	return err
}

func (s *JobRepository) Enqueue(ctx context.Context, j *jobs.Job) error {
	if err := s.insertJob(ctx, s.db, j); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (s *JobRepository) EnqueueFromSchedule(ctx context.Context, j *jobs.Job, nextRun time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertJob(ctx, tx, j); err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		_, err := s.exec(ctx, tx, `UPDATE schedules SET next_run=?, updated_at=? WHERE id=?`,
			nextRun.UTC(), time.Now().UTC(), j.ScheduleID)
		if err != nil {
			return fmt.Errorf("advance schedule: %w", err)
		}
		return nil
	})
}

func (s *JobRepository) CountActive(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM scan_jobs WHERE group_id=? AND status IN (?,?)`,
		groupID, string(jobs.StatusPending), string(jobs.StatusRunning)).Scan(&n)
	return n, err
}

// Claim is a compare-and-swap on the status column. The conditional UPDATE
// affects exactly one row for the winner and zero for every other caller.
func (s *JobRepository) Claim(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	res, err := s.exec(ctx, s.db, `UPDATE scan_jobs SET status=?, started_at=? WHERE id=? AND status=?`,
		string(jobs.StatusRunning), startedAt.UTC(), id, string(jobs.StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *JobRepository) ClaimNext(ctx context.Context, organizationID string, startedAt time.Time) (*jobs.Job, error) {
	query := `SELECT id FROM scan_jobs WHERE status=?`
	args := []any{string(jobs.StatusPending)}
	if organizationID != "" {
		query += ` AND organization_id=?`
		args = append(args, organizationID)
	}
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT %d`, claimBatch)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		ok, err := s.Claim(ctx, id, startedAt)
		if err != nil {
			return nil, err
		}
		if ok {
			return s.Get(ctx, id)
		}
	}
	return nil, nil
}

// Finish persists the terminal state of a job.
func (s *JobRepository) Finish(ctx context.Context, j *jobs.Job) error {
	_, err := s.exec(ctx, s.db, `UPDATE scan_jobs SET status=?, error=?, scan_id=?, started_at=?, completed_at=? WHERE id=?`,
		string(j.Status), nullString(j.Error), nullString(j.ScanID), nullTime(j.StartedAt), nullTime(j.CompletedAt), j.ID)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", j.ID, err)
	}
	return nil
}

func (s *JobRepository) Get(ctx context.Context, id string) (*jobs.Job, error) {
	row := s.queryRow(ctx, `SELECT `+jobColumns+` FROM scan_jobs WHERE id=?`, id)
	var (
		j                                 jobs.Job
		scheduleID, host, by, errText, sc sql.NullString
		status                            string
		started, completed                sql.NullTime
	)
	err := row.Scan(&j.ID, &j.OrganizationID, &j.GroupID, &scheduleID, &host, &by, &status,
		&errText, &sc, &j.CreatedAt, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.ScheduleID, j.Hostname, j.TriggeredBy = scheduleID.String, host.String, by.String
	j.Status, j.Error, j.ScanID = jobs.Status(status), errText.String, sc.String
	j.CreatedAt = j.CreatedAt.UTC()
	j.StartedAt, j.CompletedAt = timePtr(started), timePtr(completed)
	return &j, nil
}

const scheduleColumns = `id, organization_id, group_id, name, frequency, interval_minutes, enabled,
 next_run, last_run, created_at, updated_at`

func (s *ScheduleRepository) SaveSchedule(ctx context.Context, sc *jobs.Schedule) error {
	now := time.Now().UTC()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM schedules WHERE id=?`, sc.ID); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `INSERT INTO schedules (`+scheduleColumns+`) VALUES (`+placeholders(11)+`)`,
			sc.ID, sc.OrganizationID, sc.GroupID, sc.Name, string(sc.Frequency), sc.IntervalMinutes, sc.Enabled,
			nullTime(sc.NextRun), nullTime(sc.LastRun), sc.CreatedAt.UTC(), sc.UpdatedAt,
		)
		return err
	})
}

// ListEnabled returns enabled schedules; due filtering happens in the caller
// so time comparison stays out of dialect-specific SQL.
func (s *ScheduleRepository) ListEnabled(ctx context.Context) ([]jobs.Schedule, error) {
	rows, err := s.query(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE enabled=? ORDER BY id`, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []jobs.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (s *ScheduleRepository) MarkRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.exec(ctx, s.db, `UPDATE schedules SET last_run=?, updated_at=? WHERE id=?`, at.UTC(), time.Now().UTC(), id)
	return err
}

func (s *ScheduleRepository) GetSchedule(ctx context.Context, id string) (*jobs.Schedule, error) {
	sc, err := scanSchedule(s.queryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	return sc, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*jobs.Schedule, error) {
	var (
		sc               jobs.Schedule
		name             sql.NullString
		frequency        string
		nextRun, lastRun sql.NullTime
	)
	if err := row.Scan(&sc.ID, &sc.OrganizationID, &sc.GroupID, &name, &frequency, &sc.IntervalMinutes,
		&sc.Enabled, &nextRun, &lastRun, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
		return nil, err
	}
	sc.Name, sc.Frequency = name.String, jobs.Frequency(frequency)
	sc.NextRun, sc.LastRun = timePtr(nextRun), timePtr(lastRun)
	sc.CreatedAt, sc.UpdatedAt = sc.CreatedAt.UTC(), sc.UpdatedAt.UTC()
	return &sc, nil
}
