package jobs

import (
	"time"
)

// Status is the job state machine: pending -> running -> completed|failed|paused.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// Job is a unit of queued scan work.
type Job struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	GroupID        string     `json:"group_id"`
	ScheduleID     string     `json:"schedule_id,omitempty"`
	Hostname       string     `json:"hostname"`
	TriggeredBy    string     `json:"triggered_by"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"`
	ScanID         string     `json:"scan_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Runtime is completed_at - started_at, zero when either is unset.
func (j Job) Runtime() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Frequency of a schedule.
type Frequency string

const (
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyCustom Frequency = "custom"
)

const (
	MinInterval     = 5 * time.Minute
	DefaultInterval = 60 * time.Minute
)

// Schedule is a tenant-owned periodic trigger for a rule group.
type Schedule struct {
	ID              string     `json:"id"`
	OrganizationID  string     `json:"organization_id"`
	GroupID         string     `json:"group_id"`
	Name            string     `json:"name"`
	Frequency       Frequency  `json:"frequency"`
	IntervalMinutes int        `json:"interval_minutes"`
	Enabled         bool       `json:"enabled"`
	NextRun         *time.Time `json:"next_run,omitempty"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Interval is max(interval_minutes, 5m), with 60m when unset.
func (s Schedule) Interval() time.Duration {
	d := DefaultInterval
	if s.IntervalMinutes > 0 {
		d = time.Duration(s.IntervalMinutes) * time.Minute
	}
	if d < MinInterval {
		d = MinInterval
	}
	return d
}

// Due reports whether the schedule should fire at now. A schedule that never
// ran and has no next_run is due immediately.
func (s Schedule) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	return s.NextRun == nil || !s.NextRun.After(now)
}

// ResolveInterval maps a frequency to interval minutes.
func ResolveInterval(f Frequency, custom int) (int, error) {
	switch f {
	case FrequencyHourly:
		return 60, nil
	case FrequencyDaily:
		return 60 * 24, nil
	case FrequencyCustom:
		if custom <= 0 {
			return 0, ErrIntervalRequired
		}
		if custom < int(MinInterval/time.Minute) {
			return int(MinInterval / time.Minute), nil
		}
		return custom, nil
	default:
		return 0, ErrUnknownFrequency
	}
}
