package jobs

import "errors"

var (
	ErrNotFound         = errors.New("job not found")
	ErrIntervalRequired = errors.New("custom schedules require interval_minutes")
	ErrUnknownFrequency = errors.New("unknown schedule frequency")
)
