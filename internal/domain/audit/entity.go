package audit

import "time"

// Action names an auditable event.
type Action string

const (
	ActionSandboxViolation Action = "sandbox_violation"
	ActionCommandTimeout   Action = "command_timeout"
	ActionJobEnqueued      Action = "job_enqueued"
	ActionJobFailed        Action = "job_failed"
	ActionRuntimeExceeded  Action = "runtime_exceeded"
	ActionRepeatedFailures Action = "repeated_failures"
	ActionTenantMismatch   Action = "tenant_mismatch"

	// operator actions from the CLI
	ActionBenchmarkIngested Action = "benchmark_ingested"
	ActionGroupCreated      Action = "group_created"
	ActionScheduleCreated   Action = "schedule_created"
	ActionJobRequested      Action = "job_requested"
)

// Event represents a persisted audit entry
type Event struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Action         Action         `json:"action"`
	ResourceType   string         `json:"resource_type"` // rule | scan | scan_job | rule_group | schedule
	ResourceID     string         `json:"resource_id"`
	Message        string         `json:"message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
