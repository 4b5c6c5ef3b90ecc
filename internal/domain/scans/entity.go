package scans

import (
	"time"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
)

// ScanID identifies one scan execution.
type ScanID string

// Status of a scan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ReportStatus is "passed" only when every rule passed.
type ReportStatus string

const (
	ReportPassed    ReportStatus = "passed"
	ReportAttention ReportStatus = "attention"
)

// Narrative is the summary bundle attached to a scan.
type Narrative struct {
	Summary      string   `json:"summary"`
	KeyFindings  []string `json:"key_findings"`
	Remediations []string `json:"remediations"`
	Advice       string   `json:"advice,omitempty"`
	AdviceSource string   `json:"advice_source,omitempty"`
}

// Aggregate Root: Scan
type Scan struct {
	ID              ScanID         `json:"id"`
	OrganizationID  string         `json:"organization_id"`
	Hostname        string         `json:"hostname"`
	IP              string         `json:"ip,omitempty"`
	BenchmarkID     string         `json:"benchmark_id"`
	GroupID         string         `json:"group_id,omitempty"`
	Status          Status         `json:"status"`
	Severity        rules.Severity `json:"severity"`
	Tags            []string       `json:"tags"`
	TriggeredBy     string         `json:"triggered_by"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	TotalRules      int            `json:"total_rules"`
	PassedRules     int            `json:"passed_rules"`
	ComplianceScore float64        `json:"compliance_score"`
	Summary         string         `json:"summary"`
	AISummary       Narrative      `json:"ai_summary"`
	OutputPath      string         `json:"output_path,omitempty"`
}

// Result is one outcome row per evaluated rule.
type Result struct {
	ID          string         `json:"id"`
	ScanID      ScanID         `json:"scan_id"`
	RuleID      string         `json:"rule_id"`
	RuleTitle   string         `json:"rule_title"`
	Severity    rules.Severity `json:"severity"`
	Passed      bool           `json:"passed"`
	Stdout      string         `json:"stdout"`
	Stderr      string         `json:"stderr"`
	Details     map[string]any `json:"details"`
	ExecutedAt  time.Time      `json:"executed_at"`
	CompletedAt time.Time      `json:"completed_at"`
	RuntimeMS   int64          `json:"runtime_ms"`
}

// StatusLabel is "passed" or "failed".
func (r Result) StatusLabel() string {
	if r.Passed {
		return "passed"
	}
	return "failed"
}

// Report is the externally facing aggregate of a completed scan.
type Report struct {
	ID             string            `json:"id"`
	ScanID         ScanID            `json:"scan_id"`
	OrganizationID string            `json:"organization_id"`
	BenchmarkID    string            `json:"benchmark_id"`
	Hostname       string            `json:"hostname"`
	Score          float64           `json:"score"`
	Summary        string            `json:"summary"`
	Status         ReportStatus      `json:"status"`
	Severity       rules.Severity    `json:"severity"`
	Tags           []string          `json:"tags"`
	KeyFindings    []string          `json:"key_findings"`
	Remediations   []string          `json:"remediations"`
	OutputPath     string            `json:"output_path,omitempty"`
	Renderings     map[string]string `json:"renderings,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
