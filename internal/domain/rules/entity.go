package rules

import (
	"fmt"
	"strings"
	"time"
)

// Severity of a rule, lowest to highest.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityWeights = map[Severity]int{
	SeverityInfo:     1,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Normalize lowercases and trims the severity.
func (s Severity) Normalize() Severity {
	return Severity(strings.ToLower(strings.TrimSpace(string(s))))
}

// Weight is the scoring weight. Unknown severities weigh 1.
func (s Severity) Weight() int {
	if w, ok := severityWeights[s.Normalize()]; ok {
		return w
	}
	return 1
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s.Normalize()]
	return ok
}

// MaxSeverity returns the highest severity among rs, info when rs is empty.
func MaxSeverity(rs []Rule) Severity {
	highest := SeverityInfo
	for _, r := range rs {
		sev := r.Severity.Normalize()
		if rank, ok := severityRank[sev]; ok && rank > severityRank[highest] {
			highest = sev
		}
	}
	return highest
}

// CheckType selects the handler used to evaluate a rule.
type CheckType string

const (
	CheckShell              CheckType = "shell"
	CheckFileExists         CheckType = "file_exists"
	CheckCommandOutputMatch CheckType = "command_output_match"
	CheckPortOpen           CheckType = "port_open"
	CheckPackageInstalled   CheckType = "package_installed"
)

func (c CheckType) Valid() bool {
	switch c {
	case CheckShell, CheckFileExists, CheckCommandOutputMatch, CheckPortOpen, CheckPackageInstalled:
		return true
	}
	return false
}

// ExpectType is how a shell rule's outcome is compared to ExpectValue.
type ExpectType string

const (
	ExpectExitCode    ExpectType = "exit_code"
	ExpectContains    ExpectType = "contains"
	ExpectNotContains ExpectType = "not_contains"
	ExpectEquals      ExpectType = "equals"
)

// Normalize lower-cases and trims the expectation kind.
func (e ExpectType) Normalize() ExpectType {
	return ExpectType(strings.ToLower(strings.TrimSpace(string(e))))
}

func (e ExpectType) Valid() bool {
	switch e {
	case ExpectExitCode, ExpectContains, ExpectNotContains, ExpectEquals:
		return true
	}
	return false
}

// Benchmark is a named set of rules targeting a platform baseline.
type Benchmark struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Version       string    `json:"version"`
	OSTarget      string    `json:"os_target"`
	Maintainer    string    `json:"maintainer,omitempty"`
	Source        string    `json:"source,omitempty"`
	Tags          []string  `json:"tags"`
	SchemaVersion string    `json:"schema_version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Rule is an immutable check definition.
type Rule struct {
	ID             string         `json:"id"`
	BenchmarkID    string         `json:"benchmark_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Severity       Severity       `json:"severity"`
	Remediation    string         `json:"remediation"`
	References     []string       `json:"references,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	CheckType      CheckType      `json:"check_type"`
	Command        string         `json:"command"`
	ExpectType     ExpectType     `json:"expect_type"`
	ExpectValue    string         `json:"expect_value"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	LastRun        *time.Time     `json:"last_run,omitempty"`
}

// Kind resolves the handler type: metadata "type" wins over CheckType, default shell.
func (r Rule) Kind() CheckType {
	if v, ok := r.Metadata["type"].(string); ok && strings.TrimSpace(v) != "" {
		return CheckType(strings.ToLower(strings.TrimSpace(v)))
	}
	if r.CheckType != "" {
		return CheckType(strings.ToLower(string(r.CheckType)))
	}
	return CheckShell
}

// MetaString returns a string metadata value, or "" when absent.
func (r Rule) MetaString(key string) string {
	switch v := r.Metadata[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Validate is the construction-time check applied by ingestion.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if !r.Kind().Valid() {
		return fmt.Errorf("rule %s: %w: %q", r.ID, ErrUnsupportedCheck, r.Kind())
	}
	if r.Kind() == CheckShell {
		if !r.ExpectType.Normalize().Valid() {
			return fmt.Errorf("rule %s: %w: %q", r.ID, ErrUnsupportedExpectation, r.ExpectType)
		}
	}
	if r.TimeoutSeconds < 0 {
		return fmt.Errorf("rule %s: negative timeout", r.ID)
	}
	return nil
}

// Group is a tenant-owned collection of rules with a default target host.
type Group struct {
	ID              string     `json:"id"`
	OrganizationID  string     `json:"organization_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	BenchmarkID     string     `json:"benchmark_id"`
	RuleIDs         []string   `json:"rule_ids"`
	DefaultHostname string     `json:"default_hostname"`
	DefaultIP       string     `json:"default_ip,omitempty"`
	Tags            []string   `json:"tags"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Evaluation is the uniform outcome of evaluating one rule.
type Evaluation struct {
	RuleID      string         `json:"rule_id"`
	Passed      bool           `json:"passed"`
	Stdout      string         `json:"stdout"`
	Stderr      string         `json:"stderr"`
	Details     map[string]any `json:"details"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	RuntimeMS   int64          `json:"runtime_ms"`
}

// ExitCode reads details.exit_code, ok is false when no process ran.
func (e Evaluation) ExitCode() (int, bool) {
	switch v := e.Details["exit_code"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// SandboxViolation reports whether the evaluation failed closed on policy.
func (e Evaluation) SandboxViolation() bool {
	v, _ := e.Details["sandbox_violation"].(bool)
	return v
}

// TimedOut reports whether the spawned process hit its timeout.
func (e Evaluation) TimedOut() bool {
	v, _ := e.Details["timed_out"].(bool)
	return v
}
