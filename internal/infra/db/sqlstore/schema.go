package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// Logical column types resolved through Dialect.Type.
const (
	TypeID        = "id"
	TypeString    = "string"
	TypeText      = "text"
	TypeTimestamp = "timestamp"
	TypeFloat     = "float"
	TypeBool      = "bool"
	TypeInt       = "int"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS benchmarks (
	id {{id}} PRIMARY KEY,
	title {{string}} NOT NULL,
	description {{text}},
	version {{string}},
	os_target {{string}},
	maintainer {{string}},
	source {{string}},
	tags {{text}},
	schema_version {{string}},
	updated_at {{timestamp}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS rules (
	id {{id}} PRIMARY KEY,
	benchmark_id {{id}} NOT NULL,
	title {{string}} NOT NULL,
	description {{text}},
	severity {{string}} NOT NULL,
	remediation {{text}},
	refs {{text}},
	tags {{text}},
	check_type {{string}} NOT NULL,
	command {{text}},
	expect_type {{string}},
	expect_value {{text}},
	timeout_seconds {{int}} NOT NULL DEFAULT 0,
	metadata {{text}},
	last_run {{timestamp}} NULL
)`,
	`CREATE TABLE IF NOT EXISTS rule_groups (
	id {{id}} PRIMARY KEY,
	organization_id {{id}} NOT NULL,
	name {{string}} NOT NULL,
	description {{text}},
	benchmark_id {{id}} NOT NULL,
	rule_ids {{text}},
	default_hostname {{string}},
	default_ip {{string}},
	tags {{text}},
	last_run {{timestamp}} NULL,
	created_at {{timestamp}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS schedules (
	id {{id}} PRIMARY KEY,
	organization_id {{id}} NOT NULL,
	group_id {{id}} NOT NULL,
	name {{string}},
	frequency {{string}} NOT NULL,
	interval_minutes {{int}} NOT NULL DEFAULT 0,
	enabled {{bool}} NOT NULL,
	next_run {{timestamp}} NULL,
	last_run {{timestamp}} NULL,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS scan_jobs (
	id {{id}} PRIMARY KEY,
	organization_id {{id}} NOT NULL,
	group_id {{id}} NOT NULL,
	schedule_id {{id}},
	hostname {{string}},
	triggered_by {{string}},
	status {{string}} NOT NULL,
	error {{text}},
	scan_id {{id}},
	created_at {{timestamp}} NOT NULL,
	started_at {{timestamp}} NULL,
	completed_at {{timestamp}} NULL
)`,
	`CREATE TABLE IF NOT EXISTS scans (
	id {{id}} PRIMARY KEY,
	organization_id {{id}} NOT NULL,
	hostname {{string}} NOT NULL,
	ip {{string}},
	benchmark_id {{id}},
	group_id {{id}},
	status {{string}} NOT NULL,
	severity {{string}} NOT NULL,
	tags {{text}},
	triggered_by {{string}},
	started_at {{timestamp}} NOT NULL,
	completed_at {{timestamp}} NULL,
	total_rules {{int}} NOT NULL DEFAULT 0,
	passed_rules {{int}} NOT NULL DEFAULT 0,
	compliance_score {{float}} NOT NULL DEFAULT 0,
	summary {{text}},
	ai_summary {{text}},
	output_path {{text}}
)`,
	`CREATE TABLE IF NOT EXISTS scan_results (
	id {{id}} PRIMARY KEY,
	scan_id {{id}} NOT NULL,
	rule_id {{id}} NOT NULL,
	rule_title {{string}},
	severity {{string}},
	passed {{bool}} NOT NULL,
	stdout {{text}},
	stderr {{text}},
	details {{text}},
	executed_at {{timestamp}} NOT NULL,
	completed_at {{timestamp}} NOT NULL,
	runtime_ms {{int}} NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS reports (
	id {{id}} PRIMARY KEY,
	scan_id {{id}} NOT NULL UNIQUE,
	organization_id {{id}} NOT NULL,
	benchmark_id {{id}},
	hostname {{string}},
	score {{float}} NOT NULL DEFAULT 0,
	summary {{text}},
	status {{string}} NOT NULL,
	severity {{string}},
	tags {{text}},
	key_findings {{text}},
	remediations {{text}},
	output_path {{text}},
	renderings {{text}},
	created_at {{timestamp}} NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
	id {{id}} PRIMARY KEY,
	organization_id {{id}},
	action {{string}} NOT NULL,
	resource_type {{string}},
	resource_id {{id}},
	message {{text}},
	metadata {{text}},
	created_at {{timestamp}} NOT NULL
)`,
}

var indexes = [][3]string{
	{"idx_rules_benchmark", "rules", "benchmark_id"},
	{"idx_groups_org", "rule_groups", "organization_id"},
	{"idx_schedules_enabled", "schedules", "enabled"},
	{"idx_jobs_status_created", "scan_jobs", "status, created_at"},
	{"idx_jobs_group_status", "scan_jobs", "group_id, status"},
	{"idx_scans_org_started", "scans", "organization_id, started_at"},
	{"idx_results_scan", "scan_results", "scan_id"},
	{"idx_audit_org_created", "audit_events", "organization_id, created_at"},
}

func (s *Store) ddl(stmt string) string {
	for _, logical := range []string{TypeID, TypeString, TypeText, TypeTimestamp, TypeFloat, TypeBool, TypeInt} {
		stmt = strings.ReplaceAll(stmt, "{{"+logical+"}}", s.dialect.Type(logical))
	}
	return stmt
}

// Migrate creates the schema. Statements run one at a time since not every
// driver accepts multi-statement strings.
func (s *Store) Migrate(ctx context.Context) error {
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, s.ddl(t)); err != nil && !s.dialect.IgnoreMigrationError(err) {
			return fmt.Errorf("migrate %s: %w", s.dialect.Name(), err)
		}
	}
	for _, ix := range indexes {
		stmt := s.dialect.CreateIndex(ix[0], ix[1], ix[2])
		if _, err := s.db.ExecContext(ctx, stmt); err != nil && !s.dialect.IgnoreMigrationError(err) {
			return fmt.Errorf("create index %s: %w", ix[0], err)
		}
	}
	return nil
}
