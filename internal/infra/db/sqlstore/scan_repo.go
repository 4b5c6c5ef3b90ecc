package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

const scanColumns = `id, organization_id, hostname, ip, benchmark_id, group_id, status, severity, tags,
 triggered_by, started_at, completed_at, total_rules, passed_rules, compliance_score, summary, ai_summary, output_path`

// Create inserts a new scan row.
func (s *ScanRepository) Create(ctx context.Context, sc *domain.Scan) error {
	if sc.StartedAt.IsZero() {
		sc.StartedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.db, `INSERT INTO scans (`+scanColumns+`) VALUES (`+placeholders(18)+`)`,
		string(sc.ID), sc.OrganizationID, stringOrDash(sc.Hostname), sc.IP, sc.BenchmarkID, nullString(sc.GroupID),
		string(sc.Status), string(sc.Severity), encodeJSON(sc.Tags), sc.TriggeredBy, sc.StartedAt.UTC(),
		nullTime(sc.CompletedAt), sc.TotalRules, sc.PassedRules, sc.ComplianceScore, sc.Summary,
		encodeJSON(sc.AISummary), nullString(sc.OutputPath),
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// AddResult inserts one immutable result row.
func (s *ScanRepository) AddResult(ctx context.Context, r *domain.Result) error {
	_, err := s.exec(ctx, s.db, `
INSERT INTO scan_results (id, scan_id, rule_id, rule_title, severity, passed, stdout, stderr, details,
 executed_at, completed_at, runtime_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, string(r.ScanID), r.RuleID, r.RuleTitle, string(r.Severity), r.Passed, r.Stdout, r.Stderr,
		encodeJSON(r.Details), utc(r.ExecutedAt), utc(r.CompletedAt), r.RuntimeMS,
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.RuleID, err)
	}
	return nil
}

// Complete updates the scan and inserts its report in the same transaction.
func (s *ScanRepository) Complete(ctx context.Context, sc *domain.Scan, rep *domain.Report) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `
UPDATE scans SET status=?, completed_at=?, total_rules=?, passed_rules=?, compliance_score=?,
 summary=?, ai_summary=? WHERE id=? AND organization_id=?`,
			string(sc.Status), nullTime(sc.CompletedAt), sc.TotalRules, sc.PassedRules, sc.ComplianceScore,
			sc.Summary, encodeJSON(sc.AISummary), string(sc.ID), sc.OrganizationID,
		)
		if err != nil {
			return fmt.Errorf("complete scan: %w", err)
		}
		_, err = s.exec(ctx, tx, `
INSERT INTO reports (id, scan_id, organization_id, benchmark_id, hostname, score, summary, status, severity,
 tags, key_findings, remediations, output_path, renderings, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			rep.ID, string(rep.ScanID), rep.OrganizationID, rep.BenchmarkID, rep.Hostname, rep.Score, rep.Summary,
			string(rep.Status), string(rep.Severity), encodeJSON(rep.Tags), encodeJSON(rep.KeyFindings),
			encodeJSON(rep.Remediations), nullString(rep.OutputPath), encodeJSON(rep.Renderings), utc(rep.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		return nil
	})
}

// Fail marks a running scan failed. Completed scans are left untouched.
func (s *ScanRepository) Fail(ctx context.Context, sc *domain.Scan) error {
	res, err := s.exec(ctx, s.db, `
UPDATE scans SET status=?, completed_at=?, summary=? WHERE id=? AND organization_id=? AND status=?`,
		string(domain.StatusFailed), nullTime(sc.CompletedAt), sc.Summary, string(sc.ID), sc.OrganizationID,
		string(domain.StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("fail scan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetArtifacts back-fills artifact locations, the only change allowed after completion.
func (s *ScanRepository) SetArtifacts(ctx context.Context, sc *domain.Scan, rep *domain.Report) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `UPDATE scans SET output_path=? WHERE id=? AND organization_id=?`,
			nullString(sc.OutputPath), string(sc.ID), sc.OrganizationID); err != nil {
			return err
		}
		if rep == nil {
			return nil
		}
		_, err := s.exec(ctx, tx, `UPDATE reports SET output_path=?, renderings=? WHERE id=? AND organization_id=?`,
			nullString(rep.OutputPath), encodeJSON(rep.Renderings), rep.ID, rep.OrganizationID)
		return err
	})
}

func (s *ScanRepository) Get(ctx context.Context, organizationID string, id domain.ScanID) (*domain.Scan, error) {
	row := s.queryRow(ctx, `SELECT `+scanColumns+` FROM scans WHERE organization_id=? AND id=? LIMIT 1`,
		organizationID, string(id))
	sc, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return sc, err
}

// Latest scans per organization
func (s *ScanRepository) Latest(ctx context.Context, organizationID string, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(ctx, `SELECT `+scanColumns+` FROM scans WHERE organization_id=? ORDER BY started_at DESC LIMIT ?`,
		organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Scan
	for rows.Next() {
		sc, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *ScanRepository) Results(ctx context.Context, organizationID string, id domain.ScanID) ([]domain.Result, error) {
	rows, err := s.query(ctx, `
SELECT r.id, r.scan_id, r.rule_id, r.rule_title, r.severity, r.passed, r.stdout, r.stderr, r.details,
 r.executed_at, r.completed_at, r.runtime_ms
FROM scan_results r JOIN scans s ON s.id = r.scan_id
WHERE s.organization_id=? AND r.scan_id=?
ORDER BY r.executed_at, r.id`, organizationID, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Result
	for rows.Next() {
		var (
			r                              domain.Result
			scanID, severity               string
			title, stdout, stderr, details sql.NullString
		)
		if err := rows.Scan(&r.ID, &scanID, &r.RuleID, &title, &severity, &r.Passed, &stdout, &stderr, &details,
			&r.ExecutedAt, &r.CompletedAt, &r.RuntimeMS); err != nil {
			return nil, err
		}
		r.ScanID, r.Severity = domain.ScanID(scanID), rules.Severity(severity)
		r.RuleTitle, r.Stdout, r.Stderr = title.String, stdout.String, stderr.String
		r.ExecutedAt, r.CompletedAt = r.ExecutedAt.UTC(), r.CompletedAt.UTC()
		if err := decodeJSON(details, &r.Details); err != nil {
			return nil, fmt.Errorf("result %s details: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ScanRepository) ReportFor(ctx context.Context, organizationID string, id domain.ScanID) (*domain.Report, error) {
	row := s.queryRow(ctx, `
SELECT id, scan_id, organization_id, benchmark_id, hostname, score, summary, status, severity,
 tags, key_findings, remediations, output_path, renderings, created_at
FROM reports WHERE organization_id=? AND scan_id=?`, organizationID, string(id))

	var (
		rep                                           domain.Report
		scanID, status                                string
		bench, host, summary, severity                sql.NullString
		tags, findings, remediations, out, renderings sql.NullString
	)
	err := row.Scan(&rep.ID, &scanID, &rep.OrganizationID, &bench, &host, &rep.Score, &summary, &status, &severity,
		&tags, &findings, &remediations, &out, &renderings, &rep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rep.ScanID, rep.Status = domain.ScanID(scanID), domain.ReportStatus(status)
	rep.BenchmarkID, rep.Hostname, rep.Summary = bench.String, host.String, summary.String
	rep.Severity, rep.OutputPath = rules.Severity(severity.String), out.String
	rep.CreatedAt = rep.CreatedAt.UTC()
	for _, f := range []struct {
		raw sql.NullString
		dst any
	}{{tags, &rep.Tags}, {findings, &rep.KeyFindings}, {remediations, &rep.Remediations}, {renderings, &rep.Renderings}} {
		if err := decodeJSON(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("report %s: %w", rep.ID, err)
		}
	}
	return &rep, nil
}

func scanScan(row rowScanner) (*domain.Scan, error) {
	var (
		sc                                  domain.Scan
		id, status, severity                string
		ip, bench, group, tags, by, summary sql.NullString
		aiSummary, outputPath               sql.NullString
		completed                           sql.NullTime
	)
	if err := row.Scan(&id, &sc.OrganizationID, &sc.Hostname, &ip, &bench, &group, &status, &severity, &tags,
		&by, &sc.StartedAt, &completed, &sc.TotalRules, &sc.PassedRules, &sc.ComplianceScore, &summary,
		&aiSummary, &outputPath); err != nil {
		return nil, err
	}
	sc.ID, sc.Status, sc.Severity = domain.ScanID(id), domain.Status(status), rules.Severity(severity)
	sc.IP, sc.BenchmarkID, sc.GroupID = ip.String, bench.String, group.String
	sc.TriggeredBy, sc.Summary, sc.OutputPath = by.String, summary.String, outputPath.String
	sc.StartedAt = sc.StartedAt.UTC()
	sc.CompletedAt = timePtr(completed)
	if err := decodeJSON(tags, &sc.Tags); err != nil {
		return nil, fmt.Errorf("scan %s tags: %w", id, err)
	}
	if err := decodeJSON(aiSummary, &sc.AISummary); err != nil {
		return nil, fmt.Errorf("scan %s ai_summary: %w", id, err)
	}
	return &sc, nil
}
