package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
)

const ruleColumns = `id, benchmark_id, title, description, severity, remediation, refs, tags,
 check_type, command, expect_type, expect_value, timeout_seconds, metadata, last_run`

// ReplaceBenchmark upserts b and replaces its whole rule set atomically.
func (s *RuleRepository) ReplaceBenchmark(ctx context.Context, b *rules.Benchmark, rs []rules.Rule) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM benchmarks WHERE id=?`, b.ID); err != nil {
			return fmt.Errorf("delete benchmark: %w", err)
		}
		_, err := s.exec(ctx, tx, `
INSERT INTO benchmarks (id, title, description, version, os_target, maintainer, source, tags, schema_version, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
			b.ID, stringOrDash(b.Title), b.Description, b.Version, b.OSTarget, b.Maintainer, b.Source,
			encodeJSON(b.Tags), b.SchemaVersion, utc(b.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert benchmark: %w", err)
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM rules WHERE benchmark_id=?`, b.ID); err != nil {
			return fmt.Errorf("delete rules: %w", err)
		}
		for _, r := range rs {
			_, err := s.exec(ctx, tx, `INSERT INTO rules (`+ruleColumns+`) VALUES (`+placeholders(15)+`)`,
				r.ID, b.ID, stringOrDash(r.Title), r.Description, string(r.Severity.Normalize()), r.Remediation,
				encodeJSON(r.References), encodeJSON(r.Tags), string(r.Kind()), r.Command,
				string(r.ExpectType), r.ExpectValue, r.TimeoutSeconds, encodeJSON(r.Metadata), nullTime(r.LastRun),
			)
			if err != nil {
				return fmt.Errorf("insert rule %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ListByBenchmark returns every rule of a benchmark ordered by id.
func (s *RuleRepository) ListByBenchmark(ctx context.Context, benchmarkID string) ([]rules.Rule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE benchmark_id=? ORDER BY id`, benchmarkID)
}

// ListByIDs keeps the order of ids and skips unknown ones.
func (s *RuleRepository) ListByIDs(ctx context.Context, ids []string) ([]rules.Rule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	found, err := s.listRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]rules.Rule, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	out := make([]rules.Rule, 0, len(found))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RuleRepository) MarkEvaluated(ctx context.Context, ruleID string, at time.Time) error {
	_, err := s.exec(ctx, s.db, `UPDATE rules SET last_run=? WHERE id=?`, at.UTC(), ruleID)
	return err
}

func (s *RuleRepository) listRules(ctx context.Context, query string, args ...any) ([]rules.Rule, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var (
			r                                      rules.Rule
			desc, remediation, refs, tags, command sql.NullString
			expectType, expectValue, metadata      sql.NullString
			severity, checkType                    string
			lastRun                                sql.NullTime
		)
		if err := rows.Scan(
			&r.ID, &r.BenchmarkID, &r.Title, &desc, &severity, &remediation, &refs, &tags,
			&checkType, &command, &expectType, &expectValue, &r.TimeoutSeconds, &metadata, &lastRun,
		); err != nil {
			return nil, err
		}
		r.Description, r.Remediation, r.Command = desc.String, remediation.String, command.String
		r.Severity, r.CheckType = rules.Severity(severity), rules.CheckType(checkType)
		r.ExpectType, r.ExpectValue = rules.ExpectType(expectType.String), expectValue.String
		r.LastRun = timePtr(lastRun)
		if err := decodeJSON(refs, &r.References); err != nil {
			return nil, fmt.Errorf("rule %s refs: %w", r.ID, err)
		}
		if err := decodeJSON(tags, &r.Tags); err != nil {
			return nil, fmt.Errorf("rule %s tags: %w", r.ID, err)
		}
		if err := decodeJSON(metadata, &r.Metadata); err != nil {
			return nil, fmt.Errorf("rule %s metadata: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const groupColumns = `id, organization_id, name, description, benchmark_id, rule_ids,
 default_hostname, default_ip, tags, last_run, created_at`

// SaveGroup inserts or replaces a rule group.
func (s *GroupRepository) SaveGroup(ctx context.Context, g *rules.Group) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM rule_groups WHERE id=? AND organization_id=?`, g.ID, g.OrganizationID); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `INSERT INTO rule_groups (`+groupColumns+`) VALUES (`+placeholders(11)+`)`,
			g.ID, g.OrganizationID, stringOrDash(g.Name), g.Description, g.BenchmarkID, encodeJSON(g.RuleIDs),
			g.DefaultHostname, g.DefaultIP, encodeJSON(g.Tags), nullTime(g.LastRun), g.CreatedAt.UTC(),
		)
		return err
	})
}

// GetGroup is organization scoped; another tenant's group reads as not found.
func (s *GroupRepository) GetGroup(ctx context.Context, organizationID, id string) (*rules.Group, error) {
	row := s.queryRow(ctx, `SELECT `+groupColumns+` FROM rule_groups WHERE organization_id=? AND id=?`, organizationID, id)
	var (
		g                             rules.Group
		desc, ruleIDs, host, ip, tags sql.NullString
		lastRun                       sql.NullTime
	)
	err := row.Scan(&g.ID, &g.OrganizationID, &g.Name, &desc, &g.BenchmarkID, &ruleIDs, &host, &ip, &tags, &lastRun, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rules.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	g.Description, g.DefaultHostname, g.DefaultIP = desc.String, host.String, ip.String
	g.LastRun = timePtr(lastRun)
	g.CreatedAt = g.CreatedAt.UTC()
	if err := decodeJSON(ruleIDs, &g.RuleIDs); err != nil {
		return nil, fmt.Errorf("group %s rule_ids: %w", g.ID, err)
	}
	if err := decodeJSON(tags, &g.Tags); err != nil {
		return nil, fmt.Errorf("group %s tags: %w", g.ID, err)
	}
	return &g, nil
}

func (s *GroupRepository) TouchGroup(ctx context.Context, organizationID, id string, at time.Time) error {
	_, err := s.exec(ctx, s.db, `UPDATE rule_groups SET last_run=? WHERE organization_id=? AND id=?`, at.UTC(), organizationID, id)
	return err
}
