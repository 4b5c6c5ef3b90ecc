package scans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/compliance-pulse/internal/application"
	auditapp "github.com/bryanwahyu/compliance-pulse/internal/application/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/jobs"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
	"github.com/bryanwahyu/compliance-pulse/internal/metrics"
)

// Executor turns a rule set into a scored scan, report and artifacts.
// It is bound to one organization; every read and write is scoped to it.
type Executor struct {
	OrganizationID string

	Rules     rules.Repository
	Groups    rules.GroupRepository
	Repo      domain.Repository
	Engine    rules.Evaluator
	Artifacts domain.ArtifactStore
	Renderers []domain.Renderer
	Advisor   domain.Advisor
	Host      domain.HostProber
	Audit     *auditapp.Recorder
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Clock     application.Clock
}

func (e *Executor) clock() application.Clock {
	if e.Clock == nil {
		return application.SystemClock{}
	}
	return e.Clock
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// ExecuteJob runs a queued job. A job owned by another organization is
// rejected before anything is read or written.
func (e *Executor) ExecuteJob(ctx context.Context, job *jobs.Job) (*domain.Execution, error) {
	if job.OrganizationID != e.OrganizationID {
		return nil, fmt.Errorf("%w: job %s belongs to organization %q, executor is bound to %q",
			domain.ErrTenantMismatch, job.ID, job.OrganizationID, e.OrganizationID)
	}
	triggeredBy := job.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "job:" + job.ID
	}
	return e.RunForGroup(ctx, job.GroupID, job.Hostname, "", triggeredBy)
}

// RunForGroup resolves the group's explicit rule list, or every rule of its
// benchmark when the list is empty, and runs them.
func (e *Executor) RunForGroup(ctx context.Context, groupID, hostname, ip, triggeredBy string) (*domain.Execution, error) {
	group, err := e.Groups.GetGroup(ctx, e.OrganizationID, groupID)
	if err != nil {
		return nil, fmt.Errorf("load group %s: %w", groupID, err)
	}

	var rs []rules.Rule
	if len(group.RuleIDs) > 0 {
		rs, err = e.Rules.ListByIDs(ctx, group.RuleIDs)
	} else {
		rs, err = e.Rules.ListByBenchmark(ctx, group.BenchmarkID)
	}
	if err != nil {
		return nil, fmt.Errorf("load rules for group %s: %w", groupID, err)
	}

	if hostname == "" {
		hostname = group.DefaultHostname
	}
	if ip == "" {
		ip = group.DefaultIP
	}
	return e.RunForRules(ctx, domain.RunRequest{
		Hostname:    hostname,
		IP:          ip,
		BenchmarkID: group.BenchmarkID,
		Rules:       rs,
		TriggeredBy: triggeredBy,
		Group:       group,
	})
}

// RunForRules evaluates req.Rules in order. A rule that fails to evaluate is
// recorded as a failed result; only storage errors abort the scan.
func (e *Executor) RunForRules(ctx context.Context, req domain.RunRequest) (*domain.Execution, error) {
	clock := e.clock()
	hostname := req.Hostname
	if hostname == "" {
		hostname = "localhost"
	}

	scan := &domain.Scan{
		ID:             domain.ScanID(uuid.NewString()),
		OrganizationID: e.OrganizationID,
		Hostname:       hostname,
		IP:             req.IP,
		BenchmarkID:    req.BenchmarkID,
		Status:         domain.StatusRunning,
		Severity:       rules.MaxSeverity(req.Rules),
		Tags:           mergeTags(req.Group, req.Rules, req.ExtraTags),
		TriggeredBy:    req.TriggeredBy,
		StartedAt:      clock.Now().UTC(),
	}
	if req.Group != nil {
		scan.GroupID = req.Group.ID
	}
	if err := e.Repo.Create(ctx, scan); err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}
	log := e.logger().With("scan_id", scan.ID, "organization_id", e.OrganizationID, "group_id", scan.GroupID)
	log.Info("scan started", "hostname", hostname, "benchmark_id", req.BenchmarkID, "rules", len(req.Rules))

	var (
		tally       Tally
		results     = make([]domain.Result, 0, len(req.Rules))
		remediation = make(map[string]string, len(req.Rules))
	)
	for _, rule := range req.Rules {
		res := e.evaluate(ctx, log, scan, rule)
		if err := e.Repo.AddResult(ctx, &res); err != nil {
			return nil, e.fail(ctx, log, scan, fmt.Errorf("scan %s: %w", scan.ID, err))
		}
		if err := e.Rules.MarkEvaluated(ctx, rule.ID, res.CompletedAt); err != nil {
			log.Warn("failed to stamp rule last_run", "rule_id", rule.ID, "error", err)
		}
		tally.Add(res)
		results = append(results, res)
		remediation[rule.ID] = rule.Remediation
	}

	narrative := BuildNarrative(results, remediation)
	completed := clock.Now().UTC()
	scan.Status = domain.StatusCompleted
	scan.CompletedAt = &completed
	scan.TotalRules = tally.Total
	scan.PassedRules = tally.Passed
	scan.ComplianceScore = tally.Score()
	scan.Summary = narrative.Summary
	scan.AISummary = narrative
	e.advise(ctx, log, scan, results)

	report := &domain.Report{
		ID:             uuid.NewString(),
		ScanID:         scan.ID,
		OrganizationID: e.OrganizationID,
		BenchmarkID:    req.BenchmarkID,
		Hostname:       hostname,
		Score:          scan.ComplianceScore,
		Summary:        narrative.Summary,
		Status:         tally.Status(),
		Severity:       scan.Severity,
		Tags:           scan.Tags,
		KeyFindings:    narrative.KeyFindings,
		Remediations:   narrative.Remediations,
		CreatedAt:      completed,
	}
	if err := e.Repo.Complete(ctx, scan, report); err != nil {
		return nil, e.fail(ctx, log, scan, fmt.Errorf("complete scan %s: %w", scan.ID, err))
	}
	e.Metrics.ObserveScan(string(report.Status), report.Score)
	log.Info("scan completed",
		"score", scan.ComplianceScore,
		"passed", scan.PassedRules,
		"total", scan.TotalRules,
		"status", report.Status,
	)

	if err := e.writeArtifacts(ctx, scan, report, results); err != nil {
		log.Error("failed to write scan artifacts", "error", err)
	}

	if req.Group != nil {
		if err := e.Groups.TouchGroup(ctx, e.OrganizationID, req.Group.ID, completed); err != nil {
			log.Warn("failed to stamp group last_run", "error", err)
		}
	}
	return &domain.Execution{Scan: scan, Results: results, Report: report}, nil
}

// fail closes scan as failed and returns cause. The write runs even when ctx
// is already cancelled.
func (e *Executor) fail(ctx context.Context, log *slog.Logger, scan *domain.Scan, cause error) error {
	completed := e.clock().Now().UTC()
	scan.Status = domain.StatusFailed
	scan.CompletedAt = &completed
	scan.Summary = "Scan failed: " + cause.Error()
	if err := e.Repo.Fail(context.WithoutCancel(ctx), scan); err != nil {
		log.Error("failed to mark scan failed", "error", err)
	}
	log.Error("scan failed", "error", cause)
	return cause
}

func (e *Executor) evaluate(ctx context.Context, log *slog.Logger, scan *domain.Scan, rule rules.Rule) (res domain.Result) {
	clock := e.clock()
	res = domain.Result{
		ID:        uuid.NewString(),
		ScanID:    scan.ID,
		RuleID:    rule.ID,
		RuleTitle: rule.Title,
		Severity:  rule.Severity.Normalize(),
	}

	ev, err := e.safeEvaluate(ctx, rule)
	res.Passed = ev.Passed && err == nil
	res.Stdout, res.Stderr = ev.Stdout, ev.Stderr
	res.Details = ev.Details
	if res.Details == nil {
		res.Details = map[string]any{}
	}
	if err != nil {
		res.Details["error"] = err.Error()
		log.Warn("rule evaluation failed", "rule_id", rule.ID, "error", err)
	}
	res.ExecutedAt, res.CompletedAt, res.RuntimeMS = ev.StartedAt, ev.CompletedAt, ev.RuntimeMS
	if res.ExecutedAt.IsZero() {
		res.ExecutedAt = clock.Now().UTC()
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = res.ExecutedAt
	}

	e.Metrics.ObserveEvaluation(res.Passed, ev.SandboxViolation(), ev.TimedOut())
	switch {
	case ev.SandboxViolation():
		e.Audit.Record(ctx, audit.Event{
			OrganizationID: e.OrganizationID,
			Action:         audit.ActionSandboxViolation,
			ResourceType:   "rule",
			ResourceID:     rule.ID,
			Message:        fmt.Sprint(res.Details["error"]),
			Metadata:       map[string]any{"scan_id": string(scan.ID), "command": rule.Command},
		})
	case ev.TimedOut():
		e.Audit.Record(ctx, audit.Event{
			OrganizationID: e.OrganizationID,
			Action:         audit.ActionCommandTimeout,
			ResourceType:   "rule",
			ResourceID:     rule.ID,
			Message:        res.Stderr,
			Metadata:       map[string]any{"scan_id": string(scan.ID), "timeout_seconds": rule.TimeoutSeconds},
		})
	}
	return res
}

// safeEvaluate shields the scan from evaluators that panic.
func (e *Executor) safeEvaluate(ctx context.Context, rule rules.Rule) (ev rules.Evaluation, err error) {
	defer func() {
		if p := recover(); p != nil {
			ev = rules.Evaluation{RuleID: rule.ID, Details: map[string]any{}}
			err = fmt.Errorf("evaluator panic: %v", p)
		}
	}()
	ev, err = e.Engine.Evaluate(ctx, rule)
	if err != nil && !errors.Is(err, rules.ErrUnsupportedExpectation) {
		err = fmt.Errorf("evaluate %s: %w", rule.ID, err)
	}
	return ev, err
}

func (e *Executor) advise(ctx context.Context, log *slog.Logger, scan *domain.Scan, results []domain.Result) {
	if e.Advisor == nil {
		return
	}
	advice, err := e.Advisor.Advise(ctx, scan, results)
	if err != nil {
		log.Warn("advisor unavailable, keeping deterministic narrative", "error", err)
		return
	}
	if strings.TrimSpace(advice) == "" {
		return
	}
	scan.AISummary.Advice = advice
	scan.AISummary.AdviceSource = "ai"
}

// mergeTags unions group, rule and extra tags in first-seen order.
func mergeTags(group *rules.Group, rs []rules.Rule, extra []string) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(tags []string) {
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t != "" && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	if group != nil {
		add(group.Tags)
	}
	for _, r := range rs {
		add(r.Tags)
	}
	add(extra)
	return out
}

// Pool runs each job on a copy of Template bound to the job's organization.
// Used by workers that are not bound to a single organization.
type Pool struct {
	Template Executor
}

// For returns an executor bound to organizationID.
func (p *Pool) For(organizationID string) *Executor {
	e := p.Template
	e.OrganizationID = organizationID
	return &e
}

func (p *Pool) ExecuteJob(ctx context.Context, job *jobs.Job) (*domain.Execution, error) {
	return p.For(job.OrganizationID).ExecuteJob(ctx, job)
}
