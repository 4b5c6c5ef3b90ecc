package ai

import (
	"context"
	"strings"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/ai"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

// maxEvidence bounds the output excerpt sent per failed check.
const maxEvidence = 400

// Service adapts an ai.Client into a scan advisor.
type Service struct {
	client    ai.Client
	maxFailed int
}

func NewService(client ai.Client) *Service {
	return &Service{client: client, maxFailed: 25}
}

// Advise implements scans.Advisor.
func (s *Service) Advise(ctx context.Context, scan *scans.Scan, results []scans.Result) (string, error) {
	return s.client.Analyze(ctx, Digest(scan, results, s.maxFailed))
}

// Digest compacts a scan for the model, keeping at most maxFailed failures.
func Digest(scan *scans.Scan, results []scans.Result, maxFailed int) ai.ScanDigest {
	d := ai.ScanDigest{
		Hostname:    scan.Hostname,
		BenchmarkID: scan.BenchmarkID,
		Score:       scan.ComplianceScore,
		TotalRules:  scan.TotalRules,
		PassedRules: scan.PassedRules,
		Failed:      []ai.FailedCheck{},
	}
	for _, r := range results {
		if r.Passed {
			continue
		}
		if maxFailed > 0 && len(d.Failed) >= maxFailed {
			break
		}
		evidence := strings.TrimSpace(r.Stderr)
		if evidence == "" {
			evidence = strings.TrimSpace(r.Stdout)
		}
		if len(evidence) > maxEvidence {
			evidence = evidence[:maxEvidence]
		}
		d.Failed = append(d.Failed, ai.FailedCheck{
			RuleID:   r.RuleID,
			Title:    r.RuleTitle,
			Severity: string(r.Severity),
			Evidence: evidence,
		})
	}
	return d
}
