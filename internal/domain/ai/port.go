package ai

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned when the provider rejects a request for quota or rate limits.
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// FailedCheck is one failed rule as the advisor sees it.
type FailedCheck struct {
	RuleID   string `json:"rule_id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Evidence string `json:"evidence,omitempty"`
}

// ScanDigest is the compact view of a scan sent to a model.
type ScanDigest struct {
	Hostname    string        `json:"hostname"`
	BenchmarkID string        `json:"benchmark_id"`
	Score       float64       `json:"score"`
	TotalRules  int           `json:"total_rules"`
	PassedRules int           `json:"passed_rules"`
	Failed      []FailedCheck `json:"failed"`
}

type Client interface {
	Analyze(ctx context.Context, digest ScanDigest) (string, error)
}
