package rules

import (
	"context"
	"time"
)

// Evaluator runs one rule against the local host. The returned error is
// non-nil only for rules that should have been rejected by Validate.
type Evaluator interface {
	Evaluate(ctx context.Context, r Rule) (Evaluation, error)
}

// Repository persists benchmarks and their rules.
type Repository interface {
	ReplaceBenchmark(ctx context.Context, b *Benchmark, rs []Rule) error
	ListByBenchmark(ctx context.Context, benchmarkID string) ([]Rule, error)
	ListByIDs(ctx context.Context, ids []string) ([]Rule, error)
	MarkEvaluated(ctx context.Context, ruleID string, at time.Time) error
}

// GroupRepository persists rule groups. Reads are organization scoped.
type GroupRepository interface {
	SaveGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, organizationID, id string) (*Group, error)
	TouchGroup(ctx context.Context, organizationID, id string, at time.Time) error
}
