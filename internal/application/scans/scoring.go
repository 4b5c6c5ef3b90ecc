package scans

import (
	"fmt"
	"math"

	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

// Tally is the aggregate of a scan's results.
type Tally struct {
	Total         int
	Passed        int
	WeightedPass  int
	WeightedTotal int
}

func (t *Tally) Add(r domain.Result) {
	w := r.Severity.Weight()
	t.Total++
	t.WeightedTotal += w
	if r.Passed {
		t.Passed++
		t.WeightedPass += w
	}
}

// Score is round(100 * weightedPass / weightedTotal, 2), 0 with no rules.
func (t Tally) Score() float64 {
	if t.WeightedTotal == 0 {
		return 0
	}
	return math.Round(10000*float64(t.WeightedPass)/float64(t.WeightedTotal)) / 100
}

func (t Tally) Status() domain.ReportStatus {
	if t.Total > 0 && t.Passed == t.Total {
		return domain.ReportPassed
	}
	return domain.ReportAttention
}

const maintainPosture = "Maintain current hardening posture; no failed controls detected."

// BuildNarrative derives summary, key findings and remediations from results.
func BuildNarrative(results []domain.Result, remediation map[string]string) domain.Narrative {
	n := domain.Narrative{
		KeyFindings:  make([]string, 0, len(results)),
		Remediations: []string{},
	}
	failed := 0
	for _, r := range results {
		title := r.RuleTitle
		if title == "" {
			title = r.RuleID
		}
		n.KeyFindings = append(n.KeyFindings, fmt.Sprintf("%s (%s) %s", title, r.Severity, r.StatusLabel()))
		if r.Passed {
			continue
		}
		failed++
		text := remediation[r.RuleID]
		if text == "" {
			text = "Review the failed control and apply the benchmark guidance."
		}
		n.Remediations = append(n.Remediations, fmt.Sprintf("%s: %s", title, text))
	}

	switch {
	case len(results) > 0 && failed == 0:
		n.Summary = "All controls passed."
		n.Remediations = append(n.Remediations, maintainPosture)
	default:
		n.Summary = fmt.Sprintf("%d of %d controls require attention.", failed, len(results))
	}
	return n
}
