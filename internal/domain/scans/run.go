package scans

import "github.com/bryanwahyu/compliance-pulse/internal/domain/rules"

// RunRequest describes one scan over an explicit rule set.
type RunRequest struct {
	Hostname    string
	IP          string
	BenchmarkID string
	Rules       []rules.Rule
	TriggeredBy string
	Group       *rules.Group
	ExtraTags   []string
}

// Execution is what a scan run produces.
type Execution struct {
	Scan    *Scan
	Results []Result
	Report  *Report
}
