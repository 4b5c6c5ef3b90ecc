package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainai "github.com/bryanwahyu/compliance-pulse/internal/domain/ai"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

type captureClient struct{ got domainai.ScanDigest }

func (c *captureClient) Analyze(_ context.Context, d domainai.ScanDigest) (string, error) {
	c.got = d
	return "ok", nil
}

func TestAdviseSendsOnlyFailedChecks(t *testing.T) {
	client := &captureClient{}
	svc := NewService(client)
	scan := &scans.Scan{Hostname: "web-1", ComplianceScore: 50, TotalRules: 2, PassedRules: 1}
	results := []scans.Result{
		{RuleID: "r-1", Passed: true, Stdout: "fine"},
		{RuleID: "r-2", RuleTitle: "ssh", Severity: rules.SeverityHigh, Stdout: strings.Repeat("x", 1000)},
	}

	advice, err := svc.Advise(context.Background(), scan, results)
	require.NoError(t, err)
	assert.Equal(t, "ok", advice)
	require.Len(t, client.got.Failed, 1)
	assert.Equal(t, "r-2", client.got.Failed[0].RuleID)
	assert.Len(t, client.got.Failed[0].Evidence, maxEvidence)
}
