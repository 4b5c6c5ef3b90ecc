package benchmarks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlite"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/compliance-pulse/internal/logging"
)

const sampleBenchmark = `
schema_version: "1.0"
benchmark:
  id: pulse-ubuntu-22
  title: Ubuntu 22.04 baseline
  description: Core hardening checks
  version: "1.2"
  os_target: ubuntu-22.04
  metadata:
    maintainer: secops
    tags: [linux, ubuntu]
rules:
  - id: ssh-root-login
    title: Disable SSH root login
    description: Root must not log in over SSH
    severity: HIGH
    remediation: Set PermitRootLogin no
    references: ["CIS 5.2.10"]
    check:
      type: shell
      command: grep -i PermitRootLogin /etc/ssh/sshd_config
      timeout: 5
      expect:
        type: contains
        value: "no"
  - id: auditd-installed
    title: auditd installed
    description: auditd must be present
    severity: medium
    remediation: apt install auditd
    metadata:
      type: package_installed
      package: auditd
    check:
      type: package_installed
  - id: exit-check
    title: exit code
    description: exit
    severity: low
    remediation: none
    check:
      type: shell
      command: "true"
      expect:
        type: exit_code
        value: 0
`

func TestParseNormalizesRules(t *testing.T) {
	b, rs, err := Parse([]byte(sampleBenchmark))
	require.NoError(t, err)
	assert.Equal(t, "pulse-ubuntu-22", b.ID)
	assert.Equal(t, []string{"linux", "ubuntu"}, b.Tags)
	require.Len(t, rs, 3)

	assert.Equal(t, rules.SeverityHigh, rs[0].Severity)
	assert.Equal(t, 5, rs[0].TimeoutSeconds)
	assert.Equal(t, rules.ExpectContains, rs[0].ExpectType)

	assert.Equal(t, rules.CheckPackageInstalled, rs[1].Kind())
	assert.Equal(t, defaultRuleTimeout, rs[1].TimeoutSeconds)

	assert.Equal(t, "0", rs[2].ExpectValue)
}

func TestParseRejectsUnsupportedExpectation(t *testing.T) {
	doc := `
schema_version: "1.0"
benchmark: {id: b}
rules:
  - id: r
    severity: low
    check:
      type: shell
      command: "true"
      expect: {type: regex, value: x}
`
	_, _, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, rules.ErrUnsupportedExpectation)
}

func TestParseRejectsUnknownCheckAndSeverity(t *testing.T) {
	_, _, err := Parse([]byte("benchmark: {id: b}\nrules:\n  - id: r\n    severity: low\n    check: {type: wmi}\n"))
	assert.ErrorIs(t, err, rules.ErrUnsupportedCheck)

	_, _, err = Parse([]byte("benchmark: {id: b}\nrules:\n  - id: r\n    severity: severe\n    check: {type: shell, command: id}\n"))
	assert.Error(t, err)
}

func TestLoaderIngestsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ubuntu.yaml"), []byte(sampleBenchmark), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	ctx := context.Background()
	conn, err := sqlite.Connect(ctx, filepath.Join(t.TempDir(), "pulse.db"))
	require.NoError(t, err)
	store := sqlstore.New(conn, sqlite.Dialect{})
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { store.Close() })

	l := &Loader{Repo: store.Rules(), Logger: logging.Discard()}
	n, err := l.Load(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rs, err := store.Rules().ListByBenchmark(ctx, "pulse-ubuntu-22")
	require.NoError(t, err)
	assert.Len(t, rs, 3)
}
