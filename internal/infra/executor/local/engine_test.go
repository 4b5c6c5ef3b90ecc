package local

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
)

func newTestEngine(allowed ...string) *Engine {
	if len(allowed) == 0 {
		allowed = []string{"printf", "sleep", "true", "false", "cat", "rpm", "dpkg"}
	}
	return NewEngine(NewPolicy(allowed))
}

func shellRule(command string, expect rules.ExpectType, value string) rules.Rule {
	return rules.Rule{
		ID:          "r-1",
		Severity:    rules.SeverityMedium,
		CheckType:   rules.CheckShell,
		Command:     command,
		ExpectType:  expect,
		ExpectValue: value,
	}
}

func TestEvaluateShellContains(t *testing.T) {
	ev, err := newTestEngine().Evaluate(context.Background(), shellRule("printf pass", rules.ExpectContains, "pass"))
	require.NoError(t, err)
	assert.True(t, ev.Passed)
	assert.Equal(t, "pass", ev.Stdout)
	code, ok := ev.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 0, code)
	assert.False(t, ev.CompletedAt.Before(ev.StartedAt))
}

func TestEvaluateShellExpectations(t *testing.T) {
	cases := []struct {
		name    string
		command string
		expect  rules.ExpectType
		value   string
		passed  bool
	}{
		{"exit builtin", "exit 0", rules.ExpectExitCode, "0", true},
		{"exit builtin nonzero", "exit 3", rules.ExpectExitCode, "0", false},
		{"false binary", "false", rules.ExpectExitCode, "1", true},
		{"not contains", "printf hello", rules.ExpectNotContains, "world", true},
		{"not contains hit", "printf hello", rules.ExpectNotContains, "ell", false},
		{"equals trimmed", "printf '  ok \n'", rules.ExpectEquals, "ok", true},
		{"equals mismatch", "printf okay", rules.ExpectEquals, "ok", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := newTestEngine().Evaluate(context.Background(), shellRule(tc.command, tc.expect, tc.value))
			require.NoError(t, err)
			assert.Equal(t, tc.passed, ev.Passed)
		})
	}
}

func TestEvaluateTimeout(t *testing.T) {
	r := shellRule("sleep 5", rules.ExpectExitCode, "0")
	r.TimeoutSeconds = 1

	ev, err := newTestEngine().Evaluate(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, ev.Passed)
	assert.True(t, ev.TimedOut())
	code, _ := ev.ExitCode()
	assert.Equal(t, TimeoutExitCode, code)
	assert.Contains(t, ev.Stderr, "Timed out after 1 seconds")
}

func TestEvaluateSubSecondTimeout(t *testing.T) {
	r := shellRule("sleep 5", rules.ExpectExitCode, "0")
	r.Metadata = map[string]any{"timeout": 0.5}

	ev, err := newTestEngine().Evaluate(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, ev.TimedOut())
	assert.Equal(t, "Timed out after 0.5 seconds", ev.Stderr)
}

func TestEvaluateEmptyExpectValue(t *testing.T) {
	cases := []struct {
		name    string
		command string
		expect  rules.ExpectType
		passed  bool
	}{
		{"contains without zero", "printf pass", rules.ExpectContains, false},
		{"contains zero", "printf 0", rules.ExpectContains, true},
		{"exit code", "true", rules.ExpectExitCode, true},
		{"upper case kind", "printf 10", "CONTAINS", true},
		{"padded kind", "printf x", " Not_Contains ", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := newTestEngine().Evaluate(context.Background(), shellRule(tc.command, tc.expect, ""))
			require.NoError(t, err)
			assert.Equal(t, tc.passed, ev.Passed)
		})
	}
}

func TestEvaluateTruncatesLargeOutput(t *testing.T) {
	big := filepath.Join(t.TempDir(), "big")
	require.NoError(t, os.WriteFile(big, make([]byte, MaxOutputBytes+4096), 0o600))

	ev, err := newTestEngine().Evaluate(context.Background(), shellRule("cat "+big, rules.ExpectExitCode, "0"))
	require.NoError(t, err)
	assert.True(t, ev.Passed)
	assert.Len(t, ev.Stdout, MaxOutputBytes)
	assert.Equal(t, true, ev.Details["truncated"])

	ev, err = newTestEngine().Evaluate(context.Background(), shellRule("printf ok", rules.ExpectExitCode, "0"))
	require.NoError(t, err)
	assert.NotContains(t, ev.Details, "truncated")
}

func TestCappedBuffer(t *testing.T) {
	c := &cappedBuffer{limit: 4}
	n, err := c.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, c.truncated)

	n, err = c.Write([]byte("cdef"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, c.truncated)
	assert.Equal(t, "abcd", c.String())

	_, err = c.Write([]byte("g"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", c.String())
}

func TestEvaluateSandboxViolations(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	impostor := filepath.Join(dir, "cat")
	require.NoError(t, os.WriteFile(impostor, []byte("#!/bin/sh\ntouch "+marker+"\n"), 0o755))

	for _, command := range []string{
		impostor,
		"./cat /etc/hostname",
		"printf a; printf b",
		"true && printf x",
		"false || printf x",
		"printf `id`",
		"printf $(id)",
		"rm -rf /tmp/nothing",
		"/usr/bin/curl example.com",
	} {
		t.Run(command, func(t *testing.T) {
			ev, err := newTestEngine().Evaluate(context.Background(), shellRule(command, rules.ExpectExitCode, "0"))
			require.NoError(t, err)
			assert.False(t, ev.Passed)
			assert.True(t, ev.SandboxViolation())
			assert.NotEmpty(t, ev.Details["error"])
			_, ran := ev.ExitCode()
			assert.False(t, ran)
		})
	}
	assert.NoFileExists(t, marker)
}

func TestEvaluateSpawnsResolvedBinary(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine()
	e.lookPath = func(name string) (string, error) { return filepath.Join(dir, name), nil }

	ev, err := e.Evaluate(context.Background(), shellRule("printf hi", rules.ExpectExitCode, "0"))
	require.NoError(t, err)
	assert.False(t, ev.Passed)
	assert.False(t, ev.SandboxViolation())
	assert.Contains(t, ev.Details["error"], filepath.Join(dir, "printf"))

	e.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	ev, err = e.Evaluate(context.Background(), shellRule("printf hi", rules.ExpectExitCode, "0"))
	require.NoError(t, err)
	assert.False(t, ev.Passed)
	assert.Contains(t, ev.Details["error"], "not found")
}

func TestEvaluateUnsupportedExpectation(t *testing.T) {
	ev, err := newTestEngine().Evaluate(context.Background(), shellRule("true", "regex", "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, rules.ErrUnsupportedExpectation))
	assert.False(t, ev.Passed)
	assert.NotEmpty(t, ev.Details["error"])
}

func TestEvaluateFileExists(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "sshd_config")
	require.NoError(t, os.WriteFile(present, []byte("PermitRootLogin no\n"), 0o600))

	e := newTestEngine()
	ev, err := e.Evaluate(context.Background(), rules.Rule{
		ID: "f-1", Metadata: map[string]any{"type": "file_exists", "path": present},
	})
	require.NoError(t, err)
	assert.True(t, ev.Passed)

	ev, err = e.Evaluate(context.Background(), rules.Rule{
		ID: "f-2", Metadata: map[string]any{"type": "file_exists", "path": filepath.Join(dir, "missing")},
	})
	require.NoError(t, err)
	assert.False(t, ev.Passed)
}

func TestEvaluateCommandOutputMatch(t *testing.T) {
	e := newTestEngine()
	ev, err := e.Evaluate(context.Background(), rules.Rule{
		ID: "m-1",
		Metadata: map[string]any{
			"type": "command_output_match", "command": "printf 'PermitRootLogin no'",
			"pattern": `^PermitRootLogin\s+no$`, "match_type": "regex",
		},
	})
	require.NoError(t, err)
	assert.True(t, ev.Passed)

	ev, err = e.Evaluate(context.Background(), rules.Rule{
		ID: "m-2",
		Metadata: map[string]any{
			"type": "command_output_match", "command": "printf abc", "pattern": "xyz",
		},
	})
	require.NoError(t, err)
	assert.False(t, ev.Passed)
	assert.Equal(t, "contains", ev.Details["match_type"])
}

func TestEvaluatePortOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	e := newTestEngine()
	r := rules.Rule{ID: "p-1", Metadata: map[string]any{"type": "port_open", "host": "127.0.0.1", "port": port}}
	ev, err := e.Evaluate(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, ev.Passed)

	require.NoError(t, ln.Close())
	r.Metadata["port"] = strconv.Itoa(port)
	ev, err = e.Evaluate(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, ev.Passed)
}

func TestEvaluatePackageInstalledWithoutManager(t *testing.T) {
	e := newTestEngine()
	e.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	ev, err := e.Evaluate(context.Background(), rules.Rule{
		ID: "k-1", Metadata: map[string]any{"type": "package_installed", "package": "openssh-server"},
	})
	require.NoError(t, err)
	assert.False(t, ev.Passed)
	assert.Contains(t, ev.Details["error"], "no package manager")
}

func TestPackageProbeOrder(t *testing.T) {
	e := NewEngine(nil, WithPlatformFamily("debian"))
	probes := e.packageProbes("auditd")
	assert.Equal(t, "dpkg", probes[0][0])

	e = NewEngine(nil, WithPlatformFamily("rhel"))
	assert.Equal(t, "rpm", e.packageProbes("auditd")[0][0])
}

func TestPolicyMatchesPathsExactly(t *testing.T) {
	p := NewPolicy([]string{"cat", "/usr/sbin/sysctl"})
	assert.True(t, p.Allows("cat"))
	assert.False(t, p.Allows("/bin/cat"))
	assert.False(t, p.Allows("./cat"))
	assert.True(t, p.Allows("/usr/sbin/sysctl"))
	assert.False(t, p.Allows("/usr/sbin/../sbin/sysctl"))
	assert.False(t, p.Allows("sysctl"))

	_, err := p.Parse("cat /etc/passwd")
	require.NoError(t, err)
	_, err = p.Parse("exit 1")
	require.NoError(t, err)
}
