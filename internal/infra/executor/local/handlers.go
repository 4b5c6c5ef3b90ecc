package local

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
)

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func timeoutOutcome(res processResult, details map[string]any) outcome {
	details["exit_code"] = res.ExitCode
	details["timed_out"] = true
	markTruncated(res, details)
	return outcome{stdout: res.Stdout, stderr: res.Stderr, passed: false, details: details}
}

func markTruncated(res processResult, details map[string]any) {
	if res.Truncated {
		details["truncated"] = true
	}
}

func (e *Engine) handleFileExists(_ context.Context, r rules.Rule) (outcome, error) {
	target := firstNonEmpty(r.MetaString("path"), r.Command, r.ExpectValue)
	if target == "" {
		return outcome{}, errors.New("file_exists rule requires a path")
	}
	_, err := os.Stat(target)
	exists := err == nil
	return outcome{passed: exists, details: map[string]any{"path": target, "exists": exists}}, nil
}

func (e *Engine) handleCommandOutputMatch(ctx context.Context, r rules.Rule) (outcome, error) {
	command := firstNonEmpty(r.MetaString("command"), r.Command)
	if command == "" {
		return outcome{}, errors.New("command_output_match requires a command")
	}
	pattern := firstNonEmpty(r.MetaString("pattern"), r.ExpectValue)
	if pattern == "" {
		return outcome{}, errors.New("command_output_match requires a pattern")
	}
	matchType := firstNonEmpty(r.MetaString("match_type"), "contains")

	var re *regexp.Regexp
	if matchType == "regex" {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return outcome{}, fmt.Errorf("invalid pattern: %w", err)
		}
	}

	res, err := e.run(ctx, r, command)
	if err != nil {
		return outcome{}, err
	}
	details := map[string]any{"pattern": pattern, "match_type": matchType}
	if res.TimedOut {
		return timeoutOutcome(res, details), nil
	}
	details["exit_code"] = res.ExitCode
	markTruncated(res, details)

	var passed bool
	if re != nil {
		passed = re.MatchString(res.Stdout)
	} else {
		passed = strings.Contains(res.Stdout, pattern)
	}
	return outcome{stdout: res.Stdout, stderr: res.Stderr, passed: passed, details: details}, nil
}

func (e *Engine) handlePortOpen(ctx context.Context, r rules.Rule) (outcome, error) {
	host := firstNonEmpty(r.MetaString("host"), r.MetaString("hostname"))
	portValue := firstNonEmpty(r.MetaString("port"), r.ExpectValue)
	if host == "" {
		if _, err := strconv.Atoi(strings.TrimSpace(r.Command)); err != nil && r.Command != "" {
			host = r.Command
		} else {
			host = "127.0.0.1"
		}
	}
	if portValue == "" {
		portValue = r.Command
	}
	port, err := strconv.Atoi(strings.TrimSpace(portValue))
	if err != nil || port <= 0 || port > 65535 {
		return outcome{}, fmt.Errorf("port_open rule requires a valid port, got %q", portValue)
	}

	details := map[string]any{"host": host, "port": port}
	d := net.Dialer{Timeout: e.timeoutFor(r)}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return outcome{stderr: err.Error(), passed: false, details: details}, nil
	}
	conn.Close()
	return outcome{passed: true, details: details}, nil
}

// packageProbes returns package manager commands in probe order.
func (e *Engine) packageProbes(pkg string) [][]string {
	rpm := []string{"rpm", "-q", pkg}
	dpkg := []string{"dpkg", "-s", pkg}
	switch strings.ToLower(e.platformFamily) {
	case "debian":
		return [][]string{dpkg, rpm}
	default:
		return [][]string{rpm, dpkg}
	}
}

func (e *Engine) handlePackageInstalled(ctx context.Context, r rules.Rule) (outcome, error) {
	pkg := firstNonEmpty(r.MetaString("package"), r.Command, r.ExpectValue)
	if pkg == "" {
		return outcome{}, errors.New("package_installed rule requires a package name")
	}
	if strings.HasPrefix(pkg, "-") || strings.ContainsAny(pkg, " \t\n") {
		return outcome{}, fmt.Errorf("%w: invalid package name %q", rules.ErrSandboxViolation, pkg)
	}

	for _, argv := range e.packageProbes(pkg) {
		if _, err := e.lookPath(argv[0]); err != nil {
			continue
		}
		res, err := e.runArgv(ctx, r, argv)
		if err != nil {
			return outcome{}, err
		}
		details := map[string]any{"package": pkg, "manager": argv[0]}
		if res.TimedOut {
			return timeoutOutcome(res, details), nil
		}
		details["exit_code"] = res.ExitCode
		markTruncated(res, details)
		return outcome{stdout: res.Stdout, stderr: res.Stderr, passed: res.ExitCode == 0, details: details}, nil
	}
	return outcome{}, errors.New("no package manager found on host")
}

func (e *Engine) handleShell(ctx context.Context, r rules.Rule) (outcome, error) {
	command := firstNonEmpty(r.Command, r.MetaString("command"))
	if command == "" {
		return outcome{}, errors.New("shell rule requires a command")
	}
	expectation := r.ExpectType.Normalize()
	if expectation == "" {
		expectation = rules.ExpectExitCode
	}
	if !expectation.Valid() {
		return outcome{}, fmt.Errorf("%w: %s", rules.ErrUnsupportedExpectation, r.ExpectType)
	}

	res, err := e.run(ctx, r, command)
	if err != nil {
		return outcome{}, err
	}
	details := map[string]any{
		"expectation":  string(expectation),
		"expect_value": r.ExpectValue,
	}
	if res.TimedOut {
		return timeoutOutcome(res, details), nil
	}
	details["exit_code"] = res.ExitCode
	markTruncated(res, details)

	passed, err := matchExpectation(expectation, r.ExpectValue, res)
	if err != nil {
		return outcome{stdout: res.Stdout, stderr: res.Stderr, details: details}, err
	}
	return outcome{stdout: res.Stdout, stderr: res.Stderr, passed: passed, details: details}, nil
}

// matchExpectation compares res against want. An empty want is read as "0".
func matchExpectation(expectation rules.ExpectType, want string, res processResult) (bool, error) {
	if strings.TrimSpace(want) == "" {
		want = "0"
	}
	switch expectation {
	case rules.ExpectExitCode:
		code, err := strconv.Atoi(strings.TrimSpace(want))
		if err != nil {
			return false, fmt.Errorf("exit_code expectation needs an integer, got %q", want)
		}
		return res.ExitCode == code, nil
	case rules.ExpectContains:
		return strings.Contains(res.Stdout, want), nil
	case rules.ExpectNotContains:
		return !strings.Contains(res.Stdout, want), nil
	case rules.ExpectEquals:
		return strings.TrimSpace(res.Stdout) == strings.TrimSpace(want), nil
	}
	return false, fmt.Errorf("%w: %s", rules.ErrUnsupportedExpectation, expectation)
}
