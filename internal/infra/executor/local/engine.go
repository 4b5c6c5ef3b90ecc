package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
)

const defaultTimeout = 15 * time.Second

type outcome struct {
	stdout  string
	stderr  string
	passed  bool
	details map[string]any
}

type handler func(ctx context.Context, r rules.Rule) (outcome, error)

// Engine evaluates rules against the local host.
type Engine struct {
	policy         *Policy
	defaultTimeout time.Duration
	platformFamily string
	logger         *slog.Logger
	lookPath       func(string) (string, error)
	handlers       map[rules.CheckType]handler
}

type Option func(*Engine)

// WithDefaultTimeout applies to rules that carry no timeout of their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// WithPlatformFamily orders package manager probes (rhel, debian, ...).
func WithPlatformFamily(family string) Option {
	return func(e *Engine) { e.platformFamily = family }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(policy *Policy, opts ...Option) *Engine {
	if policy == nil {
		policy = NewPolicy(nil)
	}
	e := &Engine{
		policy:         policy,
		defaultTimeout: defaultTimeout,
		logger:         slog.Default(),
		lookPath:       exec.LookPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = map[rules.CheckType]handler{
		rules.CheckShell:              e.handleShell,
		rules.CheckFileExists:         e.handleFileExists,
		rules.CheckCommandOutputMatch: e.handleCommandOutputMatch,
		rules.CheckPortOpen:           e.handlePortOpen,
		rules.CheckPackageInstalled:   e.handlePackageInstalled,
	}
	return e
}

// Evaluate never fails for a rule that passed Validate. Handler failures are
// folded into details["error"] with Passed=false.
func (e *Engine) Evaluate(ctx context.Context, r rules.Rule) (ev rules.Evaluation, err error) {
	kind := r.Kind()
	h, ok := e.handlers[kind]
	if !ok {
		h = e.handleShell
	}

	started := time.Now().UTC()
	ev = rules.Evaluation{
		RuleID:    r.ID,
		StartedAt: started,
		Details:   map[string]any{"type": string(kind)},
	}
	defer func() {
		if p := recover(); p != nil {
			ev.Passed = false
			ev.Details["error"] = fmt.Sprintf("panic: %v", p)
			err = nil
		}
		ev.CompletedAt = time.Now().UTC()
		ev.RuntimeMS = ev.CompletedAt.Sub(started).Milliseconds()
	}()

	out, herr := h(ctx, r)
	for k, v := range out.details {
		ev.Details[k] = v
	}
	ev.Stdout, ev.Stderr, ev.Passed = out.stdout, out.stderr, out.passed

	if herr == nil {
		if ev.TimedOut() {
			e.logger.Warn("command timed out",
				"rule_id", r.ID,
				"timeout_seconds", int(e.timeoutFor(r)/time.Second),
			)
		}
		return ev, nil
	}

	ev.Passed = false
	ev.Details["error"] = herr.Error()
	if ev.Stderr == "" {
		ev.Stderr = herr.Error()
	}
	switch {
	case errors.Is(herr, rules.ErrSandboxViolation):
		ev.Details["sandbox_violation"] = true
		e.logger.Warn("sandbox violation",
			"rule_id", r.ID,
			"check_type", string(kind),
			"reason", herr.Error(),
		)
	case errors.Is(herr, rules.ErrUnsupportedExpectation):
		return ev, herr
	}
	return ev, nil
}

func (e *Engine) timeoutFor(r rules.Rule) time.Duration {
	if r.TimeoutSeconds > 0 {
		return time.Duration(r.TimeoutSeconds) * time.Second
	}
	if v, ok := r.Metadata["timeout"]; ok {
		switch n := v.(type) {
		case int:
			if n > 0 {
				return time.Duration(n) * time.Second
			}
		case float64:
			if n > 0 {
				return time.Duration(n * float64(time.Second))
			}
		}
	}
	return e.defaultTimeout
}

// run parses and sandboxes command, then spawns it.
func (e *Engine) run(ctx context.Context, r rules.Rule, command string) (processResult, error) {
	argv, err := e.policy.Parse(command)
	if err != nil {
		return processResult{}, err
	}
	return e.runArgv(ctx, r, argv)
}

func (e *Engine) runArgv(ctx context.Context, r rules.Rule, argv []string) (processResult, error) {
	if err := e.policy.Check(argv); err != nil {
		return processResult{}, err
	}
	argv, err := e.resolve(argv)
	if err != nil {
		return processResult{}, err
	}
	return runProcess(ctx, argv, e.timeoutFor(r))
}

// resolve pins a bare binary name to the executable found on PATH so the
// spawned file is the one the policy approved.
func (e *Engine) resolve(argv []string) ([]string, error) {
	if builtins[argv[0]] || hasPathSeparator(argv[0]) {
		return argv, nil
	}
	bin, err := e.lookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", argv[0], err)
	}
	if !filepath.IsAbs(bin) {
		return nil, fmt.Errorf("%w: %s resolves to relative path %q", rules.ErrSandboxViolation, argv[0], bin)
	}
	out := make([]string, len(argv))
	copy(out, argv)
	out[0] = bin
	return out, nil
}
