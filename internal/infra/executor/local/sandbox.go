package local

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
)

// chainingTokens are rejected anywhere in a command, quoted or not.
var chainingTokens = []string{";", "&&", "||", "`", "$("}

// DefaultAllowedCommands is used when no allow-list is configured.
var DefaultAllowedCommands = []string{
	"cat", "grep", "rpm", "dpkg", "stat", "systemctl", "test",
	"sysctl", "ls", "id", "getent", "printf", "echo", "true", "false",
}

// builtins are evaluated in-process and never spawn.
var builtins = map[string]bool{"exit": true}

// Policy is the allow-list of binary names a rule may spawn.
type Policy struct {
	allowed map[string]bool
}

func NewPolicy(allowed []string) *Policy {
	if len(allowed) == 0 {
		allowed = DefaultAllowedCommands
	}
	p := &Policy{allowed: make(map[string]bool, len(allowed))}
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a != "" {
			p.allowed[a] = true
		}
	}
	return p
}

// Parse splits command into an argument vector and checks it against the policy.
func (p *Policy) Parse(command string) ([]string, error) {
	if tok := chainingToken(command); tok != "" {
		return nil, fmt.Errorf("%w: command chaining token %q is not permitted", rules.ErrSandboxViolation, tok)
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable command: %v", rules.ErrSandboxViolation, err)
	}
	if err := p.Check(argv); err != nil {
		return nil, err
	}
	return argv, nil
}

// Check validates an already split argument vector.
func (p *Policy) Check(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("%w: empty command", rules.ErrSandboxViolation)
	}
	for _, arg := range argv {
		if tok := chainingToken(arg); tok != "" {
			return fmt.Errorf("%w: command chaining token %q is not permitted", rules.ErrSandboxViolation, tok)
		}
	}
	if builtins[argv[0]] {
		return nil
	}
	if !p.Allows(argv[0]) {
		return fmt.Errorf("%w: command %q is not permitted by sandbox policy", rules.ErrSandboxViolation, argv[0])
	}
	return nil
}

// Allows matches a bare binary name against the allow-list. A name carrying a
// path separator only matches an identical allow-list entry.
func (p *Policy) Allows(binary string) bool {
	if hasPathSeparator(binary) {
		return filepath.IsAbs(binary) && filepath.Clean(binary) == binary && p.allowed[binary]
	}
	return p.allowed[binary]
}

func hasPathSeparator(name string) bool {
	return strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator)
}

func chainingToken(s string) string {
	for _, tok := range chainingTokens {
		if strings.Contains(s, tok) {
			return tok
		}
	}
	return ""
}
