package benchmarks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/rules"
)

const defaultRuleTimeout = 10

// Document is the on-disk benchmark format.
type Document struct {
	SchemaVersion string     `yaml:"schema_version"`
	Benchmark     Block      `yaml:"benchmark"`
	Rules         []RuleSpec `yaml:"rules"`
}

type Block struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	OSTarget    string `yaml:"os_target"`
	Metadata    struct {
		Maintainer string   `yaml:"maintainer"`
		Source     string   `yaml:"source"`
		Tags       []string `yaml:"tags"`
	} `yaml:"metadata"`
}

type RuleSpec struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Severity    string         `yaml:"severity"`
	Remediation string         `yaml:"remediation"`
	References  []string       `yaml:"references"`
	Tags        []string       `yaml:"tags"`
	Metadata    map[string]any `yaml:"metadata"`
	Check       CheckSpec      `yaml:"check"`
}

type CheckSpec struct {
	Type    string      `yaml:"type"`
	Command string      `yaml:"command"`
	Timeout *int        `yaml:"timeout"`
	Expect  *ExpectSpec `yaml:"expect"`
}

type ExpectSpec struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// Discover lists benchmark files in dir, or returns path itself when it is a file.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var out []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

// ParseFile reads and validates one benchmark document.
func ParseFile(path string) (*rules.Benchmark, []rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	b, rs, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return b, rs, nil
}

// Parse decodes a document and converts it into validated domain rules.
func Parse(data []byte) (*rules.Benchmark, []rules.Rule, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode benchmark: %w", err)
	}
	if strings.TrimSpace(doc.Benchmark.ID) == "" {
		return nil, nil, fmt.Errorf("benchmark id is required")
	}

	b := &rules.Benchmark{
		ID:            doc.Benchmark.ID,
		Title:         doc.Benchmark.Title,
		Description:   doc.Benchmark.Description,
		Version:       doc.Benchmark.Version,
		OSTarget:      doc.Benchmark.OSTarget,
		Maintainer:    doc.Benchmark.Metadata.Maintainer,
		Source:        doc.Benchmark.Metadata.Source,
		Tags:          doc.Benchmark.Metadata.Tags,
		SchemaVersion: doc.SchemaVersion,
		UpdatedAt:     time.Now().UTC(),
	}

	seen := make(map[string]bool, len(doc.Rules))
	rs := make([]rules.Rule, 0, len(doc.Rules))
	for _, item := range doc.Rules {
		if seen[item.ID] {
			return nil, nil, fmt.Errorf("duplicate rule id %q", item.ID)
		}
		seen[item.ID] = true

		r := rules.Rule{
			ID:             item.ID,
			BenchmarkID:    b.ID,
			Title:          item.Title,
			Description:    item.Description,
			Severity:       rules.Severity(item.Severity).Normalize(),
			Remediation:    item.Remediation,
			References:     item.References,
			Tags:           item.Tags,
			CheckType:      rules.CheckType(strings.ToLower(item.Check.Type)),
			Command:        item.Check.Command,
			TimeoutSeconds: defaultRuleTimeout,
			Metadata:       item.Metadata,
		}
		if item.Check.Timeout != nil {
			r.TimeoutSeconds = *item.Check.Timeout
		}
		if item.Check.Expect != nil {
			r.ExpectType = rules.ExpectType(strings.ToLower(item.Check.Expect.Type))
			r.ExpectValue = item.Check.Expect.Value
		}
		if r.Kind() == rules.CheckShell && r.ExpectType == "" {
			r.ExpectType = rules.ExpectExitCode
			r.ExpectValue = "0"
		}
		if err := r.Validate(); err != nil {
			return nil, nil, err
		}
		rs = append(rs, r)
	}
	return b, rs, nil
}

// Loader ingests benchmark files into a rule repository.
type Loader struct {
	Repo   rules.Repository
	Logger *slog.Logger
}

// Load ingests every document under path. Each benchmark's rule set is
// replaced atomically; one invalid file stops the run before it is written.
func (l *Loader) Load(ctx context.Context, path string) (int, error) {
	files, err := Discover(path)
	if err != nil {
		return 0, err
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loaded := 0
	for _, f := range files {
		b, rs, err := ParseFile(f)
		if err != nil {
			return loaded, err
		}
		if err := l.Repo.ReplaceBenchmark(ctx, b, rs); err != nil {
			return loaded, fmt.Errorf("store benchmark %s: %w", b.ID, err)
		}
		logger.Info("benchmark ingested", "benchmark_id", b.ID, "rules", len(rs), "file", f)
		loaded++
	}
	return loaded, nil
}
