package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects handler format and level.
type Options struct {
	Level     string
	Format    string // json | text
	AddSource bool
	Output    io.Writer
}

// New builds the process logger with the service attribute attached.
func New(opts Options) *slog.Logger {
	var output io.Writer = os.Stdout
	if opts.Output != nil {
		output = opts.Output
	}
	ho := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(output, ho)
	} else {
		handler = slog.NewJSONHandler(output, ho)
	}
	return slog.New(handler).With("service", "compliance-pulse")
}

// Component returns a child logger tagged with a component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}

// Discard is a logger that drops everything, handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel parses log level string
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
