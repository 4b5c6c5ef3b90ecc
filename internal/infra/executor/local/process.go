package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// TimeoutExitCode is recorded when a process is killed for running too long.
const TimeoutExitCode = 124

// MaxOutputBytes caps each captured stream.
const MaxOutputBytes = 1 << 20

type processResult struct {
	Stdout   string
	Stderr   string
	ExitCode  int
	TimedOut  bool
	Truncated bool
}

// cappedBuffer keeps the first limit bytes and discards the rest without
// failing the writer, so the child never sees a broken pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room < len(p) {
		c.truncated = true
		if room > 0 {
			c.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string { return c.buf.String() }

// runProcess spawns argv directly, without a shell, bounded by timeout.
func runProcess(ctx context.Context, argv []string, timeout time.Duration) (processResult, error) {
	if builtins[argv[0]] {
		return runBuiltin(argv)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: MaxOutputBytes}
	stderr := &cappedBuffer{limit: MaxOutputBytes}
	cmd := exec.CommandContext(tctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	res := processResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = TimeoutExitCode
		res.Stderr = "Timed out after " + strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64) + " seconds"
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("execute %s: %w", argv[0], err)
	}
	return res, nil
}

func runBuiltin(argv []string) (processResult, error) {
	switch argv[0] {
	case "exit":
		code := 0
		if len(argv) > 1 {
			n, err := strconv.Atoi(argv[1])
			if err != nil {
				return processResult{}, fmt.Errorf("exit: numeric argument required, got %q", argv[1])
			}
			code = n
		}
		return processResult{ExitCode: code}, nil
	}
	return processResult{}, fmt.Errorf("unknown builtin %q", argv[0])
}
