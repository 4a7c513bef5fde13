package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

// Runner runs an external command. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs real binaries through os/exec.
type ExecRunner struct {
	Logger *slog.Logger
	// MaxStderr caps how much stderr is logged; zero means 8 KiB.
	MaxStderr int
}

// Run executes name. When ctx ends first the returned error wraps ctx.Err().
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxStderr := r.MaxStderr
	if maxStderr <= 0 {
		maxStderr = 8 << 10
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	attrs := []any{"cmd", filepath.Base(name), "elapsed_ms", time.Since(start).Milliseconds()}

	var exitErr *exec.ExitError
	switch {
	case err != nil && ctx.Err() != nil:
		err = fmt.Errorf("%s: %w", filepath.Base(name), ctx.Err())
		logger.Warn("render.exec.cancelled", append(attrs, "error", err)...)
	case errors.As(err, &exitErr):
		logger.Error("render.exec.failed", append(attrs,
			"exit_code", exitErr.ExitCode(),
			"stderr", clip(stderr.String(), maxStderr),
		)...)
	case err != nil:
		logger.Error("render.exec.failed", append(attrs, "error", err)...)
	default:
		logger.Debug("render.exec.ok", append(attrs, "stdout_bytes", stdout.Len())...)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
