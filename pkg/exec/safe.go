package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrTimeout is returned when a child process outlives its budget.
var ErrTimeout = errors.New("process timed out")

type Result struct {
	Stdout    string
	Stderr    string
	Code      int
	Truncated bool
	Duration  time.Duration
}

// OutputTruncatedError is returned alongside a Result whose output hit the
// capture limit.
type OutputTruncatedError struct {
	Limit int
}

func (e OutputTruncatedError) Error() string {
	return fmt.Sprintf("output truncated at %d bytes", e.Limit)
}

// RunOptions carries per-call process settings.
type RunOptions struct {
	Stdin io.Reader
	Env   []string
	Dir   string
}

// SafeExecutor runs child processes with a wall-clock budget and bounded
// stdout/stderr capture.
type SafeExecutor struct {
	Timeout   time.Duration
	MaxOutput int
	Blocklist []string
}

func (e *SafeExecutor) Run(ctx context.Context, cmd string, args []string, opts RunOptions) (*Result, error) {
	if cmd == "" {
		return nil, errors.New("command is required")
	}
	if e.isBlocked(cmd) {
		return nil, fmt.Errorf("command blocked: %s", cmd)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	command := exec.CommandContext(ctx, cmd, args...)
	command.Stdin = opts.Stdin
	command.Env = opts.Env
	command.Dir = opts.Dir
	command.WaitDelay = time.Second

	stdoutBuf := NewLimitedBuffer(e.MaxOutput)
	stderrBuf := NewLimitedBuffer(e.MaxOutput)
	command.Stdout = stdoutBuf
	command.Stderr = stderrBuf

	start := time.Now()
	err := command.Run()
	res := &Result{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Truncated: stdoutBuf.Truncated() || stderrBuf.Truncated(),
		Duration:  time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %v: %w", ErrTimeout, res.Duration.Round(time.Millisecond), ctxErr)
		}
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		res.Code = exitErr.ExitCode()
	}

	if res.Truncated {
		return res, OutputTruncatedError{Limit: e.MaxOutput}
	}
	return res, nil
}

func (e *SafeExecutor) isBlocked(cmd string) bool {
	if len(e.Blocklist) == 0 {
		return false
	}
	base := filepath.Base(cmd)
	for _, blocked := range e.Blocklist {
		if strings.EqualFold(blocked, cmd) || strings.EqualFold(blocked, base) {
			return true
		}
	}
	return false
}

// LimitedBuffer is an io.Writer that keeps at most limit bytes and silently
// drops the rest. A limit <= 0 means unbounded.
type LimitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func NewLimitedBuffer(limit int) *LimitedBuffer {
	return &LimitedBuffer{limit: limit}
}

func (l *LimitedBuffer) Write(p []byte) (int, error) {
	if l.limit <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.limit - l.buf.Len()
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *LimitedBuffer) WriteString(s string) (int, error) {
	return l.Write([]byte(s))
}

func (l *LimitedBuffer) String() string {
	return l.buf.String()
}

func (l *LimitedBuffer) Truncated() bool {
	return l.truncated
}

func (l *LimitedBuffer) Reset() {
	l.buf.Reset()
	l.truncated = false
}

var _ io.Writer = (*LimitedBuffer)(nil)
