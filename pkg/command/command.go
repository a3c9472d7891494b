// Package command runs the external status command whose output feeds the
// dump parser.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommand is the status command used when none is configured.
var DefaultCommand = []string{"wg", "show", "all", "dump"}

// ErrEmptyOutput is reported when the command succeeded but printed nothing.
var ErrEmptyOutput = errors.New("command produced no output")

// Runner abstracts command execution so the refresh loop can be tested
// without a wg binary.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// UpstreamCommandError describes a failed invocation: the command did not
// start, timed out, exited non-zero, or printed nothing.
type UpstreamCommandError struct {
	Command  string
	ExitCode int // -1 when the process did not exit normally
	Stderr   string
	Err      error
}

func (e *UpstreamCommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Command, e.Err)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *UpstreamCommandError) Unwrap() error { return e.Err }

// Timeout reports whether the invocation was cut short by its deadline.
func (e *UpstreamCommandError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct {
	// WaitDelay bounds how long Output waits for pipes to close after the
	// process is killed.
	WaitDelay time.Duration
}

func NewOSRunner() *OSRunner {
	return &OSRunner{WaitDelay: time.Second}
}

// Output runs name with args and returns its stdout. Stderr is kept apart so
// warnings printed by the command never reach the parser.
func (r *OSRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cerr := &UpstreamCommandError{
			Command:  commandLine(name, args),
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			cerr.ExitCode = ee.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			cerr.Err = ctxErr
		}
		return nil, cerr
	}
	return stdout.Bytes(), nil
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

// String renders a command for logs.
func String(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return commandLine(argv[0], argv[1:])
}
