package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
)

// ErrCmdTimeout is returned when an external command does not finish in time
var ErrCmdTimeout = errors.New("command timed out")

// CmdError is returned when an external command exits with a non-zero code
type CmdError struct {
	Command  string
	ExitCode int
	Output   string // stdout followed by stderr
}

func (e *CmdError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, strings.TrimSpace(e.Output))
}

// SplitCommand splits a command line such as `python -m uv` into its arguments
// using shell quoting rules.
func SplitCommand(cmdline string) ([]string, error) {
	parts, err := shlex.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", cmdline, err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return parts, nil
}

// RunCmdContext executes a command in dir and returns its stdout.
// A timeout of zero means no limit beyond ctx.
func RunCmdContext(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmdline := strings.Join(append([]string{name}, args...), " ")

	var stdout, stderr bytes.Buffer
	cmdExec := exec.CommandContext(ctx, name, args...)
	cmdExec.Dir = dir
	cmdExec.Stdout = &stdout
	cmdExec.Stderr = &stderr
	cmdExec.WaitDelay = 2 * time.Second

	err := cmdExec.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.String(), fmt.Errorf("%w: %s did not finish within %s", ErrCmdTimeout, cmdline, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &CmdError{
				Command:  cmdline,
				ExitCode: exitErr.ExitCode(),
				Output:   stdout.String() + stderr.String(),
			}
		}
		return stdout.String(), fmt.Errorf("failed to run %s: %w", cmdline, err)
	}

	return stdout.String(), nil
}
