// Package executor runs shell commands on behalf of hooks.
//
// DESIGN: Command wraps a command string into a hooks.Action:
//   - The process is started before the action returns. A spawn failure (bad
//     cwd, missing shell) is reported to done, never to the caller, so the
//     HTTP client only learns that the hook was admitted.
//   - Waiting happens in a goroutine; the outcome goes to done.
//   - Any stderr output counts as failure, like a non-zero exit.
//
// The payload is never interpolated into the command string. Hooks that need
// payload data opt in through Options.PayloadEnv or Options.PayloadStdin.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/cptn-hooks/cptn/internal/hooks"
)

// DefaultShell runs command strings when Options.Shell is empty.
const DefaultShell = "/bin/sh"

// waitDelay bounds how long Wait blocks on output pipes after a timeout kill.
const waitDelay = 2 * time.Second

// ErrExecution marks a command that exited with an error or wrote to stderr.
var ErrExecution = errors.New("command execution failed")

// ExecutionError carries the details of a failed command.
type ExecutionError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error // Process error, nil when the only failure was stderr output
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		if e.Stderr != "" {
			return fmt.Sprintf("command %q failed (exit %d): %v: %s", e.Command, e.ExitCode, e.Err, e.Stderr)
		}
		return fmt.Sprintf("command %q failed (exit %d): %v", e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("command %q wrote to stderr: %s", e.Command, e.Stderr)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is reports ErrExecution for every ExecutionError.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// Command returns an action that runs command with opts.
func Command(command string, opts hooks.Options) hooks.Action {
	return func(ctx context.Context, payload hooks.Payload, done hooks.DoneFunc) error {
		cancel := context.CancelFunc(func() {})
		if opts.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}

		cmd := build(ctx, command, opts, payload)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		start := time.Now()
		if err := cmd.Start(); err != nil {
			cancel()
			// A process that never spawned is still an execution outcome.
			if done != nil {
				done(hooks.Result{ExitCode: -1, Duration: time.Since(start)}, &ExecutionError{
					Command:  command,
					ExitCode: -1,
					Err:      fmt.Errorf("failed to start command: %w", err),
				})
			}
			return nil
		}

		go func() {
			defer cancel()
			err := cmd.Wait()

			result := hooks.Result{
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				ExitCode: exitCode(cmd, err),
				Duration: time.Since(start),
			}

			var execErr error
			if err != nil || result.Stderr != "" {
				if err != nil && ctx.Err() != nil {
					err = fmt.Errorf("%w (timeout %s)", ctx.Err(), opts.Timeout)
				}
				execErr = &ExecutionError{
					Command:  command,
					ExitCode: result.ExitCode,
					Stderr:   result.Stderr,
					Err:      err,
				}
			}

			if done != nil {
				done(result, execErr)
			}
		}()
		return nil
	}
}

// build assembles the exec.Cmd for command.
func build(ctx context.Context, command string, opts hooks.Options, payload hooks.Payload) *exec.Cmd {
	shell := opts.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.WaitDelay = waitDelay
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}

	cmd.Env = os.Environ()
	for key, val := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, val))
	}
	for key, path := range opts.PayloadEnv {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, payload.Get(path).String()))
	}

	if opts.PayloadStdin {
		cmd.Stdin = bytes.NewReader(payload.Raw)
	}
	return cmd
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
