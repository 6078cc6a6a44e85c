package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptn-hooks/cptn/internal/hooks"
)

type outcome struct {
	result hooks.Result
	err    error
}

// run starts command and waits for its completion callback.
func run(t *testing.T, command string, opts hooks.Options, payload hooks.Payload) outcome {
	t.Helper()

	ch := make(chan outcome, 1)
	action := Command(command, opts)
	err := action(context.Background(), payload, func(res hooks.Result, err error) {
		ch <- outcome{result: res, err: err}
	})
	require.NoError(t, err)

	select {
	case o := <-ch:
		return o
	case <-time.After(10 * time.Second):
		t.Fatalf("command %q did not complete", command)
		return outcome{}
	}
}

func TestCommand_EchoSucceeds(t *testing.T) {
	o := run(t, "echo hello", hooks.Options{Cwd: "/tmp"}, hooks.Payload{})

	require.NoError(t, o.err)
	assert.Equal(t, "hello\n", o.result.Stdout)
	assert.Empty(t, o.result.Stderr)
	assert.Equal(t, 0, o.result.ExitCode)
}

func TestCommand_RunsInCwd(t *testing.T) {
	dir := t.TempDir()
	o := run(t, "pwd -P", hooks.Options{Cwd: dir}, hooks.Payload{})

	require.NoError(t, o.err)
	assert.Contains(t, o.result.Stdout, dir[len(dir)-10:])
}

func TestCommand_StderrIsFailure(t *testing.T) {
	o := run(t, "echo oops >&2", hooks.Options{}, hooks.Payload{})

	require.Error(t, o.err)
	assert.ErrorIs(t, o.err, ErrExecution)

	var execErr *ExecutionError
	require.ErrorAs(t, o.err, &execErr)
	assert.Equal(t, "oops\n", execErr.Stderr)
	assert.Equal(t, 0, execErr.ExitCode)
	assert.Nil(t, execErr.Err)
	assert.Contains(t, o.err.Error(), "oops")
}

func TestCommand_NonZeroExitIsFailure(t *testing.T) {
	o := run(t, "echo partial; exit 3", hooks.Options{}, hooks.Payload{})

	require.Error(t, o.err)
	assert.ErrorIs(t, o.err, ErrExecution)

	var execErr *ExecutionError
	require.ErrorAs(t, o.err, &execErr)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, "partial\n", o.result.Stdout)
}

func TestCommand_Env(t *testing.T) {
	opts := hooks.Options{Env: map[string]string{"GREETING": "hi there"}}
	o := run(t, `printf %s "$GREETING"`, opts, hooks.Payload{})

	require.NoError(t, o.err)
	assert.Equal(t, "hi there", o.result.Stdout)
}

func TestCommand_PayloadEnv(t *testing.T) {
	payload := hooks.ParsePayload([]byte(`{"ref":"refs/heads/main","repository":{"name":"api; rm -rf /"}}`))
	opts := hooks.Options{PayloadEnv: map[string]string{
		"REF":  "ref",
		"REPO": "repository.name",
		"NONE": "missing.path",
	}}

	o := run(t, `printf '%s|%s|%s' "$REF" "$REPO" "$NONE"`, opts, payload)

	require.NoError(t, o.err)
	assert.Equal(t, "refs/heads/main|api; rm -rf /|", o.result.Stdout)
}

func TestCommand_PayloadNotSubstituted(t *testing.T) {
	payload := hooks.ParsePayload([]byte(`{"cmd":"echo injected"}`))
	o := run(t, "echo fixed", hooks.Options{}, payload)

	require.NoError(t, o.err)
	assert.Equal(t, "fixed\n", o.result.Stdout)
}

func TestCommand_PayloadStdin(t *testing.T) {
	raw := `{"event":"push"}`
	o := run(t, "cat", hooks.Options{PayloadStdin: true}, hooks.ParsePayload([]byte(raw)))

	require.NoError(t, o.err)
	assert.Equal(t, raw, o.result.Stdout)
}

func TestCommand_Timeout(t *testing.T) {
	o := run(t, "sleep 5", hooks.Options{Timeout: 50 * time.Millisecond}, hooks.Payload{})

	require.Error(t, o.err)
	assert.ErrorIs(t, o.err, ErrExecution)
	assert.ErrorIs(t, o.err, context.DeadlineExceeded)
	assert.Less(t, o.result.Duration, 5*time.Second)
}

func TestCommand_StartFailureGoesToDone(t *testing.T) {
	tests := []struct {
		name string
		opts hooks.Options
	}{
		{name: "missing shell", opts: hooks.Options{Shell: "/nonexistent/shell"}},
		{name: "missing cwd", opts: hooks.Options{Cwd: "/definitely/not/here"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := run(t, "true", tt.opts, hooks.Payload{})

			require.Error(t, o.err)
			assert.ErrorIs(t, o.err, ErrExecution)
			assert.Contains(t, o.err.Error(), "failed to start command")
			assert.Equal(t, -1, o.result.ExitCode)

			var execErr *ExecutionError
			require.ErrorAs(t, o.err, &execErr)
			assert.Equal(t, "true", execErr.Command)
		})
	}
}

func TestCommand_StartFailureNilDone(t *testing.T) {
	action := Command("true", hooks.Options{Cwd: "/definitely/not/here"})
	assert.NoError(t, action(context.Background(), hooks.Payload{}, nil))
}

func TestCommand_NilDone(t *testing.T) {
	action := Command("true", hooks.Options{})
	require.NoError(t, action(context.Background(), hooks.Payload{}, nil))
}
