// Package hooks holds the named webhook handlers the server dispatches to.
//
// DESIGN: A hook binds one path segment to an Action. Actions are either
// user-supplied callables or shell commands wrapped by the executor package.
//
//	POST /<name> → Registry.Lookup(name) → Action(ctx, payload, done)
//	                                                      ↓
//	                                  done(result, err) → logs / metrics
//
// The HTTP response is decided when the action is admitted, never when it
// completes. done is the only channel an action has to report its outcome.
package hooks

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
)

// Result describes a finished action. Callable actions may leave it zero.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// DoneFunc receives the outcome of an action once it finishes.
type DoneFunc func(result Result, err error)

// Action runs a hook. A non-nil return means the action could not be started
// and the request is answered with 500. Completion is reported through done,
// which may be called from another goroutine after Action returns.
type Action func(ctx context.Context, payload Payload, done DoneFunc) error

// Options configures how a command hook is spawned.
type Options struct {
	Cwd     string            `yaml:"cwd"`     // Working directory
	Env     map[string]string `yaml:"env"`     // Extra environment variables
	Shell   string            `yaml:"shell"`   // Shell used with -c (default /bin/sh)
	Timeout time.Duration     `yaml:"timeout"` // Kill the process after this long (0 = never)

	// PayloadEnv exports payload fields as environment variables.
	// Keys are variable names, values are gjson paths (e.g. "repository.full_name").
	PayloadEnv map[string]string `yaml:"payload_env"`

	// PayloadStdin writes the raw request body to the process stdin.
	PayloadStdin bool `yaml:"payload_stdin"`
}

// Hook is a registered handler. It is never mutated after registration.
type Hook struct {
	Name    string
	Options Options
	Command string // Empty for callable actions
	Action  Action
}

// Payload is a buffered request body.
type Payload struct {
	Raw   []byte // Body bytes as received
	Value any    // Decoded JSON value, nil when Valid is false
	Valid bool   // Whether Raw parsed as JSON
}

// ParsePayload decodes raw as JSON. Invalid JSON yields a payload with
// Valid=false that still carries the raw bytes.
func ParsePayload(raw []byte) Payload {
	if !gjson.ValidBytes(raw) {
		return Payload{Raw: raw}
	}
	return Payload{
		Raw:   raw,
		Value: gjson.ParseBytes(raw).Value(),
		Valid: true,
	}
}

// Get looks up a gjson path in the payload.
func (p Payload) Get(path string) gjson.Result {
	if !p.Valid {
		return gjson.Result{}
	}
	return gjson.GetBytes(p.Raw, path)
}
