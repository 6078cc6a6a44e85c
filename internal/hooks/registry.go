package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidRegistration is returned for malformed hook registrations.
// It is a programming error; callers abort setup when they see it.
var ErrInvalidRegistration = errors.New("invalid hook registration")

// RegistrationError explains why a registration was rejected.
type RegistrationError struct {
	Name   string
	Reason string
}

func (e *RegistrationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidRegistration, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", ErrInvalidRegistration, e.Name, e.Reason)
}

func (e *RegistrationError) Unwrap() error { return ErrInvalidRegistration }

// CommandFactory turns a command string into an Action.
type CommandFactory func(command string, opts Options) Action

// RegisterOptions describes one hook. Exactly one of Command or Action is set.
type RegisterOptions struct {
	Name    string
	Options Options
	Command string
	Action  Action
}

// Registry holds hooks in registration order.
// Lookups see every hook registered before them, including hooks added
// while the server is already serving.
type Registry struct {
	mu       sync.RWMutex
	hooks    []*Hook
	commands CommandFactory
}

// NewRegistry creates an empty registry. commands wraps command-string hooks;
// it may be nil if only callable actions are registered.
func NewRegistry(commands CommandFactory) *Registry {
	return &Registry{
		hooks:    make([]*Hook, 0),
		commands: commands,
	}
}

// Register validates opts and appends the hook. An empty name is rejected,
// so a bare "POST /" never matches a hook.
func (r *Registry) Register(opts RegisterOptions) (*Hook, error) {
	if opts.Name == "" {
		return nil, &RegistrationError{Reason: "name is required"}
	}

	hasCommand := opts.Command != ""
	hasAction := opts.Action != nil
	switch {
	case hasCommand && hasAction:
		return nil, &RegistrationError{Name: opts.Name, Reason: "set either a command or an action, not both"}
	case !hasCommand && !hasAction:
		return nil, &RegistrationError{Name: opts.Name, Reason: "a command or an action is required"}
	}

	action := opts.Action
	if hasCommand {
		if r.commands == nil {
			return nil, &RegistrationError{Name: opts.Name, Reason: "registry has no command factory"}
		}
		action = r.commands(opts.Command, opts.Options)
	}

	hook := &Hook{
		Name:    opts.Name,
		Options: opts.Options,
		Command: opts.Command,
		Action:  action,
	}

	r.mu.Lock()
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()
	return hook, nil
}

// Hook registers a hook using the positional form name, [options], action.
// The final argument is either a command string or an Action.
func (r *Registry) Hook(name string, args ...any) error {
	var (
		opts Options
		last any
	)
	switch len(args) {
	case 0:
		return &RegistrationError{Name: name, Reason: "at least a name and an action are required"}
	case 1:
		last = args[0]
	case 2:
		switch o := args[0].(type) {
		case Options:
			opts = o
		case *Options:
			if o != nil {
				opts = *o
			}
		case nil:
		default:
			return &RegistrationError{Name: name, Reason: fmt.Sprintf("options must be hooks.Options, got %T", args[0])}
		}
		last = args[1]
	default:
		return &RegistrationError{Name: name, Reason: fmt.Sprintf("too many arguments (%d)", len(args)+1)}
	}

	reg := RegisterOptions{Name: name, Options: opts}
	switch a := last.(type) {
	case string:
		reg.Command = a
	case Action:
		reg.Action = a
	case func(context.Context, Payload, DoneFunc) error:
		reg.Action = a
	default:
		return &RegistrationError{Name: name, Reason: fmt.Sprintf("action must be a command string or hooks.Action, got %T", last)}
	}

	_, err := r.Register(reg)
	return err
}

// Lookup returns the first hook registered under name.
func (r *Registry) Lookup(name string) (*Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.hooks {
		if h.Name == name {
			return h, true
		}
	}
	return nil, false
}

// Names returns hook names in registration order, duplicates included.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.hooks))
	for _, h := range r.hooks {
		names = append(names, h.Name)
	}
	return names
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}
