package config

import (
	"fmt"

	"github.com/cptn-hooks/cptn/internal/hooks"
)

// HookConfig declares a command hook.
//
//	hooks:
//	  - name: deploy
//	    command: git pull && make install
//	    options:
//	      cwd: /srv/app
//	      timeout: 5m
//	      payload_env:
//	        GIT_REF: ref
type HookConfig struct {
	Name    string        `yaml:"name"`
	Command string        `yaml:"command"`
	Options hooks.Options `yaml:"options"`
}

// Validate checks a single hook declaration.
func (h HookConfig) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("name is required")
	}
	if h.Command == "" {
		return fmt.Errorf("hook %q: command is required", h.Name)
	}
	if h.Options.Timeout < 0 {
		return fmt.Errorf("hook %q: invalid timeout: %s", h.Name, h.Options.Timeout)
	}
	for env, path := range h.Options.PayloadEnv {
		if env == "" || path == "" {
			return fmt.Errorf("hook %q: payload_env entries need a variable name and a path", h.Name)
		}
	}
	return nil
}

// RegisterOptions converts the declaration for hooks.Registry.Register.
func (h HookConfig) RegisterOptions() hooks.RegisterOptions {
	return hooks.RegisterOptions{
		Name:    h.Name,
		Command: h.Command,
		Options: h.Options,
	}
}
