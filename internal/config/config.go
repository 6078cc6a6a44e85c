// Package config loads and validates the cptn configuration.
//
// DESIGN: Configuration comes from a YAML file layered over Default().
// ${VAR} and ${VAR:-default} references are expanded before parsing, then a
// few CPTN_* environment variables override individual fields.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - hooks.go:      Hook declarations registered at startup
//   - monitoring.go: Logging and telemetry settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for cptn.
type Config struct {
	Server     ServerConfig     `yaml:"server"`     // HTTP server settings
	Debug      bool             `yaml:"debug"`      // Diagnostic logging of lifecycle and per-request events
	Dedupe     DedupeConfig     `yaml:"dedupe"`     // Redelivery suppression
	Monitoring MonitoringConfig `yaml:"monitoring"` // Telemetry and logging
	Hooks      []HookConfig     `yaml:"hooks"`      // Hooks registered at startup
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Address is a TCP port ("8080") or a unix socket path ("/run/cptn.sock").
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response

	// DispatchOnParseError runs the hook even when the body is not JSON.
	// The response is 400 either way.
	DispatchOnParseError bool `yaml:"dispatch_on_parse_error"`
}

// DedupeConfig controls duplicate delivery suppression.
type DedupeConfig struct {
	TTL     time.Duration `yaml:"ttl"`     // 0 disables suppression
	Headers []string      `yaml:"headers"` // Delivery ID headers, first non-empty wins
}

// Enabled reports whether redeliveries are suppressed.
func (d DedupeConfig) Enabled() bool { return d.TTL > 0 && len(d.Headers) > 0 }

// DefaultDeliveryHeaders are checked for delivery IDs when none are configured.
var DefaultDeliveryHeaders = []string{
	"X-GitHub-Delivery",
	"X-Gitlab-Event-UUID",
	"X-Gitea-Delivery",
	"X-Delivery-ID",
}

// Default returns a configuration that listens on port 8080 with no hooks.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Dedupe: DedupeConfig{
			Headers: append([]string(nil), DefaultDeliveryHeaders...),
		},
		Monitoring: MonitoringConfig{
			LogLevel:               "info",
			LogOutput:              "stdout",
			SlowExecutionThreshold: time.Minute,
		},
	}
}

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	// Pattern matches ${VAR:-default} or ${VAR}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies CPTN_* environment variables.
//   - CPTN_ADDR:          server.address
//   - CPTN_DEBUG:         debug (strconv.ParseBool syntax)
//   - CPTN_TELEMETRY_LOG: monitoring.telemetry_path, enables telemetry
func (c *Config) ApplyEnvOverrides() error {
	if addr := os.Getenv("CPTN_ADDR"); addr != "" {
		c.Server.Address = addr
	}

	if raw := os.Getenv("CPTN_DEBUG"); raw != "" {
		debug, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid CPTN_DEBUG %q: %w", raw, err)
		}
		c.Debug = debug
	}

	if path := os.Getenv("CPTN_TELEMETRY_LOG"); path != "" {
		c.Monitoring.TelemetryPath = path
		c.Monitoring.TelemetryEnabled = true
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("invalid server.read_timeout: %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("invalid server.write_timeout: %s", c.Server.WriteTimeout)
	}

	if c.Dedupe.TTL < 0 {
		return fmt.Errorf("invalid dedupe.ttl: %s", c.Dedupe.TTL)
	}

	if err := c.Monitoring.Validate(); err != nil {
		return err
	}

	for i, h := range c.Hooks {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("hooks[%d]: %w", i, err)
		}
	}

	return nil
}
