// Monitoring configuration - telemetry and logging settings.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL files).
// Logging is for operators, telemetry records every finished hook action.
package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cptn-hooks/cptn/internal/monitoring"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console (empty: console on a terminal)
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Telemetry settings
	TelemetryEnabled bool   `yaml:"telemetry_enabled"` // Enable execution telemetry
	TelemetryPath    string `yaml:"telemetry_path"`    // Path to telemetry JSONL file
	LogToStdout      bool   `yaml:"log_to_stdout"`     // Also log telemetry to stdout

	// Alerts
	SlowExecutionThreshold time.Duration `yaml:"slow_execution_threshold"` // Warn when a hook runs longer
}

// Validate checks monitoring settings.
func (m MonitoringConfig) Validate() error {
	if m.LogLevel != "" {
		if _, err := zerolog.ParseLevel(m.LogLevel); err != nil {
			return fmt.Errorf("invalid monitoring.log_level %q", m.LogLevel)
		}
	}
	switch m.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid monitoring.log_format %q (must be json or console)", m.LogFormat)
	}
	if m.TelemetryEnabled && m.TelemetryPath == "" && !m.LogToStdout {
		return fmt.Errorf("monitoring.telemetry_path is required when telemetry is enabled")
	}
	if m.SlowExecutionThreshold < 0 {
		return fmt.Errorf("invalid monitoring.slow_execution_threshold: %s", m.SlowExecutionThreshold)
	}
	return nil
}

// LoggerConfig returns the logger settings. debug forces the debug level.
func (m MonitoringConfig) LoggerConfig(debug bool) monitoring.LoggerConfig {
	level := m.LogLevel
	if debug {
		level = "debug"
	}
	return monitoring.LoggerConfig{Level: level, Format: m.LogFormat, Output: m.LogOutput}
}

// TelemetryConfig returns the tracker settings.
func (m MonitoringConfig) TelemetryConfig() monitoring.TelemetryConfig {
	return monitoring.TelemetryConfig{
		Enabled:     m.TelemetryEnabled,
		LogPath:     m.TelemetryPath,
		LogToStdout: m.LogToStdout,
	}
}

// AlertConfig returns the alert thresholds.
func (m MonitoringConfig) AlertConfig() monitoring.AlertConfig {
	return monitoring.AlertConfig{SlowExecutionThreshold: m.SlowExecutionThreshold}
}
