// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both server/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Outcome:         How the dispatcher answered a request
//   - ExecutionEvent:  Telemetry data for each finished hook action
//   - Config types:    TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// OUTCOMES - Used by dispatcher, metrics and telemetry
// =============================================================================

// Outcome identifies how a webhook request was answered.
type Outcome string

const (
	OutcomeAdmitted       Outcome = "admitted"
	OutcomeDeduplicated   Outcome = "deduplicated"
	OutcomeMethodRejected Outcome = "method_not_allowed"
	OutcomeNoHook         Outcome = "no_hook"
	OutcomeBadPayload     Outcome = "bad_payload"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// ExecutionEvent captures one finished hook action.
type ExecutionEvent struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Hook       string    `json:"hook"`
	Command    string    `json:"command,omitempty"`
	ExitCode   int       `json:"exit_code"`
	StdoutSize int       `json:"stdout_size"`
	StderrSize int       `json:"stderr_size"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	SlowExecutionThreshold time.Duration `yaml:"slow_execution_threshold"`
}
