// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes one ExecutionEvent per finished hook action as JSONL
// (one JSON object per line). Events are appended immediately so the file can
// be tailed while the server runs.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config         TelemetryConfig
	executionPath  string
	executionCount int
	mu             sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
	}

	if !cfg.Enabled {
		return t, nil
	}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
			return nil, err
		}
		t.executionPath = cfg.LogPath
		// Create empty file if it doesn't exist
		if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
			if f, err := os.Create(cfg.LogPath); err == nil {
				f.Close()
			}
		}
	}

	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordExecution records a finished hook action.
func (t *Tracker) RecordExecution(event *ExecutionEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		log.Info().
			Str("request_id", event.RequestID).
			Str("hook", event.Hook).
			Int("exit_code", event.ExitCode).
			Bool("success", event.Success).
			Msg("telemetry")
	}

	if t.executionPath != "" {
		if err := appendJSONL(t.executionPath, event); err != nil {
			log.Error().Err(err).Str("path", t.executionPath).Msg("telemetry: failed to write execution event")
		} else {
			t.executionCount++
		}
	}
}

// Count returns the number of events written to file.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executionCount
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.executionPath != "" && t.executionCount > 0 {
		log.Info().
			Str("path", t.executionPath).
			Int("events", t.executionCount).
			Msg("telemetry: session complete")
	}

	return nil
}
