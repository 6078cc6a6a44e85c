// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagSlowExecution:     Warn when a hook action runs past the threshold
//   - FlagExecutionFailure:  Error when a hook action reports failure
//   - FlagDispatchFailure:   Error when a hook action could not be started
//   - FlagInvalidRequest:    Debug on unparseable webhook bodies
//   - FlagPanic:             Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger                 *Logger
	slowExecutionThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.SlowExecutionThreshold
	if threshold == 0 {
		threshold = time.Minute
	}
	return &AlertManager{logger: logger, slowExecutionThreshold: threshold}
}

// FlagSlowExecution logs when a hook action took longer than the threshold.
// Returns true if the alert fired.
func (am *AlertManager) FlagSlowExecution(requestID, hook string, duration time.Duration) bool {
	if duration < am.slowExecutionThreshold {
		return false
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Str("hook", hook).
		Dur("duration", duration).
		Dur("threshold", am.slowExecutionThreshold).
		Msg("slow_execution")
	return true
}

// FlagExecutionFailure logs a failed hook action.
func (am *AlertManager) FlagExecutionFailure(requestID, hook string, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("hook", hook).
		Err(err).
		Msg("execution_failed")
}

// FlagDispatchFailure logs a hook action that failed before it was admitted.
func (am *AlertManager) FlagDispatchFailure(requestID, hook string, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("hook", hook).
		Err(err).
		Msg("dispatch_failed")
}

// FlagInvalidRequest logs invalid request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string, details map[string]interface{}) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Fields(details).
		Msg("invalid_request")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
