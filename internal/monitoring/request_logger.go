// Package monitoring - request_logger.go logs webhook request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:   Request received from client
//   - LogRejected:   Request answered without dispatch (405/404/400/dedupe)
//   - LogDispatch:   Hook action admitted
//   - LogResponse:   Response sent to client
//   - LogExecution:  Hook action finished (after the response)
package monitoring

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// maxLoggedPayload caps the request body bytes copied into a dispatch log line.
const maxLoggedPayload = 4096

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Str("remote", info.RemoteAddr).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// RejectInfo describes a request answered without running a hook.
type RejectInfo struct {
	RequestID string
	Hook      string
	Method    string
	Outcome   Outcome
}

// LogRejected logs a request that was not dispatched.
func (rl *RequestLogger) LogRejected(info *RejectInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("outcome", string(info.Outcome))
	if info.Hook != "" {
		event = event.Str("hook", info.Hook)
	}
	if info.Method != "" {
		event = event.Str("method", info.Method)
	}
	event.Msg("rejected")
}

// DispatchInfo contains hook dispatch information.
type DispatchInfo struct {
	RequestID    string
	Hook         string
	Command      string
	PayloadValid bool
	Payload      []byte
}

// LogDispatch logs a hook about to be invoked.
func (rl *RequestLogger) LogDispatch(info *DispatchInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("hook", info.Hook).
		Str("outcome", string(OutcomeAdmitted)).
		Bool("payload_valid", info.PayloadValid)
	if info.Command != "" {
		event = event.Str("command", info.Command)
	}
	if len(info.Payload) > 0 && rl.logger.Enabled(zerolog.DebugLevel) {
		payload := info.Payload
		if len(payload) > maxLoggedPayload {
			payload = payload[:maxLoggedPayload]
			event = event.Bool("payload_truncated", true)
		}
		event = event.Bytes("payload", payload)
	}
	event.Msg("dispatch")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

// ExecutionInfo contains hook execution results.
type ExecutionInfo struct {
	RequestID string
	Hook      string
	ExitCode  int
	Stdout    string
	Duration  time.Duration
	Err       error
}

// LogExecution logs a finished hook action.
func (rl *RequestLogger) LogExecution(info *ExecutionInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("hook", info.Hook).
		Int("exit_code", info.ExitCode).
		Dur("duration", info.Duration)
	if info.Stdout != "" {
		event = event.Str("stdout", info.Stdout)
	}
	if info.Err != nil {
		event = event.Err(info.Err)
	}
	event.Msg("execution")
}
