package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cptn-hooks/cptn/internal/hooks"
	"github.com/cptn-hooks/cptn/internal/monitoring"
)

var (
	// ErrBodyParse means the request body was not valid JSON.
	ErrBodyParse = errors.New("request body is not valid JSON")

	// ErrDispatch means a hook action failed to start or panicked.
	ErrDispatch = errors.New("hook dispatch failed")
)

// DispatchError wraps the failure of a hook action to start.
type DispatchError struct {
	Hook string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: hook %q: %v", ErrDispatch, e.Hook, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Is reports ErrDispatch for every DispatchError.
func (e *DispatchError) Is(target error) bool { return target == ErrDispatch }

// hookName returns the hook name addressed by r: the request target as sent
// by the client, minus one leading slash. The query string is part of it.
func hookName(r *http.Request) string {
	target := r.RequestURI
	if target == "" {
		target = r.URL.RequestURI()
	}
	return strings.TrimPrefix(target, "/")
}

// handleHook runs the per-request state machine:
//
//	Received → MethodChecked → Matched|Unmatched → BodyBuffering →
//	BodyParsed|ParseFailed → Dispatched|DispatchFailed → Responded
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	requestID := monitoring.RequestIDFromContext(r.Context())

	if r.Method != http.MethodPost {
		s.requestLogger.LogRejected(&monitoring.RejectInfo{
			RequestID: requestID,
			Method:    r.Method,
			Outcome:   monitoring.OutcomeMethodRejected,
		})
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	name := hookName(r)
	hook, ok := s.registry.Lookup(name)
	if !ok {
		s.requestLogger.LogRejected(&monitoring.RejectInfo{
			RequestID: requestID,
			Hook:      name,
			Outcome:   monitoring.OutcomeNoHook,
		})
		w.WriteHeader(http.StatusNotFound)
		return
	}

	deliveryKey, redelivered := s.claimDelivery(r, hook.Name)
	if redelivered {
		s.metrics.RecordDeduplicated()
		s.requestLogger.LogRejected(&monitoring.RejectInfo{
			RequestID: requestID,
			Hook:      hook.Name,
			Outcome:   monitoring.OutcomeDeduplicated,
		})
		w.WriteHeader(http.StatusOK)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.alerts.FlagInvalidRequest(requestID, "read_body", map[string]interface{}{"error": err.Error()})
		s.releaseDelivery(deliveryKey)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	payload := hooks.ParsePayload(raw)
	if !payload.Valid {
		s.alerts.FlagInvalidRequest(requestID, "invalid_json", map[string]interface{}{
			"hook":      hook.Name,
			"body_size": len(raw),
			"error":     ErrBodyParse.Error(),
		})
		status = http.StatusBadRequest
		if !s.config.Server.DispatchOnParseError {
			s.requestLogger.LogRejected(&monitoring.RejectInfo{
				RequestID: requestID,
				Hook:      hook.Name,
				Outcome:   monitoring.OutcomeBadPayload,
			})
			s.releaseDelivery(deliveryKey)
			w.WriteHeader(status)
			return
		}
	}

	s.requestLogger.LogDispatch(&monitoring.DispatchInfo{
		RequestID:    requestID,
		Hook:         hook.Name,
		Command:      hook.Command,
		PayloadValid: payload.Valid,
		Payload:      raw,
	})

	// The action outlives the request; keep its values, drop its cancellation.
	ctx := context.WithoutCancel(r.Context())
	if err := s.dispatch(ctx, hook, payload, requestID); err != nil {
		s.alerts.FlagDispatchFailure(requestID, hook.Name, err)
		s.requestLogger.LogRejected(&monitoring.RejectInfo{
			RequestID: requestID,
			Hook:      hook.Name,
			Outcome:   monitoring.OutcomeDispatchFailed,
		})
		s.releaseDelivery(deliveryKey)
		if status == http.StatusOK {
			status = http.StatusInternalServerError
		}
	}

	w.WriteHeader(status)
}

// dispatch invokes the hook action. Panics become a DispatchError.
func (s *Server) dispatch(ctx context.Context, hook *hooks.Hook, payload hooks.Payload, requestID string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &DispatchError{Hook: hook.Name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if err := hook.Action(ctx, payload, s.completion(hook, requestID)); err != nil {
		return &DispatchError{Hook: hook.Name, Err: err}
	}
	return nil
}

// completion returns the done callback for one dispatch. Only the first call
// is recorded. It never touches the HTTP response.
func (s *Server) completion(hook *hooks.Hook, requestID string) hooks.DoneFunc {
	var once sync.Once
	started := time.Now()

	return func(result hooks.Result, err error) {
		once.Do(func() {
			duration := result.Duration
			if duration == 0 {
				duration = time.Since(started)
			}

			s.requestLogger.LogExecution(&monitoring.ExecutionInfo{
				RequestID: requestID,
				Hook:      hook.Name,
				ExitCode:  result.ExitCode,
				Stdout:    result.Stdout,
				Duration:  duration,
				Err:       err,
			})
			s.metrics.RecordExecution(err == nil, duration)
			s.alerts.FlagSlowExecution(requestID, hook.Name, duration)
			if err != nil {
				s.alerts.FlagExecutionFailure(requestID, hook.Name, err)
			}

			event := &monitoring.ExecutionEvent{
				RequestID:  requestID,
				Timestamp:  time.Now(),
				Hook:       hook.Name,
				Command:    hook.Command,
				ExitCode:   result.ExitCode,
				StdoutSize: len(result.Stdout),
				StderrSize: len(result.Stderr),
				Success:    err == nil,
				DurationMs: duration.Milliseconds(),
			}
			if err != nil {
				event.Error = err.Error()
			}
			s.tracker.RecordExecution(event)
		})
	}
}

// claimDelivery claims the request's delivery ID for hook. It returns the
// claimed key ("" when there is none) and whether the same delivery was
// already claimed within the dedupe TTL.
func (s *Server) claimDelivery(r *http.Request, hook string) (string, bool) {
	if s.ledger == nil {
		return "", false
	}
	for _, header := range s.config.Dedupe.Headers {
		if id := r.Header.Get(header); id != "" {
			key := hook + ":" + id
			if !s.ledger.Claim(key) {
				return "", true
			}
			return key, false
		}
	}
	return "", false
}

// releaseDelivery drops a claim for a delivery that was not admitted, so a
// retry of it runs the hook.
func (s *Server) releaseDelivery(key string) {
	if key != "" {
		s.ledger.Release(key)
	}
}
