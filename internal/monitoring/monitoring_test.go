package monitoring

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(level zerolog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return FromZerolog(zerolog.New(&buf).Level(level)), &buf
}

func TestLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cptn.log")
	logger := New(LoggerConfig{Level: "warn", Format: "json", Output: path})

	logger.Info().Msg("hidden")
	logger.Warn().Str("hook", "deploy").Msg("visible")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"hook":"deploy"`)
}

func TestLogger_Nop(t *testing.T) {
	logger := Nop()
	assert.False(t, logger.Enabled(zerolog.ErrorLevel))
	logger.Error().Msg("discarded")
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestIDContext(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestAlertManager_SlowExecution(t *testing.T) {
	logger, buf := bufferLogger(zerolog.DebugLevel)
	am := NewAlertManager(logger, AlertConfig{SlowExecutionThreshold: time.Second})

	assert.False(t, am.FlagSlowExecution("r1", "deploy", 500*time.Millisecond))
	assert.Empty(t, buf.String())

	assert.True(t, am.FlagSlowExecution("r2", "deploy", 2*time.Second))
	assert.Contains(t, buf.String(), "slow_execution")
	assert.Contains(t, buf.String(), `"request_id":"r2"`)
}

func TestAlertManager_DefaultThreshold(t *testing.T) {
	am := NewAlertManager(Nop(), AlertConfig{})
	assert.Equal(t, time.Minute, am.slowExecutionThreshold)
}

func TestAlertManager_ExecutionFailure(t *testing.T) {
	logger, buf := bufferLogger(zerolog.InfoLevel)
	am := NewAlertManager(logger, AlertConfig{})

	am.FlagExecutionFailure("r1", "deploy", errors.New("exit 1"))
	am.FlagInvalidRequest("r2", "invalid_json", map[string]interface{}{"body_size": 3})

	out := buf.String()
	assert.Contains(t, out, "execution_failed")
	assert.Contains(t, out, "exit 1")
	assert.NotContains(t, out, "invalid_request", "invalid requests are debug-only")
}

func TestRequestLogger_DebugOnly(t *testing.T) {
	logger, buf := bufferLogger(zerolog.InfoLevel)
	rl := NewRequestLogger(logger)

	rl.LogDispatch(&DispatchInfo{RequestID: "r1", Hook: "deploy"})
	rl.LogExecution(&ExecutionInfo{RequestID: "r1", Hook: "deploy", Stdout: "ok"})
	assert.Empty(t, buf.String())

	logger, buf = bufferLogger(zerolog.DebugLevel)
	rl = NewRequestLogger(logger)
	rl.LogRejected(&RejectInfo{RequestID: "r1", Method: http.MethodGet, Outcome: OutcomeMethodRejected})
	rl.LogExecution(&ExecutionInfo{RequestID: "r1", Hook: "deploy", Stdout: "hello\n", Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, `"outcome":"method_not_allowed"`)
	assert.Contains(t, out, `"stdout":"hello\n"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestRequestLogger_DispatchPayload(t *testing.T) {
	logger, buf := bufferLogger(zerolog.DebugLevel)
	rl := NewRequestLogger(logger)

	rl.LogDispatch(&DispatchInfo{RequestID: "r1", Hook: "deploy", PayloadValid: true, Payload: []byte(`{"ref":"main"}`)})
	out := buf.String()
	assert.Contains(t, out, `"outcome":"admitted"`)
	assert.Contains(t, out, `"payload":"{\"ref\":\"main\"}"`)
	assert.NotContains(t, out, "payload_truncated")

	buf.Reset()
	big := make([]byte, maxLoggedPayload+100)
	for i := range big {
		big[i] = 'a'
	}
	rl.LogDispatch(&DispatchInfo{RequestID: "r2", Hook: "deploy", Payload: big})
	out = buf.String()
	assert.Contains(t, out, `"payload_truncated":true`)
	assert.NotContains(t, out, string(big))
}

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRequest(http.StatusOK, 0)
	mc.RecordRequest(http.StatusOK, 0)
	mc.RecordRequest(http.StatusMethodNotAllowed, 0)
	mc.RecordRequest(http.StatusNotFound, 0)
	mc.RecordRequest(http.StatusBadRequest, 0)
	mc.RecordRequest(http.StatusInternalServerError, 0)
	mc.RecordDeduplicated()
	mc.RecordExecution(true, 10*time.Millisecond)
	mc.RecordExecution(false, 20*time.Millisecond)

	stats := mc.Stats()
	assert.Equal(t, int64(6), stats["requests"])
	assert.Equal(t, int64(2), stats["admitted"])
	assert.Equal(t, int64(1), stats["method_not_allowed"])
	assert.Equal(t, int64(1), stats["not_found"])
	assert.Equal(t, int64(1), stats["bad_payload"])
	assert.Equal(t, int64(1), stats["dispatch_failed"])
	assert.Equal(t, int64(1), stats["deduplicated"])
	assert.Equal(t, int64(2), stats["executions"])
	assert.Equal(t, int64(1), stats["execution_failures"])
	assert.Equal(t, int64(30), stats["execution_time_msec"])
}

func TestTracker_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.jsonl")
	tr, err := NewTracker(TelemetryConfig{Enabled: false, LogPath: path})
	require.NoError(t, err)

	tr.RecordExecution(&ExecutionEvent{Hook: "deploy"})
	assert.Equal(t, 0, tr.Count())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestTracker_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "exec.jsonl")
	tr, err := NewTracker(TelemetryConfig{Enabled: true, LogPath: path})
	require.NoError(t, err)

	tr.RecordExecution(&ExecutionEvent{RequestID: "r1", Hook: "deploy", Success: true})
	tr.RecordExecution(&ExecutionEvent{RequestID: "r2", Hook: "deploy", ExitCode: 2, Error: "exit 2"})
	require.NoError(t, tr.Close())
	assert.Equal(t, 2, tr.Count())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []ExecutionEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev ExecutionEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.True(t, events[0].Success)
	assert.Equal(t, 2, events[1].ExitCode)
	assert.Equal(t, "exit 2", events[1].Error)
}
