// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/admitted:   Total requests and 200 responses
//   - not_found etc.:      Requests answered without dispatch, by status
//   - executions/failures: Finished hook actions and how many failed
//
// Stats() is logged on shutdown.
package monitoring

import (
	"net/http"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests         atomic.Int64
	admitted         atomic.Int64
	methodRejected   atomic.Int64
	notFound         atomic.Int64
	badPayload       atomic.Int64
	dispatchFailed   atomic.Int64
	deduplicated     atomic.Int64
	executions       atomic.Int64
	executionFailure atomic.Int64
	executionNanos   atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRequest records a request by its final status code.
func (mc *MetricsCollector) RecordRequest(status int, _ time.Duration) {
	mc.requests.Add(1)
	switch status {
	case http.StatusOK:
		mc.admitted.Add(1)
	case http.StatusMethodNotAllowed:
		mc.methodRejected.Add(1)
	case http.StatusNotFound:
		mc.notFound.Add(1)
	case http.StatusBadRequest:
		mc.badPayload.Add(1)
	case http.StatusInternalServerError:
		mc.dispatchFailed.Add(1)
	}
}

// RecordDeduplicated records a redelivery that was acknowledged without dispatch.
func (mc *MetricsCollector) RecordDeduplicated() { mc.deduplicated.Add(1) }

// RecordExecution records a finished hook action.
func (mc *MetricsCollector) RecordExecution(success bool, d time.Duration) {
	mc.executions.Add(1)
	mc.executionNanos.Add(int64(d))
	if !success {
		mc.executionFailure.Add(1)
	}
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":            mc.requests.Load(),
		"admitted":            mc.admitted.Load(),
		"method_not_allowed":  mc.methodRejected.Load(),
		"not_found":           mc.notFound.Load(),
		"bad_payload":         mc.badPayload.Load(),
		"dispatch_failed":     mc.dispatchFailed.Load(),
		"deduplicated":        mc.deduplicated.Load(),
		"executions":          mc.executions.Load(),
		"execution_failures":  mc.executionFailure.Load(),
		"execution_time_msec": time.Duration(mc.executionNanos.Load()).Milliseconds(),
	}
}
