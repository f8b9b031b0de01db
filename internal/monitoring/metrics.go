// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes: Total and successful exchange counts
//   - status classes:     2xx/3xx/4xx/5xx breakdown
//   - bytes_out:          Response body bytes served
//   - in_flight:          Exchanges currently being served
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests  atomic.Int64
	successes atomic.Int64
	status2xx atomic.Int64
	status3xx atomic.Int64
	status4xx atomic.Int64
	status5xx atomic.Int64
	bytesOut  atomic.Int64
	slow      atomic.Int64
	panics    atomic.Int64
	inFlight  atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RequestStarted marks an exchange as in flight.
func (mc *MetricsCollector) RequestStarted() {
	mc.inFlight.Add(1)
}

// RecordRequest records a completed exchange.
func (mc *MetricsCollector) RecordRequest(rec *AccessRecord, _ time.Duration) {
	mc.inFlight.Add(-1)
	mc.requests.Add(1)
	if rec.Success() {
		mc.successes.Add(1)
	}
	mc.bytesOut.Add(rec.BodyBytes)

	switch rec.StatusCode / 100 {
	case 2:
		mc.status2xx.Add(1)
	case 3:
		mc.status3xx.Add(1)
	case 4:
		mc.status4xx.Add(1)
	case 5:
		mc.status5xx.Add(1)
	}
}

// RecordSlowRequest records an exchange that crossed the alert threshold.
func (mc *MetricsCollector) RecordSlowRequest() { mc.slow.Add(1) }

// RecordPanic records a recovered handler panic.
func (mc *MetricsCollector) RecordPanic() { mc.panics.Add(1) }

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":      mc.requests.Load(),
		"successes":     mc.successes.Load(),
		"status_2xx":    mc.status2xx.Load(),
		"status_3xx":    mc.status3xx.Load(),
		"status_4xx":    mc.status4xx.Load(),
		"status_5xx":    mc.status5xx.Load(),
		"bytes_out":     mc.bytesOut.Load(),
		"slow_requests": mc.slow.Load(),
		"panics":        mc.panics.Load(),
		"in_flight":     mc.inFlight.Load(),
	}
}

// Stop is a no-op for compatibility.
func (mc *MetricsCollector) Stop() {}
