// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagSlowRequest:   Warn when an exchange exceeds the threshold
//   - FlagUpstreamError: Warn on upstream 5xx responses
//   - FlagProxyFailure:  Error when the upstream could not be reached
//   - FlagPanic:         Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	metrics              *MetricsCollector
	slowRequestThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, metrics *MetricsCollector, cfg AlertConfig) *AlertManager {
	threshold := cfg.SlowRequestThreshold
	if threshold == 0 {
		threshold = 5 * time.Second
	}
	return &AlertManager{logger: logger, metrics: metrics, slowRequestThreshold: threshold}
}

// FlagSlowRequest logs when total latency exceeds the threshold.
func (am *AlertManager) FlagSlowRequest(rec *AccessRecord) {
	latency := time.Duration(rec.TotalLatencyMs) * time.Millisecond
	if latency < am.slowRequestThreshold {
		return
	}
	am.metrics.RecordSlowRequest()
	am.logger.Warn().
		Str("request_id", rec.RequestID).
		Str("path", rec.Path).
		Dur("latency", latency).
		Msg("slow_request")
}

// FlagUpstreamError logs an upstream 5xx response.
func (am *AlertManager) FlagUpstreamError(requestID, upstream string, statusCode int) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("upstream", upstream).
		Int("status", statusCode).
		Msg("upstream_error")
}

// FlagProxyFailure logs a failed forward to the upstream.
func (am *AlertManager) FlagProxyFailure(requestID, upstream string, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("upstream", upstream).
		Err(err).
		Msg("proxy_failure")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.metrics.RecordPanic()
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
