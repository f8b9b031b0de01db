// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:  Request received from client
//   - LogForwarded: Request handed to the upstream
//   - LogCompleted: Response fully written to client
package monitoring

import (
	"net/http"
	"time"
)

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
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
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
		Msg("incoming")
}

// LogForwarded logs the hand-off to the upstream.
func (rl *RequestLogger) LogForwarded(requestID, upstream string) {
	rl.logger.Debug().
		Str("request_id", requestID).
		Str("upstream", upstream).
		Msg("forwarded")
}

// LogCompleted logs a fully written response.
func (rl *RequestLogger) LogCompleted(rec *AccessRecord) {
	rl.logger.Debug().
		Str("request_id", rec.RequestID).
		Int("status", rec.StatusCode).
		Int64("bytes", rec.BodyBytes).
		Int64("latency_ms", rec.TotalLatencyMs).
		Msg("completed")
}
