// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by the gateway, sink, and store packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - AccessRecord: Structured snapshot of one completed exchange
//   - Config types: LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for access recording
// =============================================================================

// AccessRecord captures one exchange through the gateway. It is the unit
// every sink and store operates on; the JSON shape is the wire format for
// the JSONL file, the live tail, and the archive shipper.
type AccessRecord struct {
	RequestID   string    `json:"request_id"`
	Timestamp   time.Time `json:"timestamp"`
	ClientAddr  string    `json:"client_addr,omitempty"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	Query       string    `json:"query,omitempty"`
	Proto       string    `json:"proto"`
	RequestLine string    `json:"request_line"`
	StatusCode  int       `json:"status_code"`
	BodyBytes   int64     `json:"body_bytes"`
	Referer     string    `json:"referer,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Upstream    string    `json:"upstream,omitempty"`

	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`

	RequestLatencyMs  int64 `json:"request_latency_ms"`
	ResponseLatencyMs int64 `json:"response_latency_ms"`
	TotalLatencyMs    int64 `json:"total_latency_ms"`

	Error string `json:"error,omitempty"`
}

// Success reports whether the exchange completed without a server-side
// failure.
func (r AccessRecord) Success() bool {
	return r.Error == "" && r.StatusCode > 0 && r.StatusCode < 500
}

// StatusClass returns the "2xx" style class label, "unset" before any
// status was written.
func (r AccessRecord) StatusClass() string {
	switch r.StatusCode / 100 {
	case 1:
		return "1xx"
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "unset"
	}
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level     string `yaml:"level"`      // trace, debug, info, warn, error
	Format    string `yaml:"format"`     // json, console
	Output    string `yaml:"output"`     // stdout, stderr, or file path
	UseColors *bool  `yaml:"use_colors"` // nil auto-detects a terminal
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"`
}
