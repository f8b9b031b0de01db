// Package gateway types - shared constants and response helpers.
//
// DESIGN: The gateway serves two surfaces from one listener:
//   - proxy:      every unmatched path is forwarded to the upstream
//   - operations: /healthz, /stats, /logs/* for operators
//
// Constants and small helpers live here to keep the handler files focused.
package gateway

import (
	"encoding/json"
	"net/http"
)

// HeaderRequestID carries the exchange correlation ID end to end.
const HeaderRequestID = "X-Request-ID"

// MaxRateLimitBuckets caps per-IP limiter state.
const MaxRateLimitBuckets = 10000

// errorResponse is the JSON error body for gateway-origin failures.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError sends a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// writeJSON sends any payload as JSON.
func (g *Gateway) writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
