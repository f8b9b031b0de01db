// HTTP middleware for security, access logging, and rate limiting.
//
// DESIGN: Middleware chain (applied in order):
//  1. accessMiddleware:  Drive the access-log exchange lifecycle
//  2. panicRecovery:     Catch panics, return 500, log stack trace
//  3. rateLimit:         Per-IP token bucket rate limiting
//  4. security:          Security headers, CORS
//
// accessMiddleware sits outermost and panicRecovery directly under it,
// so crashed handlers still produce a 500 access record. The middleware
// owns the exchange state: it snapshots the request, marks the timing
// boundaries as bytes move, captures the response through the writer
// wrapper, and hands the finished exchange to the sink dispatcher.
package gateway

import (
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tschaume/httptrail/internal/accesslog"
	"github.com/tschaume/httptrail/internal/monitoring"
)

// responseWriter wraps http.ResponseWriter to feed response events into
// the exchange's field resolver.
type responseWriter struct {
	http.ResponseWriter
	fields      *accesslog.Fields
	timing      *accesslog.Timing
	status      int
	wroteHeader bool
}

// WriteHeader records the status and the response header set exactly
// once; later calls pass through so net/http can log its own complaint.
func (w *responseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.status = status
		w.timing.ResponseStarted()
		w.fields.OnResponseStart(status, headerPairs(w.Header()))
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write counts body bytes as they leave.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	if n > 0 {
		w.fields.OnResponseBody(n)
	}
	return n, err
}

// Flush implements http.Flusher to support streaming responses.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer, so
// handlers behind the middleware can hijack the connection (the
// websocket tail upgrade needs this).
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// headerPairs flattens an http.Header into wire pairs. Names are sorted
// since Go's header map has no order.
func headerPairs(h http.Header) []accesslog.HeaderPair {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]accesslog.HeaderPair, 0, len(h))
	for _, name := range names {
		for _, value := range h[name] {
			pairs = append(pairs, accesslog.HeaderPair{Name: name, Value: value})
		}
	}
	return pairs
}

// requestBody marks the request-received timing boundary when the body
// has been fully consumed (or closed early).
type requestBody struct {
	io.ReadCloser
	timing *accesslog.Timing
	once   sync.Once
}

func (b *requestBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == io.EOF {
		b.once.Do(b.timing.RequestEnded)
	}
	return n, err
}

func (b *requestBody) Close() error {
	b.once.Do(b.timing.RequestEnded)
	return b.ReadCloser.Close()
}

// accessMiddleware creates the exchange state, threads it through the
// handler, and dispatches the finished record.
func (g *Gateway) accessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		// Add request ID to context for downstream logging
		ctx := monitoring.WithRequestIDContext(r.Context(), requestID)
		ctx, perr := withProxyError(ctx)
		r = r.WithContext(ctx)

		timing := accesslog.NewTiming()
		timing.RequestStarted()

		fields := accesslog.NewFields(accesslog.NewMetadata(r), timing)

		if r.ContentLength == 0 {
			timing.RequestEnded()
		} else {
			r.Body = &requestBody{ReadCloser: r.Body, timing: timing}
		}

		g.requestLogger.LogIncoming(monitoring.NewRequestInfo(r, requestID))
		g.metrics.RequestStarted()

		wrapped := &responseWriter{ResponseWriter: w, fields: fields, timing: timing}
		next.ServeHTTP(wrapped, r)

		// Backstops for handlers that never touched the body or wrote
		// a response.
		if !wrapped.wroteHeader {
			wrapped.WriteHeader(http.StatusOK)
		}
		if _, err := timing.RequestEndTime(); err != nil {
			timing.RequestEnded()
		}
		timing.ResponseEnded()

		rec := monitoring.NewAccessRecord(requestID, fields, timing)
		rec.Upstream = g.upstreamHost
		rec.Error = perr.msg

		total, err := timing.TotalDuration()
		if err != nil {
			total = 0
		}
		g.metrics.RecordRequest(&rec, total)
		g.alerts.FlagSlowRequest(&rec)
		if rec.StatusCode >= 500 {
			g.alerts.FlagUpstreamError(requestID, g.upstreamHost, rec.StatusCode)
		}
		g.requestLogger.LogCompleted(&rec)

		g.dispatcher.Dispatch(&rec, fields)
	})
}

// panicRecovery middleware recovers from panics and returns a 500 error.
func (g *Gateway) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())
				requestID := monitoring.RequestIDFromContext(r.Context())

				log.Error().Interface("panic", err).Str("stack", stack).Msg("panic")
				g.alerts.FlagPanic(requestID, err, stack)

				g.writeError(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a token bucket rate limiter per IP address.
type rateLimiter struct {
	buckets    map[string]*bucket
	mu         sync.RWMutex
	rate       int
	maxBuckets int
}

// bucket holds rate limiting state for a single IP.
type bucket struct {
	tokens    int
	lastCheck time.Time
}

// newRateLimiter creates a new rate limiter with the specified rate per second.
func newRateLimiter(rate int) *rateLimiter {
	rl := &rateLimiter{buckets: make(map[string]*bucket), rate: rate, maxBuckets: MaxRateLimitBuckets}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// allow checks if the given IP is allowed to make a request.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, exists := rl.buckets[ip]
	if !exists {
		// Enforce max buckets to prevent memory exhaustion
		if len(rl.buckets) >= rl.maxBuckets {
			rl.evictOldest()
		}
		rl.buckets[ip] = &bucket{tokens: rl.rate - 1, lastCheck: now}
		return true
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	b.tokens += int(elapsed * float64(rl.rate))
	if b.tokens > rl.rate {
		b.tokens = rl.rate
	}
	b.lastCheck = now

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// evictOldest removes the oldest bucket (called with lock held).
func (rl *rateLimiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, b := range rl.buckets {
		if first || b.lastCheck.Before(oldestTime) {
			oldestKey = k
			oldestTime = b.lastCheck
			first = false
		}
	}
	if oldestKey != "" {
		delete(rl.buckets, oldestKey)
	}
}

// cleanup periodically removes stale buckets.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for ip, b := range rl.buckets {
			if b.lastCheck.Before(cutoff) {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// rateLimit middleware enforces per-IP rate limiting. Disabled when no
// limiter was configured.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	if g.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := g.getClientIP(r)
		if !g.rateLimiter.allow(ip) {
			log.Warn().Str("ip", ip).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			g.writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// security middleware adds security headers and handles CORS.
func (g *Gateway) security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		// CORS: restrict to configured origins (default: none for API-only use)
		origin := r.Header.Get("Origin")
		if origin != "" && g.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if origin is permitted for CORS.
func (g *Gateway) isAllowedOrigin(origin string) bool {
	// Default: allow localhost for development
	return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")
}

// getClientIP extracts the client IP address from the request.
// Trusts X-Forwarded-For and X-Real-IP headers only from localhost.
func (g *Gateway) getClientIP(r *http.Request) string {
	// Only trust X-Forwarded-For from localhost (reverse proxy)
	if remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr); remoteIP == "127.0.0.1" || remoteIP == "::1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
