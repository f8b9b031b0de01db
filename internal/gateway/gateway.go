// Package gateway assembles the reverse proxy and its operator surface.
//
// DESIGN: One Gateway per process. It owns every long-lived collaborator:
// the sink dispatcher, the retention store, the tail hub, metrics, and
// the upstream proxy. Two surfaces share the listener:
//   - proxy:      every unmatched path is forwarded to the upstream
//   - operations: /healthz, /stats, /logs/recent, /logs/tail
//
// Start blocks on ListenAndServe; Shutdown drains the server first, then
// the dispatcher, so every served exchange still reaches its sinks.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"time"

	"github.com/tschaume/httptrail/internal/config"
	"github.com/tschaume/httptrail/internal/monitoring"
	"github.com/tschaume/httptrail/internal/sink"
	"github.com/tschaume/httptrail/internal/store"
)

// Gateway is the assembled proxy server.
type Gateway struct {
	cfg           *config.Config
	logger        *monitoring.Logger
	requestLogger *monitoring.RequestLogger
	metrics       *monitoring.MetricsCollector
	alerts        *monitoring.AlertManager
	dispatcher    *sink.Dispatcher
	tailHub       *sink.TailHub
	records       store.Store
	rateLimiter   *rateLimiter

	upstreamHost string
	proxy        *httputil.ReverseProxy
	server       *http.Server
}

// New builds a gateway from a validated config.
func New(cfg *config.Config) (*Gateway, error) {
	logger := monitoring.New(cfg.Logging)
	metrics := monitoring.NewMetricsCollector()

	g := &Gateway{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		alerts:  monitoring.NewAlertManager(logger, metrics, cfg.Alerts),
	}
	g.requestLogger = monitoring.NewRequestLogger(logger)

	upstream, err := cfg.UpstreamURL()
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	g.upstreamHost = upstream.Host
	g.proxy = g.newProxy(upstream)

	sinks, err := g.buildSinks()
	if err != nil {
		return nil, err
	}
	g.dispatcher = sink.NewDispatcher(logger, cfg.Sinks.QueueSize, sinks...)

	if cfg.Server.RateLimit > 0 {
		g.rateLimiter = newRateLimiter(cfg.Server.RateLimit)
	}

	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      g.handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g, nil
}

// buildSinks constructs every enabled sink, dispatcher order: console
// first so operators see lines even when a later sink misbehaves.
func (g *Gateway) buildSinks() ([]sink.Sink, error) {
	var sinks []sink.Sink

	if g.cfg.AccessLog.Enabled {
		cs, err := sink.NewConsoleSink(g.cfg.AccessLog)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, cs)
	}

	if g.cfg.Sinks.JSONL.Enabled {
		js, err := sink.NewJSONLSink(g.cfg.Sinks.JSONL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, js)
	}

	if g.cfg.Sinks.Store.Enabled {
		st, err := g.openStore()
		if err != nil {
			return nil, err
		}
		g.records = st
		sinks = append(sinks, sink.NewStoreSink(st))
	}

	if g.cfg.Sinks.Tail.Enabled {
		g.tailHub = sink.NewTailHub(g.logger, g.cfg.Sinks.Tail)
		sinks = append(sinks, g.tailHub)
	}

	if g.cfg.Sinks.S3.Enabled {
		s3s, err := sink.NewS3Sink(g.cfg.Sinks.S3, g.logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3s)
	}

	return sinks, nil
}

func (g *Gateway) openStore() (store.Store, error) {
	cfg := g.cfg.Sinks.Store
	switch cfg.Backend {
	case "sqlite":
		return store.OpenSQLite(cfg.Path, cfg.Retention)
	default:
		return store.NewMemoryStore(cfg.Capacity, cfg.Retention), nil
	}
}

// handler builds the middleware chain around the mux. Access logging is
// outermost so even rate-limited and panicked exchanges produce records.
func (g *Gateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	mux.HandleFunc("/logs/recent", g.handleRecent)
	if g.tailHub != nil {
		mux.Handle("/logs/tail", g.tailHub)
	}
	mux.HandleFunc("/", g.handleProxy)

	var h http.Handler = mux
	h = g.security(h)
	h = g.rateLimit(h)
	h = g.panicRecovery(h)
	h = g.accessMiddleware(h)
	return h
}

// handleProxy forwards one exchange to the upstream.
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	g.requestLogger.LogForwarded(monitoring.RequestIDFromContext(r.Context()), g.upstreamHost)
	g.proxy.ServeHTTP(w, r)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleStats reports the metrics snapshot plus dispatcher and tail
// gauges.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := g.metrics.Stats()
	stats["sink_dropped"] = g.dispatcher.Dropped()
	if g.tailHub != nil {
		stats["tail_subscribers"] = int64(g.tailHub.Subscribers())
	}
	g.writeJSON(w, stats, http.StatusOK)
}

// handleRecent returns the newest records from the retention store.
// ?limit=N caps the page; default 100.
func (g *Gateway) handleRecent(w http.ResponseWriter, r *http.Request) {
	if g.records == nil {
		g.writeError(w, "record store is not enabled", http.StatusNotFound)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			g.writeError(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := g.records.Recent(limit)
	if err != nil {
		g.writeError(w, "record store query failed", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, map[string]any{
		"count":   len(records),
		"records": records,
	}, http.StatusOK)
}

// Start runs the dispatcher and blocks serving until Shutdown.
func (g *Gateway) Start() error {
	g.dispatcher.Start()
	g.logger.Info().
		Int("port", g.cfg.Server.Port).
		Str("upstream", g.upstreamHost).
		Msg("gateway listening")
	return g.server.ListenAndServe()
}

// Serve is Start on a caller-supplied listener, ignoring the configured
// port.
func (g *Gateway) Serve(l net.Listener) error {
	g.dispatcher.Start()
	g.logger.Info().
		Str("addr", l.Addr().String()).
		Str("upstream", g.upstreamHost).
		Msg("gateway listening")
	return g.server.Serve(l)
}

// Shutdown stops accepting connections, drains in-flight exchanges, then
// flushes the sinks and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)

	g.dispatcher.Stop()
	if g.records != nil {
		if cerr := g.records.Close(); cerr != nil {
			g.logger.Error().Err(cerr).Msg("record store close failed")
		}
	}
	g.logger.Info().Msg("gateway stopped")
	return err
}

// Handler exposes the assembled chain for in-process serving in tests.
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler
}

// shutdownGrace bounds how long Shutdown waits when the caller passes no
// deadline of its own.
const shutdownGrace = 30 * time.Second

// ShutdownGraceful is Shutdown with the default grace period.
func (g *Gateway) ShutdownGraceful() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return g.Shutdown(ctx)
}
