// Package sink - tail.go streams records to live websocket subscribers.
//
// DESIGN: Each subscriber gets a buffered channel; the hub broadcast
// never blocks, so a stalled client silently misses lines instead of
// backing up the dispatcher. Filters are evaluated per subscriber
// against the serialized record, which lets clients match any JSON
// field without the hub knowing the schema.
package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/tschaume/httptrail/internal/monitoring"
)

// tailWriteTimeout bounds one frame write to a subscriber.
const tailWriteTimeout = 5 * time.Second

// TailConfig configures the live tail endpoint.
type TailConfig struct {
	Enabled bool `yaml:"enabled"`
	Buffer  int  `yaml:"buffer"` // per-subscriber channel depth
}

// TailFilter selects which records a subscriber receives. Zero value
// matches everything.
type TailFilter struct {
	PathPrefix  string // request path prefix
	StatusClass string // "2xx" style class label
	Query       string // JSON path into the serialized record
	Value       string // expected value at Query; empty asserts existence
}

// ParseTailFilter reads the filter from websocket query parameters:
// path, status, q, and v.
func ParseTailFilter(values url.Values) TailFilter {
	return TailFilter{
		PathPrefix:  values.Get("path"),
		StatusClass: strings.ToLower(values.Get("status")),
		Query:       values.Get("q"),
		Value:       values.Get("v"),
	}
}

// Match reports whether a serialized record passes the filter.
func (f TailFilter) Match(data []byte, rec *monitoring.AccessRecord) bool {
	if f.PathPrefix != "" && !strings.HasPrefix(rec.Path, f.PathPrefix) {
		return false
	}
	if f.StatusClass != "" && rec.StatusClass() != f.StatusClass {
		return false
	}
	if f.Query != "" {
		result := gjson.GetBytes(data, f.Query)
		if !result.Exists() {
			return false
		}
		if f.Value != "" && result.String() != f.Value {
			return false
		}
	}
	return true
}

type tailSubscriber struct {
	ch     chan []byte
	filter TailFilter
}

// TailHub broadcasts records to websocket subscribers.
type TailHub struct {
	logger *monitoring.Logger
	buffer int

	mu     sync.Mutex
	subs   map[*tailSubscriber]struct{}
	done   chan struct{}
	closed bool
}

// NewTailHub creates an empty hub.
func NewTailHub(logger *monitoring.Logger, cfg TailConfig) *TailHub {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	return &TailHub{
		logger: logger,
		buffer: buffer,
		subs:   make(map[*tailSubscriber]struct{}),
		done:   make(chan struct{}),
	}
}

func (h *TailHub) Name() string { return "tail" }

// Write broadcasts one record to every matching subscriber.
func (h *TailHub) Write(ev *Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.subs) == 0 {
		return nil
	}

	data, err := json.Marshal(ev.Record)
	if err != nil {
		return err
	}
	for sub := range h.subs {
		if !sub.filter.Match(data, ev.Record) {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			// Slow subscriber; skip this line rather than block.
		}
	}
	return nil
}

// Subscribers reports the number of connected clients.
func (h *TailHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects all subscribers.
func (h *TailHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	return nil
}

// ServeHTTP upgrades the connection and streams matching records until
// the client disconnects or the hub shuts down.
func (h *TailHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "tail is shut down", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("tail accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "tail closed")

	sub := &tailSubscriber{
		ch:     make(chan []byte, h.buffer),
		filter: ParseTailFilter(r.URL.Query()),
	}
	h.addSubscriber(sub)
	defer h.removeSubscriber(sub)

	// Discard client frames; the returned context cancels on disconnect.
	ctx := c.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case <-h.done:
			c.Close(websocket.StatusGoingAway, "shutting down")
			return
		case line := <-sub.ch:
			wctx, cancel := context.WithTimeout(ctx, tailWriteTimeout)
			err := c.Write(wctx, websocket.MessageText, line)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *TailHub) addSubscriber(sub *tailSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
}

func (h *TailHub) removeSubscriber(sub *tailSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// Ensure TailHub implements Sink
var _ Sink = (*TailHub)(nil)
