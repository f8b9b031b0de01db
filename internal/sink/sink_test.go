package sink_test

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/tschaume/httptrail/internal/accesslog"
	"github.com/tschaume/httptrail/internal/monitoring"
	"github.com/tschaume/httptrail/internal/sink"
	"github.com/tschaume/httptrail/internal/store"
)

func testLogger() *monitoring.Logger {
	return monitoring.New(monitoring.LoggerConfig{Level: "error", Output: "stderr"})
}

func testEvent(t *testing.T, id string, status int) *sink.Event {
	t.Helper()
	req := httptest.NewRequest("GET", "/items?page=2", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Authorization", "Bearer secret-token")
	tm := accesslog.NewTiming()
	tm.RequestStarted()
	fields := accesslog.NewFields(accesslog.NewMetadata(req), tm)
	fields.OnResponseStart(status, []accesslog.HeaderPair{
		{Name: "Content-Type", Value: "application/json"},
	})
	fields.OnResponseBody(64)
	tm.ResponseEnded()

	rec := monitoring.NewAccessRecord(id, fields, tm)
	return &sink.Event{Record: &rec, Fields: fields}
}

type fakeSink struct {
	mu     sync.Mutex
	ids    []string
	closed bool
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Write(ev *sink.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, ev.Record.RequestID)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

// =============================================================================
// DISPATCHER TESTS
// =============================================================================

func TestDispatcher_FansOutInOrder(t *testing.T) {
	fake := &fakeSink{}
	d := sink.NewDispatcher(testLogger(), 16, fake)
	d.Start()

	for _, id := range []string{"req-1", "req-2", "req-3"} {
		ev := testEvent(t, id, 200)
		d.Dispatch(ev.Record, ev.Fields)
	}
	d.Stop()

	assert.Equal(t, []string{"req-1", "req-2", "req-3"}, fake.seen())
	assert.True(t, fake.closed)
	assert.Equal(t, int64(0), d.Dropped())
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	fake := &fakeSink{}
	d := sink.NewDispatcher(testLogger(), 1, fake)
	// Worker not started: the second dispatch finds the queue full.

	ev := testEvent(t, "req-1", 200)
	d.Dispatch(ev.Record, ev.Fields)
	d.Dispatch(ev.Record, ev.Fields)

	assert.Equal(t, int64(1), d.Dropped())

	d.Start()
	d.Stop()
	assert.Len(t, fake.seen(), 1)
}

// =============================================================================
// CONSOLE SINK TESTS
// =============================================================================

func TestConsoleSink_StyledLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	off := false
	s, err := sink.NewConsoleSink(sink.ConsoleConfig{Output: path, UseColors: &off})
	require.NoError(t, err)

	require.NoError(t, s.Write(testEvent(t, "req-1", 200)))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Equal(t, `INFO:    192.0.2.1:1234 - "GET /items?page=2 HTTP/1.1" 200 OK`, line)
}

func TestConsoleSink_TemplateLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	off := false
	s, err := sink.NewConsoleSink(sink.ConsoleConfig{
		Output:    path,
		Format:    `%(m)s %(U)s -> %(s)s (%(B)s bytes)`,
		UseColors: &off,
	})
	require.NoError(t, err)

	require.NoError(t, s.Write(testEvent(t, "req-1", 201)))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GET /items -> 201 (64 bytes)", strings.TrimSpace(string(data)))
}

// =============================================================================
// JSONL SINK TESTS
// =============================================================================

func TestJSONLSink_AppendsRedactedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "access.jsonl")
	s, err := sink.NewJSONLSink(sink.JSONLConfig{Path: path})
	require.NoError(t, err)

	require.NoError(t, s.Write(testEvent(t, "req-1", 200)))
	require.NoError(t, s.Write(testEvent(t, "req-2", 503)))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	first := lines[0]
	assert.Equal(t, "req-1", gjson.Get(first, "request_id").String())
	assert.Equal(t, int64(200), gjson.Get(first, "status_code").Int())
	assert.Equal(t, sink.Redacted, gjson.Get(first, "request_headers.authorization").String())
	assert.Equal(t, "curl/8.0", gjson.Get(first, "request_headers.user-agent").String())

	var rec monitoring.AccessRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, 503, rec.StatusCode)
}

func TestJSONLSink_CustomRedactList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.jsonl")
	s, err := sink.NewJSONLSink(sink.JSONLConfig{
		Path:          path,
		RedactHeaders: []string{"User-Agent"},
	})
	require.NoError(t, err)

	require.NoError(t, s.Write(testEvent(t, "req-1", 200)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Equal(t, sink.Redacted, gjson.Get(line, "request_headers.user-agent").String())
	// Defaults are replaced wholesale by the custom list.
	assert.Equal(t, "Bearer secret-token", gjson.Get(line, "request_headers.authorization").String())
}

// =============================================================================
// STORE SINK TESTS
// =============================================================================

func TestStoreSink_AppendsToStore(t *testing.T) {
	st := store.NewMemoryStore(8, time.Hour)
	defer st.Close()
	s := sink.NewStoreSink(st)

	require.NoError(t, s.Write(testEvent(t, "req-1", 200)))

	recs, err := st.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "req-1", recs[0].RequestID)
}

// =============================================================================
// TAIL FILTER TESTS
// =============================================================================

func TestTailFilter_Match(t *testing.T) {
	ev := testEvent(t, "req-1", 502)
	data, err := json.Marshal(ev.Record)
	require.NoError(t, err)

	assert.True(t, sink.TailFilter{}.Match(data, ev.Record))
	assert.True(t, sink.TailFilter{PathPrefix: "/items"}.Match(data, ev.Record))
	assert.False(t, sink.TailFilter{PathPrefix: "/admin"}.Match(data, ev.Record))
	assert.True(t, sink.TailFilter{StatusClass: "5xx"}.Match(data, ev.Record))
	assert.False(t, sink.TailFilter{StatusClass: "2xx"}.Match(data, ev.Record))
	assert.True(t, sink.TailFilter{Query: "request_headers.user-agent", Value: "curl/8.0"}.Match(data, ev.Record))
	assert.False(t, sink.TailFilter{Query: "request_headers.user-agent", Value: "wget"}.Match(data, ev.Record))
	// upstream is omitempty and unset, so existence alone fails the match.
	assert.False(t, sink.TailFilter{Query: "upstream"}.Match(data, ev.Record))
}

func TestParseTailFilter(t *testing.T) {
	values := url.Values{}
	values.Set("path", "/api")
	values.Set("status", "5XX")
	values.Set("q", "method")
	values.Set("v", "GET")

	f := sink.ParseTailFilter(values)
	assert.Equal(t, "/api", f.PathPrefix)
	assert.Equal(t, "5xx", f.StatusClass)
	assert.Equal(t, "method", f.Query)
	assert.Equal(t, "GET", f.Value)
}
