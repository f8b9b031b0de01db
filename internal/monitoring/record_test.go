package monitoring_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschaume/httptrail/internal/accesslog"
	"github.com/tschaume/httptrail/internal/monitoring"
)

func buildExchange(t *testing.T) (*accesslog.Fields, *accesslog.Timing) {
	t.Helper()
	req := httptest.NewRequest("GET", "/items?page=2", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Referer", "https://example.com/")
	tm := accesslog.NewTiming()
	return accesslog.NewFields(accesslog.NewMetadata(req), tm), tm
}

// =============================================================================
// ACCESS RECORD TESTS
// =============================================================================

func TestNewAccessRecord_CompletedExchange(t *testing.T) {
	fields, tm := buildExchange(t)
	tm.RequestStarted()
	tm.RequestEnded()
	tm.ResponseStarted()
	fields.OnResponseStart(200, []accesslog.HeaderPair{
		{Name: "Content-Type", Value: "application/json"},
	})
	fields.OnResponseBody(128)
	tm.ResponseEnded()

	rec := monitoring.NewAccessRecord("req-1", fields, tm)

	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, "/items", rec.Path)
	assert.Equal(t, "page=2", rec.Query)
	assert.Equal(t, "HTTP/1.1", rec.Proto)
	assert.Equal(t, "GET /items?page=2 HTTP/1.1", rec.RequestLine)
	assert.Equal(t, "192.0.2.1:1234", rec.ClientAddr)
	assert.Equal(t, 200, rec.StatusCode)
	assert.Equal(t, int64(128), rec.BodyBytes)
	assert.Equal(t, "curl/8.0", rec.UserAgent)
	assert.Equal(t, "https://example.com/", rec.Referer)
	assert.Equal(t, "application/json", rec.ResponseHeaders["content-type"])

	start, err := tm.RequestStartTime()
	require.NoError(t, err)
	assert.Equal(t, start, rec.Timestamp)
	assert.GreaterOrEqual(t, rec.TotalLatencyMs, int64(0))
}

func TestNewAccessRecord_AbortedExchange(t *testing.T) {
	fields, tm := buildExchange(t)
	tm.RequestStarted()

	rec := monitoring.NewAccessRecord("req-2", fields, tm)

	assert.Equal(t, 0, rec.StatusCode)
	assert.Equal(t, int64(0), rec.BodyBytes)
	assert.Equal(t, int64(0), rec.TotalLatencyMs)
	assert.Equal(t, "unset", rec.StatusClass())
}

func TestAccessRecord_Success(t *testing.T) {
	ok := monitoring.AccessRecord{StatusCode: 200}
	assert.True(t, ok.Success())

	clientErr := monitoring.AccessRecord{StatusCode: 404}
	assert.True(t, clientErr.Success())

	serverErr := monitoring.AccessRecord{StatusCode: 502}
	assert.False(t, serverErr.Success())

	failed := monitoring.AccessRecord{StatusCode: 200, Error: "write: broken pipe"}
	assert.False(t, failed.Success())

	unset := monitoring.AccessRecord{}
	assert.False(t, unset.Success())
}

func TestAccessRecord_StatusClass(t *testing.T) {
	assert.Equal(t, "2xx", monitoring.AccessRecord{StatusCode: 204}.StatusClass())
	assert.Equal(t, "4xx", monitoring.AccessRecord{StatusCode: 418}.StatusClass())
	assert.Equal(t, "5xx", monitoring.AccessRecord{StatusCode: 503}.StatusClass())
	assert.Equal(t, "unset", monitoring.AccessRecord{}.StatusClass())
}

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestMetricsCollector_StatusClasses(t *testing.T) {
	mc := monitoring.NewMetricsCollector()

	for _, code := range []int{200, 201, 301, 404, 500} {
		mc.RequestStarted()
		mc.RecordRequest(&monitoring.AccessRecord{StatusCode: code, BodyBytes: 10}, time.Millisecond)
	}

	stats := mc.Stats()
	assert.Equal(t, int64(5), stats["requests"])
	assert.Equal(t, int64(4), stats["successes"])
	assert.Equal(t, int64(2), stats["status_2xx"])
	assert.Equal(t, int64(1), stats["status_3xx"])
	assert.Equal(t, int64(1), stats["status_4xx"])
	assert.Equal(t, int64(1), stats["status_5xx"])
	assert.Equal(t, int64(50), stats["bytes_out"])
	assert.Equal(t, int64(0), stats["in_flight"])
}

func TestMetricsCollector_InFlight(t *testing.T) {
	mc := monitoring.NewMetricsCollector()

	mc.RequestStarted()
	mc.RequestStarted()
	assert.Equal(t, int64(2), mc.Stats()["in_flight"])

	mc.RecordRequest(&monitoring.AccessRecord{StatusCode: 200}, 0)
	assert.Equal(t, int64(1), mc.Stats()["in_flight"])
}
