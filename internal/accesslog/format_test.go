package accesslog_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschaume/httptrail/internal/accesslog"
)

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestFormat_String_RoundTrips(t *testing.T) {
	fm := accesslog.ParseFormat(accesslog.Default)
	assert.Equal(t, accesslog.Default, fm.String())
}

func TestFormat_Expand_LiteralOnly(t *testing.T) {
	f, _ := newExchange(t, "GET", "/", nil)

	out, err := accesslog.ParseFormat("no directives here").Expand(f)
	require.NoError(t, err)
	assert.Equal(t, "no directives here", out)
}

func TestFormat_Expand_PercentEscape(t *testing.T) {
	f, _ := newExchange(t, "GET", "/", nil)

	out, err := accesslog.ParseFormat("load 100%% of %(m)s").Expand(f)
	require.NoError(t, err)
	assert.Equal(t, "load 100% of GET", out)
}

func TestFormat_Expand_StrayPercentKept(t *testing.T) {
	f, _ := newExchange(t, "GET", "/", nil)

	out, err := accesslog.ParseFormat("50% off").Expand(f)
	require.NoError(t, err)
	assert.Equal(t, "50% off", out)
}

// =============================================================================
// EXPAND TESTS
// =============================================================================

func TestFormat_Expand_DefaultLine(t *testing.T) {
	f, tm := newExchange(t, "GET", "/items?page=2", http.Header{
		"User-Agent": {"curl/8.0"},
	})
	tm.RequestStarted()
	f.OnResponseStart(200, nil)
	f.OnResponseBody(42)
	tm.ResponseEnded()

	out, err := accesslog.ParseFormat(accesslog.Default).Expand(f)
	require.NoError(t, err)
	assert.Regexp(t,
		`^192\.0\.2\.1 - - \[[^\]]+\] "GET /items\?page=2 HTTP/1\.1" 200 42 "-" "curl/8\.0"$`,
		out)
}

func TestFormat_Expand_UnknownKeyRendersDash(t *testing.T) {
	f, _ := newExchange(t, "GET", "/", nil)

	out, err := accesslog.ParseFormat("%(zz)s").Expand(f)
	require.NoError(t, err)
	assert.Equal(t, "-", out)
}

func TestFormat_Expand_HeaderDirectives(t *testing.T) {
	f, _ := newExchange(t, "GET", "/", http.Header{
		"X-Trace-Id": {"abc123"},
	})
	f.OnResponseStart(200, []accesslog.HeaderPair{
		{Name: "Content-Type", Value: "text/plain"},
	})

	out, err := accesslog.ParseFormat("%({x-trace-id}i)s -> %({content-type}o)s").Expand(f)
	require.NoError(t, err)
	assert.Equal(t, "abc123 -> text/plain", out)
}

func TestFormat_Expand_TimingErrorPropagates(t *testing.T) {
	f, _ := newExchange(t, "GET", "/", nil)

	_, err := accesslog.ParseFormat("%(D)s").Expand(f)
	assert.ErrorIs(t, err, accesslog.ErrNotRecorded)
}

func TestFormat_Expand_EnvironErrorPropagates(t *testing.T) {
	f, _ := newExchange(t, "GET", "/", nil)

	_, err := accesslog.ParseFormat("%({home}e)s").Expand(f)
	assert.ErrorIs(t, err, accesslog.ErrUnsupportedDirective)
}

func TestFormat_Expand_QuotedValueStaysBalanced(t *testing.T) {
	f, _ := newExchange(t, "GET", "/", http.Header{
		"User-Agent": {`agent "four"`},
	})

	out, err := accesslog.ParseFormat(`"%(a)s"`).Expand(f)
	require.NoError(t, err)
	assert.Equal(t, `"agent \"four\""`, out)
}
