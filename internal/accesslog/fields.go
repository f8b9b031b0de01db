// Package accesslog resolves access-log format directives against a single
// in-flight HTTP exchange.
//
// DESIGN: One Fields per exchange, created from an immutable request
// snapshot and fed response events as they stream in. Lookup is lazy: a
// directive is computed only when a format string asks for it, so an
// exchange pays nothing for fields its configured format never uses.
//
// KEYS:
//   - single characters ("h", "s", "b", ...) resolve through the static
//     atom table in atoms.go
//   - "{name}i" / "{name}o" resolve request / response headers
//     case-insensitively
//   - "{name}e" is the WSGI-environ family, deliberately unsupported
//   - anything unresolvable renders as the "-" sentinel, never an error
package accesslog

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tschaume/httptrail/internal/netinfo"
)

// Missing is rendered for any directive that has no resolvable value.
const Missing = "-"

// ErrUnsupportedDirective is returned for the "{name}e" environment
// directive family, which this server does not emulate. Match with
// errors.Is.
var ErrUnsupportedDirective = errors.New("unsupported log directive")

// HeaderPair is one (name, value) header as it appeared on the wire.
type HeaderPair struct {
	Name  string
	Value string
}

// Metadata is the immutable request snapshot taken at exchange start.
// The resolver holds it for the lifetime of the exchange; none of the
// fields change after capture.
type Metadata struct {
	Method  string
	RawPath string        // percent-encoded path as received
	Query   string        // raw query string without the leading "?"
	Version string        // HTTP version, e.g. "1.1"
	Headers []HeaderPair  // request headers, capture order
	Client  *netinfo.Addr // nil when the peer address is unknown
}

// NewMetadata snapshots r into a Metadata. Header pairs are captured in
// sorted name order since net/http does not preserve wire order.
func NewMetadata(r *http.Request) Metadata {
	meta := Metadata{
		Method:  r.Method,
		RawPath: r.URL.EscapedPath(),
		Query:   r.URL.RawQuery,
		Version: strings.TrimPrefix(r.Proto, "HTTP/"),
	}
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range r.Header[name] {
			meta.Headers = append(meta.Headers, HeaderPair{Name: name, Value: value})
		}
	}
	if addr, ok := netinfo.ClientFromRequest(r); ok {
		meta.Client = &addr
	}
	return meta
}

// FieldSource is the read contract consumed by the format expander: lookup
// by directive key, enumeration of the known key set, and its size.
type FieldSource interface {
	Get(key string) (string, error)
	Keys() []string
	Len() int
}

// Fields resolves directives for one exchange. It owns the mutable
// response state and holds non-owning references to the metadata snapshot
// and the exchange's Timing; both must outlive it. Not safe for
// concurrent use; an exchange is served by a single goroutine.
type Fields struct {
	meta   Metadata
	timing *Timing

	statusCode      int
	responseHeaders map[string]string
	responseOrder   []string
	responseLength  int64

	requestHeaders map[string]string // lazy lower-cased lookup
}

var _ FieldSource = (*Fields)(nil)

// NewFields creates the resolver for one exchange.
func NewFields(meta Metadata, timing *Timing) *Fields {
	return &Fields{meta: meta, timing: timing}
}

// OnResponseStart records the status code and response header set. Expected
// at most once per exchange; a second call overwrites wholesale.
func (f *Fields) OnResponseStart(status int, headers []HeaderPair) {
	f.statusCode = status
	f.responseHeaders = make(map[string]string, len(headers))
	f.responseOrder = make([]string, 0, len(headers))
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		if _, ok := f.responseHeaders[name]; !ok {
			f.responseHeaders[name] = h.Value
			f.responseOrder = append(f.responseOrder, name)
		}
	}
}

// OnResponseBody adds one body chunk's length to the running total.
func (f *Fields) OnResponseBody(n int) {
	f.responseLength += int64(n)
}

// StatusCode returns the recorded status code, ok=false before the
// response has started.
func (f *Fields) StatusCode() (int, bool) {
	return f.statusCode, f.statusCode != 0
}

// ResponseLength returns the bytes of response body seen so far.
func (f *Fields) ResponseLength() int64 {
	return f.responseLength
}

// Metadata returns the request snapshot the resolver was created with.
func (f *Fields) Metadata() Metadata {
	return f.meta
}

// RequestHeaderMap returns a lower-cased copy of the request headers,
// first value per name.
func (f *Fields) RequestHeaderMap() map[string]string {
	m := make(map[string]string, len(f.meta.Headers))
	for _, h := range f.meta.Headers {
		lower := strings.ToLower(h.Name)
		if _, ok := m[lower]; !ok {
			m[lower] = h.Value
		}
	}
	return m
}

// ResponseHeaderMap returns a lower-cased copy of the recorded response
// headers. Empty until the response has started.
func (f *Fields) ResponseHeaderMap() map[string]string {
	m := make(map[string]string, len(f.responseHeaders))
	for name, value := range f.responseHeaders {
		m[name] = value
	}
	return m
}

// Get resolves one directive key. Unresolvable values render as Missing;
// double quotes in resolved values are escaped for quoted-field formats.
// Errors are limited to timing preconditions (ErrNotRecorded) and the
// unsupported "{name}e" family (ErrUnsupportedDirective).
func (f *Fields) Get(key string) (string, error) {
	value, ok, err := f.resolve(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return Missing, nil
	}
	return strings.ReplaceAll(value, `"`, `\"`), nil
}

func (f *Fields) resolve(key string) (string, bool, error) {
	if fn, ok := atomTable[key]; ok {
		return fn(f)
	}
	if strings.HasPrefix(key, "{") && len(key) >= 3 {
		name := key[1 : len(key)-2]
		switch {
		case strings.HasSuffix(key, "}i"):
			v, ok := f.requestHeader(name)
			return v, ok, nil
		case strings.HasSuffix(key, "}o"):
			v, ok := f.responseHeader(name)
			return v, ok, nil
		case strings.HasSuffix(key, "}e"):
			return "", false, fmt.Errorf("environ directive %q: %w", key, ErrUnsupportedDirective)
		}
	}
	return "", false, nil
}

// Keys enumerates every directive this exchange can currently report:
// static atoms in table order, then one dynamic key per request header
// pair, then one per recorded response header. Dynamic keys carry the
// "i"/"o" suffix without braces, e.g. "user-agenti". The set grows when
// response headers arrive, so callers must not cache it across response
// events.
func (f *Fields) Keys() []string {
	keys := make([]string, 0, f.Len())
	for i := 0; i < len(atomOrder); i++ {
		keys = append(keys, string(atomOrder[i]))
	}
	for _, h := range f.meta.Headers {
		keys = append(keys, strings.ToLower(h.Name)+"i")
	}
	for _, name := range f.responseOrder {
		keys = append(keys, name+"o")
	}
	return keys
}

// Len reports the size of the enumerable key set.
func (f *Fields) Len() int {
	return len(atomOrder) + len(f.meta.Headers) + len(f.responseHeaders)
}

func (f *Fields) requestHeader(name string) (string, bool) {
	if f.requestHeaders == nil {
		f.requestHeaders = make(map[string]string, len(f.meta.Headers))
		for _, h := range f.meta.Headers {
			lower := strings.ToLower(h.Name)
			if _, ok := f.requestHeaders[lower]; !ok {
				f.requestHeaders[lower] = h.Value
			}
		}
	}
	v, ok := f.requestHeaders[strings.ToLower(name)]
	return v, ok
}

func (f *Fields) responseHeader(name string) (string, bool) {
	v, ok := f.responseHeaders[strings.ToLower(name)]
	return v, ok
}
