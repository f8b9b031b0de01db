// Static directive table, gunicorn/Apache atom set.
//
// DESIGN: The table is a package-level literal, immutable after init and
// shared lock-free by every exchange. Atom funcs read resolver state and
// return (value, ok); ok=false means the field has no value for this
// exchange. Only the elapsed-time atoms can fail, by propagating the
// timing precondition error.
package accesslog

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tschaume/httptrail/internal/netinfo"
)

// atomFunc resolves one static directive against the exchange state.
type atomFunc func(*Fields) (value string, ok bool, err error)

// atomOrder fixes the enumeration order of the static directives.
const atomOrder = "hlutrmUqHsBbfaTDLp"

// requestTimeLayout is Apache Common Log Format: [DD/Mon/YYYY:HH:MM:SS +ZZZZ].
const requestTimeLayout = "[02/Jan/2006:15:04:05 -0700]"

var atomTable = map[string]atomFunc{
	"h": atomRemoteAddress,
	"l": atomDash,
	"u": atomUser,
	"t": atomRequestTime,
	"r": atomRequestLine,
	"m": atomMethod,
	"U": atomPath,
	"q": atomQuery,
	"H": atomProtocol,
	"s": atomStatus,
	"B": atomResponseLength,
	"b": atomResponseLengthOrDash,
	"f": atomReferer,
	"a": atomUserAgent,
	"T": atomElapsedSeconds,
	"D": atomElapsedMicroseconds,
	"L": atomElapsedDecimal,
	"p": atomProcessID,
}

func atomRemoteAddress(f *Fields) (string, bool, error) {
	if f.meta.Client == nil {
		return "", false, nil
	}
	return f.meta.Client.Host, true, nil
}

func atomDash(f *Fields) (string, bool, error) {
	return Missing, true, nil
}

// atomUser is permanently unresolvable: no user tracking exists.
func atomUser(f *Fields) (string, bool, error) {
	return "", false, nil
}

func atomRequestTime(f *Fields) (string, bool, error) {
	return time.Now().Format(requestTimeLayout), true, nil
}

func atomRequestLine(f *Fields) (string, bool, error) {
	target := netinfo.PathWithQuery(f.meta.RawPath, f.meta.Query)
	return fmt.Sprintf("%s %s HTTP/%s", f.meta.Method, target, f.meta.Version), true, nil
}

func atomMethod(f *Fields) (string, bool, error) {
	return f.meta.Method, true, nil
}

func atomPath(f *Fields) (string, bool, error) {
	return f.meta.RawPath, true, nil
}

func atomQuery(f *Fields) (string, bool, error) {
	return f.meta.Query, true, nil
}

func atomProtocol(f *Fields) (string, bool, error) {
	return "HTTP/" + f.meta.Version, true, nil
}

func atomStatus(f *Fields) (string, bool, error) {
	if f.statusCode == 0 {
		return "", false, nil
	}
	return strconv.Itoa(f.statusCode), true, nil
}

func atomResponseLength(f *Fields) (string, bool, error) {
	return strconv.FormatInt(f.responseLength, 10), true, nil
}

func atomResponseLengthOrDash(f *Fields) (string, bool, error) {
	if f.responseLength == 0 {
		return "", false, nil
	}
	return strconv.FormatInt(f.responseLength, 10), true, nil
}

func atomReferer(f *Fields) (string, bool, error) {
	v, ok := f.requestHeader("referer")
	return v, ok, nil
}

func atomUserAgent(f *Fields) (string, bool, error) {
	v, ok := f.requestHeader("user-agent")
	return v, ok, nil
}

func atomElapsedSeconds(f *Fields) (string, bool, error) {
	d, err := f.timing.TotalDuration()
	if err != nil {
		return "", false, err
	}
	return strconv.FormatInt(int64(d/time.Second), 10), true, nil
}

func atomElapsedMicroseconds(f *Fields) (string, bool, error) {
	d, err := f.timing.TotalDuration()
	if err != nil {
		return "", false, err
	}
	return strconv.FormatInt(d.Round(time.Microsecond).Microseconds(), 10), true, nil
}

func atomElapsedDecimal(f *Fields) (string, bool, error) {
	d, err := f.timing.TotalDuration()
	if err != nil {
		return "", false, err
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64), true, nil
}

func atomProcessID(f *Fields) (string, bool, error) {
	return fmt.Sprintf("<%d>", os.Getpid()), true, nil
}
