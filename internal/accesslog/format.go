package accesslog

import (
	"fmt"
	"regexp"
	"strings"
)

// Default is the gunicorn access-log format.
const Default = `%(h)s %(l)s %(u)s %(t)s "%(r)s" %(s)s %(b)s "%(f)s" "%(a)s"`

// directivePattern matches %(key)s directives and %% escapes.
var directivePattern = regexp.MustCompile(`%(?:\(([^)]*)\)s|%)`)

// Format is a parsed access-log line template. Parse once, expand per
// exchange.
type Format struct {
	raw      string
	segments []segment
}

type segment struct {
	text      string
	directive bool
}

// ParseFormat splits a template into literal and directive segments.
// %% expands to a literal percent sign; a stray % is kept as-is.
func ParseFormat(format string) *Format {
	f := &Format{raw: format}
	last := 0
	for _, m := range directivePattern.FindAllStringSubmatchIndex(format, -1) {
		if m[0] > last {
			f.segments = append(f.segments, segment{text: format[last:m[0]]})
		}
		if m[2] >= 0 {
			f.segments = append(f.segments, segment{text: format[m[2]:m[3]], directive: true})
		} else {
			f.segments = append(f.segments, segment{text: "%"})
		}
		last = m[1]
	}
	if last < len(format) {
		f.segments = append(f.segments, segment{text: format[last:]})
	}
	return f
}

func (f *Format) String() string { return f.raw }

// Expand renders the template against one exchange. Directive keys are
// resolved through src; the first resolution error aborts the expansion.
func (f *Format) Expand(src FieldSource) (string, error) {
	var b strings.Builder
	b.Grow(len(f.raw) * 2)
	for _, seg := range f.segments {
		if !seg.directive {
			b.WriteString(seg.text)
			continue
		}
		v, err := src.Get(seg.text)
		if err != nil {
			return "", fmt.Errorf("expand %%(%s)s: %w", seg.text, err)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}
