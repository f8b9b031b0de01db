// Package console renders colorized log fragments for terminal output.
//
// DESIGN: Color decisions are made once at construction. The tri-state
// use_colors setting maps to: true forces color, false disables it, unset
// auto-detects by asking whether the destination is a terminal. Formatters
// degrade to plain text when colors are off, so callers never branch.
package console

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// ANSI color codes
const (
	colorBlue        = "\033[34m"
	colorCyan        = "\033[36m"
	colorGreen       = "\033[32m"
	colorYellow      = "\033[33m"
	colorRed         = "\033[31m"
	colorBrightRed   = "\033[91m"
	colorBrightWhite = "\033[97m"
	colorBold        = "\033[1m"
	colorReset       = "\033[0m"
)

// levelWidth is the column where the message starts, counted on the
// uncolored "LEVEL:" label so escape codes never shift alignment.
const levelWidth = 9

// Formatter renders level prefixes and message variants.
type Formatter struct {
	colors bool
}

// NewFormatter resolves the tri-state color setting against out.
func NewFormatter(useColors *bool, out io.Writer) *Formatter {
	if useColors != nil {
		return &Formatter{colors: *useColors}
	}
	return &Formatter{colors: IsTerminal(out)}
}

// IsTerminal reports whether out is an interactive terminal.
func IsTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Colors reports whether this formatter emits escape codes.
func (f *Formatter) Colors() bool { return f.colors }

// LevelPrefix renders "INFO:     " style prefixes, padded to a fixed
// column and colorized by severity.
func (f *Formatter) LevelPrefix(level zerolog.Level) string {
	label := strings.ToUpper(level.String()) + ":"
	pad := ""
	if n := levelWidth - len(label); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	if !f.colors {
		return label + pad
	}
	return levelColor(level) + label + colorReset + pad
}

// FormatLevel adapts LevelPrefix to zerolog.ConsoleWriter's FormatLevel
// hook, which passes the level as an untyped string.
func (f *Formatter) FormatLevel(i interface{}) string {
	s, ok := i.(string)
	if !ok {
		return fmt.Sprintf("%v", i)
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return s
	}
	return f.LevelPrefix(level)
}

// Message picks between the plain message and a pre-colorized variant.
func (f *Formatter) Message(plain, colored string) string {
	if f.colors && colored != "" {
		return colored
	}
	return plain
}

func levelColor(level zerolog.Level) string {
	switch level {
	case zerolog.TraceLevel:
		return colorBlue
	case zerolog.DebugLevel:
		return colorCyan
	case zerolog.InfoLevel:
		return colorGreen
	case zerolog.WarnLevel:
		return colorYellow
	case zerolog.ErrorLevel:
		return colorRed
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return colorBrightRed
	default:
		return ""
	}
}

// AccessFormatter renders access-log lines with per-status coloring.
type AccessFormatter struct {
	*Formatter
}

// NewAccessFormatter resolves colors the same way NewFormatter does.
func NewAccessFormatter(useColors *bool, out io.Writer) *AccessFormatter {
	return &AccessFormatter{Formatter: NewFormatter(useColors, out)}
}

// StatusPhrase renders "200 OK" colorized by status class. Codes without
// a registered phrase render as the bare number, uncolored.
func (f *AccessFormatter) StatusPhrase(code int) string {
	phrase := http.StatusText(code)
	if phrase == "" {
		return strconv.Itoa(code)
	}
	s := fmt.Sprintf("%d %s", code, phrase)
	if !f.colors {
		return s
	}
	color := statusColor(code)
	if color == "" {
		return s
	}
	return color + s + colorReset
}

// RequestLine bolds the quoted request line.
func (f *AccessFormatter) RequestLine(line string) string {
	if !f.colors {
		return line
	}
	return colorBold + line + colorReset
}

// Line assembles the console access-log message.
func (f *AccessFormatter) Line(clientAddr, requestLine string, status int) string {
	return fmt.Sprintf(`%s - "%s" %s`, clientAddr, f.RequestLine(requestLine), f.StatusPhrase(status))
}

func statusColor(code int) string {
	switch code / 100 {
	case 1:
		return colorBrightWhite
	case 2:
		return colorGreen
	case 3:
		return colorYellow
	case 4:
		return colorRed
	case 5:
		return colorBrightRed
	default:
		return ""
	}
}
