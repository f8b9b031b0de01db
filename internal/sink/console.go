// Package sink - console.go renders access lines for operators.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tschaume/httptrail/internal/accesslog"
	"github.com/tschaume/httptrail/internal/console"
)

// ConsoleConfig configures the console sink.
type ConsoleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Output    string `yaml:"output"`     // stdout, stderr, or file path
	Format    string `yaml:"format"`     // %(key)s template; empty for the styled line
	UseColors *bool  `yaml:"use_colors"` // nil auto-detects a terminal
}

// ConsoleSink writes one line per exchange. With a format template it
// expands %(key)s directives; without one it renders the styled
// client - "request line" status form.
type ConsoleSink struct {
	out    io.Writer
	fm     *console.AccessFormatter
	prefix string
	format *accesslog.Format
	mu     sync.Mutex
}

// NewConsoleSink resolves the output destination and color mode.
func NewConsoleSink(cfg ConsoleConfig) (*ConsoleSink, error) {
	var out io.Writer
	switch cfg.Output {
	case "stdout", "":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open console sink output: %w", err)
		}
		out = f
	}

	s := &ConsoleSink{
		out: out,
		fm:  console.NewAccessFormatter(cfg.UseColors, out),
	}
	s.prefix = s.fm.LevelPrefix(zerolog.InfoLevel)
	if cfg.Format != "" {
		s.format = accesslog.ParseFormat(cfg.Format)
	}
	return s, nil
}

func (s *ConsoleSink) Name() string { return "console" }

// Write renders and prints one exchange.
func (s *ConsoleSink) Write(ev *Event) error {
	var line string
	if s.format != nil {
		expanded, err := s.format.Expand(ev.Fields)
		if err != nil {
			return fmt.Errorf("expand access format: %w", err)
		}
		line = expanded
	} else {
		client := ev.Record.ClientAddr
		if client == "" {
			client = accesslog.Missing
		}
		line = s.prefix + s.fm.Line(client, ev.Record.RequestLine, ev.Record.StatusCode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.out, line)
	return err
}

// Close closes file-backed outputs.
func (s *ConsoleSink) Close() error {
	if f, ok := s.out.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Ensure ConsoleSink implements Sink
var _ Sink = (*ConsoleSink)(nil)
