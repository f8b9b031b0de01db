// Package sink - jsonl.go appends structured records to a JSONL file.
//
// DESIGN: One JSON object per line, appended immediately after each
// exchange for real-time tailing. Sensitive header values are redacted
// in the serialized form, so the raw record in memory stays intact for
// other sinks.
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Redacted replaces sensitive header values in serialized records.
const Redacted = "[redacted]"

// defaultRedactHeaders are always scrubbed unless the config overrides
// the list.
var defaultRedactHeaders = []string{
	"authorization",
	"proxy-authorization",
	"cookie",
	"set-cookie",
}

// JSONLConfig configures the JSONL sink.
type JSONLConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Path          string   `yaml:"path"`
	RedactHeaders []string `yaml:"redact_headers"`
}

// JSONLSink appends one JSON object per exchange.
type JSONLSink struct {
	path   string
	redact []string
	mu     sync.Mutex
}

// NewJSONLSink ensures the parent directory exists and creates the file.
func NewJSONLSink(cfg JSONLConfig) (*JSONLSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("jsonl sink: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("jsonl sink: %w", err)
	}
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		if f, err := os.Create(cfg.Path); err == nil {
			f.Close()
		}
	}

	redact := cfg.RedactHeaders
	if redact == nil {
		redact = defaultRedactHeaders
	}
	lowered := make([]string, len(redact))
	for i, name := range redact {
		lowered[i] = strings.ToLower(name)
	}
	return &JSONLSink{path: cfg.Path, redact: lowered}, nil
}

func (s *JSONLSink) Name() string { return "jsonl" }

// Write appends one redacted record line.
func (s *JSONLSink) Write(ev *Event) error {
	data, err := json.Marshal(ev.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	data, err = s.redactHeaders(data)
	if err != nil {
		return fmt.Errorf("redact record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// redactHeaders scrubs configured names from both header maps without
// re-marshaling the whole record.
func (s *JSONLSink) redactHeaders(data []byte) ([]byte, error) {
	for _, name := range s.redact {
		// Dots are path separators in gjson expressions.
		escaped := strings.ReplaceAll(name, ".", `\.`)
		for _, section := range []string{"request_headers", "response_headers"} {
			path := section + "." + escaped
			if !gjson.GetBytes(data, path).Exists() {
				continue
			}
			redacted, err := sjson.SetBytes(data, path, Redacted)
			if err != nil {
				return nil, err
			}
			data = redacted
		}
	}
	return data, nil
}

// Close is kept for interface compatibility.
func (s *JSONLSink) Close() error { return nil }

// Ensure JSONLSink implements Sink
var _ Sink = (*JSONLSink)(nil)
