// Sink configuration - record destinations and retention.
//
// DESIGN: Separates operator output (the console access line) from
// structured destinations: JSONL file, retention store, live tail, and
// S3 archival. Each sink validates only when enabled, so a minimal
// config stays minimal.
package config

import (
	"fmt"
	"time"

	"github.com/tschaume/httptrail/internal/sink"
)

// SinksConfig lists every record destination behind the dispatcher.
type SinksConfig struct {
	QueueSize int              `yaml:"queue_size"` // Dispatcher queue depth; 0 uses the default
	JSONL     sink.JSONLConfig `yaml:"jsonl"`      // Append-only structured log
	Store     StoreConfig      `yaml:"store"`      // Retention store for /logs/recent
	Tail      sink.TailConfig  `yaml:"tail"`       // Live websocket tail
	S3        sink.S3Config    `yaml:"s3"`         // Gzipped batch archival
}

// StoreConfig selects and sizes the retention store backend.
type StoreConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Backend   string        `yaml:"backend"`   // "memory" or "sqlite"
	Path      string        `yaml:"path"`      // sqlite database file
	Capacity  int           `yaml:"capacity"`  // memory ring size
	Retention time.Duration `yaml:"retention"` // 0 keeps the store default
}

// Validate checks the enabled sinks.
func (s *SinksConfig) Validate() error {
	if s.QueueSize < 0 {
		return fmt.Errorf("invalid sinks.queue_size: %d (must be >= 0)", s.QueueSize)
	}

	if s.JSONL.Enabled && s.JSONL.Path == "" {
		return fmt.Errorf("sinks.jsonl.path is required when the jsonl sink is enabled")
	}

	if s.Store.Enabled {
		switch s.Store.Backend {
		case "memory":
		case "sqlite":
			if s.Store.Path == "" {
				return fmt.Errorf("sinks.store.path is required for the sqlite backend")
			}
		default:
			return fmt.Errorf("invalid sinks.store.backend: %q (must be memory or sqlite)", s.Store.Backend)
		}
	}

	if s.S3.Enabled {
		if s.S3.Bucket == "" {
			return fmt.Errorf("sinks.s3.bucket is required when the s3 sink is enabled")
		}
		if s.S3.Region == "" && s.S3.Endpoint == "" {
			return fmt.Errorf("sinks.s3.region is required when no custom endpoint is set")
		}
	}

	return nil
}
