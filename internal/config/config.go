// Package config loads and validates the gateway configuration.
//
// DESIGN: All configuration MUST come from YAML files. No defaults.
// This ensures explicit, auditable configuration for production deployments.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - sinks.go:      Access-log sink and retention store settings
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tschaume/httptrail/internal/monitoring"
	"github.com/tschaume/httptrail/internal/sink"
)

// Config is the root configuration for httptrail.
type Config struct {
	Server    ServerConfig            `yaml:"server"`     // HTTP server settings
	Upstream  UpstreamConfig          `yaml:"upstream"`   // Proxy target
	AccessLog sink.ConsoleConfig      `yaml:"access_log"` // Console access line rendering
	Sinks     SinksConfig             `yaml:"sinks"`      // Record destinations
	Logging   monitoring.LoggerConfig `yaml:"logging"`    // Ambient zerolog settings
	Alerts    monitoring.AlertConfig  `yaml:"alerts"`     // Anomaly thresholds
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response
	RateLimit    int           `yaml:"rate_limit"`    // Requests/second per IP; 0 disables
}

// UpstreamConfig describes the proxy target.
type UpstreamConfig struct {
	URL                   string        `yaml:"url"`                     // Base URL requests are forwarded to
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"` // Max wait for upstream headers
	FlushInterval         time.Duration `yaml:"flush_interval"`          // Streaming flush cadence
}

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	// Pattern matches ${VAR:-default} or ${VAR}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// ExpandEnvWithDefaults expands environment variables with support for
// default values. Exported for callers that preprocess config fragments.
func ExpandEnvWithDefaults(s string) string {
	return expandEnvWithDefaults(s)
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// This lets supervisors redirect log destinations without editing the
// base config files.
func (c *Config) applyEnvOverrides() {
	// HTTPTRAIL_ACCESS_LOG overrides the JSONL sink path
	if envPath := os.Getenv("HTTPTRAIL_ACCESS_LOG"); envPath != "" {
		c.Sinks.JSONL.Path = envPath
		// Auto-enable the sink if a path is provided
		c.Sinks.JSONL.Enabled = true
	}

	// HTTPTRAIL_LOG_LEVEL overrides the ambient log level
	if level := os.Getenv("HTTPTRAIL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid server.rate_limit: %d (must be >= 0)", c.Server.RateLimit)
	}

	// Upstream validation
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	u, err := url.Parse(c.Upstream.URL)
	if err != nil {
		return fmt.Errorf("invalid upstream.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid upstream.url scheme: %q (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream.url has no host")
	}

	// Sink validations
	if err := c.Sinks.Validate(); err != nil {
		return err
	}

	return nil
}

// UpstreamURL returns the parsed upstream base URL. Validate must have
// succeeded first.
func (c *Config) UpstreamURL() (*url.URL, error) {
	return url.Parse(c.Upstream.URL)
}
