package config

import (
	"fmt"
	"os"
	"time"
)

// Config represents the full logwatch client configuration
type Config struct {
	API     APIConfig     `yaml:"api"`
	Stream  StreamConfig  `yaml:"stream"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig contains remote endpoint configuration
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`   // REST base, e.g. https://api.render.com/v1
	WSURL     string        `yaml:"ws_url"`     // Streaming endpoint, derived from base_url if empty
	Timeout   time.Duration `yaml:"timeout"`    // Per-request timeout for REST calls
	RateLimit float64       `yaml:"rate_limit"` // REST requests per second
	Burst     int           `yaml:"burst"`      // REST burst size

	CAFile             string `yaml:"ca_file"`              // Extra PEM roots for self-hosted endpoints
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // Disable certificate checks entirely
}

// StreamConfig contains connection manager and buffer settings
type StreamConfig struct {
	BufferCapacity         int           `yaml:"buffer_capacity"`
	BaseBackoff            time.Duration `yaml:"base_backoff"`
	MaxBackoff             time.Duration `yaml:"max_backoff"`
	MaxRetries             int           `yaml:"max_retries"`
	HeartbeatTimeout       time.Duration `yaml:"heartbeat_timeout"`
	ProtocolErrorThreshold int           `yaml:"protocol_error_threshold"`
	Dedup                  bool          `yaml:"dedup"` // Drop (timestamp, resource, message) repeats after reconnect
}

// ExportConfig contains export defaults
type ExportConfig struct {
	DefaultFormat string `yaml:"default_format"` // text, jsonl, csv
	Directory     string `yaml:"directory"`      // Relative export paths resolve here
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // Used while the TUI owns the terminal
}

// DefaultConfig returns a configuration with every field populated.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "https://api.render.com/v1",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			Burst:     10,
		},
		Stream: StreamConfig{
			BufferCapacity:         10000,
			BaseBackoff:            1 * time.Second,
			MaxBackoff:             30 * time.Second,
			MaxRetries:             10,
			HeartbeatTimeout:       45 * time.Second,
			ProtocolErrorThreshold: 5,
			Dedup:                  true,
		},
		Export: ExportConfig{
			DefaultFormat: "text",
			Directory:     ".",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load reads the YAML file at path on top of DefaultConfig, then applies
// LOGWATCH_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			if err := DecodeStrict(f, cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to open config %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// StreamURL returns the websocket endpoint, deriving it from the REST base
// URL when ws_url is unset.
func (c *Config) StreamURL() string {
	if c.API.WSURL != "" {
		return c.API.WSURL
	}
	return deriveWSURL(c.API.BaseURL)
}
