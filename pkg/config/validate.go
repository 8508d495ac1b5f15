package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "stream.max_backoff"
	Message string // e.g., "must be >= stream.base_backoff"
	Hint    string // e.g., "use a duration such as 30s"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks the entire config and returns every problem found, so the
// caller can print them all at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateAPI()...)
	errs = append(errs, c.validateStream()...)
	errs = append(errs, c.validateExport()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateAPI() []error {
	var errs []error
	api := c.API

	if err := validateURL(api.BaseURL, "http", "https"); err != nil {
		errs = append(errs, ValidationError{
			Path:    "api.base_url",
			Message: err.Error(),
			Hint:    "expected http(s)://host[/path]",
		})
	}

	if api.WSURL != "" {
		if err := validateURL(api.WSURL, "ws", "wss"); err != nil {
			errs = append(errs, ValidationError{
				Path:    "api.ws_url",
				Message: err.Error(),
				Hint:    "expected ws(s)://host/path",
			})
		}
	}

	if api.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Path:    "api.timeout",
			Message: fmt.Sprintf("must be positive; got %v", api.Timeout),
		})
	}

	if api.RateLimit <= 0 {
		errs = append(errs, ValidationError{
			Path:    "api.rate_limit",
			Message: fmt.Sprintf("must be positive; got %v", api.RateLimit),
		})
	}

	if api.Burst < 1 {
		errs = append(errs, ValidationError{
			Path:    "api.burst",
			Message: fmt.Sprintf("must be >= 1; got %d", api.Burst),
		})
	}

	if api.CAFile != "" {
		if _, err := os.Stat(api.CAFile); err != nil {
			errs = append(errs, ValidationError{
				Path:    "api.ca_file",
				Message: err.Error(),
				Hint:    "path to a PEM file with one or more certificates",
			})
		}
	}

	return errs
}

func (c *Config) validateStream() []error {
	var errs []error
	sc := c.Stream

	if sc.BufferCapacity < 1 {
		errs = append(errs, ValidationError{
			Path:    "stream.buffer_capacity",
			Message: fmt.Sprintf("must be >= 1; got %d", sc.BufferCapacity),
		})
	}

	if sc.BaseBackoff <= 0 {
		errs = append(errs, ValidationError{
			Path:    "stream.base_backoff",
			Message: fmt.Sprintf("must be positive; got %v", sc.BaseBackoff),
			Hint:    "use a duration such as 1s",
		})
	}

	if sc.MaxBackoff < sc.BaseBackoff {
		errs = append(errs, ValidationError{
			Path:    "stream.max_backoff",
			Message: fmt.Sprintf("must be >= stream.base_backoff (%v); got %v", sc.BaseBackoff, sc.MaxBackoff),
		})
	}

	if sc.MaxRetries < 1 {
		errs = append(errs, ValidationError{
			Path:    "stream.max_retries",
			Message: fmt.Sprintf("must be >= 1; got %d", sc.MaxRetries),
		})
	}

	if sc.HeartbeatTimeout <= 0 {
		errs = append(errs, ValidationError{
			Path:    "stream.heartbeat_timeout",
			Message: fmt.Sprintf("must be positive; got %v", sc.HeartbeatTimeout),
		})
	}

	if sc.ProtocolErrorThreshold < 1 {
		errs = append(errs, ValidationError{
			Path:    "stream.protocol_error_threshold",
			Message: fmt.Sprintf("must be >= 1; got %d", sc.ProtocolErrorThreshold),
		})
	}

	return errs
}

func (c *Config) validateExport() []error {
	var errs []error

	validFormats := map[string]bool{"text": true, "jsonl": true, "csv": true}
	if !validFormats[strings.ToLower(c.Export.DefaultFormat)] {
		errs = append(errs, ValidationError{
			Path:    "export.default_format",
			Message: fmt.Sprintf("invalid value %q", c.Export.DefaultFormat),
			Hint:    "allowed values: text, jsonl, csv",
		})
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", c.Logging.Level),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}

	return errs
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}
