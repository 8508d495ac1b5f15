package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LOGWATCH_STREAM_MAX_RETRIES.
const EnvPrefix = "LOGWATCH"

// envKeys lists the config keys that may be overridden from the environment.
var envKeys = []string{
	"api.base_url",
	"api.ws_url",
	"api.timeout",
	"api.rate_limit",
	"api.burst",
	"api.ca_file",
	"api.insecure_skip_verify",
	"stream.buffer_capacity",
	"stream.base_backoff",
	"stream.max_backoff",
	"stream.max_retries",
	"stream.heartbeat_timeout",
	"stream.protocol_error_threshold",
	"stream.dedup",
	"export.default_format",
	"export.directory",
	"logging.level",
	"logging.file",
}

// ApplyEnv overlays LOGWATCH_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	setString(v, "api.base_url", &cfg.API.BaseURL)
	setString(v, "api.ws_url", &cfg.API.WSURL)
	if v.IsSet("api.timeout") {
		cfg.API.Timeout = v.GetDuration("api.timeout")
	}
	if v.IsSet("api.rate_limit") {
		cfg.API.RateLimit = v.GetFloat64("api.rate_limit")
	}
	setInt(v, "api.burst", &cfg.API.Burst)
	setString(v, "api.ca_file", &cfg.API.CAFile)
	if v.IsSet("api.insecure_skip_verify") {
		cfg.API.InsecureSkipVerify = v.GetBool("api.insecure_skip_verify")
	}

	setInt(v, "stream.buffer_capacity", &cfg.Stream.BufferCapacity)
	if v.IsSet("stream.base_backoff") {
		cfg.Stream.BaseBackoff = v.GetDuration("stream.base_backoff")
	}
	if v.IsSet("stream.max_backoff") {
		cfg.Stream.MaxBackoff = v.GetDuration("stream.max_backoff")
	}
	setInt(v, "stream.max_retries", &cfg.Stream.MaxRetries)
	if v.IsSet("stream.heartbeat_timeout") {
		cfg.Stream.HeartbeatTimeout = v.GetDuration("stream.heartbeat_timeout")
	}
	setInt(v, "stream.protocol_error_threshold", &cfg.Stream.ProtocolErrorThreshold)
	if v.IsSet("stream.dedup") {
		cfg.Stream.Dedup = v.GetBool("stream.dedup")
	}

	setString(v, "export.default_format", &cfg.Export.DefaultFormat)
	setString(v, "export.directory", &cfg.Export.Directory)
	setString(v, "logging.level", &cfg.Logging.Level)
	setString(v, "logging.file", &cfg.Logging.File)

	return nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}
