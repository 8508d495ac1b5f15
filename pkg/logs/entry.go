package logs

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Levels lists every level from least to most severe.
var Levels = []Level{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}

// ParseLevel maps a remote level name onto a Level. Matching is
// case-insensitive, "warning" is accepted for warn and "critical" for fatal.
// Anything unrecognised is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "err":
		return LevelError
	case "fatal", "critical", "panic":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Rank orders levels by severity; unknown values rank as info.
func (l Level) Rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	case LevelFatal:
		return 4
	default:
		return 1
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	for _, v := range Levels {
		if v == l {
			return true
		}
	}
	return false
}

func (l Level) String() string { return string(l) }

// LogEntry is a single received log line. Entries are treated as immutable
// once created; callers copy Labels before mutating it.
type LogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Level      Level             `json:"level"`
	Message    string            `json:"message"`
	Source     string            `json:"source,omitempty"`
	ResourceID string            `json:"resourceId"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// dedupKey identifies redelivered frames after a reconnect.
type dedupKey struct {
	ts         int64
	resourceID string
	message    string
}

func (e LogEntry) key() dedupKey {
	return dedupKey{ts: e.Timestamp.UnixNano(), resourceID: e.ResourceID, message: e.Message}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b[@-Z\\-_]`)

// SanitizeMessage strips ANSI escape sequences and control characters other
// than tab, then trims trailing whitespace.
func SanitizeMessage(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimRight(s, " \t")
}

// ParseTimestamp accepts RFC3339 (with or without fractional seconds) or a
// decimal unix timestamp in seconds, milliseconds or nanoseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromUnix(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(0, int64(f*float64(time.Second))), true
	}
	return time.Time{}, false
}

// FromUnix interprets n by magnitude: seconds, milliseconds, microseconds
// or nanoseconds.
func FromUnix(n int64) time.Time {
	switch {
	case n > 1e17:
		return time.Unix(0, n)
	case n > 1e14:
		return time.UnixMicro(n)
	case n > 1e11:
		return time.UnixMilli(n)
	default:
		return time.Unix(n, 0)
	}
}
