package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
)

// Format is an export serialization.
type Format string

const (
	FormatText  Format = "text"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// zstdSuffix marks a destination that is written zstd-compressed.
const zstdSuffix = ".zst"

// ParseFormat parses a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt", "log":
		return FormatText, nil
	case "jsonl", "ndjson", "json":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", errors.NewValidationError("format", fmt.Sprintf("unknown export format %q", s), s)
	}
}

// InferFormat guesses the format from the destination extension, ignoring a
// trailing .zst. Unknown extensions yield fallback.
func InferFormat(destination string, fallback Format) Format {
	name := strings.TrimSuffix(strings.ToLower(destination), zstdSuffix)
	switch filepath.Ext(name) {
	case ".txt", ".log":
		return FormatText
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	case ".csv":
		return FormatCSV
	default:
		return fallback
	}
}

// Extension returns the canonical file extension for f.
func (f Format) Extension() string {
	switch f {
	case FormatJSONL:
		return ".jsonl"
	case FormatCSV:
		return ".csv"
	default:
		return ".log"
	}
}

func compressed(destination string) bool {
	return strings.HasSuffix(strings.ToLower(destination), zstdSuffix)
}
