package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

// ReadFile reads an export back. .zst files are decompressed transparently.
func ReadFile(path string, format Format) ([]logs.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, errors.NewIOError("decompress", path, err)
		}
		defer dec.Close()
		r = dec
	}

	if format == "" {
		format = InferFormat(path, FormatText)
	}
	switch format {
	case FormatJSONL:
		return ReadJSONL(r)
	case FormatCSV:
		return ReadCSV(r)
	default:
		return ReadText(r)
	}
}

// ReadJSONL parses one JSON record per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]logs.LogEntry, error) {
	var out []logs.LogEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var e logs.LogEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// ReadCSV parses an export written with the CSV format.
func ReadCSV(r io.Reader) ([]logs.LogEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if strings.Join(rows[0], ",") != strings.Join(csvHeader, ",") {
		return nil, fmt.Errorf("unexpected csv header %v", rows[0])
	}

	out := make([]logs.LogEntry, 0, len(rows)-1)
	for i, row := range rows[1:] {
		ts, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		labels, err := decodeLabels(row[5])
		if err != nil {
			return nil, fmt.Errorf("row %d labels: %w", i+1, err)
		}
		out = append(out, logs.LogEntry{
			Timestamp:  ts,
			Level:      logs.Level(row[1]),
			Source:     row[2],
			ResourceID: row[3],
			Message:    row[4],
			Labels:     labels,
		})
	}
	return out, nil
}

// ReadText parses the text layout. Resource ids and labels are not part of
// that format and come back empty; timestamps keep millisecond precision.
func ReadText(r io.Reader) ([]logs.LogEntry, error) {
	var out []logs.LogEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		e, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func parseLine(line string) (logs.LogEntry, error) {
	tsPart, rest, ok := strings.Cut(line, " [")
	if !ok {
		return logs.LogEntry{}, fmt.Errorf("missing level")
	}
	ts, err := time.Parse(TextTimeLayout, tsPart)
	if err != nil {
		return logs.LogEntry{}, err
	}
	level, rest, ok := strings.Cut(rest, "] ")
	if !ok {
		return logs.LogEntry{}, fmt.Errorf("unterminated level")
	}
	source, msg, ok := strings.Cut(rest, "  ")
	if !ok {
		return logs.LogEntry{}, fmt.Errorf("missing message separator")
	}
	if source == "-" {
		source = ""
	}
	return logs.LogEntry{
		Timestamp: ts,
		Level:     logs.Level(strings.ToLower(level)),
		Source:    source,
		Message:   strings.ReplaceAll(msg, `\n`, "\n"),
	}, nil
}
