package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

// TextTimeLayout is the timestamp layout of the text format.
const TextTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// csvHeader is the first row of every CSV export.
var csvHeader = []string{"timestamp", "level", "source", "resource_id", "message", "labels"}

// Export serializes view to destination in the given format. The file is
// written to a temporary sibling and renamed into place, so destination
// either holds the complete export or is left untouched. Failures are
// returned as IOError carrying the destination path.
func Export(view []logs.LogEntry, destination string, format Format) error {
	return NewWriter("", nil).write(view, destination, format)
}

// Writer exports views, resolving relative destinations against Dir.
type Writer struct {
	Dir    string
	logger *logging.ColoredLogger
}

// NewWriter creates a Writer. A nil logger discards output.
func NewWriter(dir string, logger *logging.ColoredLogger) *Writer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Writer{Dir: dir, logger: logger}
}

// Write exports view and returns the resolved destination. An empty format
// is inferred from the destination extension.
func (w *Writer) Write(view []logs.LogEntry, destination string, format Format) (string, error) {
	if destination == "" {
		return "", errors.NewValidationError("destination", "export destination is required", destination)
	}
	if !filepath.IsAbs(destination) && w.Dir != "" {
		destination = filepath.Join(w.Dir, destination)
	}
	if format == "" {
		format = InferFormat(destination, FormatText)
	}

	start := time.Now()
	if err := w.write(view, destination, format); err != nil {
		w.logger.ComponentError(logging.ComponentExport, "Export failed",
			zap.String("path", destination),
			zap.Error(err))
		return destination, err
	}

	w.logger.ComponentInfo(logging.ComponentExport, "Export written",
		zap.String("path", destination),
		zap.String("format", string(format)),
		zap.Int("entries", len(view)),
		zap.Duration("took", time.Since(start)))
	return destination, nil
}

func (w *Writer) write(view []logs.LogEntry, destination string, format Format) (err error) {
	switch format {
	case FormatText, FormatJSONL, FormatCSV:
	default:
		return errors.NewValidationError("format", fmt.Sprintf("unknown export format %q", format), format)
	}

	dir := filepath.Dir(destination)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".tmp-*")
	if err != nil {
		return errors.NewIOError("create", destination, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = encode(tmp, view, format, compressed(destination)); err != nil {
		return errors.NewIOError("write", destination, err)
	}
	if err = tmp.Sync(); err != nil {
		return errors.NewIOError("sync", destination, err)
	}
	if err = tmp.Close(); err != nil {
		return errors.NewIOError("close", destination, err)
	}
	if err = os.Rename(tmpName, destination); err != nil {
		return errors.NewIOError("rename", destination, err)
	}
	return nil
}

// encode writes view to f, optionally through a zstd encoder.
func encode(f io.Writer, view []logs.LogEntry, format Format, zst bool) error {
	var out io.Writer = f
	var enc *zstd.Encoder
	if zst {
		var err error
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return err
		}
		out = enc
	}

	bw := bufio.NewWriter(out)
	var err error
	switch format {
	case FormatJSONL:
		err = writeJSONL(bw, view)
	case FormatCSV:
		err = writeCSV(bw, view)
	default:
		err = writeText(bw, view)
	}
	if err != nil {
		if enc != nil {
			enc.Close()
		}
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if enc != nil {
		return enc.Close()
	}
	return nil
}

// FormatLine renders one entry in the text layout.
func FormatLine(e logs.LogEntry) string {
	source := e.Source
	if source == "" {
		source = "-"
	}
	msg := strings.ReplaceAll(e.Message, "\n", `\n`)
	return fmt.Sprintf("%s [%s] %s  %s",
		e.Timestamp.UTC().Format(TextTimeLayout),
		strings.ToUpper(string(e.Level)),
		source,
		msg)
}

func writeText(w io.Writer, view []logs.LogEntry) error {
	for _, e := range view {
		if _, err := io.WriteString(w, FormatLine(e)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONL(w io.Writer, view []logs.LogEntry) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, e := range view {
		e.Timestamp = e.Timestamp.UTC()
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, view []logs.LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range view {
		labels, err := encodeLabels(e.Labels)
		if err != nil {
			return err
		}
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.Level),
			e.Source,
			e.ResourceID,
			e.Message,
			labels,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// encodeLabels renders labels as a JSON object with sorted keys.
func encodeLabels(labels map[string]string) (string, error) {
	if len(labels) == 0 {
		return "", nil
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeLabels(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var labels map[string]string
	if err := json.Unmarshal([]byte(s), &labels); err != nil {
		return nil, err
	}
	return labels, nil
}
