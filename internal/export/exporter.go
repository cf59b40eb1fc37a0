package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Exporter writes a report as JSON plus a CSV room roster.
type Exporter struct {
	writer BlobWriter
	logger *slog.Logger
}

// NewExporter constructs an exporter over the writer.
func NewExporter(writer BlobWriter, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{writer: writer, logger: logger}
}

// Keys returns the object keys of a report generated at the given time.
func Keys(generatedAt time.Time) (jsonKey, csvKey string) {
	stamp := generatedAt.UTC().Format("20060102T150405Z")
	return "report-" + stamp + ".json", "rooms-" + stamp + ".csv"
}

// Export renders and stores the report, returning the locations written.
func (e *Exporter) Export(ctx context.Context, report Report) ([]string, error) {
	if e == nil || e.writer == nil {
		return nil, fmt.Errorf("export writer not configured")
	}
	jsonKey, csvKey := Keys(report.GeneratedAt)

	var jsonBuf bytes.Buffer
	if err := WriteJSON(&jsonBuf, report); err != nil {
		return nil, err
	}
	var csvBuf bytes.Buffer
	if err := WriteRoomCSV(&csvBuf, report); err != nil {
		return nil, fmt.Errorf("encode room roster: %w", err)
	}

	written := make([]string, 0, 2)
	for _, obj := range []struct {
		key         string
		body        *bytes.Buffer
		contentType string
	}{
		{jsonKey, &jsonBuf, "application/json"},
		{csvKey, &csvBuf, "text/csv"},
	} {
		if err := e.writer.Put(ctx, obj.key, obj.body, obj.contentType); err != nil {
			e.logger.ErrorContext(ctx, "export failed", "key", obj.key, "error", err)
			return written, fmt.Errorf("write %s: %w", obj.key, err)
		}
		written = append(written, e.writer.Location(obj.key))
	}
	e.logger.InfoContext(ctx, "report exported", "locations", written, "rooms", len(report.Rooms))
	return written, nil
}
