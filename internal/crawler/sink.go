package crawler

import (
	"context"
	"log/slog"
)

// LogSink is the fallback Sink when no persistent backend is configured: it
// logs records instead of storing them. Useful for dry runs and tests.
type LogSink struct{}

// NewLogSink returns a sink that writes to the default logger.
func NewLogSink() *LogSink { return &LogSink{} }

// Persist implements Sink.
func (s *LogSink) Persist(_ context.Context, records []PageRecord) error {
	for _, record := range records {
		slog.Info("record",
			"url", record.URL, "status", record.StatusCode, "title", record.Title)
	}
	return nil
}

// RecordAbandoned implements Sink.
func (s *LogSink) RecordAbandoned(_ context.Context, t AbandonedTask) error {
	slog.Info("abandoned record",
		"key", t.Key, "kind", string(t.Kind), "attempts", t.Attempts)
	return nil
}
