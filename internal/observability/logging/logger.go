// Package logging builds the process-wide structured logger shared by the
// api and worker binaries. Output is one JSON object per line with UTC
// timestamps, so both processes can feed the same log pipeline.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// NewJSONLogger returns a logger tagged with the service name. The level
// string comes straight from configuration; anything unparseable falls back
// to info rather than failing startup.
func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: utcTimestamps,
	})
	return slog.New(handler).With("service", service)
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func utcTimestamps(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 && attr.Key == slog.TimeKey {
		if t, ok := attr.Value.Any().(time.Time); ok {
			attr.Value = slog.TimeValue(t.UTC())
		}
	}
	return attr
}
