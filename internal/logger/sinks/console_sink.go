// Package sinks holds the logger's sink implementations: a console sink
// bridging into the ambient slog core, a plain text file sink, and a
// supplemental msgpack binary sink. Spec §1 calls sink *formatting* out of
// scope for the core, so these are intentionally thin.
package sinks

import (
	"context"
	"log/slog"

	"gecko/internal/logging"
	"gecko/internal/services"
)

// ConsoleSink renders log entries through the ambient slog core, the same
// formatting layer internal/logging gives the runtime's own diagnostics.
type ConsoleSink struct {
	logger *slog.Logger
}

// NewConsoleSink wraps logger, falling back to a discard logger if nil.
func NewConsoleSink(logger *slog.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logging.Default(logger).With("component", "logger")}
}

func (s *ConsoleSink) Write(entry services.LogEntry) error {
	s.logger.Log(context.Background(), slogLevel(entry.Level), entry.Text,
		"seq", entry.Sequence,
		"label", entry.Label.Name,
		"ts_ns", entry.TimeNs,
		"thread", entry.ThreadID,
	)
	return nil
}

func (s *ConsoleSink) Flush() error { return nil }

func slogLevel(l services.LogLevel) slog.Level {
	switch l {
	case services.LogDebug:
		return slog.LevelDebug
	case services.LogInfo:
		return slog.LevelInfo
	case services.LogWarn:
		return slog.LevelWarn
	case services.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
