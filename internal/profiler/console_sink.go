package profiler

import (
	"log/slog"

	"gecko/internal/logging"
	"gecko/internal/services"
)

// ConsoleSink bridges drained profiler events into the ambient slog core,
// the way internal/logging layers a ComponentFilterHandler over a base
// handler for the runtime's own diagnostics. It is not meant for
// high-volume tracing — use tracesink.TraceFileSink for that — but is
// useful for a demo host or interactive debugging session.
type ConsoleSink struct {
	logger *slog.Logger
}

// NewConsoleSink wraps logger, falling back to a discard logger if nil.
func NewConsoleSink(logger *slog.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logging.Default(logger).With("component", "profiler")}
}

func (s *ConsoleSink) Write(evt services.ProfEvent) error {
	s.logger.Debug("prof_event",
		"kind", kindString(evt.Kind),
		"label", evt.Label.Name,
		"ts_ns", evt.TimestampNs,
		"thread", evt.ThreadID,
		"value", evt.Value,
	)
	return nil
}

func (s *ConsoleSink) WriteBatch(evts []services.ProfEvent) error {
	for _, evt := range evts {
		if err := s.Write(evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *ConsoleSink) Flush() error { return nil }

func kindString(k services.ProfKind) string {
	switch k {
	case services.ZoneBegin:
		return "zone_begin"
	case services.ZoneEnd:
		return "zone_end"
	case services.Counter:
		return "counter"
	case services.FrameMark:
		return "frame_mark"
	default:
		return "unknown"
	}
}
