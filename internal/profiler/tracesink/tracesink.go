// Package tracesink implements the Chrome-tracing JSON wire format for
// drained profiler events (spec §6) as a crash-safe file sink, plus a
// supplemental zstd-compressed variant for long sessions.
package tracesink

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"gecko/internal/services"
)

// traceEvent is the JSON shape written per spec §6. Fields are tagged with
// omitempty where the reference format's per-kind shapes differ (Counter
// carries "args", FrameMark carries "s", Zone events carry neither).
type traceEvent struct {
	Name string         `json:"name"`
	Cat  string          `json:"cat,omitempty"`
	Ph   string          `json:"ph"`
	TsUs int64           `json:"ts"`
	Pid  int             `json:"pid"`
	Tid  int64           `json:"tid,omitempty"`
	S    string          `json:"s,omitempty"`
	Args map[string]any  `json:"args,omitempty"`
}

func toTraceEvent(evt services.ProfEvent, t0 int64) traceEvent {
	tsUs := (evt.TimestampNs - t0) / 1000
	cat := fmt.Sprintf("%s (%s)", evt.Label.Name, strconv.FormatUint(evt.Label.ID, 10))

	switch evt.Kind {
	case services.ZoneBegin:
		return traceEvent{Name: evt.NamePtr, Cat: cat, Ph: "B", TsUs: tsUs, Pid: 1, Tid: evt.ThreadID}
	case services.ZoneEnd:
		return traceEvent{Name: evt.NamePtr, Cat: cat, Ph: "E", TsUs: tsUs, Pid: 1, Tid: evt.ThreadID}
	case services.FrameMark:
		return traceEvent{Name: evt.NamePtr, Cat: "frame", Ph: "i", S: "t", TsUs: tsUs, Pid: 1, Tid: evt.ThreadID}
	case services.Counter:
		return traceEvent{Name: evt.NamePtr, Cat: cat, Ph: "C", TsUs: tsUs, Pid: 1, Args: map[string]any{"v": evt.Value}}
	default:
		return traceEvent{Name: evt.NamePtr, Cat: cat, Ph: "i", TsUs: tsUs, Pid: 1, Tid: evt.ThreadID}
	}
}

// TraceFileSink is the crash-safe variant: the file is kept in a valid,
// parseable JSON state between every event by writing the closing "]}"
// after each write and rewinding two bytes before the next one. Cost is
// one extra fflush every FlushEvery events.
type TraceFileSink struct {
	mu         sync.Mutex
	file       *os.File
	enc        *json.Encoder
	t0         int64
	t0Set      bool
	firstEvent bool
	sinceFlush int

	// FlushEvery controls the fsync cadence; spec §6 default is 100.
	FlushEvery int
}

// NewTraceFileSink opens path and writes the Chrome-tracing JSON preamble.
func NewTraceFileSink(path string) (*TraceFileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(`{"traceEvents":[`); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteString("]}"); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	return &TraceFileSink{
		file:       f,
		firstEvent: true,
		FlushEvery: 100,
	}, nil
}

func (s *TraceFileSink) Write(evt services.ProfEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(evt)
}

func (s *TraceFileSink) writeLocked(evt services.ProfEvent) error {
	if !s.t0Set {
		s.t0 = evt.TimestampNs
		s.t0Set = true
	}
	te := toTraceEvent(evt, s.t0)
	payload, err := json.Marshal(te)
	if err != nil {
		return err
	}

	// Rewind over the trailing "]}" written by the previous call (or the
	// preamble's own "]}" on the first event).
	if _, err := s.file.Seek(-2, os.SEEK_END); err != nil {
		return err
	}

	var prefix string
	if !s.firstEvent {
		prefix = ","
	}
	s.firstEvent = false

	if _, err := s.file.WriteString(prefix); err != nil {
		return err
	}
	if _, err := s.file.Write(payload); err != nil {
		return err
	}
	if _, err := s.file.WriteString("]}"); err != nil {
		return err
	}

	s.sinceFlush++
	if s.sinceFlush >= s.FlushEvery {
		s.sinceFlush = 0
		return s.file.Sync()
	}
	return nil
}

func (s *TraceFileSink) WriteBatch(evts []services.ProfEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range evts {
		if err := s.writeLocked(evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *TraceFileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Sync()
}

// Close flushes and closes the underlying file.
func (s *TraceFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
