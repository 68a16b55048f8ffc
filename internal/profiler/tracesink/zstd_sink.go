package tracesink

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/klauspost/compress/zstd"

	"gecko/internal/services"
)

// ZstdTraceFileSink is the supplemental, non-crash-safe trace sink: instead
// of the rewind-and-reflush discipline TraceFileSink uses to stay valid
// between events, it streams through a zstd encoder and only produces a
// well-formed file once Close is called. In exchange it avoids the
// O(events) reflush cost entirely, which matters for long sessions where
// file size and write amplification dominate over crash safety.
type ZstdTraceFileSink struct {
	mu         sync.Mutex
	file       *os.File
	enc        *zstd.Encoder
	t0         int64
	t0Set      bool
	firstEvent bool

	scheduler gocron.Scheduler
}

// NewZstdTraceFileSink opens path, wraps it in a zstd encoder, and writes
// the JSON preamble. flushInterval schedules a periodic Flush via gocron,
// matching the teacher's Scheduler-wrapped-gocron pattern for maintenance
// jobs rather than a hand-rolled ticker; pass zero to disable.
func NewZstdTraceFileSink(path string, flushInterval time.Duration) (*ZstdTraceFileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := enc.Write([]byte(`{"traceEvents":[`)); err != nil {
		enc.Close()
		f.Close()
		return nil, err
	}

	s := &ZstdTraceFileSink{
		file:       f,
		enc:        enc,
		firstEvent: true,
	}

	if flushInterval > 0 {
		sched, err := gocron.NewScheduler()
		if err != nil {
			return nil, err
		}
		if _, err := sched.NewJob(
			gocron.DurationJob(flushInterval),
			gocron.NewTask(func() { _ = s.Flush() }),
		); err != nil {
			return nil, err
		}
		sched.Start()
		s.scheduler = sched
	}

	return s, nil
}

func (s *ZstdTraceFileSink) Write(evt services.ProfEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(evt)
}

func (s *ZstdTraceFileSink) writeLocked(evt services.ProfEvent) error {
	if !s.t0Set {
		s.t0 = evt.TimestampNs
		s.t0Set = true
	}
	te := toTraceEvent(evt, s.t0)
	payload, err := json.Marshal(te)
	if err != nil {
		return err
	}
	if !s.firstEvent {
		if _, err := s.enc.Write([]byte(",")); err != nil {
			return err
		}
	}
	s.firstEvent = false
	_, err = s.enc.Write(payload)
	return err
}

func (s *ZstdTraceFileSink) WriteBatch(evts []services.ProfEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range evts {
		if err := s.writeLocked(evt); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the zstd encoder's internal buffers without closing the
// stream, so the file remains readable as a partial zstd frame sequence.
func (s *ZstdTraceFileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Flush()
}

// Close writes the closing "]}" and the zstd frame trailer, stops the
// periodic flush job if one was scheduled, and closes the file.
func (s *ZstdTraceFileSink) Close() error {
	s.mu.Lock()
	if s.scheduler != nil {
		_ = s.scheduler.Shutdown()
	}
	_, werr := s.enc.Write([]byte("]}"))
	cerr := s.enc.Close()
	s.mu.Unlock()
	if werr != nil {
		s.file.Close()
		return werr
	}
	if cerr != nil {
		s.file.Close()
		return cerr
	}
	return s.file.Close()
}
