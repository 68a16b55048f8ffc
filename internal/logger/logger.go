// Package logger implements the MPSC log ring and its self-rescheduling
// consumer job (spec §4.5). Unlike the profiler, a full ring never drops a
// record: the producer drains the ring on its own goroutine and retries,
// trading latency for no lost log lines.
package logger

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"gecko/internal/hash"
	"gecko/internal/ringbuf"
	"gecko/internal/services"
)

// DefaultCapacity is the ring capacity used when Config.Capacity is zero.
const DefaultCapacity = 2048

// DefaultBatchSize is how many entries the consumer job drains per pass
// (spec §4.5: "pops up to a batch (e.g., 128) entries").
const DefaultBatchSize = 128

// minRescheduleInterval is the floor on consumer reschedule cadence (spec
// §4.5: "A rate-limit (>= 100 microseconds between schedules) prevents
// thrash").
const minRescheduleInterval = 100 * time.Microsecond

// Config controls a Logger's construction.
type Config struct {
	Capacity  int
	BatchSize int
	MinLevel  services.LogLevel
}

// JobSubmitter is the narrow slice of services.JobSystem the logger needs
// to schedule its self-rescheduling consumer job. Accepting the interface
// directly (rather than services.JobSystem) keeps internal/logger's public
// surface honest about what it actually calls.
type JobSubmitter interface {
	Submit(fn services.JobFunc, priority services.JobPriority, label hash.Label) services.JobID
}

var consumerLabel = hash.NewLabel("logger.consumer")

// Logger implements services.Logger over a ringbuf.Ring[services.LogEntry].
// Its consumer runs as a job on the job system (spec §4.5), so a Logger
// must be constructed after the job system is available.
type Logger struct {
	ring      *ringbuf.Ring[services.LogEntry]
	jobs      JobSubmitter
	batchSize int
	minLevel  atomic.Int32

	sinkMu sync.Mutex
	sinks  []services.LogSink

	// drainMu serializes drainBatch: the consumer job, Flush, and producers
	// draining a full ring all pop from the ring, which allows only one
	// consumer at a time.
	drainMu sync.Mutex

	sequence atomic.Uint64
	dropped  atomic.Uint64

	running   atomic.Bool
	limiter   *rate.Limiter
	scheduled atomic.Bool
}

// New builds a Logger whose consumer job is submitted to jobs.
func New(jobs JobSubmitter, cfg Config) *Logger {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	l := &Logger{
		jobs:      jobs,
		batchSize: batch,
		limiter:   rate.NewLimiter(rate.Every(minRescheduleInterval), 1),
	}
	l.minLevel.Store(int32(cfg.MinLevel))
	l.running.Store(true)
	l.ring = ringbuf.New[services.LogEntry](capacity, ringbuf.DrainOnFull)
	l.ring.SetDrain(l.drainOnce)
	return l
}

// SetLevel adjusts the runtime level filter.
func (l *Logger) SetLevel(level services.LogLevel) {
	l.minLevel.Store(int32(level))
}

// AddSink registers sink to receive drained entries.
func (l *Logger) AddSink(sink services.LogSink) {
	l.sinkMu.Lock()
	l.sinks = append(l.sinks, sink)
	l.sinkMu.Unlock()
}

// Log formats and enqueues a log record. Text longer than
// services.MaxLogText-1 bytes is silently truncated (spec §4.5). If the
// logger has begun shutdown, the record is written directly to sinks on
// the caller's stack instead of through the ring (spec §4.5's shutdown
// bypass).
func (l *Logger) Log(level services.LogLevel, label hash.Label, text string) {
	if int32(level) < l.minLevel.Load() {
		return
	}
	if len(text) > services.MaxLogText-1 {
		text = text[:services.MaxLogText-1]
	}

	entry := services.LogEntry{
		Sequence: l.sequence.Add(1),
		Level:    level,
		Label:    label,
		TimeNs:   time.Now().UnixNano(),
		ThreadID: 0,
		Text:     text,
	}

	if !l.running.Load() {
		l.writeToSinks(entry)
		return
	}

	l.ring.Push(entry)
	l.scheduleConsumer()
}

// drainOnce is installed as the ring's DrainOnFull callback: when a
// producer finds the ring saturated, it runs one consumer pass inline on
// its own goroutine rather than dropping the record.
func (l *Logger) drainOnce() {
	l.drainBatch()
}

func (l *Logger) scheduleConsumer() {
	if !l.limiter.Allow() {
		return
	}
	if !l.scheduled.CompareAndSwap(false, true) {
		return
	}
	l.jobs.Submit(func(ctx context.Context) error {
		l.runConsumer()
		return nil
	}, services.PriorityNormal, consumerLabel)
}

// runConsumer is the self-rescheduling consumer job body: drain a batch,
// fold in the dropped-message count, and reschedule iff the logger is
// still running and entries remain.
func (l *Logger) runConsumer() {
	l.scheduled.Store(false)
	pending := l.drainBatch()
	if l.running.Load() && pending {
		l.scheduleConsumer()
	}
}

// drainBatch pops up to batchSize entries and writes each to every
// registered sink, folding in a dropped-count WARN record first if any
// pushes were dropped since the last drain. It reports whether more
// entries were likely left pending (a full batch was drained).
func (l *Logger) drainBatch() (mightHaveMore bool) {
	l.drainMu.Lock()
	defer l.drainMu.Unlock()

	if dropped := l.dropped.Swap(0); dropped > 0 {
		l.writeToSinks(services.LogEntry{
			Sequence: l.sequence.Add(1),
			Level:    services.LogWarn,
			Label:    consumerLabel,
			TimeNs:   time.Now().UnixNano(),
			Text:     warnText(dropped),
		})
	}

	n := 0
	for ; n < l.batchSize; n++ {
		entry, ok := l.ring.Pop()
		if !ok {
			break
		}
		l.writeToSinks(entry)
	}
	return n == l.batchSize
}

func warnText(dropped uint64) string {
	return "dropped " + strconv.FormatUint(dropped, 10) + " log messages"
}

func (l *Logger) writeToSinks(entry services.LogEntry) {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	for _, sink := range l.sinks {
		_ = sink.Write(entry)
	}
}

// Flush drains any remaining entries and flushes every sink.
func (l *Logger) Flush() {
	for l.drainBatch() {
	}
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()
	for _, sink := range l.sinks {
		_ = sink.Flush()
	}
}

// Shutdown clears the running flag (so subsequent Log calls bypass the
// ring) and performs a final flush.
func (l *Logger) Shutdown() {
	l.running.Store(false)
	l.Flush()
}
