// Package profiler implements the MPSC profiling event ring, scope guards,
// and sink fan-out described by spec §4.4. Producers never block: a
// saturated ring drops the event and increments a counter instead, because
// profiling must never stall the program it measures.
package profiler

import (
	"sync"
	"sync/atomic"
	"time"

	"gecko/internal/hash"
	"gecko/internal/ringbuf"
	"gecko/internal/services"
)

// DefaultCapacity is the ring capacity used when Config.Capacity is zero.
const DefaultCapacity = 4096

// Config controls a Profiler's construction.
type Config struct {
	Capacity int
	MinLevel services.ProfLevel
}

// Profiler implements services.Profiler over a ringbuf.Ring[services.ProfEvent].
type Profiler struct {
	ring     *ringbuf.Ring[services.ProfEvent]
	minLevel atomic.Int32

	sinkMu sync.Mutex
	sinks  []services.ProfSink

	start time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Profiler and starts its single consumer goroutine, which
// drains the ring and fans each event out to every registered sink in
// registration order (spec's Open Question #4: serialized, single
// consumer).
func New(cfg Config) *Profiler {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Profiler{
		ring:   ringbuf.New[services.ProfEvent](capacity, ringbuf.DropOnFull),
		start:  time.Now(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	p.minLevel.Store(int32(cfg.MinLevel))
	go p.consume()
	return p
}

// NowNs returns nanoseconds elapsed since the profiler's construction,
// matching the reference design's process-relative clock rather than wall
// time (trace files latch their own t0 independently, per spec §6).
func (p *Profiler) NowNs() int64 {
	return time.Since(p.start).Nanoseconds()
}

// SetMinLevel adjusts the runtime level filter. Events more detailed
// (numerically greater) than this level are discarded at Emit, before ever
// reaching the ring.
func (p *Profiler) SetMinLevel(level services.ProfLevel) {
	p.minLevel.Store(int32(level))
}

// IsLevelEnabled reports whether level passes the current runtime filter:
// level must be at most as detailed as the configured ceiling, so lower-
// numbered, more important levels (LevelAlways) always pass.
func (p *Profiler) IsLevelEnabled(level services.ProfLevel) bool {
	return int32(level) <= p.minLevel.Load()
}

// Emit pushes evt into the ring if its level is enabled. A saturated ring
// drops the event; Dropped() reports the running total.
func (p *Profiler) Emit(evt services.ProfEvent) {
	if !p.IsLevelEnabled(evt.Level) {
		return
	}
	p.ring.Push(evt)
}

// Dropped returns the number of events discarded because the ring was full.
func (p *Profiler) Dropped() uint64 {
	return p.ring.Dropped()
}

// AddSink registers sink to receive drained events. Sinks registered while
// the consumer is running start receiving events from the next drain pass.
func (p *Profiler) AddSink(sink services.ProfSink) {
	p.sinkMu.Lock()
	p.sinks = append(p.sinks, sink)
	p.sinkMu.Unlock()
}

// RemoveSink unregisters sink. A no-op if sink was never added.
func (p *Profiler) RemoveSink(sink services.ProfSink) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	for i, s := range p.sinks {
		if s == sink {
			p.sinks = append(p.sinks[:i], p.sinks[i+1:]...)
			return
		}
	}
}

// Shutdown stops the consumer goroutine after flushing every registered
// sink. Safe to call more than once.
func (p *Profiler) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.doneCh
	})
}

func (p *Profiler) consume() {
	defer close(p.doneCh)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			p.drainAll()
			p.flushSinks()
			return
		case <-ticker.C:
			p.drainAll()
		}
	}
}

func (p *Profiler) drainAll() {
	for {
		evt, ok := p.ring.Pop()
		if !ok {
			return
		}
		p.dispatch(evt)
	}
}

func (p *Profiler) dispatch(evt services.ProfEvent) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	for _, sink := range p.sinks {
		_ = sink.Write(evt)
	}
}

func (p *Profiler) flushSinks() {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	for _, sink := range p.sinks {
		_ = sink.Flush()
	}
}

// Scope is a lexically-scoped profiler zone (ZoneBegin on construction,
// ZoneEnd on End). Callers use `defer scope.End()` in place of the
// reference design's constructor/destructor pairing.
type Scope struct {
	profiler services.Profiler
	label    hash.Label
	threadID int64
	start    int64
}

// BeginScope emits a ZoneBegin event and returns a Scope whose End emits
// the matching ZoneEnd. Both events carry the same label, name hash, and
// thread id, preserving pairing under interleaving from other threads.
func BeginScope(p services.Profiler, label hash.Label, threadID int64) *Scope {
	now := p.NowNs()
	p.Emit(services.ProfEvent{
		TimestampNs: now,
		NamePtr:     label.Name,
		Label:       label,
		ThreadID:    threadID,
		NameHash:    label.ID,
		Kind:        services.ZoneBegin,
		Level:       services.LevelNormal,
	})
	return &Scope{profiler: p, label: label, threadID: threadID, start: now}
}

// End emits the ZoneEnd event closing this scope. Calling End more than
// once emits duplicate ZoneEnd events; callers should defer it exactly
// once, the same discipline the reference design's RAII guard enforces at
// compile time.
func (s *Scope) End() {
	s.profiler.Emit(services.ProfEvent{
		TimestampNs: s.profiler.NowNs(),
		NamePtr:     s.label.Name,
		Label:       s.label,
		ThreadID:    s.threadID,
		NameHash:    s.label.ID,
		Kind:        services.ZoneEnd,
		Level:       services.LevelNormal,
	})
}

// EmitCounter synthesizes a single Counter event.
func EmitCounter(p services.Profiler, label hash.Label, value float64, threadID int64) {
	p.Emit(services.ProfEvent{
		TimestampNs: p.NowNs(),
		Value:       value,
		NamePtr:     label.Name,
		Label:       label,
		ThreadID:    threadID,
		NameHash:    label.ID,
		Kind:        services.Counter,
		Level:       services.LevelNormal,
	})
}

// EmitFrameMark synthesizes a single FrameMark event.
func EmitFrameMark(p services.Profiler, label hash.Label, threadID int64) {
	p.Emit(services.ProfEvent{
		TimestampNs: p.NowNs(),
		NamePtr:     label.Name,
		Label:       label,
		ThreadID:    threadID,
		NameHash:    label.ID,
		Kind:        services.FrameMark,
		Level:       services.LevelNormal,
	})
}
