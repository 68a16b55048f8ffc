// Package services defines the interfaces each core service implements and
// the process-wide table that publishes installed instances to the rest of
// the runtime. Concrete implementations (internal/alloc, internal/profiler,
// internal/logger, internal/jobs, internal/eventbus, internal/modules) all
// depend on this package; this package depends on none of them, which is
// what keeps the six services substitutable without import cycles.
package services

import (
	"context"

	"gecko/internal/hash"
)

// ProfLevel is the profiler's compile-time/runtime gating tier.
type ProfLevel int

const (
	LevelAlways ProfLevel = iota
	LevelNormal
	LevelDetailed
)

// ProfKind distinguishes the four profiler event shapes.
type ProfKind int

const (
	ZoneBegin ProfKind = iota
	ZoneEnd
	Counter
	FrameMark
)

// ProfEvent is the payload carried by the profiler ring. The reference
// design packs this into a cacheline-aligned 64-byte struct; Go's string
// header and interface-free field set land close to that without resorting
// to fixed byte arrays, which would make NamePtr unreadable in sinks.
type ProfEvent struct {
	TimestampNs int64
	Value       float64
	NamePtr     string
	Label       hash.Label
	ThreadID    int64
	NameHash    uint64
	Kind        ProfKind
	Level       ProfLevel
}

// ProfSink receives drained profiler events on the single consumer
// goroutine. Implementations must be cheap or internally asynchronous;
// sink dispatch is sequential, never concurrent, across the fan-out.
type ProfSink interface {
	Write(evt ProfEvent) error
	WriteBatch(evts []ProfEvent) error
	Flush() error
}

// Profiler is the service interface modeling spec §4.4.
type Profiler interface {
	Emit(evt ProfEvent)
	NowNs() int64
	SetMinLevel(level ProfLevel)
	IsLevelEnabled(level ProfLevel) bool
	AddSink(sink ProfSink)
	RemoveSink(sink ProfSink)
	Dropped() uint64
	Shutdown()
}

// LogLevel orders log records for filtering and for the dropped-message
// fold-in record.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxLogText is the logger's fixed truncation width (spec §3: "text: [char;
// 512]").
const MaxLogText = 512

// LogEntry is the payload carried by the logger ring.
type LogEntry struct {
	Sequence uint64
	Level    LogLevel
	Label    hash.Label
	TimeNs   int64
	ThreadID int64
	Text     string
}

// LogSink receives drained log entries on the logger's consumer job.
type LogSink interface {
	Write(entry LogEntry) error
	Flush() error
}

// Logger is the service interface modeling spec §4.5.
type Logger interface {
	Log(level LogLevel, label hash.Label, text string)
	SetLevel(level LogLevel)
	AddSink(sink LogSink)
	Flush()
	Shutdown()
}

// JobPriority orders ready candidates within the job queue.
type JobPriority int

const (
	PriorityLow JobPriority = iota
	PriorityNormal
	PriorityHigh
)

// JobID is a monotonically increasing handle; zero is always invalid.
type JobID uint64

// InvalidJobID is the zero value returned by Submit after shutdown.
const InvalidJobID JobID = 0

// JobFunc is the thunk a worker runs. A non-nil error is logged by the job
// system rather than propagated; panics are recovered the same way.
type JobFunc func(ctx context.Context) error

// JobSystem is the service interface modeling spec §4.6.
type JobSystem interface {
	Submit(fn JobFunc, priority JobPriority, label hash.Label) JobID
	SubmitWithDeps(fn JobFunc, deps []JobID, priority JobPriority, label hash.Label) JobID
	Wait(id JobID)
	WaitAll(ids []JobID)
	IsComplete(id JobID) bool
	WorkerCount() int
	Shutdown()
}

// EventBus is the narrow slice of the bus interface the module registry
// cross-wires against (spec §4.8 "register_module"/"unregister_module").
// The full subscribe/publish surface lives in internal/eventbus's own
// exported Bus type, used directly by callers that need it.
type EventBus interface {
	RegisterModule(moduleID uint32) bool
	UnregisterModule(moduleID uint32) bool
}

// ModuleRegistry is the narrow slice of the registry the runtime's boot/
// shutdown glue drives directly.
type ModuleRegistry interface {
	StartupAll() bool
	ShutdownAll()
}

// AllocSnapshot is a point-in-time clone of the tracking allocator's
// bucket table, safe to read without holding the allocator's lock.
type AllocSnapshot struct {
	TotalLive uint64
	Buckets   []LabelBucket
}

// LabelBucket is one label's live accounting.
type LabelBucket struct {
	Label     hash.Label
	LiveBytes uint64
	Allocs    uint64
	Frees     uint64
}

// Allocator is the service interface modeling spec §4.2. There is no Null
// variant: allocator operations assert hard when no allocator is installed,
// since there is no sensible no-op allocator (spec §4.1).
type Allocator interface {
	Alloc(size, align uintptr) (uintptr, error)
	Free(ptr uintptr) error
	PushLabel(label hash.Label)
	PopLabel()
	Snapshot() AllocSnapshot
	EmitCounters()
}
