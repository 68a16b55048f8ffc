package services

import "gecko/internal/hash"

// The Null* types are the designated no-op implementations returned by the
// table's Get* accessors when a slot has never been installed. Spec §4.1:
// "calls through get_* when services are not installed yield the designated
// Null variant". Allocator has no such variant; GetAllocator panics instead
// (see table.go).

type nullProfiler struct{}

// NullProfiler is the shared no-op Profiler instance.
var NullProfiler Profiler = nullProfiler{}

func (nullProfiler) Emit(ProfEvent)                 {}
func (nullProfiler) NowNs() int64                   { return 0 }
func (nullProfiler) SetMinLevel(ProfLevel)          {}
func (nullProfiler) IsLevelEnabled(ProfLevel) bool  { return false }
func (nullProfiler) AddSink(ProfSink)               {}
func (nullProfiler) RemoveSink(ProfSink)            {}
func (nullProfiler) Dropped() uint64                { return 0 }
func (nullProfiler) Shutdown()                      {}

type nullLogger struct{}

// NullLogger is the shared no-op Logger instance.
var NullLogger Logger = nullLogger{}

func (nullLogger) Log(LogLevel, hash.Label, string) {}
func (nullLogger) SetLevel(LogLevel)                {}
func (nullLogger) AddSink(LogSink)                  {}
func (nullLogger) Flush()                           {}
func (nullLogger) Shutdown()                        {}

type nullJobSystem struct{}

// NullJobSystem is the shared no-op JobSystem instance.
var NullJobSystem JobSystem = nullJobSystem{}

func (nullJobSystem) Submit(JobFunc, JobPriority, hash.Label) JobID { return InvalidJobID }
func (nullJobSystem) SubmitWithDeps(JobFunc, []JobID, JobPriority, hash.Label) JobID {
	return InvalidJobID
}
func (nullJobSystem) Wait(JobID)            {}
func (nullJobSystem) WaitAll([]JobID)       {}
func (nullJobSystem) IsComplete(JobID) bool { return true }
func (nullJobSystem) WorkerCount() int      { return 0 }
func (nullJobSystem) Shutdown()             {}

type nullEventBus struct{}

// NullEventBus is the shared no-op EventBus instance.
var NullEventBus EventBus = nullEventBus{}

func (nullEventBus) RegisterModule(uint32) bool   { return false }
func (nullEventBus) UnregisterModule(uint32) bool { return false }

type nullModuleRegistry struct{}

// NullModuleRegistry is the shared no-op ModuleRegistry instance.
var NullModuleRegistry ModuleRegistry = nullModuleRegistry{}

func (nullModuleRegistry) StartupAll() bool { return true }
func (nullModuleRegistry) ShutdownAll()     {}
