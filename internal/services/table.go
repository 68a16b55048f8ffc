package services

import "sync/atomic"

// Table is a process-wide record of exactly six nullable slots (spec §3
// "Services table"). The zero value is ready to use — atomic.Pointer's zero
// value is a safe nil, so no constructor is required, matching the
// teacher's preference for zero global-init magic.
//
// Per spec §9 "Service lookup without globals", Table is an explicit value
// threaded through internal/runtime.Boot rather than a package-level
// singleton; DefaultTable below is the thin convenience adapter the same
// section allows on top of that.
type Table struct {
	allocator atomic.Pointer[Allocator]
	profiler  atomic.Pointer[Profiler]
	logger    atomic.Pointer[Logger]
	jobs      atomic.Pointer[JobSystem]
	modules   atomic.Pointer[ModuleRegistry]
	eventBus  atomic.Pointer[EventBus]
}

// DefaultTable is a package-level convenience instance for callers that do
// not need per-test isolation. internal/runtime.Boot does not use it by
// default; cmd/geckodemo may, for brevity.
var DefaultTable Table

// Install publishes every concrete service with release ordering. It must
// be called at most once per boot; re-installing over a non-empty table
// without an intervening Uninstall is a programming error left to the
// caller to avoid (spec §4.1: "Re-installing is defined only after
// uninstall_services").
func (t *Table) Install(allocator Allocator, jobs JobSystem, profiler Profiler, logger Logger, modules ModuleRegistry, eventBus EventBus) {
	t.allocator.Store(&allocator)
	t.jobs.Store(&jobs)
	t.profiler.Store(&profiler)
	t.logger.Store(&logger)
	t.modules.Store(&modules)
	t.eventBus.Store(&eventBus)
}

// Uninstall clears every slot. The caller must guarantee no thread is
// mid-call on any service before this returns (spec §4.1); in practice this
// means modules and the job system have already been shut down.
func (t *Table) Uninstall() {
	t.allocator.Store(nil)
	t.jobs.Store(nil)
	t.profiler.Store(nil)
	t.logger.Store(nil)
	t.modules.Store(nil)
	t.eventBus.Store(nil)
}

// Validate reports whether every slot is non-null. If fatal is true and a
// slot is missing, Validate panics instead of returning false — the
// caller-chosen equivalent of the reference design's debug abort.
func (t *Table) Validate(fatal bool) bool {
	ok := t.allocator.Load() != nil &&
		t.jobs.Load() != nil &&
		t.profiler.Load() != nil &&
		t.logger.Load() != nil &&
		t.modules.Load() != nil &&
		t.eventBus.Load() != nil
	if !ok && fatal {
		panic("services: validate_services(fatal=true) found an unfilled slot")
	}
	return ok
}

// GetAllocator returns the installed allocator. Unlike every other Get*
// accessor, there is no Null fallback: an uninstalled allocator is a fatal
// misuse (spec §4.1 "there is no sensible no-op allocator").
func (t *Table) GetAllocator() Allocator {
	p := t.allocator.Load()
	if p == nil {
		panic("services: get_allocator called before install_services")
	}
	return *p
}

// GetProfiler acquire-loads the profiler slot, or NullProfiler if unset.
func (t *Table) GetProfiler() Profiler {
	if p := t.profiler.Load(); p != nil {
		return *p
	}
	return NullProfiler
}

// GetLogger acquire-loads the logger slot, or NullLogger if unset.
func (t *Table) GetLogger() Logger {
	if p := t.logger.Load(); p != nil {
		return *p
	}
	return NullLogger
}

// GetJobSystem acquire-loads the job system slot, or NullJobSystem if unset.
func (t *Table) GetJobSystem() JobSystem {
	if p := t.jobs.Load(); p != nil {
		return *p
	}
	return NullJobSystem
}

// GetModules acquire-loads the module registry slot, or NullModuleRegistry
// if unset.
func (t *Table) GetModules() ModuleRegistry {
	if p := t.modules.Load(); p != nil {
		return *p
	}
	return NullModuleRegistry
}

// GetEventBus acquire-loads the event bus slot, or NullEventBus if unset.
func (t *Table) GetEventBus() EventBus {
	if p := t.eventBus.Load(); p != nil {
		return *p
	}
	return NullEventBus
}
