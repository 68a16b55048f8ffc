// Package modules implements the module registry (spec §4.8): ordered
// registration, pre-boot vs post-boot start semantics, reverse-order
// shutdown, and rollback of a partially-successful startup_all.
package modules

import (
	"log/slog"
	"sync"

	"gecko/internal/errs"
	"gecko/internal/hash"
	"gecko/internal/logging"
	"gecko/internal/services"
)

// Module is the interface every registered unit implements. Startup
// returns false to signal failure (spec's "module's startup returned
// false" is the StartupFailed condition); Shutdown's error is logged, not
// propagated — spec §4.8 "failures in individual shutdowns are logged but
// do not abort the sweep".
type Module interface {
	Startup() bool
	Shutdown() error
}

type registration struct {
	rootLabel hash.Label
	module    Module
	started   bool
}

// Registry is the module registry. Construct with New.
type Registry struct {
	mu       sync.Mutex
	order    []hash.Label
	byLabel  map[uint64]*registration
	booted   bool
	eventBus services.EventBus
	logger   *slog.Logger
}

// New builds a Registry cross-wired to eventBus (spec §4.8: registration
// and unregistration call through to the bus for audit purposes). eventBus
// may be nil, in which case cross-wiring becomes a no-op.
func New(eventBus services.EventBus, logger *slog.Logger) *Registry {
	if eventBus == nil {
		eventBus = services.NullEventBus
	}
	return &Registry{
		byLabel:  make(map[uint64]*registration),
		eventBus: eventBus,
		logger:   logging.Default(logger).With("component", "modules"),
	}
}

// ModuleHandle is the owning result of RegisterStatic. Go has no RAII
// destructors, so the "drop unregisters, release detaches" discipline
// spec §4.8 describes becomes explicit: callers either `defer handle.Close()`
// (the scope-based pattern) or call Release() first to keep the module
// installed permanently without an open handle tracking it.
type ModuleHandle struct {
	registry *Registry
	label    hash.Label
	released bool
}

// Release detaches this handle from its module without unregistering it:
// a subsequent Close becomes a no-op. Use this for "install permanently".
func (h *ModuleHandle) Release() {
	h.released = true
}

// Close unregisters the module unless Release was called first. Safe to
// call on an already-released handle.
func (h *ModuleHandle) Close() error {
	if h.released {
		return nil
	}
	h.released = true
	return h.registry.Unregister(h.label)
}

// RegisterStatic registers module under rootLabel. If the registry has not
// yet run StartupAll, the module is recorded with started=false and
// started later by StartupAll, in registration order. If the registry has
// already booted, the module is started immediately; a startup failure
// removes the registration and returns StartupFailed.
func (r *Registry) RegisterStatic(rootLabel hash.Label, module Module) (*ModuleHandle, error) {
	if !rootLabel.Valid() {
		return nil, errs.New(errs.InvalidArgument, "modules: root label must be valid")
	}

	r.mu.Lock()
	if _, exists := r.byLabel[rootLabel.ID]; exists {
		r.mu.Unlock()
		return nil, errs.New(errs.Duplicate, "modules: label already registered")
	}

	reg := &registration{rootLabel: rootLabel, module: module}
	r.byLabel[rootLabel.ID] = reg
	r.order = append(r.order, rootLabel)
	booted := r.booted
	r.mu.Unlock()

	r.eventBus.RegisterModule(truncateModuleID(rootLabel))

	if !booted {
		return &ModuleHandle{registry: r, label: rootLabel}, nil
	}

	if !module.Startup() {
		r.removeLabel(rootLabel)
		r.eventBus.UnregisterModule(truncateModuleID(rootLabel))
		return nil, errs.New(errs.StartupFailed, "modules: module startup returned false")
	}

	r.mu.Lock()
	reg.started = true
	r.mu.Unlock()

	return &ModuleHandle{registry: r, label: rootLabel}, nil
}

// Unregister performs a point shutdown (if started) then removes the
// record. Returns NotFound if label was never registered.
func (r *Registry) Unregister(label hash.Label) error {
	r.mu.Lock()
	reg, exists := r.byLabel[label.ID]
	if !exists {
		r.mu.Unlock()
		return errs.New(errs.NotFound, "modules: unknown label")
	}
	delete(r.byLabel, label.ID)
	r.removeFromOrderLocked(label)
	started := reg.started
	r.mu.Unlock()

	if started {
		if err := reg.module.Shutdown(); err != nil {
			r.logger.Warn("module shutdown failed during unregister", "label", label.Name, "error", err)
		}
	}
	r.eventBus.UnregisterModule(truncateModuleID(label))
	return nil
}

func (r *Registry) removeLabel(label hash.Label) {
	r.mu.Lock()
	delete(r.byLabel, label.ID)
	r.removeFromOrderLocked(label)
	r.mu.Unlock()
}

func (r *Registry) removeFromOrderLocked(label hash.Label) {
	for i, l := range r.order {
		if l.ID == label.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// GetModule returns the module registered under label, if any.
func (r *Registry) GetModule(label hash.Label) (Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byLabel[label.ID]
	if !ok {
		return nil, false
	}
	return reg.module, true
}

// ForEachModule visits every registered module in registration order.
// Stops early if visit returns false.
func (r *Registry) ForEachModule(visit func(label hash.Label, started bool) bool) {
	r.mu.Lock()
	order := append([]hash.Label(nil), r.order...)
	r.mu.Unlock()

	for _, label := range order {
		r.mu.Lock()
		reg, ok := r.byLabel[label.ID]
		var started bool
		if ok {
			started = reg.started
		}
		r.mu.Unlock()
		if !ok {
			continue
		}
		if !visit(label, started) {
			return
		}
	}
}

// StartupAll walks registration_order and starts every not-yet-started
// module in turn. If any startup fails, every module started during this
// same call is shut down again, in reverse order, before StartupAll
// returns false (spec's Testable Properties scenario 5, supplemented from
// original_source — see DESIGN.md).
func (r *Registry) StartupAll() bool {
	r.mu.Lock()
	order := append([]hash.Label(nil), r.order...)
	r.mu.Unlock()

	var startedThisCall []hash.Label
	ok := true

	for _, label := range order {
		r.mu.Lock()
		reg, exists := r.byLabel[label.ID]
		r.mu.Unlock()
		if !exists || reg.started {
			continue
		}

		if !reg.module.Startup() {
			r.logger.Error("module startup failed, rolling back startup_all", "label", label.Name)
			ok = false
			break
		}

		r.mu.Lock()
		reg.started = true
		r.mu.Unlock()
		startedThisCall = append(startedThisCall, label)
	}

	r.mu.Lock()
	r.booted = true
	r.mu.Unlock()

	if !ok {
		for i := len(startedThisCall) - 1; i >= 0; i-- {
			label := startedThisCall[i]
			r.mu.Lock()
			reg, exists := r.byLabel[label.ID]
			r.mu.Unlock()
			if !exists {
				continue
			}
			if err := reg.module.Shutdown(); err != nil {
				r.logger.Warn("rollback shutdown failed", "label", label.Name, "error", err)
			}
			r.mu.Lock()
			reg.started = false
			r.mu.Unlock()
		}
		return false
	}
	return true
}

// ShutdownAll walks registration_order in reverse, shutting down every
// started module. Individual failures are logged but do not abort the
// sweep (spec §4.8).
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	order := append([]hash.Label(nil), r.order...)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		label := order[i]
		r.mu.Lock()
		reg, exists := r.byLabel[label.ID]
		r.mu.Unlock()
		if !exists || !reg.started {
			continue
		}
		if err := reg.module.Shutdown(); err != nil {
			r.logger.Warn("module shutdown failed", "label", label.Name, "error", err)
		}
		r.mu.Lock()
		reg.started = false
		r.mu.Unlock()
	}
}

// truncateModuleID derives the event bus's 32-bit module id space from a
// label's 64-bit hash. Collisions are possible in principle (a 64-to-32-bit
// truncation); the event bus's RegisterModule/UnregisterModule are audit
// bookkeeping only (spec §4.7), not a correctness-critical namespace, so
// this is an accepted simplification rather than a real id allocator.
func truncateModuleID(label hash.Label) uint32 {
	return uint32(label.ID)
}
