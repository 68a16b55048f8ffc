// Package eventbus implements the decoupled publish/subscribe bus (spec
// §4.7): capability-tagged emitters, immediate vs queued delivery, and
// per-module registration for audit purposes.
package eventbus

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"gecko/internal/errs"
)

// MaxPayloadBytes is the largest inline payload Enqueue accepts (spec §3
// "Queued event": "payload: inline bytes [0..=256]").
const MaxPayloadBytes = 256

// EventCode is a 64-bit tag: the high 32 bits identify the module that
// defined it, the low 32 bits are a module-local code (spec §4.7).
type EventCode uint64

// NewEventCode packs a module id and a module-local code into an EventCode.
func NewEventCode(moduleID uint32, localCode uint32) EventCode {
	return EventCode(uint64(moduleID)<<32 | uint64(localCode))
}

// ModuleID extracts the high 32 bits.
func (c EventCode) ModuleID() uint32 { return uint32(c >> 32) }

// LocalCode extracts the low 32 bits.
func (c EventCode) LocalCode() uint32 { return uint32(c) }

// Emitter is a module-scoped capability used to publish events (spec §3).
// Capability is a sanity gate against accidental cross-module forgery, not
// a security boundary (spec §4.7, Open Question #3) — bus_secret is a
// process-local, non-cryptographic random value, not a secret key.
type Emitter struct {
	ModuleID   uint32
	Sender     uuid.UUID
	Capability uint64
}

// Delivery selects when a subscriber's callback runs relative to
// enqueue/publish.
type Delivery int

const (
	// OnPublish subscribers are invoked synchronously, before Enqueue or
	// PublishImmediate returns.
	OnPublish Delivery = iota
	// Queued subscribers are invoked later, from DispatchQueued.
	Queued
)

// Callback receives a delivered event. payload is only valid for the
// duration of the call for OnPublish/PublishImmediate delivery; Queued
// delivery hands the callback its own copy.
type Callback func(code EventCode, emitter Emitter, payload []byte)

type subscriberEntry struct {
	id       uint64
	code     EventCode
	callback Callback
	delivery Delivery
}

// Subscription is the caller-owned handle returned by Subscribe. Unsubscribe
// is idempotent: calling it more than once is a no-op after the first call
// (spec §3 "double-drop is a no-op").
type Subscription struct {
	bus  *Bus
	id   uint64
	code EventCode
	once sync.Once
}

// Unsubscribe removes this subscription from the bus. Safe to call more
// than once and safe to call concurrently with bus activity.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.code, s.id)
	})
}

type queuedEvent struct {
	code     EventCode
	emitter  Emitter
	seq      uint64
	payload  []byte
}

// Bus is the event bus. The zero value is not usable; construct with New.
type Bus struct {
	secret uint64

	subMu       sync.Mutex
	subscribers map[EventCode][]*subscriberEntry
	nextSubID   atomic.Uint64

	seq atomic.Uint64

	queueMu sync.Mutex
	queue   []queuedEvent

	moduleMu sync.Mutex
	modules  map[uint32]struct{}
}

// New builds a Bus with a fresh random bus_secret.
func New() *Bus {
	return &Bus{
		secret:      rand.Uint64(),
		subscribers: make(map[EventCode][]*subscriberEntry),
		modules:     make(map[uint32]struct{}),
	}
}

// CreateEmitter mints an Emitter scoped to moduleID with a fresh sender id.
func (b *Bus) CreateEmitter(moduleID uint32) Emitter {
	return Emitter{
		ModuleID:   moduleID,
		Sender:     uuid.New(),
		Capability: uint64(moduleID) ^ b.secret,
	}
}

// ValidateEmitter reports whether e legitimately claims moduleID expected.
func (b *Bus) ValidateEmitter(e Emitter, expected uint32) bool {
	return e.ModuleID == expected && e.Capability == uint64(expected)^b.secret
}

// RegisterModule records moduleID as permitted to emit. A second call with
// the same id returns false (spec §4.7).
func (b *Bus) RegisterModule(moduleID uint32) bool {
	b.moduleMu.Lock()
	defer b.moduleMu.Unlock()
	if _, exists := b.modules[moduleID]; exists {
		return false
	}
	b.modules[moduleID] = struct{}{}
	return true
}

// UnregisterModule removes moduleID's registration. Returns false if it was
// never registered.
func (b *Bus) UnregisterModule(moduleID uint32) bool {
	b.moduleMu.Lock()
	defer b.moduleMu.Unlock()
	if _, exists := b.modules[moduleID]; !exists {
		return false
	}
	delete(b.modules, moduleID)
	return true
}

// Subscribe registers callback for code with the given delivery option.
func (b *Bus) Subscribe(code EventCode, delivery Delivery, callback Callback) *Subscription {
	id := b.nextSubID.Add(1)
	entry := &subscriberEntry{id: id, code: code, callback: callback, delivery: delivery}

	b.subMu.Lock()
	b.subscribers[code] = append(b.subscribers[code], entry)
	b.subMu.Unlock()

	return &Subscription{bus: b, id: id, code: code}
}

func (b *Bus) unsubscribe(code EventCode, id uint64) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	entries := b.subscribers[code]
	for i, e := range entries {
		if e.id == id {
			b.subscribers[code] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// snapshotSubscribers returns a copy of code's subscriber list so callbacks
// can run outside the subscriber-list lock: a subscriber may publish back
// to the bus from within its own callback without deadlocking (spec §5).
func (b *Bus) snapshotSubscribers(code EventCode) []*subscriberEntry {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	entries := b.subscribers[code]
	out := make([]*subscriberEntry, len(entries))
	copy(out, entries)
	return out
}

// PublishImmediate delivers to every subscriber of code synchronously,
// regardless of their registered delivery option (spec §4.7). The
// emitter's module id must match code's module id or CapabilityMismatch is
// returned.
func (b *Bus) PublishImmediate(emitter Emitter, code EventCode, payload []byte) error {
	if emitter.ModuleID != code.ModuleID() {
		return errs.New(errs.CapabilityMismatch, "eventbus: emitter module id does not match event code module id")
	}
	for _, entry := range b.snapshotSubscribers(code) {
		entry.callback(code, emitter, payload)
	}
	return nil
}

// Enqueue delivers to OnPublish subscribers synchronously, then copies
// payload (max MaxPayloadBytes) into a queued record for Queued
// subscribers, to be delivered by a later DispatchQueued call.
func (b *Bus) Enqueue(emitter Emitter, code EventCode, payload []byte) error {
	if emitter.ModuleID != code.ModuleID() {
		return errs.New(errs.CapabilityMismatch, "eventbus: emitter module id does not match event code module id")
	}
	if len(payload) > MaxPayloadBytes {
		return errs.New(errs.InvalidArgument, "eventbus: payload exceeds max inline size")
	}

	for _, entry := range b.snapshotSubscribers(code) {
		if entry.delivery == OnPublish {
			entry.callback(code, emitter, payload)
		}
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	qe := queuedEvent{
		code:    code,
		emitter: emitter,
		seq:     b.seq.Add(1),
		payload: cp,
	}
	b.queueMu.Lock()
	b.queue = append(b.queue, qe)
	b.queueMu.Unlock()
	return nil
}

// DispatchQueued delivers up to max queued events to their Queued
// subscribers, on whatever goroutine calls it. Returns the number
// dispatched.
func (b *Bus) DispatchQueued(max int) int {
	b.queueMu.Lock()
	n := len(b.queue)
	if max > 0 && n > max {
		n = max
	}
	batch := b.queue[:n]
	b.queue = b.queue[n:]
	b.queueMu.Unlock()

	for _, qe := range batch {
		for _, entry := range b.snapshotSubscribers(qe.code) {
			if entry.delivery == Queued {
				entry.callback(qe.code, qe.emitter, qe.payload)
			}
		}
	}
	return len(batch)
}
