// Package ringbuf implements the bounded Vyukov MPSC ring shared by the
// profiler and logger services. Capacity is fixed at construction and must
// be a power of two; producers race on a shared head counter, a single
// consumer owns the tail, and per-slot sequence numbers linearize the two
// sides without a lock.
package ringbuf

import (
	"runtime"
	"sync/atomic"
)

// Policy controls what a producer does when it finds the ring full.
type Policy int

const (
	// DropOnFull never blocks the producer: the event is discarded and
	// Dropped is incremented. This is the profiler's policy — profiling
	// must never stall the program it measures.
	DropOnFull Policy = iota
	// DrainOnFull asks the producer to drain the ring on its own thread
	// (by calling the Ring's Drain callback, if set) and retry. This is
	// the logger's policy — dropping log records loses information, so a
	// slow consumer must not cause data loss, only backpressure.
	DrainOnFull
)

type slot[T any] struct {
	sequence atomic.Uint64
	payload  T
}

// Ring is a bounded multi-producer / single-consumer circular buffer of T.
// The zero value is not usable; construct with New.
type Ring[T any] struct {
	slots    []slot[T]
	mask     uint64
	policy   Policy
	head     atomic.Uint64
	tail     atomic.Uint64
	dropped  atomic.Uint64
	// drain, if set, is invoked by a producer under DrainOnFull when the
	// ring is saturated, to run the consumer body inline and make room.
	// It must itself call Pop in a loop; Ring does not call Pop for the
	// caller because the payload-processing logic lives with the owner
	// (profiler sink fan-out, logger sink fan-out), not with the ring.
	drain func()
}

// New builds a Ring with the given capacity, rounded up to the next power
// of two if it is not one already. Capacity must be at least 1.
func New[T any](capacity int, policy Policy) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	capacity = nextPow2(capacity)

	r := &Ring[T]{
		slots:  make([]slot[T], capacity),
		mask:   uint64(capacity - 1),
		policy: policy,
	}
	for i := range r.slots {
		r.slots[i].sequence.Store(uint64(i))
	}
	return r
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// SetDrain installs the inline-drain callback used by DrainOnFull. Must be
// called before any producer can observe a full ring (i.e. during setup).
func (r *Ring[T]) SetDrain(fn func()) { r.drain = fn }

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int { return len(r.slots) }

// Dropped returns the number of pushes abandoned under DropOnFull.
func (r *Ring[T]) Dropped() uint64 { return r.dropped.Load() }

// Push publishes payload into the ring. Under DropOnFull it returns false
// immediately if the ring is saturated (incrementing Dropped). Under
// DrainOnFull it invokes the drain callback and retries until it succeeds,
// and always returns true (it never gives up — see spec's "yield-drain"
// back-pressure policy for the logger).
func (r *Ring[T]) Push(payload T) bool {
	for {
		pos := r.head.Load()
		s := &r.slots[pos&r.mask]
		seq := s.sequence.Load()

		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			// Slot is free for this position; try to claim it.
			if r.head.CompareAndSwap(pos, pos+1) {
				s.payload = payload
				s.sequence.Store(pos + 1)
				return true
			}
			// Lost the race for head; retry from scratch.
		case diff < 0:
			// Ring is full: this slot has not yet been consumed.
			switch r.policy {
			case DropOnFull:
				r.dropped.Add(1)
				return false
			case DrainOnFull:
				if r.drain != nil {
					r.drain()
				} else {
					// No drain installed; yield to let the real consumer
					// make progress rather than busy-spinning.
					runtime.Gosched()
				}
			}
		default:
			// Another producer has already advanced head past pos; retry.
		}
	}
}

// Pop removes and returns the oldest unconsumed payload. ok is false if the
// ring is currently empty. Must only be called from a single consumer
// goroutine at a time (Vyukov MPSC requires exactly one consumer).
func (r *Ring[T]) Pop() (payload T, ok bool) {
	t := r.tail.Load()
	s := &r.slots[t&r.mask]
	seq := s.sequence.Load()

	diff := int64(seq) - int64(t+1)
	if diff != 0 {
		return payload, false
	}
	payload = s.payload
	var zero T
	s.payload = zero
	s.sequence.Store(t + uint64(len(r.slots)))
	r.tail.Store(t + 1)
	return payload, true
}
