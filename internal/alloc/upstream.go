package alloc

import (
	"sync"
	"sync/atomic"
)

// SlabUpstream is the default Upstream: a sync.Pool-backed byte-slab
// allocator standing in for the reference design's raw malloc/free. It
// tracks live slabs in a sidecar map of its own, allocated off the Go heap
// directly (never through the tracking Allocator above it), preserving the
// "internal containers must not recurse through tracking" invariant from
// spec §4.2.
type SlabUpstream struct {
	pool sync.Pool

	mu    sync.Mutex
	slabs map[uintptr][]byte

	nextHandle atomic.Uintptr
}

// NewSlabUpstream builds a ready-to-use SlabUpstream.
func NewSlabUpstream() *SlabUpstream {
	return &SlabUpstream{slabs: make(map[uintptr][]byte)}
}

// Alloc reserves a byte slice of at least size bytes (a freshly made slice
// has its capacity rounded up to a multiple of align) and returns an opaque handle (not a real pointer — Go does not expose raw
// addresses safely) identifying it for a later Free.
func (s *SlabUpstream) Alloc(size, align uintptr) (uintptr, error) {
	buf, ok := s.pool.Get().([]byte)
	if !ok || uintptr(cap(buf)) < size {
		buf = make([]byte, size, alignUp(size, align))
	}
	buf = buf[:size]

	handle := s.nextHandle.Add(1)
	s.mu.Lock()
	s.slabs[handle] = buf
	s.mu.Unlock()
	return handle, nil
}

// Free releases the slab identified by ptr back to the pool.
func (s *SlabUpstream) Free(ptr uintptr, _ uintptr) {
	s.mu.Lock()
	buf, ok := s.slabs[ptr]
	if ok {
		delete(s.slabs, ptr)
	}
	s.mu.Unlock()
	if ok {
		s.pool.Put(buf[:0])
	}
}

func alignUp(size, align uintptr) uintptr {
	if align == 0 {
		return size
	}
	return (size + align - 1) &^ (align - 1)
}
