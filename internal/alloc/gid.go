package alloc

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's id by parsing the leading
// "goroutine N [...]" line of a one-frame stack trace. This is the standard
// (if inelegant) stand-in for thread-local storage in Go: the runtime
// deliberately exposes no public API for it, since goroutines are meant to
// be anonymous, but the tracking allocator's label stack needs a stable key
// per logical thread-of-control exactly the way the reference design's TLS
// slot does.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
