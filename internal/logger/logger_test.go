package logger

import (
	"sync"
	"testing"
	"time"

	"gecko/internal/hash"
	"gecko/internal/services"
)

// inlineJobs runs each submitted job asynchronously in a fresh goroutine,
// standing in for the real job system without pulling in internal/jobs
// (which would make this a circular test dependency in spirit, if not in
// imports — the logger only needs JobSubmitter's narrow surface).
type inlineJobs struct{}

func (inlineJobs) Submit(fn services.JobFunc, _ services.JobPriority, _ hash.Label) services.JobID {
	go fn(nil)
	return 1
}

type recordingSink struct {
	mu      sync.Mutex
	entries []services.LogEntry
}

func (s *recordingSink) Write(entry services.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}
func (s *recordingSink) Flush() error { return nil }

func (s *recordingSink) snapshot() []services.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]services.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func TestLogDeliversToSink(t *testing.T) {
	l := New(inlineJobs{}, Config{Capacity: 64})
	sink := &recordingSink{}
	l.AddSink(sink)

	label := hash.NewLabel("t")
	for i := 0; i < 10; i++ {
		l.Log(services.LogInfo, label, "hello")
	}
	l.Flush()

	if got := len(sink.snapshot()); got != 10 {
		t.Fatalf("sink received %d entries, want 10", got)
	}
}

func TestLogTruncatesOverlongText(t *testing.T) {
	l := New(inlineJobs{}, Config{Capacity: 16})
	sink := &recordingSink{}
	l.AddSink(sink)

	long := make([]byte, services.MaxLogText+100)
	for i := range long {
		long[i] = 'x'
	}
	l.Log(services.LogInfo, hash.NewLabel("t"), string(long))
	l.Flush()

	entries := sink.snapshot()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if len(entries[0].Text) != services.MaxLogText-1 {
		t.Errorf("text length = %d, want %d", len(entries[0].Text), services.MaxLogText-1)
	}
}

func TestLevelFilterDropsBelowMinimum(t *testing.T) {
	l := New(inlineJobs{}, Config{Capacity: 16, MinLevel: services.LogWarn})
	sink := &recordingSink{}
	l.AddSink(sink)

	l.Log(services.LogInfo, hash.NewLabel("t"), "should be filtered")
	l.Log(services.LogError, hash.NewLabel("t"), "should pass")
	l.Flush()

	entries := sink.snapshot()
	if len(entries) != 1 || entries[0].Text != "should pass" {
		t.Fatalf("entries = %+v, want exactly the ERROR record", entries)
	}
}

func TestShutdownBypassesRing(t *testing.T) {
	l := New(inlineJobs{}, Config{Capacity: 16})
	sink := &recordingSink{}
	l.AddSink(sink)
	l.Shutdown()

	l.Log(services.LogInfo, hash.NewLabel("t"), "after shutdown")
	// Shutdown path writes synchronously; no need to wait for a consumer.
	entries := sink.snapshot()
	if len(entries) != 1 {
		t.Fatalf("post-shutdown log should write straight to sinks, got %d entries", len(entries))
	}
}

func TestConcurrentProducersDeliverUniqueSequences(t *testing.T) {
	l := New(inlineJobs{}, Config{Capacity: 256})
	sink := &recordingSink{}
	l.AddSink(sink)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Log(services.LogInfo, hash.NewLabel("t"), "msg")
			}
		}()
	}
	wg.Wait()
	l.Flush()
	time.Sleep(10 * time.Millisecond)

	seen := map[uint64]bool{}
	for _, e := range sink.snapshot() {
		if seen[e.Sequence] {
			t.Fatalf("sequence %d observed twice", e.Sequence)
		}
		seen[e.Sequence] = true
	}
	if len(seen) != 200 {
		t.Fatalf("observed %d unique sequences, want 200", len(seen))
	}
}
