// Package jobs implements the priority-and-dependency work scheduler (spec
// §4.6): a fixed worker pool draining a shared priority queue, with
// dependency gating before a candidate is run and broadcast wakeups in
// place of the reference design's two condition variables.
package jobs

import (
	"container/heap"
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"gecko/internal/hash"
	"gecko/internal/logging"
	"gecko/internal/notify"
	"gecko/internal/services"
)

type job struct {
	id       services.JobID
	fn       services.JobFunc
	priority services.JobPriority
	label    hash.Label
	deps     []services.JobID
	done     atomic.Bool
}

// priorityQueue is a container/heap.Interface ordering by priority
// (High first) and, within a priority tier, by submission order — the
// Go-idiomatic replacement for the reference design's comparator-sorted
// std::priority_queue.
type priorityQueue []*job

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].id < q[j].id
}
func (q priorityQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)        { *q = append(*q, x.(*job)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// System is the fixed worker pool implementing services.JobSystem.
type System struct {
	logger *slog.Logger

	mu       sync.Mutex
	queue    priorityQueue
	active   map[services.JobID]*job
	nextID   atomic.Uint64
	shutdown atomic.Bool

	jobAvailable *notify.Signal
	jobCompleted *notify.Signal

	workers int
	wg      sync.WaitGroup
}

// New starts a System with workerCount worker goroutines. workerCount <= 0
// defaults to runtime.GOMAXPROCS(0).
func New(workerCount int, logger *slog.Logger) *System {
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}
	s := &System{
		logger:       logging.Default(logger).With("component", "jobsystem"),
		active:       make(map[services.JobID]*job),
		jobAvailable: notify.NewSignal(),
		jobCompleted: notify.NewSignal(),
		workers:      workerCount,
	}
	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}
	return s
}

// WorkerCount returns the fixed number of worker goroutines.
func (s *System) WorkerCount() int { return s.workers }

// Submit enqueues fn with no dependencies. Returns services.InvalidJobID if
// the system is shutting down.
func (s *System) Submit(fn services.JobFunc, priority services.JobPriority, label hash.Label) services.JobID {
	return s.SubmitWithDeps(fn, nil, priority, label)
}

// SubmitWithDeps enqueues fn gated on deps: the worker pool will not run it
// until every dependency's completed flag is set. Returns
// services.InvalidJobID if the system is shutting down.
func (s *System) SubmitWithDeps(fn services.JobFunc, deps []services.JobID, priority services.JobPriority, label hash.Label) services.JobID {
	if s.shutdown.Load() {
		return services.InvalidJobID
	}

	id := services.JobID(s.nextID.Add(1))
	j := &job{id: id, fn: fn, priority: priority, label: label, deps: append([]services.JobID(nil), deps...)}

	s.mu.Lock()
	s.active[id] = j
	heap.Push(&s.queue, j)
	s.mu.Unlock()

	s.jobAvailable.Notify()
	return id
}

// IsComplete reports whether id's job has finished. An invalid (zero) id is
// complete by convention; an unknown id (never submitted, or long since
// garbage-collected from the active map) is also reported complete, since
// dependency gating treats "absent from the active map" as implying
// completion (spec §4.6).
func (s *System) IsComplete(id services.JobID) bool {
	if id == services.InvalidJobID {
		return true
	}
	s.mu.Lock()
	j, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return true
	}
	return j.done.Load()
}

// Wait blocks until id's job completes.
func (s *System) Wait(id services.JobID) {
	for {
		// Take the channel before checking, so a completion that lands
		// between the check and the receive still wakes this waiter.
		wake := s.jobCompleted.C()
		if s.IsComplete(id) {
			return
		}
		<-wake
	}
}

// WaitAll blocks until every id in ids completes.
func (s *System) WaitAll(ids []services.JobID) {
	for _, id := range ids {
		s.Wait(id)
	}
}

func (s *System) workerLoop() {
	defer s.wg.Done()
	for {
		wake := s.jobAvailable.C()
		j := s.popReady()
		if j == nil {
			if s.shutdown.Load() {
				return
			}
			<-wake
			continue
		}
		s.run(j)
	}
}

// popReady scans the queue for the highest-priority job whose dependencies
// are all satisfied, per the O(n^2) readiness scan spec §4.6 accepts for
// small n: any jobs skipped over are pushed back before returning.
func (s *System) popReady() *job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var skipped []*job
	var ready *job
	for s.queue.Len() > 0 {
		candidate := heap.Pop(&s.queue).(*job)
		if s.depsSatisfiedLocked(candidate) {
			ready = candidate
			break
		}
		skipped = append(skipped, candidate)
	}
	for _, j := range skipped {
		heap.Push(&s.queue, j)
	}
	return ready
}

func (s *System) depsSatisfiedLocked(j *job) bool {
	for _, dep := range j.deps {
		d, ok := s.active[dep]
		if !ok {
			continue // absent from the active map implies complete
		}
		if !d.done.Load() {
			return false
		}
	}
	return true
}

func (s *System) run(j *job) {
	defer s.complete(j)
	defer func() {
		if r := recover(); r != nil {
			if j.label.ID != loggerOwnLabel.ID {
				s.logger.Error("job panicked", "label", j.label.Name, "job_id", j.id, "panic", r)
			}
		}
	}()
	if err := j.fn(context.Background()); err != nil && j.label.ID != loggerOwnLabel.ID {
		s.logger.Warn("job returned error", "label", j.label.Name, "job_id", j.id, "error", err)
	}
}

// loggerOwnLabel matches the logger consumer job's own label so the job
// system never logs about the logger's own job, avoiding a feedback loop
// (spec §4.6 "unless the job's label is the logger itself").
var loggerOwnLabel = hash.NewLabel("logger.consumer")

func (s *System) complete(j *job) {
	j.done.Store(true)
	s.jobCompleted.Notify()
}

// Shutdown sets the shutdown flag, wakes every worker, and joins them.
// In-flight jobs finish, and each worker keeps running queued jobs whose
// dependencies are satisfied until it finds none; jobs still in the queue
// after the join are discarded.
func (s *System) Shutdown() {
	if !s.shutdown.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < s.workers; i++ {
		// jobAvailable.Notify wakes every blocked worker at once; repeated
		// notifies across the join loop cost nothing extra since each
		// worker re-checks the shutdown flag on every wakeup.
		s.jobAvailable.Notify()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.queue = nil
	s.active = make(map[services.JobID]*job)
	s.mu.Unlock()
}
