package crawler

import (
	"container/heap"
	"sync"
)

// Frontier is the per-host partitioned work list. Push admits a task to its
// host queue; Pop selects the next eligible task round-robin across hosts,
// skipping hosts whose politeness limiter is at capacity so one saturated
// host cannot stall the others. Within a host, higher priority wins and ties
// are FIFO by enqueue order.
type Frontier struct {
	mu       sync.Mutex
	queues   map[string]*taskHeap
	order    []string
	cursor   int
	limiter  *HostLimiter
	closed   bool
	queued   int
	inFlight int
	seq      uint64
}

// NewFrontier creates a frontier that consults limiter when selecting hosts.
// A nil limiter disables the capacity check.
func NewFrontier(limiter *HostLimiter) *Frontier {
	return &Frontier{
		queues:  make(map[string]*taskHeap),
		limiter: limiter,
	}
}

// Push enqueues a task into its host queue. Fails with ErrFrontierClosed once
// shutdown began.
func (f *Frontier) Push(t *Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFrontierClosed
	}

	q, ok := f.queues[t.Host]
	if !ok {
		q = &taskHeap{}
		f.queues[t.Host] = q
		f.order = append(f.order, t.Host)
	}

	f.seq++
	t.seq = f.seq
	heap.Push(q, t)
	f.queued++
	return nil
}

// Pop returns the next eligible task, or (nil, false) when none is currently
// eligible — the caller decides whether that means "wait" or "drained". A
// popped task counts as in flight until Done is called.
func (f *Frontier) Pop() (*Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, false
	}

	n := len(f.order)
	for i := 0; i < n; i++ {
		idx := (f.cursor + i) % n
		host := f.order[idx]
		q := f.queues[host]
		if q.Len() == 0 {
			continue
		}
		if f.limiter != nil && f.limiter.AtCapacity(host) {
			continue
		}

		t := heap.Pop(q).(*Task)
		f.queued--
		f.inFlight++
		f.cursor = (idx + 1) % n
		return t, true
	}

	return nil, false
}

// Done marks one previously popped task as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
}

// Idle reports whether no task is queued and none is in flight. Both counts
// live under the same lock as Pop, so a task can never be invisible to Idle
// between being popped and being counted in flight.
func (f *Frontier) Idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued == 0 && f.inFlight == 0
}

// Len returns the number of queued tasks.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued
}

// InFlight returns the number of popped tasks not yet marked Done.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Close rejects all further pushes and pops. In-flight tasks finish normally.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// taskHeap orders tasks by priority (higher first), then enqueue order.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
