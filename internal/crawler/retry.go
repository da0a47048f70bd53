package crawler

import (
	"math/rand"
	"sync"
	"time"
)

// RetryState is the lifecycle position of a task that has failed at least
// once.
type RetryState uint8

const (
	// StatePending — failed, transition not yet decided.
	StatePending RetryState = iota
	// StateScheduled — waiting out its backoff before a requeue.
	StateScheduled
	// StateAbandoned — terminal: permanent error or retry budget exhausted.
	StateAbandoned
	// StateFetched — terminal: a later attempt succeeded.
	StateFetched
)

func (s RetryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateScheduled:
		return "scheduled"
	case StateAbandoned:
		return "abandoned"
	case StateFetched:
		return "fetched"
	}
	return "unknown"
}

// Outcome is the decision taken for one failed attempt.
type Outcome uint8

const (
	// OutcomeScheduled means the task will be requeued after its backoff.
	OutcomeScheduled Outcome = iota
	// OutcomeAbandoned means the task is finished for good.
	OutcomeAbandoned
)

// RetryPolicy governs backoff between failed fetch attempts.
type RetryPolicy struct {
	MaxAttempts int           // total attempts per task, including the first
	BaseDelay   time.Duration // delay after the first failure
	MaxDelay    time.Duration // backoff ceiling
	Jitter      float64       // extra random fraction of the delay, in [0,1)
}

// DefaultRetryPolicy matches the engine defaults: 4 attempts, 500ms base,
// 30s ceiling, 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Delay computes the backoff after the given number of failed attempts
// (attempts >= 1). The delay doubles per attempt up to MaxDelay; jitter adds
// at most one Jitter-fraction on top, so with Jitter < 1 successive delays
// never decrease.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			d = p.MaxDelay
			break
		}
	}
	if d >= p.MaxDelay {
		return p.MaxDelay
	}

	if p.Jitter > 0 {
		d += time.Duration(p.Jitter * rand.Float64() * float64(d))
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}

type retryEntry struct {
	state    RetryState
	attempts int
	nextAt   time.Time
	lastKind ErrorKind
}

// RetryManager tracks per-task failure state as an explicit state machine and
// requeues scheduled tasks once their backoff elapses. The requeue callback
// runs on a timer goroutine and must be safe to call until Stop returns.
type RetryManager struct {
	mu        sync.Mutex
	policy    RetryPolicy
	entries   map[string]*retryEntry
	timers    map[string]*time.Timer
	requeue   func(*Task)
	scheduled int
	stopped   bool
}

// NewRetryManager creates a manager using policy and the given requeue
// callback.
func NewRetryManager(policy RetryPolicy, requeue func(*Task)) *RetryManager {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &RetryManager{
		policy:  policy,
		entries: make(map[string]*retryEntry),
		timers:  make(map[string]*time.Timer),
		requeue: requeue,
	}
}

// OnFailure records one failed attempt for t and either schedules a delayed
// requeue or abandons the task. retryAfter, when positive, overrides a
// shorter computed backoff (a 429/503 Retry-After). The task's attempt count
// is updated in place.
func (m *RetryManager) OnFailure(t *Task, kind ErrorKind, retryAfter time.Duration) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[t.Key]
	if e == nil {
		e = &retryEntry{}
		m.entries[t.Key] = e
	}
	e.attempts++
	e.lastKind = kind
	t.Attempts = e.attempts

	if m.stopped || !kind.Transient() || e.attempts >= m.policy.MaxAttempts {
		e.state = StateAbandoned
		return OutcomeAbandoned
	}

	delay := m.policy.Delay(e.attempts)
	if retryAfter > delay {
		delay = retryAfter
	}

	e.state = StateScheduled
	e.nextAt = time.Now().Add(delay)
	m.scheduled++

	requeued := *t
	m.timers[t.Key] = time.AfterFunc(delay, func() {
		m.fire(&requeued)
	})
	return OutcomeScheduled
}

// fire moves a scheduled task back into the frontier. The push happens
// before the scheduled count drops so the crawl never looks drained while a
// requeue is mid-flight.
func (m *RetryManager) fire(t *Task) {
	m.mu.Lock()
	e := m.entries[t.Key]
	if m.stopped || e == nil || e.state != StateScheduled {
		m.mu.Unlock()
		return
	}
	e.state = StatePending
	delete(m.timers, t.Key)
	requeue := m.requeue
	m.mu.Unlock()

	requeue(t)

	m.mu.Lock()
	if !m.stopped {
		m.scheduled--
	}
	m.mu.Unlock()
}

// OnSuccess clears retry state for key after a successful fetch.
func (m *RetryManager) OnSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[key]
	if e == nil {
		return
	}
	if e.state == StateScheduled {
		m.scheduled--
	}
	e.state = StateFetched
	if timer := m.timers[key]; timer != nil {
		timer.Stop()
		delete(m.timers, key)
	}
}

// ScheduledCount returns how many tasks are waiting out a backoff or are
// being requeued right now.
func (m *RetryManager) ScheduledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduled
}

// State returns the recorded state and attempt count for key.
func (m *RetryManager) State(key string) (RetryState, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	if e == nil {
		return 0, 0, false
	}
	return e.state, e.attempts, true
}

// Stop cancels all pending requeues. A requeue already past its state check
// may still land in the frontier, which rejects it once closed.
func (m *RetryManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	for key, timer := range m.timers {
		timer.Stop()
		delete(m.timers, key)
	}
	m.scheduled = 0
}
