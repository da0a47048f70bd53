package crawler

import (
	"sync"
	"testing"
	"time"
)

func TestRetryPolicyDelayNonDecreasing(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: 0.2}

	prev := time.Duration(0)
	for attempts := 1; attempts <= 10; attempts++ {
		lower := p.BaseDelay << (attempts - 1)
		if lower > p.MaxDelay {
			lower = p.MaxDelay
		}
		for i := 0; i < 50; i++ {
			d := p.Delay(attempts)
			if d < lower {
				t.Fatalf("Delay(%d) = %v below base %v", attempts, d, lower)
			}
			if d > p.MaxDelay {
				t.Fatalf("Delay(%d) = %v above ceiling %v", attempts, d, p.MaxDelay)
			}
		}
		if lower < prev {
			t.Fatalf("backoff floor decreased: attempt %d floor %v after %v", attempts, lower, prev)
		}
		prev = lower
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 64, BaseDelay: time.Second, MaxDelay: 8 * time.Second, Jitter: 0.5}

	if d := p.Delay(5); d != p.MaxDelay {
		t.Errorf("Delay(5) = %v, want ceiling %v", d, p.MaxDelay)
	}
	// Large attempt counts must not overflow past the ceiling.
	if d := p.Delay(63); d != p.MaxDelay {
		t.Errorf("Delay(63) = %v, want ceiling %v", d, p.MaxDelay)
	}
}

func TestRetryManagerSchedulesTransient(t *testing.T) {
	requeued := make(chan *Task, 1)
	m := NewRetryManager(RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}, func(task *Task) {
		requeued <- task
	})
	defer m.Stop()

	task := &Task{Key: "http://a.test/", URL: "http://a.test/", Host: "a.test"}
	if out := m.OnFailure(task, KindTimeout, 0); out != OutcomeScheduled {
		t.Fatalf("OnFailure = %v, want OutcomeScheduled", out)
	}
	if task.Attempts != 1 {
		t.Errorf("task attempts = %d, want 1", task.Attempts)
	}
	if n := m.ScheduledCount(); n != 1 {
		t.Errorf("ScheduledCount = %d, want 1", n)
	}

	select {
	case got := <-requeued:
		if got.Key != task.Key {
			t.Errorf("requeued %q, want %q", got.Key, task.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduled task was never requeued")
	}

	// The count drops only after the requeue lands.
	deadline := time.Now().Add(time.Second)
	for m.ScheduledCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("ScheduledCount never returned to 0")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRetryManagerAbandonsPermanent(t *testing.T) {
	m := NewRetryManager(DefaultRetryPolicy(), func(*Task) {
		t.Error("permanent failure must not be requeued")
	})
	defer m.Stop()

	task := &Task{Key: "http://a.test/404", Host: "a.test"}
	if out := m.OnFailure(task, KindClientError, 0); out != OutcomeAbandoned {
		t.Fatalf("OnFailure = %v, want OutcomeAbandoned", out)
	}
	state, attempts, ok := m.State(task.Key)
	if !ok || state != StateAbandoned || attempts != 1 {
		t.Errorf("State = %v/%d/%v, want abandoned/1/true", state, attempts, ok)
	}
}

func TestRetryManagerExhaustsBudget(t *testing.T) {
	var mu sync.Mutex
	var requeues int
	var m *RetryManager
	m = NewRetryManager(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func(task *Task) {
		mu.Lock()
		requeues++
		mu.Unlock()
		m.OnFailure(task, KindServerError, 0)
	})
	defer m.Stop()

	task := &Task{Key: "http://a.test/flaky", Host: "a.test"}
	if out := m.OnFailure(task, KindServerError, 0); out != OutcomeScheduled {
		t.Fatalf("first failure = %v, want OutcomeScheduled", out)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		state, attempts, _ := m.State(task.Key)
		if state == StateAbandoned {
			if attempts != 3 {
				t.Errorf("abandoned after %d attempts, want 3", attempts)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never abandoned, state %v after %d attempts", state, attempts)
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if requeues != 2 {
		t.Errorf("requeued %d times, want 2", requeues)
	}
}

func TestRetryManagerHonorsRetryAfter(t *testing.T) {
	requeued := make(chan time.Time, 1)
	m := NewRetryManager(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, func(*Task) {
		requeued <- time.Now()
	})
	defer m.Stop()

	start := time.Now()
	retryAfter := 100 * time.Millisecond
	m.OnFailure(&Task{Key: "http://a.test/429", Host: "a.test"}, KindRateLimited, retryAfter)

	select {
	case at := <-requeued:
		if waited := at.Sub(start); waited < retryAfter {
			t.Errorf("requeued after %v, Retry-After demanded %v", waited, retryAfter)
		}
	case <-time.After(time.Second):
		t.Fatal("rate-limited task was never requeued")
	}
}

func TestRetryManagerSuccessClearsState(t *testing.T) {
	m := NewRetryManager(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, func(*Task) {
		t.Error("requeue fired after OnSuccess")
	})
	defer m.Stop()

	key := "http://a.test/slow"
	m.OnFailure(&Task{Key: key, Host: "a.test"}, KindTimeout, 0)
	m.OnSuccess(key)

	state, _, ok := m.State(key)
	if !ok || state != StateFetched {
		t.Errorf("state after success = %v/%v, want fetched/true", state, ok)
	}
	if n := m.ScheduledCount(); n != 0 {
		t.Errorf("ScheduledCount = %d, want 0", n)
	}
}

func TestRetryManagerStopCancelsTimers(t *testing.T) {
	m := NewRetryManager(RetryPolicy{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond, MaxDelay: time.Second}, func(*Task) {
		t.Error("requeue fired after Stop")
	})

	m.OnFailure(&Task{Key: "http://a.test/1", Host: "a.test"}, KindTimeout, 0)
	m.OnFailure(&Task{Key: "http://a.test/2", Host: "a.test"}, KindTimeout, 0)
	m.Stop()

	if n := m.ScheduledCount(); n != 0 {
		t.Errorf("ScheduledCount after Stop = %d, want 0", n)
	}
	// Give cancelled timers a chance to misfire.
	time.Sleep(60 * time.Millisecond)

	task := &Task{Key: "http://a.test/3", Host: "a.test"}
	if out := m.OnFailure(task, KindTimeout, 0); out != OutcomeAbandoned {
		t.Errorf("OnFailure after Stop = %v, want OutcomeAbandoned", out)
	}
}
