package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func pushTask(t *testing.T, f *Frontier, host, url string, priority int) {
	t.Helper()
	if err := f.Push(&Task{Key: url, URL: url, Host: host, Priority: priority}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
}

func TestFrontierFIFOWithinHost(t *testing.T) {
	f := NewFrontier(nil)
	for i := 0; i < 5; i++ {
		pushTask(t, f, "a.test", fmt.Sprintf("http://a.test/%d", i), 0)
	}

	for i := 0; i < 5; i++ {
		task, ok := f.Pop()
		if !ok {
			t.Fatalf("Pop %d returned empty", i)
		}
		want := fmt.Sprintf("http://a.test/%d", i)
		if task.URL != want {
			t.Errorf("Pop %d = %q, want %q", i, task.URL, want)
		}
		f.Done()
	}
}

func TestFrontierPriorityBeatsFIFO(t *testing.T) {
	f := NewFrontier(nil)
	pushTask(t, f, "a.test", "http://a.test/low", 0)
	pushTask(t, f, "a.test", "http://a.test/high", 5)
	pushTask(t, f, "a.test", "http://a.test/also-high", 5)

	want := []string{"http://a.test/high", "http://a.test/also-high", "http://a.test/low"}
	for i, expected := range want {
		task, ok := f.Pop()
		if !ok {
			t.Fatalf("Pop %d returned empty", i)
		}
		if task.URL != expected {
			t.Errorf("Pop %d = %q, want %q", i, task.URL, expected)
		}
		f.Done()
	}
}

func TestFrontierRoundRobinAcrossHosts(t *testing.T) {
	f := NewFrontier(nil)
	for i := 0; i < 2; i++ {
		pushTask(t, f, "a.test", fmt.Sprintf("http://a.test/%d", i), 0)
		pushTask(t, f, "b.test", fmt.Sprintf("http://b.test/%d", i), 0)
	}

	var hosts []string
	for {
		task, ok := f.Pop()
		if !ok {
			break
		}
		hosts = append(hosts, task.Host)
		f.Done()
	}

	want := []string{"a.test", "b.test", "a.test", "b.test"}
	if len(hosts) != len(want) {
		t.Fatalf("popped %d tasks, want %d", len(hosts), len(want))
	}
	for i := range want {
		if hosts[i] != want[i] {
			t.Errorf("pop %d from host %q, want %q (rotation %v)", i, hosts[i], want[i], hosts)
		}
	}
}

func TestFrontierSkipsSaturatedHost(t *testing.T) {
	limiter := NewHostLimiter(0, 1)
	f := NewFrontier(limiter)
	pushTask(t, f, "a.test", "http://a.test/1", 0)
	pushTask(t, f, "b.test", "http://b.test/1", 0)

	permit, err := limiter.Acquire(context.Background(), "a.test")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// a.test is at capacity, so both pops must come from b.test then Empty.
	task, ok := f.Pop()
	if !ok || task.Host != "b.test" {
		t.Fatalf("expected b.test task, got %+v ok=%v", task, ok)
	}
	f.Done()

	if task, ok := f.Pop(); ok {
		t.Errorf("expected empty pop while a.test is saturated, got %q", task.URL)
	}

	limiter.Release(permit)
	task, ok = f.Pop()
	if !ok || task.Host != "a.test" {
		t.Fatalf("expected a.test task after release, got %+v ok=%v", task, ok)
	}
	f.Done()
}

func TestFrontierIdleTracksInFlight(t *testing.T) {
	f := NewFrontier(nil)
	if !f.Idle() {
		t.Error("empty frontier should be idle")
	}

	pushTask(t, f, "a.test", "http://a.test/", 0)
	if f.Idle() {
		t.Error("frontier with queued work is not idle")
	}

	if _, ok := f.Pop(); !ok {
		t.Fatal("Pop returned empty")
	}
	if f.Idle() {
		t.Error("frontier with an in-flight task is not idle")
	}

	f.Done()
	if !f.Idle() {
		t.Error("frontier should be idle after the task finished")
	}
}

func TestFrontierClose(t *testing.T) {
	f := NewFrontier(nil)
	pushTask(t, f, "a.test", "http://a.test/", 0)
	f.Close()

	err := f.Push(&Task{Key: "http://a.test/x", Host: "a.test"})
	if !errors.Is(err, ErrFrontierClosed) {
		t.Errorf("Push after Close = %v, want ErrFrontierClosed", err)
	}
	if _, ok := f.Pop(); ok {
		t.Error("Pop after Close should return empty")
	}
}
