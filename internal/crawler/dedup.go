package crawler

import (
	"context"
	"sync"
)

type dedupState uint8

const (
	dedupSeen dedupState = iota + 1
	dedupFetched
)

// MemoryDedup is the in-process DedupStore for single-run sessions. All
// methods are safe for concurrent use; TryClaim holds the map lock for the
// whole check-and-set so exactly one caller wins a contended key.
type MemoryDedup struct {
	mu   sync.Mutex
	keys map[string]dedupState
}

// NewMemoryDedup returns an empty in-memory dedup index.
func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{keys: make(map[string]dedupState)}
}

// TryClaim marks key as seen and returns true only if it was previously
// unseen.
func (d *MemoryDedup) TryClaim(_ context.Context, key string, _ int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.keys[key]; ok {
		return false, nil
	}
	d.keys[key] = dedupSeen
	return true, nil
}

// MarkFetched transitions key to its terminal fetched state.
func (d *MemoryDedup) MarkFetched(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = dedupFetched
	return nil
}

// IsFetched reports whether key reached the fetched state.
func (d *MemoryDedup) IsFetched(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key] == dedupFetched, nil
}

// Len returns the number of claimed keys.
func (d *MemoryDedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

// Close is a no-op for the in-memory store.
func (d *MemoryDedup) Close() error { return nil }
