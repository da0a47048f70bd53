package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter enforces the per-host politeness bounds: a minimum interval
// between requests and a cap on concurrent in-flight requests. Host state is
// created lazily on first sighting and kept for the session. Acquire blocks
// only the calling worker; hosts never contend on each other's state.
type HostLimiter struct {
	mu       sync.RWMutex
	hosts    map[string]*hostBucket
	interval time.Duration
	parallel int
}

type hostBucket struct {
	limiter  *rate.Limiter
	slots    chan struct{}
	interval time.Duration
}

// Permit represents one granted in-flight slot for a host. Release exactly
// once per successful Acquire.
type Permit struct {
	host   string
	bucket *hostBucket
}

// Host returns the host this permit was granted for.
func (p *Permit) Host() string { return p.host }

// NewHostLimiter creates a limiter granting each host at most perHost
// concurrent requests spaced at least interval apart.
func NewHostLimiter(interval time.Duration, perHost int) *HostLimiter {
	if perHost <= 0 {
		perHost = 1
	}
	return &HostLimiter{
		hosts:    make(map[string]*hostBucket),
		interval: interval,
		parallel: perHost,
	}
}

// Acquire blocks until host has a free in-flight slot and its token bucket
// admits another request, or until ctx is cancelled.
func (l *HostLimiter) Acquire(ctx context.Context, host string) (*Permit, error) {
	b := l.bucket(host)

	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := b.limiter.Wait(ctx); err != nil {
		<-b.slots
		return nil, err
	}

	return &Permit{host: host, bucket: b}, nil
}

// Release frees the permit's in-flight slot.
func (l *HostLimiter) Release(p *Permit) {
	if p == nil || p.bucket == nil {
		return
	}
	<-p.bucket.slots
	p.bucket = nil
}

// AtCapacity reports whether host currently has no free in-flight slot.
// Advisory: the frontier uses it to skip saturated hosts without blocking.
func (l *HostLimiter) AtCapacity(host string) bool {
	l.mu.RLock()
	b, ok := l.hosts[host]
	l.mu.RUnlock()
	if !ok {
		return false
	}
	return len(b.slots) == cap(b.slots)
}

// SetHostInterval overrides the request interval for one host, e.g. from a
// robots.txt crawl-delay. A no-op when the interval is unchanged or shorter
// than the configured default.
func (l *HostLimiter) SetHostInterval(host string, interval time.Duration) {
	if interval <= l.interval {
		return
	}
	b := l.bucket(host)

	l.mu.Lock()
	defer l.mu.Unlock()
	if b.interval == interval {
		return
	}
	b.interval = interval
	b.limiter.SetLimit(rate.Every(interval))
}

// InFlight returns the number of requests currently holding a slot for host.
func (l *HostLimiter) InFlight(host string) int {
	l.mu.RLock()
	b, ok := l.hosts[host]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	return len(b.slots)
}

// bucket gets or lazily creates the state for a host.
func (l *HostLimiter) bucket(host string) *hostBucket {
	l.mu.RLock()
	b, ok := l.hosts[host]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Another worker may have created it between the two locks.
	if b, ok := l.hosts[host]; ok {
		return b
	}

	limit := rate.Limit(rate.Inf)
	if l.interval > 0 {
		limit = rate.Every(l.interval)
	}
	b = &hostBucket{
		limiter:  rate.NewLimiter(limit, 1),
		slots:    make(chan struct{}, l.parallel),
		interval: l.interval,
	}
	l.hosts[host] = b
	return b
}
