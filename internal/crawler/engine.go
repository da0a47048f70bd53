// Package crawler implements the crawl engine: a per-host partitioned
// frontier, a politeness limiter, an atomic dedup store, a fixed worker pool,
// and an explicit retry state machine. Fetching, extraction, and persistence
// are pluggable collaborators.
package crawler

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/masato-kano/spinneret/internal/config"
	"github.com/masato-kano/spinneret/internal/urlnorm"
)

// Engine coordinates a crawl session: it seeds the frontier, runs the worker
// pool, and detects termination when the frontier is drained, nothing is in
// flight, and no retry is waiting to requeue.
type Engine struct {
	cfg       *config.Config
	frontier  *Frontier
	limiter   *HostLimiter
	dedup     DedupStore
	retries   *RetryManager
	fetcher   Fetcher
	extractor Extractor
	sink      Sink
	robots    *RobotsGate

	include      []*regexp.Regexp
	exclude      []*regexp.Regexp
	allowedHosts map[string]struct{}

	stats   CrawlStats
	statsMu sync.RWMutex

	ctx         context.Context
	cancel      context.CancelFunc
	cancelMu    sync.Mutex
	stopped     bool
	fetchCtx    context.Context
	fetchCancel context.CancelFunc
	drained     chan struct{}
	drainedOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcher replaces the default HTTP fetcher.
func WithFetcher(f Fetcher) Option { return func(e *Engine) { e.fetcher = f } }

// WithExtractor replaces the default HTML extractor.
func WithExtractor(x Extractor) Option { return func(e *Engine) { e.extractor = x } }

// WithSink replaces the default logging sink.
func WithSink(s Sink) Option { return func(e *Engine) { e.sink = s } }

// WithDedup replaces the default in-memory dedup store.
func WithDedup(d DedupStore) Option { return func(e *Engine) { e.dedup = d } }

// New creates an engine from cfg. Collaborators not supplied via options get
// the package defaults: HTTPFetcher, HTMLExtractor, LogSink, MemoryDedup.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	limiter := NewHostLimiter(cfg.RequestDelay, cfg.HostParallelism)

	e := &Engine{
		cfg:          cfg,
		limiter:      limiter,
		frontier:     NewFrontier(limiter),
		allowedHosts: make(map[string]struct{}),
		drained:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.fetcher == nil {
		hf := NewHTTPFetcher(cfg.UserAgent, cfg.RequestTimeout)
		if username, password := cfg.BasicAuthCredentials(); username != "" && password != "" {
			hf.SetBasicAuth(username, password)
		} else if token := cfg.BearerToken(); token != "" {
			hf.SetBearerAuth(token)
		}
		e.fetcher = hf
	}
	if e.extractor == nil {
		e.extractor = NewHTMLExtractor()
	}
	if e.sink == nil {
		e.sink = NewLogSink()
	}
	if e.dedup == nil {
		e.dedup = NewMemoryDedup()
	}

	for _, pattern := range cfg.IncludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		e.include = append(e.include, re)
	}
	for _, pattern := range cfg.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		e.exclude = append(e.exclude, re)
	}

	e.retries = NewRetryManager(RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      0.2,
	}, e.requeue)
	e.robots = NewRobotsGate(e.fetcher, cfg.UserAgent, cfg.IgnoreRobots)

	return e, nil
}

// Resume pushes previously claimed but unfetched tasks back into the
// frontier, for sessions restored from a persistent dedup index. Call before
// Run.
func (e *Engine) Resume(tasks []*Task) int {
	restored := 0
	for _, t := range tasks {
		if t.Host == "" {
			t.Host = urlnorm.Host(t.Key)
		}
		if t.URL == "" {
			t.URL = t.Key
		}
		t.EnqueuedAt = time.Now()
		if err := e.frontier.Push(t); err != nil {
			break
		}
		e.noteHost(t.Host)
		e.incEnqueued()
		restored++
	}
	return restored
}

// Run seeds the frontier and blocks until the crawl drains or ctx is
// cancelled. In-flight fetches get a grace period after cancellation before
// they are aborted.
func (e *Engine) Run(ctx context.Context, seeds []string) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancelMu.Lock()
	e.ctx, e.cancel = runCtx, cancel
	stopped := e.stopped
	e.cancelMu.Unlock()
	if stopped {
		cancel()
	}
	defer cancel()

	// Fetches run on a separate context so cancellation lets them drain
	// until the grace deadline.
	e.fetchCtx, e.fetchCancel = context.WithCancel(context.Background())
	defer e.fetchCancel()
	go func() {
		select {
		case <-e.ctx.Done():
			grace := e.cfg.ShutdownGrace
			if grace <= 0 {
				e.fetchCancel()
				return
			}
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-timer.C:
				e.fetchCancel()
			case <-e.drained:
			}
		case <-e.drained:
		}
	}()

	e.statsMu.Lock()
	e.stats.StartTime = time.Now()
	e.statsMu.Unlock()

	seeded := 0
	for _, seed := range seeds {
		if key, err := urlnorm.Normalize(seed, ""); err == nil {
			e.noteHost(urlnorm.Host(key))
		}
		if e.enqueue(seed, "", 0) {
			seeded++
		}
	}
	slog.Info("crawl started",
		"seeds", seeded, "workers", e.cfg.Concurrency, "queued", e.frontier.Len())

	g := new(errgroup.Group)
	for i := 0; i < e.cfg.Concurrency; i++ {
		id := i
		g.Go(func() error {
			e.worker(id)
			return nil
		})
	}
	g.Go(func() error {
		e.reportStats()
		return nil
	})

	_ = g.Wait()

	e.frontier.Close()
	e.retries.Stop()
	e.markDrained()

	stats := e.Stats()
	slog.Info("crawl finished",
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"abandoned", stats.Abandoned,
		"duration", stats.Duration)

	return e.ctx.Err()
}

// Stop cancels the crawl. Safe to call from any goroutine, including before
// Run has started.
func (e *Engine) Stop() {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
}

// Stats returns a snapshot of the session counters, safe to call at any time.
func (e *Engine) Stats() CrawlStats {
	e.statsMu.RLock()
	stats := e.stats
	e.statsMu.RUnlock()

	stats.InFlight = int64(e.frontier.InFlight())
	if !stats.StartTime.IsZero() {
		stats.Duration = time.Since(stats.StartTime)
	}
	return stats
}

// worker pulls eligible tasks until the crawl is cancelled or drained.
func (e *Engine) worker(id int) {
	slog.Debug("worker started", "worker_id", id)
	defer slog.Debug("worker stopped", "worker_id", id)

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.drained:
			return
		default:
		}

		task, ok := e.frontier.Pop()
		if !ok {
			if e.isDrained() {
				e.markDrained()
				return
			}
			e.idleWait()
			continue
		}

		e.process(id, task)
	}
}

// isDrained is the termination predicate: no queued task, no in-flight task,
// and no scheduled retry pending a requeue.
func (e *Engine) isDrained() bool {
	return e.frontier.Idle() && e.retries.ScheduledCount() == 0
}

func (e *Engine) markDrained() {
	e.drainedOnce.Do(func() { close(e.drained) })
}

func (e *Engine) idleWait() {
	timer := time.NewTimer(defaultPollInterval)
	defer timer.Stop()
	select {
	case <-e.ctx.Done():
	case <-timer.C:
	}
}

// process runs one fetch attempt for task end to end.
func (e *Engine) process(id int, task *Task) {
	defer e.frontier.Done()

	if !e.robots.Allowed(e.fetchCtx, task.URL) {
		slog.Info("disallowed by robots.txt", "worker_id", id, "url", task.URL)
		e.abandon(task, KindRobots)
		return
	}
	if delay := e.robots.CrawlDelay(task.Host); delay > 0 {
		e.limiter.SetHostInterval(task.Host, delay)
	}

	permit, err := e.limiter.Acquire(e.ctx, task.Host)
	if err != nil {
		// Cancelled while waiting for a slot; shutdown path.
		return
	}

	res, err := e.fetcher.Fetch(e.fetchCtx, task.URL)
	e.limiter.Release(permit)

	if err != nil {
		e.handleFailure(id, task, AsFetchError(task.URL, err))
		return
	}
	e.handleSuccess(id, task, res)
}

func (e *Engine) handleFailure(id int, task *Task, ferr *FetchError) {
	e.incFailed()
	outcome := e.retries.OnFailure(task, ferr.Kind, ferr.RetryAfter)
	if outcome == OutcomeAbandoned {
		e.abandon(task, ferr.Kind)
		return
	}
	slog.Debug("retry scheduled",
		"worker_id", id, "url", task.URL, "kind", string(ferr.Kind), "attempts", task.Attempts)
}

func (e *Engine) handleSuccess(id int, task *Task, res *FetchResult) {
	if err := e.dedup.MarkFetched(e.fetchCtx, task.Key); err != nil {
		// Losing the dedup store voids the at-most-once guarantee; halt
		// rather than crawl with undefined semantics.
		slog.Error("dedup store unreachable, halting", "error", err)
		e.cancel()
		return
	}
	e.retries.OnSuccess(task.Key)
	e.incFetched()

	records, links, err := e.extractor.Extract(res)
	if err != nil {
		// Page stays fetched with zero records; extraction is never retried
		// as a fetch failure.
		slog.Warn("extraction failed", "worker_id", id, "url", task.URL, "error", err)
	}

	if len(records) > 0 {
		if err := e.sink.Persist(e.fetchCtx, records); err != nil {
			slog.Error("persist failed", "worker_id", id, "url", task.URL, "error", err)
		}
	}

	if e.cfg.MaxDepth == 0 || task.Depth < e.cfg.MaxDepth {
		for _, link := range links {
			e.enqueue(link, res.FinalURL, task.Depth+1)
		}
	}

	slog.Info("fetched", "worker_id", id, "url", task.URL,
		"status", res.StatusCode, "links", len(links), "depth", task.Depth)

	if e.cfg.Limit > 0 && e.fetchedCount() >= int64(e.cfg.Limit) {
		slog.Info("page limit reached", "limit", e.cfg.Limit)
		e.cancel()
	}
}

// enqueue normalizes, filters, claims, and pushes one discovered URL.
// Returns true when the URL was admitted to the frontier.
func (e *Engine) enqueue(raw, base string, depth int) bool {
	key, err := urlnorm.Normalize(raw, base)
	if err != nil {
		slog.Debug("dropping URL", "url", raw, "error", err)
		return false
	}
	if !e.urlAllowed(key) {
		return false
	}

	claimed, err := e.dedup.TryClaim(e.fetchCtx, key, depth)
	if err != nil {
		slog.Error("dedup store unreachable, halting", "error", err)
		e.cancel()
		return false
	}
	if !claimed {
		return false
	}

	task := &Task{
		Key:        key,
		URL:        key,
		Host:       urlnorm.Host(key),
		Depth:      depth,
		EnqueuedAt: time.Now(),
	}
	if err := e.frontier.Push(task); err != nil {
		return false
	}
	e.incEnqueued()
	return true
}

// noteHost records a host as crawlable when external hosts are off.
func (e *Engine) noteHost(host string) {
	if host == "" {
		return
	}
	e.statsMu.Lock()
	e.allowedHosts[host] = struct{}{}
	e.statsMu.Unlock()
}

// urlAllowed applies the same-host restriction and include/exclude patterns
// to an already-normalized key.
func (e *Engine) urlAllowed(key string) bool {
	if !e.cfg.FollowExternalHosts {
		host := urlnorm.Host(key)
		e.statsMu.RLock()
		_, ok := e.allowedHosts[host]
		e.statsMu.RUnlock()
		if !ok {
			return false
		}
	}

	if len(e.include) > 0 {
		matched := false
		for _, re := range e.include {
			if re.MatchString(key) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range e.exclude {
		if re.MatchString(key) {
			return false
		}
	}
	return true
}

// abandon finalizes a task as permanently failed and reports it.
func (e *Engine) abandon(task *Task, kind ErrorKind) {
	e.incAbandoned()
	report := AbandonedTask{
		Key:        task.Key,
		URL:        task.URL,
		Kind:       kind,
		Attempts:   task.Attempts,
		OccurredAt: time.Now().UTC(),
	}
	if err := e.sink.RecordAbandoned(e.fetchCtx, report); err != nil {
		slog.Error("failed to record abandoned task", "url", task.URL, "error", err)
	}
	slog.Warn("task abandoned", "url", task.URL, "kind", string(kind), "attempts", task.Attempts)
}

// requeue is the retry manager's path back into the frontier.
func (e *Engine) requeue(task *Task) {
	task.EnqueuedAt = time.Now()
	if err := e.frontier.Push(task); err != nil {
		// Shutdown already closed the frontier.
		return
	}
}

// reportStats logs progress until the crawl ends.
func (e *Engine) reportStats() {
	interval := e.cfg.StatsInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.drained:
			return
		case <-ticker.C:
			stats := e.Stats()
			slog.Info("crawl progress",
				"enqueued", stats.Enqueued,
				"fetched", stats.Fetched,
				"failed", stats.Failed,
				"abandoned", stats.Abandoned,
				"in_flight", stats.InFlight,
				"queued", e.frontier.Len(),
				"scheduled_retries", e.retries.ScheduledCount(),
				"duration", stats.Duration)
		}
	}
}

func (e *Engine) incEnqueued() {
	e.statsMu.Lock()
	e.stats.Enqueued++
	e.statsMu.Unlock()
}

func (e *Engine) incFetched() {
	e.statsMu.Lock()
	e.stats.Fetched++
	e.statsMu.Unlock()
}

func (e *Engine) fetchedCount() int64 {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.stats.Fetched
}

func (e *Engine) incFailed() {
	e.statsMu.Lock()
	e.stats.Failed++
	e.statsMu.Unlock()
}

func (e *Engine) incAbandoned() {
	e.statsMu.Lock()
	e.stats.Abandoned++
	e.statsMu.Unlock()
}
