package crawler

import "time"

// Task is one pending fetch. The frontier owns a task while it is queued;
// exactly one worker owns it for the duration of an attempt.
type Task struct {
	Key        string // normalized identity key, also the fetch URL
	URL        string
	Host       string
	Depth      int
	Priority   int
	Attempts   int
	EnqueuedAt time.Time

	seq uint64 // frontier insertion order, breaks ties between equal priorities
}

// PageRecord is the extracted result of one fetched page.
type PageRecord struct {
	URL          string
	StatusCode   int
	Title        string
	MetaDesc     string
	MetaRobots   string
	CanonicalURL string
	ContentHash  string
	FetchedAt    time.Time
}

// AbandonedTask describes a task that hit a permanent error or exhausted its
// retry budget, kept for diagnostics.
type AbandonedTask struct {
	Key        string
	URL        string
	Kind       ErrorKind
	Attempts   int
	OccurredAt time.Time
}

// CrawlStats are the session-wide aggregate counters. Failed counts failed
// attempts; Abandoned counts tasks given up for good.
type CrawlStats struct {
	Enqueued  int64
	Fetched   int64
	Failed    int64
	Abandoned int64
	InFlight  int64
	StartTime time.Time
	Duration  time.Duration
}
