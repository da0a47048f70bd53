package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves one URL. Implementations must honor ctx cancellation and
// return a *FetchError for failed attempts so the retry policy can classify
// them. The engine depends only on this contract, not on any transport.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// FetchResult is a successful fetch payload.
type FetchResult struct {
	URL         string
	FinalURL    string // after redirects
	StatusCode  int
	ContentType string
	Body        []byte
}

// Extractor turns a fetched payload into persisted records and discovered
// links. Links may be relative; the engine normalizes them against FinalURL.
// An extraction error leaves the page counted as fetched with zero records.
type Extractor interface {
	Extract(res *FetchResult) (records []PageRecord, links []string, err error)
}

// Sink persists extracted records. Persist is invoked at most once per
// successfully fetched page, best-effort (no two-phase commit with the
// dedup store).
type Sink interface {
	Persist(ctx context.Context, records []PageRecord) error
	RecordAbandoned(ctx context.Context, t AbandonedTask) error
}

// DedupStore is the admission authority for the frontier. TryClaim is the
// single atomic check-and-set guaranteeing at-most-once enqueue per identity
// key for the session; depth is carried so persistent stores can restore
// unfinished work. MarkFetched is idempotent.
type DedupStore interface {
	TryClaim(ctx context.Context, key string, depth int) (bool, error)
	MarkFetched(ctx context.Context, key string) error
	IsFetched(ctx context.Context, key string) (bool, error)
	Close() error
}

// Session is the progress surface exposed to callers: safe to query at any
// time while a crawl runs.
type Session interface {
	Stats() CrawlStats
}

const defaultPollInterval = 20 * time.Millisecond
