package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrFrontierClosed is returned by Frontier.Push after shutdown began.
var ErrFrontierClosed = errors.New("frontier closed")

// ErrorKind classifies fetch failures for the retry policy.
type ErrorKind string

const (
	// KindTimeout covers per-fetch deadline expiry.
	KindTimeout ErrorKind = "timeout"
	// KindConnection covers DNS, dial, reset, and read failures.
	KindConnection ErrorKind = "connection"
	// KindRateLimited is an HTTP 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindServerError is any HTTP 5xx.
	KindServerError ErrorKind = "server_error"
	// KindClientError is any HTTP 4xx other than 429.
	KindClientError ErrorKind = "client_error"
	// KindMalformed marks URLs the fetcher could not even request.
	KindMalformed ErrorKind = "malformed_url"
	// KindRobots marks URLs refused by robots.txt.
	KindRobots ErrorKind = "robots_disallowed"
)

// Transient reports whether a failure of this kind is worth retrying.
// Retrying a permanent failure burns the politeness allowance for nothing.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindTimeout, KindConnection, KindRateLimited, KindServerError:
		return true
	}
	return false
}

// FetchError is returned by a Fetcher for a failed attempt. Kind drives the
// retry decision; RetryAfter carries a server-requested delay when present.
type FetchError struct {
	URL        string
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AsFetchError coerces any error from a Fetcher into a *FetchError so the
// retry policy always has a classification to work with.
func AsFetchError(url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := KindConnection
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &FetchError{URL: url, Kind: kind, Err: err}
}
