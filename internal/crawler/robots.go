package crawler

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsGate checks robots.txt before a fetch, caching the parsed ruleset per
// host for the session. Transport or parse failures fail open so an
// unreachable robots.txt never stalls a crawl; a 401/403 response disallows
// the whole host.
type RobotsGate struct {
	fetcher   Fetcher
	userAgent string
	disabled  bool

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsGate creates a gate that fetches robots.txt through fetcher.
// When disabled, Allowed always returns true.
func NewRobotsGate(fetcher Fetcher, userAgent string, disabled bool) *RobotsGate {
	return &RobotsGate{
		fetcher:   fetcher,
		userAgent: userAgent,
		disabled:  disabled,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether the gate's user agent may fetch rawURL.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	if g.disabled {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	data := g.data(ctx, u.Scheme, u.Host)
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	// TestAgent consults the whole ruleset, including the allow-all and
	// disallow-all verdicts derived from the fetch status code.
	return data.TestAgent(path, g.userAgent)
}

// CrawlDelay returns the robots.txt crawl-delay recorded for host, zero when
// none is known yet.
func (g *RobotsGate) CrawlDelay(host string) time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if data, ok := g.cache[host]; ok && data != nil {
		if group := data.FindGroup(g.userAgent); group != nil {
			return group.CrawlDelay
		}
	}
	return 0
}

// data returns the cached ruleset for host, fetching robots.txt on first
// sighting. A nil ruleset means "no restrictions".
func (g *RobotsGate) data(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	g.mu.RLock()
	data, ok := g.cache[host]
	g.mu.RUnlock()
	if ok {
		return data
	}

	data = g.fetchData(ctx, scheme, host)

	g.mu.Lock()
	// First writer wins so concurrent workers agree on the rules.
	if cached, ok := g.cache[host]; ok {
		data = cached
	} else {
		g.cache[host] = data
	}
	g.mu.Unlock()
	return data
}

func (g *RobotsGate) fetchData(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	robotsURL := scheme + "://" + host + "/robots.txt"

	res, err := g.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && fe.StatusCode > 0 {
			// 404 means everything is allowed, 401/403 means nothing is;
			// the library encodes that convention.
			data, derr := robotstxt.FromStatusAndBytes(fe.StatusCode, nil)
			if derr == nil {
				return data
			}
		}
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		return nil
	}
	return data
}
