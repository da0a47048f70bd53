package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// HTTPFetcher is the default Fetcher, backed by net/http. Each Fetch applies
// the configured per-request timeout on top of the caller's context.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	timeout     time.Duration
	authType    string
	username    string
	password    string
	bearerToken string
}

// NewHTTPFetcher creates a fetcher with sane transport defaults for crawling
// many hosts.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPFetcher{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// SetBasicAuth configures basic authentication for all requests.
func (h *HTTPFetcher) SetBasicAuth(username, password string) {
	h.authType = "basic"
	h.username = username
	h.password = password
}

// SetBearerAuth configures bearer token authentication for all requests.
func (h *HTTPFetcher) SetBearerAuth(token string) {
	h.authType = "bearer"
	h.bearerToken = token
}

// Fetch performs a GET and returns the payload, or a *FetchError classifying
// the failure. Any 4xx/5xx status is a failure; the body is discarded.
func (h *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindMalformed, Err: err}
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	switch h.authType {
	case "basic":
		if h.username != "" && h.password != "" {
			req.SetBasicAuth(h.username, h.password)
		}
	case "bearer":
		if h.bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+h.bearerToken)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, statusError(rawURL, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}

	return &FetchResult{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Close releases idle connections.
func (h *HTTPFetcher) Close() {
	h.client.CloseIdleConnections()
}

func classifyTransportError(url string, err error) *FetchError {
	kind := KindConnection
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{URL: url, Kind: kind, Err: err}
}

func statusError(url string, resp *http.Response) *FetchError {
	fe := &FetchError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		fe.Kind = KindRateLimited
		fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		fe.Kind = KindServerError
		if resp.StatusCode == http.StatusServiceUnavailable {
			fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
	default:
		fe.Kind = KindClientError
	}
	return fe
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
