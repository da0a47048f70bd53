// Package urlnorm canonicalizes URLs into stable identity keys so that
// semantically equivalent URLs map to the same frontier entry.
package urlnorm

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Error reports a URL that cannot be turned into an identity key.
type Error struct {
	Raw    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot normalize %q: %s", e.Raw, e.Reason)
}

// Normalize resolves rawURL against base (base may be empty when rawURL is
// absolute) and returns the canonical identity key: lower-cased scheme and
// host, default port stripped, dot segments collapsed, query parameters
// sorted lexicographically by key (stable for equal keys), fragment removed.
// Only http and https URLs are accepted.
func Normalize(rawURL, base string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", &Error{Raw: rawURL, Reason: err.Error()}
	}

	u := ref
	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", &Error{Raw: base, Reason: "invalid base: " + err.Error()}
		}
		u = baseURL.ResolveReference(ref)
	}

	if !u.IsAbs() {
		return "", &Error{Raw: rawURL, Reason: "relative URL without base"}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &Error{Raw: rawURL, Reason: "scheme " + scheme + " not allowed"}
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Host)
	host = stripDefaultPort(host, scheme)
	if host == "" || strings.HasPrefix(host, ":") {
		return "", &Error{Raw: rawURL, Reason: "missing host"}
	}
	u.Host = host

	u.Path = removeDotSegments(u.Path)
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = sortQuery(u.RawQuery)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// Host returns the host component of an already-normalized key.
func Host(key string) string {
	u, err := url.Parse(key)
	if err != nil {
		return ""
	}
	return u.Host
}

func stripDefaultPort(host, scheme string) string {
	switch scheme {
	case "http":
		return strings.TrimSuffix(host, ":80")
	case "https":
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// removeDotSegments collapses "." and ".." path segments (RFC 3986 5.2.4).
// Duplicate slashes collapse as well; this is an identity key, not a
// byte-faithful rendering of the original path.
func removeDotSegments(p string) string {
	if p == "" {
		return p
	}

	dir := strings.HasSuffix(p, "/") ||
		strings.HasSuffix(p, "/.") || strings.HasSuffix(p, "/..")

	var out []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}

	cleaned := "/" + strings.Join(out, "/")
	if dir && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// sortQuery reorders raw query pairs lexicographically by key, dropping
// tracking parameters first: they never select a different resource and would
// split one page into many frontier entries. Surviving pairs are kept
// verbatim (no re-encoding) and equal keys preserve their original order.
func sortQuery(raw string) string {
	if raw == "" {
		return ""
	}

	var pairs []string
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if trackingParam(key) {
			continue
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return ""
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		ki, _, _ := strings.Cut(pairs[i], "=")
		kj, _, _ := strings.Cut(pairs[j], "=")
		return ki < kj
	})

	return strings.Join(pairs, "&")
}

// trackingParam reports whether a query key is an analytics tag (utm family,
// ad click identifiers).
func trackingParam(key string) bool {
	key = strings.ToLower(key)
	if key == "utm" || strings.HasPrefix(key, "utm_") {
		return true
	}
	switch key {
	case "gclid", "fbclid", "msclkid":
		return true
	}
	return false
}
