// Package parser extracts metadata and outgoing links from HTML payloads.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/net/html"
)

// Document holds what the crawler cares about in one HTML page. Hrefs are the
// raw anchor targets as written in the markup; resolving and filtering them
// is the caller's job.
type Document struct {
	Title        string
	MetaDesc     string
	MetaRobots   string
	CanonicalURL string
	ContentHash  string
	Hrefs        []string
}

// Parse walks the HTML tree once, collecting title, description/robots meta
// tags, the canonical link, anchor hrefs, and a content hash over the raw
// payload.
func Parse(content []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(content)
	doc := &Document{ContentHash: hex.EncodeToString(sum[:])}
	walk(root, doc)
	return doc, nil
}

func walk(n *html.Node, doc *Document) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if doc.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				doc.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			readMeta(n, doc)
		case "link":
			readCanonical(n, doc)
		case "a":
			if href := attr(n, "href"); keepHref(href) {
				doc.Hrefs = append(doc.Hrefs, href)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, doc)
	}
}

func readMeta(n *html.Node, doc *Document) {
	switch strings.ToLower(attr(n, "name")) {
	case "description":
		doc.MetaDesc = attr(n, "content")
	case "robots":
		doc.MetaRobots = attr(n, "content")
	}
}

func readCanonical(n *html.Node, doc *Document) {
	if strings.EqualFold(attr(n, "rel"), "canonical") {
		if href := attr(n, "href"); href != "" {
			doc.CanonicalURL = href
		}
	}
}

// keepHref drops fragments and non-navigational pseudo-URLs early; everything
// else is left to URL normalization downstream.
func keepHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
