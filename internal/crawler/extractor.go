package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/masato-kano/spinneret/internal/parser"
)

// HTMLExtractor is the default Extractor: it parses HTML payloads into one
// page record plus the anchors found in the markup. Non-HTML payloads yield a
// bare record with no links.
type HTMLExtractor struct{}

// NewHTMLExtractor returns the default extractor.
func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

// Extract implements Extractor.
func (x *HTMLExtractor) Extract(res *FetchResult) ([]PageRecord, []string, error) {
	record := PageRecord{
		URL:        res.FinalURL,
		StatusCode: res.StatusCode,
		FetchedAt:  time.Now().UTC(),
	}

	if !isHTML(res.ContentType) {
		return []PageRecord{record}, nil, nil
	}

	doc, err := parser.Parse(res.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", res.FinalURL, err)
	}

	record.Title = doc.Title
	record.MetaDesc = doc.MetaDesc
	record.MetaRobots = doc.MetaRobots
	record.CanonicalURL = doc.CanonicalURL
	record.ContentHash = doc.ContentHash

	return []PageRecord{record}, doc.Hrefs, nil
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(contentType, "text/html") ||
		strings.HasPrefix(contentType, "application/xhtml+xml")
}
