package parser

import (
	"reflect"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Example Page  </title>
  <meta name="description" content="A page about examples">
  <meta name="ROBOTS" content="noindex, follow">
  <link rel="canonical" href="https://example.com/page">
</head>
<body>
  <a href="/relative">rel</a>
  <a href="https://example.com/absolute">abs</a>
  <a href="#section">frag</a>
  <a href="javascript:void(0)">js</a>
  <a href="mailto:someone@example.com">mail</a>
  <a href="tel:+1234567890">tel</a>
  <a href="data:text/plain,hi">data</a>
  <a>no href</a>
</body>
</html>`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(samplePage))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if doc.Title != "Example Page" {
		t.Errorf("Title = %q, want trimmed %q", doc.Title, "Example Page")
	}
	if doc.MetaDesc != "A page about examples" {
		t.Errorf("MetaDesc = %q", doc.MetaDesc)
	}
	if doc.MetaRobots != "noindex, follow" {
		t.Errorf("MetaRobots = %q", doc.MetaRobots)
	}
	if doc.CanonicalURL != "https://example.com/page" {
		t.Errorf("CanonicalURL = %q", doc.CanonicalURL)
	}

	want := []string{"/relative", "https://example.com/absolute"}
	if !reflect.DeepEqual(doc.Hrefs, want) {
		t.Errorf("Hrefs = %v, want %v", doc.Hrefs, want)
	}
}

func TestParseContentHashStable(t *testing.T) {
	a, err := Parse([]byte(samplePage))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	b, err := Parse([]byte(samplePage))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if a.ContentHash == "" || a.ContentHash != b.ContentHash {
		t.Errorf("hash not stable: %q vs %q", a.ContentHash, b.ContentHash)
	}

	c, err := Parse([]byte(samplePage + " "))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.ContentHash == a.ContentHash {
		t.Error("different payloads produced the same hash")
	}
}

func TestParseMalformedHTML(t *testing.T) {
	// html.Parse repairs broken markup rather than failing.
	doc, err := Parse([]byte(`<html><body><a href="/x">unclosed`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Hrefs) != 1 || doc.Hrefs[0] != "/x" {
		t.Errorf("Hrefs = %v, want [/x]", doc.Hrefs)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	doc, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Title != "" || len(doc.Hrefs) != 0 {
		t.Errorf("empty input produced %+v", doc)
	}
}

func TestParseFirstTitleWins(t *testing.T) {
	doc, err := Parse([]byte("<title>first</title><title>second</title>"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Title != "first" {
		t.Errorf("Title = %q, want first", doc.Title)
	}
}

func TestParseManyLinks(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 500; i++ {
		b.WriteString(`<a href="/page">x</a>`)
	}
	b.WriteString("</body></html>")

	doc, err := Parse([]byte(b.String()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	// Duplicates are kept; dedup happens at admission, not extraction.
	if len(doc.Hrefs) != 500 {
		t.Errorf("Hrefs length = %d, want 500", len(doc.Hrefs))
	}
}
