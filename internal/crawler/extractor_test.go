package crawler

import (
	"testing"
)

func TestHTMLExtractorExtract(t *testing.T) {
	x := NewHTMLExtractor()
	res := &FetchResult{
		URL:         "http://a.test/",
		FinalURL:    "http://a.test/home",
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body: []byte(`<html><head><title>Home</title>
			<meta name="description" content="front">
			</head><body><a href="/p1">p1</a><a href="/p2">p2</a></body></html>`),
	}

	records, links, err := x.Extract(res)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.URL != "http://a.test/home" {
		t.Errorf("record URL = %q, want the post-redirect URL", r.URL)
	}
	if r.Title != "Home" || r.MetaDesc != "front" {
		t.Errorf("record = %+v", r)
	}
	if r.ContentHash == "" {
		t.Error("content hash missing")
	}
	if len(links) != 2 || links[0] != "/p1" || links[1] != "/p2" {
		t.Errorf("links = %v", links)
	}
}

func TestHTMLExtractorNonHTML(t *testing.T) {
	x := NewHTMLExtractor()
	res := &FetchResult{
		URL:         "http://a.test/data.json",
		FinalURL:    "http://a.test/data.json",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"a":1}`),
	}

	records, links, err := x.Extract(res)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(records) != 1 || records[0].Title != "" {
		t.Errorf("records = %+v, want one bare record", records)
	}
	if len(links) != 0 {
		t.Errorf("links = %v, want none from non-HTML", links)
	}
}
