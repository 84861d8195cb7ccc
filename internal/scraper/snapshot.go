package scraper

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SnapshotBodyLimit caps Snapshot.Body, in characters.
const SnapshotBodyLimit = 3000

// Snapshot is the on-page content of one URL used for gap analysis.
type Snapshot struct {
	URL             string `json:"url"`
	Title           string `json:"title"`
	MetaDescription string `json:"meta_description"`
	H1              string `json:"h1"`
	H2              string `json:"h2"`
	Body            string `json:"body"`
}

// Empty reports whether no content was captured.
func (s Snapshot) Empty() bool {
	return s.Title == "" && s.MetaDescription == "" && s.H1 == "" && s.H2 == "" && s.Body == ""
}

// Text joins every field into one string for keyword extraction.
func (s Snapshot) Text() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{s.Title, s.MetaDescription, s.H1, s.H2, s.Body} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ParseSnapshot extracts a Snapshot from an HTML document. bodyLimit caps
// the visible body text in characters; zero or less means no cap.
func ParseSnapshot(pageURL string, html []byte, bodyLimit int) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse html: %w", err)
	}

	snap := Snapshot{
		URL:             pageURL,
		Title:           collapse(doc.Find("title").First().Text()),
		MetaDescription: collapse(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
		H1:              joinText(doc.Find("h1")),
		H2:              joinText(doc.Find("h2")),
	}

	doc.Find("script, style, noscript, template, svg").Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	snap.Body = truncate(collapse(body.Text()), bodyLimit)
	return snap, nil
}

func joinText(sel *goquery.Selection) string {
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := collapse(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
