package feed

import (
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/vamosnene/vamosnene/internal/media"
)

const DefaultSnippetLength = 220

// Record is the canonical form of one feed entry.
type Record struct {
	UID        string
	SourceCode string
	SourceName string
	Title      string
	URL        string
	Published  *time.Time
	Snippet    string
	ImageURL   string
}

// Extractor turns parsed entries into records.
type Extractor struct {
	snippetLength int
	detector      *media.TypeDetector
}

func NewExtractor(snippetLength int, detector *media.TypeDetector) *Extractor {
	if snippetLength <= 0 {
		snippetLength = DefaultSnippetLength
	}
	if detector == nil {
		detector = media.MustTypeDetector()
	}
	return &Extractor{snippetLength: snippetLength, detector: detector}
}

// Extract returns the record for e, or false when the entry has no usable
// title or link.
func (x *Extractor) Extract(sourceCode, sourceName string, e *Entry) (*Record, bool) {
	if e == nil {
		return nil, false
	}

	title := cleanText(e.Title)
	link := resolveLink(e)
	if title == "" || link == "" {
		return nil, false
	}

	uid := strings.TrimSpace(e.GUID)
	if uid == "" {
		uid = link
	}
	if uid == "" {
		uid = sourceCode + ":" + title
	}

	return &Record{
		UID:        uid,
		SourceCode: sourceCode,
		SourceName: sourceName,
		Title:      title,
		URL:        link,
		Published:  publishedAt(e),
		Snippet:    x.snippet(e),
		ImageURL:   x.image(e),
	}, true
}

func resolveLink(e *Entry) string {
	if e.Link != "" {
		return e.Link
	}
	if len(e.Links) > 0 {
		return e.Links[0]
	}
	return strings.TrimSpace(e.GUID)
}

func publishedAt(e *Entry) *time.Time {
	for _, t := range []*time.Time{e.Published, e.Updated} {
		if t != nil && !t.IsZero() {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

func (x *Extractor) snippet(e *Entry) string {
	raw := e.Description
	if strings.TrimSpace(raw) == "" {
		raw = e.Content
	}
	return truncateRunes(cleanText(raw), x.snippetLength)
}

func (x *Extractor) image(e *Entry) string {
	for _, enc := range e.Enclosures {
		if x.imageLike(enc.URL, enc.Type, "") {
			return enc.URL
		}
	}
	for _, m := range e.Media {
		if x.imageLike(m.URL, m.Type, m.Medium) {
			return m.URL
		}
	}
	for _, markup := range []string{e.Content, e.Description} {
		if u := firstImageInMarkup(unescapeMarkup(markup)); u != "" {
			return u
		}
	}
	return e.Image
}

// imageLike accepts declared images and untyped references that are not
// obviously another kind of media.
func (x *Extractor) imageLike(u, mimeType, medium string) bool {
	if u == "" {
		return false
	}
	if x.detector.IsImage(u, mimeType, medium) {
		return true
	}
	if mimeType != "" || medium != "" {
		return false
	}
	return x.detector.DetectType(u) == media.TypeUnknown
}

func firstImageInMarkup(markup string) string {
	if !strings.Contains(markup, "<img") && !strings.Contains(markup, "<IMG") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"src", "data-src"} {
			v, ok := s.Attr(attr)
			v = strings.TrimSpace(v)
			if !ok || v == "" || strings.HasPrefix(strings.ToLower(v), "data:") {
				continue
			}
			found = v
			return false
		}
		return true
	})
	return found
}

// unescapeMarkup decodes entity-escaped HTML such as "&lt;p&gt;" so the
// tags can be parsed. Plain markup is returned unchanged.
func unescapeMarkup(s string) string {
	lower := strings.ToLower(s)
	if !strings.Contains(lower, "&lt;") && !strings.Contains(lower, "&#60;") && !strings.Contains(lower, "&#x3c;") {
		return s
	}
	return html.UnescapeString(s)
}

// cleanText strips markup, decodes entities, removes replacement glyphs left
// by bad decoding and collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = unescapeMarkup(s)
	if strings.ContainsAny(s, "<>") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style, noscript").Remove()
			doc.Find("br, p, div, li, h1, h2, h3, h4, td").AfterHtml(" ")
			s = doc.Text()
		}
	} else {
		s = html.UnescapeString(s)
	}
	s = strings.ReplaceAll(s, string(utf8.RuneError), "")
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
