package feed

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// ErrMalformedFeed is returned when text is not a recognizable feed.
var ErrMalformedFeed = errors.New("malformed feed")

type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
	FormatJSON Format = "json"
)

// Document is a parsed feed with the wire format resolved away.
type Document struct {
	Format  Format
	Title   string
	Link    string
	Entries []*Entry
}

type Enclosure struct {
	URL    string
	Type   string
	Length string
}

// MediaRef is a media:content or media:thumbnail element.
type MediaRef struct {
	URL    string
	Type   string
	Medium string
}

// Entry holds every alternative field an item may carry.
type Entry struct {
	Title        string
	Link         string
	Links        []string
	GUID         string
	PublishedRaw string
	UpdatedRaw   string
	Published    *time.Time
	Updated      *time.Time
	Description  string
	Content      string
	Enclosures   []Enclosure
	Media        []MediaRef
	Image        string
}

var xmlDeclEncodingRe = regexp.MustCompile(`^(\s*<\?xml[^>]*?)\s+encoding\s*=\s*["'][^"']*["']`)

type Parser struct {
	parser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		parser: gofeed.NewParser(),
	}
}

// Parse parses already-decoded feed text.
func (p *Parser) Parse(text string) (*Document, error) {
	text = stripDeclaredEncoding(text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedFeed)
	}

	f, err := p.parser.ParseString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	doc := &Document{
		Format:  Format(f.FeedType),
		Title:   strings.TrimSpace(f.Title),
		Link:    f.Link,
		Entries: make([]*Entry, 0, len(f.Items)),
	}
	for _, item := range f.Items {
		if item == nil {
			continue
		}
		doc.Entries = append(doc.Entries, entryFromItem(item))
	}
	return doc, nil
}

// stripDeclaredEncoding removes the encoding attribute from the XML
// declaration; the text is already UTF-8.
func stripDeclaredEncoding(text string) string {
	return xmlDeclEncodingRe.ReplaceAllString(text, "$1")
}

func entryFromItem(item *gofeed.Item) *Entry {
	e := &Entry{
		Title:        item.Title,
		Link:         strings.TrimSpace(item.Link),
		GUID:         strings.TrimSpace(item.GUID),
		PublishedRaw: item.Published,
		UpdatedRaw:   item.Updated,
		Published:    item.PublishedParsed,
		Updated:      item.UpdatedParsed,
		Description:  item.Description,
		Content:      item.Content,
	}

	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			e.Links = append(e.Links, l)
		}
	}

	for _, enc := range item.Enclosures {
		if enc == nil || strings.TrimSpace(enc.URL) == "" {
			continue
		}
		e.Enclosures = append(e.Enclosures, Enclosure{
			URL:    strings.TrimSpace(enc.URL),
			Type:   enc.Type,
			Length: enc.Length,
		})
	}

	e.Media = mediaRefs(item.Extensions)

	if item.Image != nil {
		e.Image = strings.TrimSpace(item.Image.URL)
	}
	return e
}

// mediaRefs collects media:content then media:thumbnail URLs, including
// those nested in media:group.
func mediaRefs(exts ext.Extensions) []MediaRef {
	media, ok := exts["media"]
	if !ok {
		return nil
	}

	var refs []MediaRef
	collect := func(els map[string][]ext.Extension) {
		for _, name := range []string{"content", "thumbnail"} {
			for _, el := range els[name] {
				u := strings.TrimSpace(el.Attrs["url"])
				if u == "" {
					continue
				}
				ref := MediaRef{URL: u, Type: el.Attrs["type"], Medium: el.Attrs["medium"]}
				if name == "thumbnail" {
					ref.Medium = "image"
				}
				refs = append(refs, ref)
			}
		}
	}

	collect(media)
	for _, group := range media["group"] {
		collect(group.Children)
	}
	return refs
}
