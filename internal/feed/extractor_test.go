package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func TestExtract_Fields(t *testing.T) {
	x := NewExtractor(0, nil)
	pub := time.Date(2026, 3, 8, 4, 30, 0, 0, time.FixedZone("ART", -3*3600))

	rec, ok := x.Extract("f1latam", "F1Latam", &Entry{
		Title:       "  <b>Colapinto</b> &amp; Alpine:\n  noveno �lugar ",
		Link:        "https://f1latam.test/nota",
		GUID:        "guid-1",
		Published:   ptr(pub),
		Description: `<p>Gran <strong>carrera</strong></p><script>track()</script><style>p{}</style><p>del argentino</p>`,
	})
	require.True(t, ok)
	assert.Equal(t, "guid-1", rec.UID)
	assert.Equal(t, "f1latam", rec.SourceCode)
	assert.Equal(t, "F1Latam", rec.SourceName)
	assert.Equal(t, "Colapinto & Alpine: noveno lugar", rec.Title)
	assert.Equal(t, "https://f1latam.test/nota", rec.URL)
	require.NotNil(t, rec.Published)
	assert.Equal(t, time.UTC, rec.Published.Location())
	assert.True(t, rec.Published.Equal(pub))
	assert.Equal(t, "Gran carrera del argentino", rec.Snippet)
}

func TestExtract_Skips(t *testing.T) {
	x := NewExtractor(0, nil)
	tests := []struct {
		name  string
		entry *Entry
	}{
		{"nil entry", nil},
		{"no title", &Entry{Link: "https://x.test/1"}},
		{"markup-only title", &Entry{Title: "<br/>", Link: "https://x.test/1"}},
		{"no link", &Entry{Title: "Sin enlace"}},
		{"blank guid", &Entry{Title: "Sin enlace", GUID: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := x.Extract("src", "Src", tt.entry)
			assert.False(t, ok)
		})
	}
}

func TestExtract_LinkAndUID(t *testing.T) {
	x := NewExtractor(0, nil)
	tests := []struct {
		name    string
		entry   *Entry
		wantURL string
		wantUID string
	}{
		{"plain link", &Entry{Title: "a", Link: "https://x.test/a", Links: []string{"https://x.test/other"}}, "https://x.test/a", "https://x.test/a"},
		{"first link", &Entry{Title: "a", Links: []string{"https://x.test/l1", "https://x.test/l2"}, GUID: "g"}, "https://x.test/l1", "g"},
		{"guid as link", &Entry{Title: "a", GUID: "https://x.test/g"}, "https://x.test/g", "https://x.test/g"},
		{"opaque guid", &Entry{Title: "a", GUID: "tag:x.test,2026:1"}, "tag:x.test,2026:1", "tag:x.test,2026:1"},
		{"numeric guid", &Entry{Title: "Colapinto suma puntos", GUID: "12345"}, "12345", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := x.Extract("src", "Src", tt.entry)
			if tt.wantURL == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantURL, rec.URL)
			assert.Equal(t, tt.wantUID, rec.UID)
		})
	}
}

func TestExtract_Published(t *testing.T) {
	x := NewExtractor(0, nil)
	upd := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec, ok := x.Extract("s", "S", &Entry{Title: "a", Link: "https://x.test/a", Updated: &upd})
	require.True(t, ok)
	require.NotNil(t, rec.Published)
	assert.True(t, rec.Published.Equal(upd))

	rec, ok = x.Extract("s", "S", &Entry{Title: "a", Link: "https://x.test/a", PublishedRaw: "ayer a la tarde"})
	require.True(t, ok)
	assert.Nil(t, rec.Published)
}

func TestExtract_Snippet(t *testing.T) {
	x := NewExtractor(10, nil)

	rec, ok := x.Extract("s", "S", &Entry{Title: "a", Link: "https://x.test/a", Content: "<p>Sólo contenido, sin descripción</p>"})
	require.True(t, ok)
	assert.Equal(t, "Sólo conte", rec.Snippet)
	assert.LessOrEqual(t, len([]rune(rec.Snippet)), 10)

	rec, ok = NewExtractor(0, nil).Extract("s", "S", &Entry{Title: "a", Link: "https://x.test/a", Description: strings.Repeat("ñ", 300)})
	require.True(t, ok)
	assert.Equal(t, DefaultSnippetLength, len([]rune(rec.Snippet)))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hola mundo", "Hola mundo"},
		{"markup", "<p>Hola</p> mundo", "Hola mundo"},
		{"escaped markup", "&lt;p&gt;Hola&lt;/p&gt; mundo", "Hola mundo"},
		{"escaped script", "&lt;script&gt;track()&lt;/script&gt;&lt;b&gt;Colapinto&lt;/b&gt; &amp;amp; Alpine", "Colapinto & Alpine"},
		{"numeric escapes", "&#60;em&#62;Pérez&#60;/em&#62; ganó", "Pérez ganó"},
		{"hex escapes", "&#x3C;em&#x3E;Pérez&#x3C;/em&#x3E; ganó", "Pérez ganó"},
		{"entities only", "Colapinto &amp; Alpine", "Colapinto & Alpine"},
		{"replacement glyphs", "noveno �lugar", "noveno lugar"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.in))
		})
	}
}

func TestExtract_EscapedMarkup(t *testing.T) {
	rec, ok := NewExtractor(0, nil).Extract("s", "S", &Entry{
		Title:       "&lt;b&gt;Colapinto&lt;/b&gt; suma puntos",
		Link:        "https://x.test/a",
		Description: "&lt;p&gt;El piloto &lt;strong&gt;argentino&lt;/strong&gt; terminó noveno.&lt;/p&gt;",
	})
	require.True(t, ok)
	assert.Equal(t, "Colapinto suma puntos", rec.Title)
	assert.Equal(t, "El piloto argentino terminó noveno.", rec.Snippet)
}

func TestExtract_Image(t *testing.T) {
	x := NewExtractor(0, nil)
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name: "typed image enclosure",
			entry: Entry{Enclosures: []Enclosure{
				{URL: "https://x.test/a.mp3", Type: "audio/mpeg"},
				{URL: "https://x.test/foto", Type: "image/jpeg"},
			}},
			want: "https://x.test/foto",
		},
		{
			name:  "untyped enclosure not obviously media",
			entry: Entry{Enclosures: []Enclosure{{URL: "https://x.test/asset?id=4"}}},
			want:  "https://x.test/asset?id=4",
		},
		{
			name: "untyped video enclosure falls through to media",
			entry: Entry{
				Enclosures: []Enclosure{{URL: "https://x.test/clip.mp4"}},
				Media:      []MediaRef{{URL: "https://x.test/thumb", Medium: "image"}},
			},
			want: "https://x.test/thumb",
		},
		{
			name: "markup image skips data uris",
			entry: Entry{
				Content: `<p><img src="data:image/gif;base64,R0lGOD"><img data-src="https://x.test/lazy.jpg"></p>`,
			},
			want: "https://x.test/lazy.jpg",
		},
		{
			name:  "description markup",
			entry: Entry{Description: `<img src="https://x.test/desc.png" alt="">Texto`},
			want:  "https://x.test/desc.png",
		},
		{
			name:  "escaped markup image",
			entry: Entry{Description: `&lt;p&gt;&lt;img src="https://x.test/escaped.jpg"&gt;&lt;/p&gt;Texto`},
			want:  "https://x.test/escaped.jpg",
		},
		{
			name:  "item image last",
			entry: Entry{Description: "sin imagen", Image: "https://x.test/item.jpg"},
			want:  "https://x.test/item.jpg",
		},
		{
			name:  "none",
			entry: Entry{Description: "sin imagen"},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.entry
			e.Title = "t"
			e.Link = "https://x.test/t"
			rec, ok := x.Extract("s", "S", &e)
			require.True(t, ok)
			assert.Equal(t, tt.want, rec.ImageURL)
		})
	}
}

func TestNewestFirst(t *testing.T) {
	d := func(day int) *time.Time { return ptr(time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)) }
	entries := []*Entry{
		{Title: "undated-1"},
		{Title: "old", Published: d(1)},
		{Title: "undated-2"},
		{Title: "new", Published: d(5)},
		{Title: "updated-only", Updated: d(3)},
	}

	var titles []string
	for _, e := range newestFirst(entries) {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"new", "updated-only", "old", "undated-1", "undated-2"}, titles)
	assert.Equal(t, "undated-1", entries[0].Title)
}
