package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/storage"
)

var testNow = time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)

func rssFeed(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test</title>` +
		strings.Join(items, "") + `</channel></rss>`
}

func rssItem(guid, title, pubDate, description string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>https://news.test/%s</link><guid>%s</guid><pubDate>%s</pubDate><description>%s</description></item>`,
		title, guid, guid, pubDate, description)
}

var threeItems = rssFeed(
	rssItem("a1", "Colapinto suma puntos en Melbourne", "Sun, 08 Mar 2026 08:00:00 GMT", "El piloto de Alpine terminó noveno."),
	rssItem("a2", "Sanción para Verstappen tras la carrera", "Sun, 08 Mar 2026 09:00:00 GMT", "Cinco segundos de penalización."),
	rssItem("a3", "Ferrari prepara mejoras", "Sat, 07 Mar 2026 09:00:00 GMT", "Novedades para Japón."),
)

type mockServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newMockServer(t *testing.T, handler http.HandlerFunc) *mockServer {
	t.Helper()
	m := &mockServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func serveBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		fmt.Fprint(w, body)
	}
}

func setupManager(t *testing.T, mutate ...func(*config.Config)) (*Manager, storage.Store) {
	t.Helper()
	store, err := storage.Open("bolt", filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.TestConfig()
	for _, fn := range mutate {
		fn(cfg)
	}
	m := NewManager(store, cfg)
	m.SetPermissiveValidation(true)
	m.SetLanguageDetector(nil)
	m.SetClock(func() time.Time { return testNow })
	return m, store
}

func addSource(t *testing.T, m *Manager, code, feedURL string) {
	t.Helper()
	_, err := m.AddSource(context.Background(), config.SourceConfig{
		Code: code, Name: strings.ToUpper(code), FeedURL: feedURL, Lang: "es",
	})
	require.NoError(t, err)
}

type recordingListener struct {
	mu       sync.Mutex
	articles []*storage.Article
}

func (l *recordingListener) OnArticlesInserted(articles []*storage.Article) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.articles = append(l.articles, articles...)
}

func TestSync_TwoSourcesOneFailing(t *testing.T) {
	good := newMockServer(t, serveBody(threeItems))
	bad := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	m, store := setupManager(t)
	addSource(t, m, "good", good.URL)
	addSource(t, m, "bad", bad.URL)
	listener := &recordingListener{}
	m.AddListener(listener)
	ctx := context.Background()

	report, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Inserted())
	assert.Equal(t, 1, report.Failed())
	require.Len(t, report.Sources, 2)

	byCode := map[string]*SourceReport{}
	for _, r := range report.Sources {
		byCode[r.Code] = r
	}
	assert.Equal(t, 3, byCode["good"].Entries)
	assert.Empty(t, byCode["good"].Error)
	assert.Contains(t, byCode["bad"].Error, "500")

	n, err := store.CountArticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, listener.articles, 3)

	meta, err := store.GetMeta(ctx, storage.MetaNews)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-08T12:00:00Z", meta.Value)

	page, err := store.ListArticles(ctx, storage.ArticleQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Articles, 3)

	first := page.Articles[0]
	assert.Equal(t, "Sanción para Verstappen tras la carrera", first.Title)
	assert.Equal(t, "a2", first.UID)
	assert.Equal(t, "https://news.test/a2", first.URL)
	assert.Equal(t, "GOOD", first.SourceName)
	assert.Equal(t, "es", first.Lang)
	assert.Equal(t, "verstappen,race,sanction", first.Tags)
	assert.Equal(t, "GOOD informa una sanción sobre Verstappen. Revisá la decisión de los comisarios y cómo cambia la grilla.", first.Note)
	assert.True(t, first.CreatedAt.Equal(testNow))

	src, err := store.GetSource(ctx, "bad")
	require.NoError(t, err)
	assert.True(t, src.LastFetched.IsZero())
}

func TestSync_Idempotent(t *testing.T) {
	srv := newMockServer(t, serveBody(threeItems))
	m, store := setupManager(t)
	addSource(t, m, "good", srv.URL)
	ctx := context.Background()

	_, err := m.Sync(ctx)
	require.NoError(t, err)

	report, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted())
	assert.Equal(t, 3, report.Sources[0].Duplicates)

	n, err := store.CountArticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSync_NotModified(t *testing.T) {
	srv := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, threeItems)
	})
	m, store := setupManager(t)
	addSource(t, m, "good", srv.URL)
	ctx := context.Background()

	_, err := m.Sync(ctx)
	require.NoError(t, err)
	src, err := store.GetSource(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, src.ETag)

	report, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, report.Sources[0].NotModified)
	assert.Equal(t, 0, report.Sources[0].Entries)

	src, err = store.GetSource(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, src.ETag)

	m.SetForceRefresh(true)
	report, err = m.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, report.Sources[0].NotModified)
	assert.Equal(t, 3, report.Sources[0].Duplicates)
	assert.Equal(t, int32(3), srv.hits.Load())
}

func TestSync_ParseErrorKeepsValidators(t *testing.T) {
	srv := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"broken"`)
		fmt.Fprint(w, "<html><body>maintenance</body></html>")
	})
	m, store := setupManager(t)
	addSource(t, m, "good", srv.URL)
	ctx := context.Background()

	report, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, report.Sources[0].Error, ErrMalformedFeed.Error())

	src, err := store.GetSource(ctx, "good")
	require.NoError(t, err)
	assert.Empty(t, src.ETag)

	_, err = store.GetMeta(ctx, storage.MetaNews)
	require.NoError(t, err)
}

func TestSync_SkipsAndCaps(t *testing.T) {
	body := rssFeed(
		rssItem("o1", "Vieja", "Mon, 02 Mar 2026 08:00:00 GMT", "uno"),
		`<item><title>Sin enlace</title><pubDate>Fri, 06 Mar 2026 08:00:00 GMT</pubDate></item>`,
		rssItem("n1", "Nueva", "Sat, 07 Mar 2026 08:00:00 GMT", "dos"),
		rssItem("m1", "Media", "Thu, 05 Mar 2026 08:00:00 GMT", "tres"),
	)
	srv := newMockServer(t, serveBody(body))
	m, store := setupManager(t, func(c *config.Config) { c.News.MaxEntries = 3 })
	addSource(t, m, "good", srv.URL)
	ctx := context.Background()

	report, err := m.Sync(ctx)
	require.NoError(t, err)
	rep := report.Sources[0]
	assert.Equal(t, 3, rep.Entries)
	assert.Equal(t, 2, rep.Inserted)
	assert.Equal(t, 1, rep.Skipped)

	page, err := store.ListArticles(ctx, storage.ArticleQuery{Limit: 10})
	require.NoError(t, err)
	var titles []string
	for _, a := range page.Articles {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, []string{"Nueva", "Media"}, titles)
}

func TestSync_Latin1Feed(t *testing.T) {
	body := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><rss version=\"2.0\"><channel><title>T</title>" +
		"<item><title>P\xe9rez gan\xf3 en Jap\xf3n</title><link>https://news.test/p</link>" +
		"<description>Cr\xf3nica</description></item></channel></rss>"
	srv := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(body))
	})
	m, store := setupManager(t)
	addSource(t, m, "latin", srv.URL)
	ctx := context.Background()

	_, err := m.Sync(ctx)
	require.NoError(t, err)

	page, err := store.ListArticles(ctx, storage.ArticleQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "Pérez ganó en Japón", page.Articles[0].Title)
	assert.Equal(t, "Crónica", page.Articles[0].Snippet)
	assert.Nil(t, page.Articles[0].Published)
}

func TestSync_CancelledSkipsMeta(t *testing.T) {
	srv := newMockServer(t, serveBody(threeItems))
	m, store := setupManager(t)
	addSource(t, m, "good", srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Sync(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.GetMeta(context.Background(), storage.MetaNews)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSync_NoSources(t *testing.T) {
	m, store := setupManager(t)
	report, err := m.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Sources)

	_, err = store.GetMeta(context.Background(), storage.MetaNews)
	require.NoError(t, err)
}

func TestSync_DisabledSourceIgnored(t *testing.T) {
	srv := newMockServer(t, serveBody(threeItems))
	m, _ := setupManager(t)
	_, err := m.AddSource(context.Background(), config.SourceConfig{Code: "off", FeedURL: srv.URL, Disabled: true})
	require.NoError(t, err)

	report, err := m.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Sources)
	assert.Equal(t, int32(0), srv.hits.Load())
}

func TestSync_ParallelWorkers(t *testing.T) {
	srv := newMockServer(t, serveBody(threeItems))
	m, store := setupManager(t, func(c *config.Config) { c.News.Workers = 4 })
	for i := range 4 {
		addSource(t, m, fmt.Sprintf("src-%d", i), srv.URL+fmt.Sprintf("/?s=%d", i))
	}

	report, err := m.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, report.Inserted())

	n, err := store.CountArticles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestAddSource(t *testing.T) {
	m, store := setupManager(t)
	ctx := context.Background()

	src, err := m.AddSource(ctx, config.SourceConfig{Code: "f1latam", FeedURL: "HTTPS://F1Latam.example.com/rss#top", Lang: "es"})
	require.NoError(t, err)
	assert.Equal(t, "https://f1latam.example.com/rss", src.FeedURL)
	assert.Equal(t, "f1latam", src.Name)
	assert.True(t, src.Active)

	_, err = m.AddSource(ctx, config.SourceConfig{Code: "Bad Code", FeedURL: "https://x.example.com/rss"})
	assert.Error(t, err)
	_, err = m.AddSource(ctx, config.SourceConfig{Code: "nofeed"})
	assert.Error(t, err)

	m.SetPermissiveValidation(false)
	_, err = m.AddSource(ctx, config.SourceConfig{Code: "local", FeedURL: "http://localhost:8080/rss"})
	assert.Error(t, err)

	sources, err := store.ListSources(ctx, false)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestSeedSources(t *testing.T) {
	m, store := setupManager(t)
	ctx := context.Background()

	require.NoError(t, m.SeedSources(ctx, config.DefaultSources()))
	require.NoError(t, m.SeedSources(ctx, config.DefaultSources()))

	sources, err := store.ListSources(ctx, true)
	require.NoError(t, err)
	assert.Len(t, sources, len(config.DefaultSources()))

	err = m.SeedSources(ctx, []config.SourceConfig{{Code: "bad code", FeedURL: "https://x.example.com"}})
	assert.Error(t, err)
}
