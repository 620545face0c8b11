package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vamosnene/vamosnene/internal/annotate"
	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/debuglog"
	"github.com/vamosnene/vamosnene/internal/media"
	"github.com/vamosnene/vamosnene/internal/metrics"
	"github.com/vamosnene/vamosnene/internal/search"
	"github.com/vamosnene/vamosnene/internal/storage"
	"github.com/vamosnene/vamosnene/internal/validation"
)

const defaultMaxEntries = 30

// Store is the part of storage the ingestion pipeline writes to.
type Store interface {
	storage.SourceStore
	storage.ArticleStore
	storage.MetaStore
}

// SourceReport summarizes one source within a sync run.
type SourceReport struct {
	Code        string `json:"code"`
	Entries     int    `json:"entries"`
	Inserted    int    `json:"inserted"`
	Duplicates  int    `json:"duplicates"`
	Skipped     int    `json:"skipped"`
	NotModified bool   `json:"not_modified,omitempty"`
	Error       string `json:"error,omitempty"`
}

type SyncReport struct {
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Sources  []*SourceReport `json:"sources"`
}

// Inserted is the total of new articles across sources.
func (r *SyncReport) Inserted() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Inserted
	}
	return n
}

// Failed counts sources that errored.
func (r *SyncReport) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if s.Error != "" {
			n++
		}
	}
	return n
}

type Manager struct {
	store        Store
	fetcher      *Fetcher
	parser       *Parser
	extractor    *Extractor
	annotator    *annotate.Annotator
	languages    *annotate.LanguageDetector
	urlValidator *validation.URLValidator
	maxEntries   int
	workers      int
	clock        func() time.Time

	mu        sync.RWMutex
	listeners []search.UpdateListener
}

func NewManager(store Store, cfg *config.Config) *Manager {
	m := &Manager{
		store:        store,
		fetcher:      NewFetcher(cfg),
		parser:       NewParser(),
		extractor:    NewExtractor(cfg.News.SnippetLength, media.MustTypeDetector()),
		annotator:    annotate.New(),
		languages:    annotate.NewLanguageDetector(),
		urlValidator: validation.NewURLValidator(),
		maxEntries:   cfg.News.MaxEntries,
		workers:      cfg.News.Workers,
		clock:        time.Now,
	}
	if m.maxEntries <= 0 {
		m.maxEntries = defaultMaxEntries
	}
	if m.workers <= 0 {
		m.workers = 1
	}
	return m
}

// SetForceRefresh configures the manager to ignore ETag/Last-Modified headers
func (m *Manager) SetForceRefresh(force bool) {
	m.fetcher.SetIgnoreCache(force)
}

// SetPermissiveValidation enables permissive URL validation for development/testing
func (m *Manager) SetPermissiveValidation(permissive bool) {
	if permissive {
		m.urlValidator = validation.NewPermissiveURLValidator()
	} else {
		m.urlValidator = validation.NewURLValidator()
	}
}

func (m *Manager) SetClock(clock func() time.Time) {
	m.clock = clock
}

// SetLanguageDetector replaces the detector; nil keeps each source's
// configured language.
func (m *Manager) SetLanguageDetector(d *annotate.LanguageDetector) {
	m.languages = d
}

// AddListener registers l to receive newly inserted articles.
func (m *Manager) AddListener(l search.UpdateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SeedSources upserts the configured sources. Sources missing from the list
// are left alone.
func (m *Manager) SeedSources(ctx context.Context, sources []config.SourceConfig) error {
	for _, sc := range sources {
		if _, err := m.AddSource(ctx, sc); err != nil {
			return fmt.Errorf("seeding source %s: %w", sc.Code, err)
		}
	}
	return nil
}

// AddSource validates and upserts one source.
func (m *Manager) AddSource(ctx context.Context, sc config.SourceConfig) (*storage.Source, error) {
	if err := validation.SourceCode(sc.Code); err != nil {
		return nil, err
	}

	feedURL, err := m.urlValidator.ValidateAndNormalize(sc.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}

	siteURL := sc.SiteURL
	if siteURL != "" {
		if siteURL, err = m.urlValidator.ValidateAndNormalize(siteURL); err != nil {
			return nil, fmt.Errorf("invalid site URL: %w", err)
		}
	}

	name := sc.Name
	if name == "" {
		name = sc.Code
	}

	src := &storage.Source{
		Code:    sc.Code,
		Name:    name,
		SiteURL: siteURL,
		FeedURL: feedURL,
		Lang:    sc.Lang,
		Active:  !sc.Disabled,
	}
	if err := m.store.UpsertSource(ctx, src); err != nil {
		return nil, fmt.Errorf("saving source: %w", err)
	}
	return src, nil
}

// Sync runs one ingestion pass over every active source. A failing source
// is logged and reported; it never aborts the pass. The news sync metadata
// is written once all sources are done unless ctx was cancelled.
func (m *Manager) Sync(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{Started: m.clock()}

	sources, err := m.store.ListSources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	report.Sources = make([]*SourceReport, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, src := range sources {
		g.Go(func() error {
			report.Sources[i] = m.SyncSource(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		report.Finished = m.clock()
		return report, err
	}

	now := m.clock()
	report.Finished = now
	if err := m.store.SetMeta(ctx, storage.MetaNews, now.UTC().Format(time.RFC3339), now); err != nil {
		return report, fmt.Errorf("recording sync time: %w", err)
	}

	debuglog.WithFields(debuglog.Fields{
		"job":      storage.MetaNews,
		"sources":  len(sources),
		"inserted": report.Inserted(),
		"failed":   report.Failed(),
	}).Info("news sync finished")
	return report, nil
}

// SyncSource fetches and ingests a single source.
func (m *Manager) SyncSource(ctx context.Context, src *storage.Source) *SourceReport {
	rep := &SourceReport{Code: src.Code}
	logger := debuglog.WithFields(debuglog.Fields{"source": src.Code, "url": src.FeedURL})

	resp, err := m.fetcher.Fetch(ctx, src)
	if err != nil {
		metrics.FeedFetchesTotal.WithLabelValues(src.Code, metrics.OutcomeFetchError).Inc()
		logger.WithError(err).Warn("fetch failed")
		rep.Error = err.Error()
		return rep
	}

	if resp.NotModified {
		metrics.FeedFetchesTotal.WithLabelValues(src.Code, metrics.OutcomeNotModified).Inc()
		m.saveFetchState(ctx, src, resp)
		rep.NotModified = true
		return rep
	}

	hint := CharsetFromContentType(resp.ContentType)
	if hint == "" {
		hint = SniffCharset(resp.Body)
	}

	doc, err := m.parser.Parse(Decode(resp.Body, hint))
	if err != nil {
		metrics.FeedFetchesTotal.WithLabelValues(src.Code, metrics.OutcomeParseError).Inc()
		logger.WithError(err).Warn("parse failed")
		rep.Error = err.Error()
		return rep
	}
	metrics.FeedFetchesTotal.WithLabelValues(src.Code, metrics.OutcomeOK).Inc()
	m.saveFetchState(ctx, src, resp)

	entries := newestFirst(doc.Entries)
	if len(entries) > m.maxEntries {
		entries = entries[:m.maxEntries]
	}
	rep.Entries = len(entries)

	var inserted []*storage.Article
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}

		rec, ok := m.extractor.Extract(src.Code, src.Name, e)
		if !ok {
			rep.Skipped++
			logger.Debugf("skipping entry without title or link (guid %q)", e.GUID)
			continue
		}

		a := m.article(src, rec)
		added, err := m.store.InsertArticle(ctx, a)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			logger.WithError(err).Warnf("storing %q failed", rec.URL)
			continue
		}
		if !added {
			rep.Duplicates++
			continue
		}
		rep.Inserted++
		inserted = append(inserted, a)
	}

	if len(inserted) > 0 {
		metrics.ArticlesInsertedTotal.WithLabelValues(src.Code).Add(float64(len(inserted)))
		m.notify(inserted)
	}
	logger.WithFields(debuglog.Fields{
		"entries":  rep.Entries,
		"inserted": rep.Inserted,
	}).Debug("source synced")
	return rep
}

// saveFetchState records cache validators once a response has been
// accepted, so a feed that failed to parse is fetched in full next time.
func (m *Manager) saveFetchState(ctx context.Context, src *storage.Source, resp *Response) {
	etag, lastModified := resp.ETag, resp.LastModified
	if resp.NotModified {
		if etag == "" {
			etag = src.ETag
		}
		if lastModified == "" {
			lastModified = src.LastModified
		}
	}
	if err := m.store.UpdateFetchState(ctx, src.Code, etag, lastModified, m.clock()); err != nil {
		debuglog.WithFields(debuglog.Fields{"source": src.Code}).WithError(err).Warn("saving fetch state failed")
	}
}

func (m *Manager) article(src *storage.Source, rec *Record) *storage.Article {
	ann := m.annotator.Annotate(rec.Title, rec.Snippet, src.Name)

	lang := src.Lang
	if m.languages != nil {
		lang = m.languages.Detect(rec.Title+". "+rec.Snippet, src.Lang)
	}

	return &storage.Article{
		UID:        rec.UID,
		SourceCode: rec.SourceCode,
		Title:      rec.Title,
		URL:        rec.URL,
		Published:  rec.Published,
		Snippet:    rec.Snippet,
		Note:       ann.Note,
		Tags:       annotate.JoinTags(ann.Tags),
		ImageURL:   rec.ImageURL,
		Lang:       lang,
		CreatedAt:  m.clock(),
	}
}

func (m *Manager) notify(articles []*storage.Article) {
	m.mu.RLock()
	listeners := append([]search.UpdateListener(nil), m.listeners...)
	m.mu.RUnlock()

	for _, l := range listeners {
		l.OnArticlesInserted(articles)
	}
}

// newestFirst orders entries by publish time, undated entries last in feed
// order.
func newestFirst(entries []*Entry) []*Entry {
	out := append([]*Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := publishedAt(out[i]), publishedAt(out[j])
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.After(*pj)
		}
	})
	return out
}
