// Package news serves paginated reads of ingested articles.
package news

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/vamosnene/vamosnene/internal/annotate"
	"github.com/vamosnene/vamosnene/internal/search"
	"github.com/vamosnene/vamosnene/internal/storage"
)

const (
	DefaultLimit = 12
	MaxLimit     = 50

	// allSentinel disables text filtering, as does an empty query.
	allSentinel = "all"
)

// Store is what the query service reads.
type Store interface {
	storage.ArticleStore
	storage.MetaStore
}

// Query selects a page of news.
type Query struct {
	Text   string
	Focus  bool
	Limit  int
	Offset int
}

// Item is one article as exposed to API clients.
type Item struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at"`
	Snippet     string     `json:"snippet"`
	Note        string     `json:"note"`
	Tags        []string   `json:"tags"`
	ImageURL    *string    `json:"image_url"`
	Lang        string     `json:"lang"`
	SourceCode  string     `json:"source_code"`
	SourceName  string     `json:"source_name"`
	SourceURL   string     `json:"source_url"`
}

type Page struct {
	Items          []*Item    `json:"items"`
	Total          int        `json:"total"`
	Limit          int        `json:"limit"`
	Offset         int        `json:"offset"`
	MaxPublishedAt *time.Time `json:"max_published_at"`
	LastSync       *time.Time `json:"last_sync"`
}

type Service struct {
	store     Store
	searcher  search.Searcher
	focusTerm string
}

// NewService returns a query service. focusTerm is the extra term applied
// when a query asks for focused results; searcher may be nil.
func NewService(store Store, searcher search.Searcher, focusTerm string) *Service {
	return &Service{
		store:     store,
		searcher:  searcher,
		focusTerm: strings.ToLower(strings.TrimSpace(focusTerm)),
	}
}

// List returns one page of articles, newest first. No match is an empty
// page, not an error.
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	limit, offset := clampLimit(q.Limit), max(q.Offset, 0)

	var terms []string
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" && text != allSentinel {
		terms = append(terms, text)
	}
	if q.Focus && s.focusTerm != "" {
		terms = append(terms, s.focusTerm)
	}

	res, err := s.store.ListArticles(ctx, storage.ArticleQuery{
		Terms:  lo.Uniq(terms),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}

	lastSync, err := s.lastSync(ctx)
	if err != nil {
		return nil, err
	}

	return &Page{
		Items:          lo.Map(res.Articles, func(v *storage.ArticleView, _ int) *Item { return toItem(v) }),
		Total:          res.Total,
		Limit:          limit,
		Offset:         offset,
		MaxPublishedAt: res.MaxPublished,
		LastSync:       lastSync,
	}, nil
}

// Search runs a relevance query and returns the matching articles in rank
// order.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*Item, error) {
	if s.searcher == nil {
		return nil, errors.New("search is not configured")
	}
	limit = clampLimit(limit)

	hits, err := s.searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}

	items := make([]*Item, 0, len(hits))
	for _, h := range hits {
		v, err := s.store.GetArticle(ctx, h.ArticleID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, toItem(v))
	}
	return items, nil
}

// IndexSize reports how many documents the search index holds. ok is false
// when the searcher scans the store instead of keeping an index.
func (s *Service) IndexSize() (n int, ok bool, err error) {
	counter, ok := s.searcher.(search.DocCounter)
	if !ok {
		return 0, false, nil
	}
	n, err = counter.DocCount()
	if err != nil {
		return 0, true, fmt.Errorf("counting indexed documents: %w", err)
	}
	return n, true, nil
}

func (s *Service) lastSync(ctx context.Context) (*time.Time, error) {
	meta, err := s.store.GetMeta(ctx, storage.MetaNews)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync metadata: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, meta.Value); err == nil {
		return &t, nil
	}
	t := meta.UpdatedAt
	return &t, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func toItem(v *storage.ArticleView) *Item {
	it := &Item{
		ID:          v.ID,
		Title:       v.Title,
		URL:         v.URL,
		PublishedAt: v.Published,
		Snippet:     v.Snippet,
		Note:        v.Note,
		Tags:        annotate.SplitTags(v.Tags),
		Lang:        v.Lang,
		SourceCode:  v.SourceCode,
		SourceName:  v.SourceName,
		SourceURL:   v.SourceURL,
	}
	if v.ImageURL != "" {
		img := v.ImageURL
		it.ImageURL = &img
	}
	return it
}
