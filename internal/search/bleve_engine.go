package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/vamosnene/vamosnene/internal/debuglog"
	"github.com/vamosnene/vamosnene/internal/storage"
)

// BleveEngine keeps a full-text index of stored articles.
type BleveEngine struct {
	idx bleve.Index
}

// NewBleveEngine creates or opens a Bleve index at indexPath and indexes
// every article already in the store.
func NewBleveEngine(ctx context.Context, store storage.ArticleStore, indexPath string) (*BleveEngine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	// Try open first
	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
	}

	be := &BleveEngine{idx: idx}
	if err := be.reindexAll(ctx, store); err != nil {
		idx.Close()
		return nil, err
	}
	return be, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true

	snippet := bleve.NewTextFieldMapping()
	snippet.Analyzer = standard.Name
	snippet.Store = false

	tags := bleve.NewTextFieldMapping()
	tags.Analyzer = standard.Name
	tags.Store = false

	url := bleve.NewTextFieldMapping()
	url.Analyzer = standard.Name
	url.Store = true

	source := bleve.NewKeywordFieldMapping()
	source.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("snippet", snippet)
	dm.AddFieldMappingsAt("tags", tags)
	dm.AddFieldMappingsAt("url", url)
	dm.AddFieldMappingsAt("source_code", source)

	im.DefaultMapping = dm
	return im
}

func articleDoc(a *storage.Article) map[string]any {
	return map[string]any{
		"title":       a.Title,
		"snippet":     a.Snippet,
		"tags":        strings.ReplaceAll(a.Tags, ",", " "),
		"url":         a.URL,
		"source_code": a.SourceCode,
	}
}

func (b *BleveEngine) reindexAll(ctx context.Context, store storage.ArticleStore) error {
	batch := b.idx.NewBatch()
	err := store.ForEachArticle(ctx, func(a *storage.Article) error {
		if err := batch.Index(docIDForArticle(a.ID), articleDoc(a)); err != nil {
			return err
		}
		if batch.Size() >= 500 {
			if err := b.idx.Batch(batch); err != nil {
				return err
			}
			batch.Reset()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reindexing articles: %w", err)
	}
	if err := b.idx.Batch(batch); err != nil {
		return fmt.Errorf("reindexing articles: %w", err)
	}
	return nil
}

func (b *BleveEngine) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// Tokenize input and build an OR of per-term matches across key fields with boosts
	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		qs = append(qs, fieldQueries(tok, "title", 4.0)...)
		qs = append(qs, fieldQueries(tok, "tags", 2.5)...)
		qs = append(qs, fieldQueries(tok, "snippet", 2.0)...)
		qs = append(qs, fieldQueries(tok, "url", 0.5)...)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	srch := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	srch.Fields = []string{"title", "url", "source_code"}
	res, err := b.idx.SearchInContext(ctx, srch)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, ok := articleIDFromDoc(h.ID)
		if !ok {
			continue
		}
		r := &Result{ArticleID: id, Score: h.Score}
		if t, ok := h.Fields["title"].(string); ok {
			r.Title = t
		}
		if u, ok := h.Fields["url"].(string); ok {
			r.URL = u
		}
		if s, ok := h.Fields["source_code"].(string); ok {
			r.SourceCode = s
		}
		out = append(out, r)
	}
	return out, nil
}

// fieldQueries matches tok as a word and as a prefix, the prefix slightly
// below the word.
func fieldQueries(tok, field string, boost float64) []bleveQuery.Query {
	m := bleve.NewMatchQuery(tok)
	m.SetField(field)
	m.SetBoost(boost)
	p := bleve.NewPrefixQuery(strings.ToLower(tok))
	p.SetField(field)
	p.SetBoost(boost * 0.85)
	return []bleveQuery.Query{m, p}
}

// OnArticlesInserted indexes freshly stored articles.
func (b *BleveEngine) OnArticlesInserted(articles []*storage.Article) {
	if len(articles) == 0 {
		return
	}
	batch := b.idx.NewBatch()
	for _, a := range articles {
		_ = batch.Index(docIDForArticle(a.ID), articleDoc(a))
	}
	if err := b.idx.Batch(batch); err != nil {
		debuglog.WithError(err).Warn("indexing new articles failed")
	}
}

// DocCount reports total documents in the index.
func (b *BleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *BleveEngine) Close() error {
	return b.idx.Close()
}

func docIDForArticle(id int64) string { return "article:" + strconv.FormatInt(id, 10) }

func articleIDFromDoc(docID string) (int64, bool) {
	raw, ok := strings.CutPrefix(docID, "article:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}
