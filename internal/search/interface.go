package search

import (
	"context"

	"github.com/vamosnene/vamosnene/internal/storage"
)

// Result is one ranked article hit.
type Result struct {
	ArticleID  int64   `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	SourceCode string  `json:"source_code"`
	Score      float64 `json:"score"`
	Matches    []Match `json:"-"`
}

// Match represents where text was found
type Match struct {
	Field  string // "title", "snippet", "tags", "url"
	Text   string
	Weight float64
}

// Searcher defines the relevance search used by the news API.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
}

// UpdateListener can be implemented by search engines that maintain
// an external index and want to be notified about new articles.
type UpdateListener interface {
	OnArticlesInserted(articles []*storage.Article)
}

// DocCounter is implemented by engines that keep an index and can report
// its size.
type DocCounter interface {
	DocCount() (int, error)
}
