package storage

import (
	"strings"
	"time"
)

// Source is a news outlet whose feed is ingested.
type Source struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	SiteURL      string    `json:"site_url"`
	FeedURL      string    `json:"feed_url"`
	Lang         string    `json:"lang"`
	Active       bool      `json:"active"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	LastFetched  time.Time `json:"last_fetched,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Article is one ingested feed entry. It is never modified after insert.
type Article struct {
	ID         int64      `json:"id"`
	UID        string     `json:"uid"`
	SourceCode string     `json:"source_code"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Published  *time.Time `json:"published,omitempty"`
	Snippet    string     `json:"snippet"`
	Note       string     `json:"note"`
	Tags       string     `json:"tags"`
	ImageURL   string     `json:"image_url,omitempty"`
	Lang       string     `json:"lang"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SearchText is the lower-cased haystack used for substring filtering.
func (a *Article) SearchText() string {
	return strings.ToLower(a.Title + "\n" + a.Snippet + "\n" + a.Tags)
}

// ArticleView is an article joined with its source's display fields.
type ArticleView struct {
	Article
	SourceName string `json:"source_name"`
	SourceURL  string `json:"source_url"`
}

// ArticleQuery selects a page of articles. Every term must appear in the
// article's SearchText; terms are expected lower-cased.
type ArticleQuery struct {
	Terms  []string
	Limit  int
	Offset int
}

// ArticlePage is one page of articles plus totals computed across the
// whole matching set.
type ArticlePage struct {
	Articles []*ArticleView
	Total    int
	// MaxPublished is the newest publish time across all stored articles,
	// not only the matching ones.
	MaxPublished *time.Time
}

// SyncMeta records when a background job last completed.
type SyncMeta struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	MetaNews     = "news"
	MetaSchedule = "schedule"
	MetaWeather  = "weather"
	MetaAlerts   = "alerts"
)

// Event is one Grand Prix weekend.
type Event struct {
	Season      int       `json:"season"`
	Round       int       `json:"round"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	CircuitName string    `json:"circuit_name"`
	Locality    string    `json:"locality"`
	Country     string    `json:"country"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	CreatedAt   time.Time `json:"created_at"`
	Sessions    []Session `json:"sessions"`
}

// Session is a timed on-track session of an event.
type Session struct {
	Name    string    `json:"name"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// WeatherReport caches the raw forecast payload for one location.
type WeatherReport struct {
	City      string    `json:"city"`
	Country   string    `json:"country"`
	Payload   string    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscriber is a newsletter signup.
type Subscriber struct {
	Email     string    `json:"email"`
	Locale    string    `json:"locale"`
	CreatedAt time.Time `json:"created_at"`
}
