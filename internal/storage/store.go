package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = errors.New("not found")

type SourceStore interface {
	// UpsertSource creates the source or overwrites its display fields,
	// keeping creation time and fetch state.
	UpsertSource(ctx context.Context, src *Source) error
	GetSource(ctx context.Context, code string) (*Source, error)
	ListSources(ctx context.Context, activeOnly bool) ([]*Source, error)
	UpdateFetchState(ctx context.Context, code, etag, lastModified string, fetchedAt time.Time) error
}

type ArticleStore interface {
	// InsertArticle stores the article unless one with the same source code
	// and UID exists. It reports whether a row was written and assigns
	// a.ID when it was.
	InsertArticle(ctx context.Context, a *Article) (bool, error)
	GetArticle(ctx context.Context, id int64) (*ArticleView, error)
	ListArticles(ctx context.Context, q ArticleQuery) (*ArticlePage, error)
	// ForEachArticle visits every stored article in insertion order.
	ForEachArticle(ctx context.Context, fn func(*Article) error) error
	CountArticles(ctx context.Context) (int, error)
}

type MetaStore interface {
	SetMeta(ctx context.Context, key, value string, at time.Time) error
	GetMeta(ctx context.Context, key string) (*SyncMeta, error)
	ListMeta(ctx context.Context) ([]*SyncMeta, error)
}

type EventStore interface {
	// UpsertEvent writes the event keyed by slug and replaces its sessions.
	UpsertEvent(ctx context.Context, ev *Event) error
	GetEvent(ctx context.Context, slug string) (*Event, error)
	ListEvents(ctx context.Context, season int) ([]*Event, error)
}

type WeatherStore interface {
	SaveWeather(ctx context.Context, r *WeatherReport) error
	GetWeather(ctx context.Context, city, country string) (*WeatherReport, error)
}

type SubscriberStore interface {
	// AddSubscriber inserts unless the email exists and reports whether it did.
	AddSubscriber(ctx context.Context, s *Subscriber) (bool, error)
	CountSubscribers(ctx context.Context) (int, error)
}

// Store is everything the application persists.
type Store interface {
	SourceStore
	ArticleStore
	MetaStore
	EventStore
	WeatherStore
	SubscriberStore
	Close() error
}

// Open returns the backend named by driver, creating parent directories
// for the database file.
func Open(driver, path string, timeout time.Duration) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	switch driver {
	case "", "bolt":
		return NewBoltStore(path, timeout)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// matchesAll reports whether every term occurs in the lower-cased haystack.
func matchesAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if t == "" {
			continue
		}
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}
