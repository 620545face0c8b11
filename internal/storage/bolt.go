package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	sourcesBucket     = []byte("sources")
	articlesBucket    = []byte("articles")
	articleKeysBucket = []byte("article_keys")
	metaBucket        = []byte("metadata")
	eventsBucket      = []byte("events")
	weatherBucket     = []byte("weather")
	subscribersBucket = []byte("subscribers")
)

// BoltStore keeps every entity as JSON in its own bbolt bucket. Articles are
// keyed by their sequence number; article_keys maps source+uid to that
// sequence so duplicates are rejected inside the same write transaction.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(dbPath string, timeout time.Duration) (*BoltStore, error) {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			sourcesBucket, articlesBucket, articleKeysBucket, metaBucket,
			eventsBucket, weatherBucket, subscribersBucket,
		} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func articleKey(sourceCode, uid string) []byte {
	return []byte(sourceCode + "\x00" + uid)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// Sources

func (s *BoltStore) UpsertSource(ctx context.Context, src *Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sourcesBucket)
		now := time.Now().UTC()
		merged := *src
		if data := b.Get([]byte(src.Code)); data != nil {
			var existing Source
			if err := json.Unmarshal(data, &existing); err != nil {
				return err
			}
			merged.CreatedAt = existing.CreatedAt
			merged.ETag = existing.ETag
			merged.LastModified = existing.LastModified
			merged.LastFetched = existing.LastFetched
		} else if merged.CreatedAt.IsZero() {
			merged.CreatedAt = now
		}
		merged.UpdatedAt = now
		return putJSON(b, []byte(src.Code), &merged)
	})
}

func (s *BoltStore) GetSource(ctx context.Context, code string) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var src Source
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sourcesBucket).Get([]byte(code))
		if data == nil {
			return fmt.Errorf("source %q: %w", code, ErrNotFound)
		}
		return json.Unmarshal(data, &src)
	})
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *BoltStore) ListSources(ctx context.Context, activeOnly bool) ([]*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sources []*Source
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sourcesBucket).ForEach(func(_, v []byte) error {
			var src Source
			if err := json.Unmarshal(v, &src); err != nil {
				return err
			}
			if !activeOnly || src.Active {
				sources = append(sources, &src)
			}
			return nil
		})
	})
	return sources, err
}

func (s *BoltStore) UpdateFetchState(ctx context.Context, code, etag, lastModified string, fetchedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sourcesBucket)
		data := b.Get([]byte(code))
		if data == nil {
			return fmt.Errorf("source %q: %w", code, ErrNotFound)
		}
		var src Source
		if err := json.Unmarshal(data, &src); err != nil {
			return err
		}
		src.ETag = etag
		src.LastModified = lastModified
		src.LastFetched = fetchedAt.UTC()
		return putJSON(b, []byte(code), &src)
	})
}

// Articles

func (s *BoltStore) InsertArticle(ctx context.Context, a *Article) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	inserted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		keys := tx.Bucket(articleKeysBucket)
		key := articleKey(a.SourceCode, a.UID)
		if keys.Get(key) != nil {
			return nil
		}

		b := tx.Bucket(articlesBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		stored := *a
		stored.ID = int64(seq)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		if err := putJSON(b, itob(stored.ID), &stored); err != nil {
			return err
		}
		if err := keys.Put(key, itob(stored.ID)); err != nil {
			return err
		}
		a.ID = stored.ID
		a.CreatedAt = stored.CreatedAt
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *BoltStore) GetArticle(ctx context.Context, id int64) (*ArticleView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var view *ArticleView
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(articlesBucket).Get(itob(id))
		if data == nil {
			return fmt.Errorf("article %d: %w", id, ErrNotFound)
		}
		var a Article
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		view = joinSource(tx, &a, map[string]*Source{})
		return nil
	})
	return view, err
}

func joinSource(tx *bolt.Tx, a *Article, cache map[string]*Source) *ArticleView {
	view := &ArticleView{Article: *a}
	src, ok := cache[a.SourceCode]
	if !ok {
		if data := tx.Bucket(sourcesBucket).Get([]byte(a.SourceCode)); data != nil {
			var decoded Source
			if json.Unmarshal(data, &decoded) == nil {
				src = &decoded
			}
		}
		cache[a.SourceCode] = src
	}
	if src != nil {
		view.SourceName = src.Name
		view.SourceURL = src.SiteURL
	}
	return view
}

func (s *BoltStore) ListArticles(ctx context.Context, q ArticleQuery) (*ArticlePage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := &ArticlePage{Articles: []*ArticleView{}}
	err := s.db.View(func(tx *bolt.Tx) error {
		var matched []*Article
		err := tx.Bucket(articlesBucket).ForEach(func(_, v []byte) error {
			var a Article
			if err := json.Unmarshal(v, &a); err != nil {
				return nil
			}
			if a.Published != nil && (page.MaxPublished == nil || a.Published.After(*page.MaxPublished)) {
				p := *a.Published
				page.MaxPublished = &p
			}
			if matchesAll(a.SearchText(), q.Terms) {
				matched = append(matched, &a)
			}
			return nil
		})
		if err != nil {
			return err
		}

		sortArticles(matched)
		page.Total = len(matched)

		start := min(max(q.Offset, 0), len(matched))
		end := len(matched)
		if q.Limit > 0 {
			end = min(start+q.Limit, len(matched))
		}

		cache := make(map[string]*Source)
		for _, a := range matched[start:end] {
			page.Articles = append(page.Articles, joinSource(tx, a, cache))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// sortArticles orders newest first; undated articles go last and ties fall
// back to insertion order, newest first.
func sortArticles(articles []*Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		pi, pj := articles[i].Published, articles[j].Published
		switch {
		case pi != nil && pj != nil && !pi.Equal(*pj):
			return pi.After(*pj)
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		}
		return articles[i].ID > articles[j].ID
	})
}

func (s *BoltStore) ForEachArticle(ctx context.Context, fn func(*Article) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(articlesBucket).ForEach(func(_, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var a Article
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			return fn(&a)
		})
	})
}

func (s *BoltStore) CountArticles(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(articlesBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Sync metadata

func (s *BoltStore) SetMeta(ctx context.Context, key, value string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(metaBucket), []byte(key), &SyncMeta{Key: key, Value: value, UpdatedAt: at.UTC()})
	})
}

func (s *BoltStore) GetMeta(ctx context.Context, key string) (*SyncMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var m SyncMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(metaBucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("meta %q: %w", key, ErrNotFound)
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltStore) ListMeta(ctx context.Context) ([]*SyncMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*SyncMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).ForEach(func(_, v []byte) error {
			var m SyncMeta
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, &m)
			return nil
		})
	})
	return out, err
}

// Calendar

func (s *BoltStore) UpsertEvent(ctx context.Context, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		stored := *ev
		if data := b.Get([]byte(ev.Slug)); data != nil {
			var existing Event
			if err := json.Unmarshal(data, &existing); err == nil && !existing.CreatedAt.IsZero() {
				stored.CreatedAt = existing.CreatedAt
			}
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		sortSessions(stored.Sessions)
		return putJSON(b, []byte(ev.Slug), &stored)
	})
}

func (s *BoltStore) GetEvent(ctx context.Context, slug string) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ev Event
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(eventsBucket).Get([]byte(slug))
		if data == nil {
			return fmt.Errorf("event %q: %w", slug, ErrNotFound)
		}
		return json.Unmarshal(data, &ev)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *BoltStore) ListEvents(ctx context.Context, season int) ([]*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var events []*Event
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(eventsBucket).ForEach(func(_, v []byte) error {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			if season == 0 || ev.Season == season {
				events = append(events, &ev)
			}
			return nil
		})
	})
	sort.Slice(events, func(i, j int) bool {
		if events[i].Season != events[j].Season {
			return events[i].Season < events[j].Season
		}
		return events[i].Round < events[j].Round
	})
	return events, err
}

func sortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartAt.Before(sessions[j].StartAt)
	})
}

// Weather

func weatherKey(city, country string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(city)) + "|" + strings.ToLower(strings.TrimSpace(country)))
}

func (s *BoltStore) SaveWeather(ctx context.Context, r *WeatherReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(weatherBucket), weatherKey(r.City, r.Country), r)
	})
}

func (s *BoltStore) GetWeather(ctx context.Context, city, country string) (*WeatherReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var r WeatherReport
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(weatherBucket).Get(weatherKey(city, country))
		if data == nil {
			return fmt.Errorf("weather %s, %s: %w", city, country, ErrNotFound)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Subscribers

func (s *BoltStore) AddSubscriber(ctx context.Context, sub *Subscriber) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	added := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(subscribersBucket)
		key := []byte(strings.ToLower(sub.Email))
		if b.Get(key) != nil {
			return nil
		}
		stored := *sub
		stored.Email = string(key)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		added = true
		return putJSON(b, key, &stored)
	})
	return added, err
}

func (s *BoltStore) CountSubscribers(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(subscribersBucket).Stats().KeyN
		return nil
	})
	return n, err
}
