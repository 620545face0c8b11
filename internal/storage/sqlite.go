package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	_ "modernc.org/sqlite"
)

// sqliteTime is fixed-width so text ordering matches chronological order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// SQLiteStore is the relational backend. Schema lives in migrations/ and is
// applied on open.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := Migrate(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Sources

const sourceColumns = "code, name, site_url, feed_url, lang, active, etag, last_modified, last_fetched, created_at, updated_at"

func (s *SQLiteStore) UpsertSource(ctx context.Context, src *Source) error {
	now := formatTime(time.Now())
	created := formatTime(src.CreatedAt)
	if created == "" {
		created = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (code, name, site_url, feed_url, lang, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			site_url = excluded.site_url,
			feed_url = excluded.feed_url,
			lang = excluded.lang,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		src.Code, src.Name, src.SiteURL, src.FeedURL, src.Lang, src.Active, created, now,
	)
	if err != nil {
		return fmt.Errorf("upsert source %q: %w", src.Code, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*Source, error) {
	var (
		src                             Source
		lastFetched, created, updatedAt string
	)
	if err := row.Scan(&src.Code, &src.Name, &src.SiteURL, &src.FeedURL, &src.Lang, &src.Active,
		&src.ETag, &src.LastModified, &lastFetched, &created, &updatedAt); err != nil {
		return nil, err
	}
	src.LastFetched = parseTime(lastFetched)
	src.CreatedAt = parseTime(created)
	src.UpdatedAt = parseTime(updatedAt)
	return &src, nil
}

func (s *SQLiteStore) GetSource(ctx context.Context, code string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sourceColumns+" FROM sources WHERE code = ?", code)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source %q: %w", code, err)
	}
	return src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, activeOnly bool) ([]*Source, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(strings.Split(sourceColumns, ", ")...).From("sources")
	if activeOnly {
		sb.Where(sb.Equal("active", true))
	}
	sb.OrderBy("code").Asc()

	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *SQLiteStore) UpdateFetchState(ctx context.Context, code, etag, lastModified string, fetchedAt time.Time) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("sources").
		Set(
			ub.Assign("etag", etag),
			ub.Assign("last_modified", lastModified),
			ub.Assign("last_fetched", formatTime(fetchedAt)),
		).
		Where(ub.Equal("code", code))

	query, args := ub.Build()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update fetch state %q: %w", code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %q: %w", code, ErrNotFound)
	}
	return nil
}

// Articles

var articleSelectColumns = []string{
	"a.id", "a.uid", "a.source_code", "a.title", "a.url", "a.published_at",
	"a.snippet", "a.note", "a.tags", "a.image_url", "a.lang", "a.created_at",
	"COALESCE(s.name, '')", "COALESCE(s.site_url, '')",
}

func (s *SQLiteStore) InsertArticle(ctx context.Context, a *Article) (bool, error) {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var published any
	if a.Published != nil {
		published = formatTime(*a.Published)
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("articles")
	ib.Cols("uid", "source_code", "title", "url", "published_at", "snippet", "note",
		"tags", "image_url", "lang", "search_text", "created_at")
	ib.Values(a.UID, a.SourceCode, a.Title, a.URL, published, a.Snippet, a.Note,
		a.Tags, a.ImageURL, a.Lang, a.SearchText(), formatTime(created))

	query, args := ib.Build()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return true, fmt.Errorf("insert article id: %w", err)
	}
	a.ID = id
	a.CreatedAt = created
	return true, nil
}

func scanArticleView(row rowScanner) (*ArticleView, error) {
	var (
		v         ArticleView
		published sql.NullString
		created   string
	)
	if err := row.Scan(&v.ID, &v.UID, &v.SourceCode, &v.Title, &v.URL, &published,
		&v.Snippet, &v.Note, &v.Tags, &v.ImageURL, &v.Lang, &created,
		&v.SourceName, &v.SourceURL); err != nil {
		return nil, err
	}
	if published.Valid {
		if t := parseTime(published.String); !t.IsZero() {
			v.Published = &t
		}
	}
	v.CreatedAt = parseTime(created)
	return &v, nil
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id int64) (*ArticleView, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(articleSelectColumns...).From("articles a")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "sources s", "s.code = a.source_code")
	sb.Where(sb.Equal("a.id", id))

	query, args := sb.Build()
	v, err := scanArticleView(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", id, err)
	}
	return v, nil
}

func applyTerms(sb *sqlbuilder.SelectBuilder, terms []string) {
	for _, term := range terms {
		if term == "" {
			continue
		}
		sb.Where(fmt.Sprintf("instr(a.search_text, %s) > 0", sb.Args.Add(term)))
	}
}

func (s *SQLiteStore) ListArticles(ctx context.Context, q ArticleQuery) (*ArticlePage, error) {
	page := &ArticlePage{Articles: []*ArticleView{}}

	cb := sqlbuilder.SQLite.NewSelectBuilder()
	cb.Select("COUNT(*)").From("articles a")
	applyTerms(cb, q.Terms)
	countQuery, countArgs := cb.Build()
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	var maxPublished sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(published_at) FROM articles").Scan(&maxPublished); err != nil {
		return nil, fmt.Errorf("max published: %w", err)
	}
	if maxPublished.Valid {
		if t := parseTime(maxPublished.String); !t.IsZero() {
			page.MaxPublished = &t
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(articleSelectColumns...).From("articles a")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "sources s", "s.code = a.source_code")
	applyTerms(sb, q.Terms)
	sb.OrderBy("a.published_at IS NULL", "a.published_at DESC", "a.id DESC")
	sb.Limit(limit)
	sb.Offset(max(q.Offset, 0))

	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanArticleView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		page.Articles = append(page.Articles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return page, nil
}

func (s *SQLiteStore) ForEachArticle(ctx context.Context, fn func(*Article) error) error {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(articleSelectColumns...).From("articles a")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "sources s", "s.code = a.source_code")
	sb.OrderBy("a.id").Asc()

	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("iterate articles: %w", err)
	}

	// The pool holds a single connection, so rows are drained before fn
	// runs in case it calls back into the store.
	var all []*Article
	for rows.Next() {
		v, err := scanArticleView(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan article: %w", err)
		}
		a := v.Article
		all = append(all, &a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, a := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&n); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// Sync metadata

func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (*SyncMeta, error) {
	var (
		m       SyncMeta
		updated string
	)
	err := s.db.QueryRowContext(ctx, "SELECT key, value, updated_at FROM sync_meta WHERE key = ?", key).
		Scan(&m.Key, &m.Value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("meta %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get meta %q: %w", key, err)
	}
	m.UpdatedAt = parseTime(updated)
	return &m, nil
}

func (s *SQLiteStore) ListMeta(ctx context.Context) ([]*SyncMeta, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value, updated_at FROM sync_meta ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list meta: %w", err)
	}
	defer rows.Close()

	var out []*SyncMeta
	for rows.Next() {
		var (
			m       SyncMeta
			updated string
		)
		if err := rows.Scan(&m.Key, &m.Value, &updated); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		m.UpdatedAt = parseTime(updated)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Calendar

func (s *SQLiteStore) UpsertEvent(ctx context.Context, ev *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (slug, season, round, name, circuit_name, locality, country, start_at, end_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			season = excluded.season,
			round = excluded.round,
			name = excluded.name,
			circuit_name = excluded.circuit_name,
			locality = excluded.locality,
			country = excluded.country,
			start_at = excluded.start_at,
			end_at = excluded.end_at`,
		ev.Slug, ev.Season, ev.Round, ev.Name, ev.CircuitName, ev.Locality, ev.Country,
		formatTime(ev.StartAt), formatTime(ev.EndAt), formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("upsert event %q: %w", ev.Slug, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE event_slug = ?", ev.Slug); err != nil {
		return fmt.Errorf("clear sessions %q: %w", ev.Slug, err)
	}

	if len(ev.Sessions) > 0 {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("sessions").Cols("event_slug", "name", "start_at", "end_at")
		for _, sess := range ev.Sessions {
			ib.Values(ev.Slug, sess.Name, formatTime(sess.StartAt), formatTime(sess.EndAt))
		}
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert sessions %q: %w", ev.Slug, err)
		}
	}

	return tx.Commit()
}

const eventColumns = "slug, season, round, name, circuit_name, locality, country, start_at, end_at, created_at"

func scanEvent(row rowScanner) (*Event, error) {
	var (
		ev                    Event
		start, end, createdAt string
	)
	if err := row.Scan(&ev.Slug, &ev.Season, &ev.Round, &ev.Name, &ev.CircuitName,
		&ev.Locality, &ev.Country, &start, &end, &createdAt); err != nil {
		return nil, err
	}
	ev.StartAt = parseTime(start)
	ev.EndAt = parseTime(end)
	ev.CreatedAt = parseTime(createdAt)
	return &ev, nil
}

func (s *SQLiteStore) loadSessions(ctx context.Context, slug string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, start_at, end_at FROM sessions WHERE event_slug = ? ORDER BY start_at ASC, id ASC", slug)
	if err != nil {
		return nil, fmt.Errorf("list sessions %q: %w", slug, err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess       Session
			start, end string
		)
		if err := rows.Scan(&sess.Name, &start, &end); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartAt = parseTime(start)
		sess.EndAt = parseTime(end)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) GetEvent(ctx context.Context, slug string) (*Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE slug = ?", slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %q: %w", slug, err)
	}
	if ev.Sessions, err = s.loadSessions(ctx, slug); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, season int) ([]*Event, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(strings.Split(eventColumns, ", ")...).From("events")
	if season != 0 {
		sb.Where(sb.Equal("season", season))
	}
	sb.OrderBy("season", "round").Asc()

	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ev := range events {
		if ev.Sessions, err = s.loadSessions(ctx, ev.Slug); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// Weather

func weatherLocation(city, country string) string {
	return string(weatherKey(city, country))
}

func (s *SQLiteStore) SaveWeather(ctx context.Context, r *WeatherReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_cache (location, city, country, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (location) DO UPDATE SET
			city = excluded.city,
			country = excluded.country,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		weatherLocation(r.City, r.Country), r.City, r.Country, r.Payload, formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save weather %s, %s: %w", r.City, r.Country, err)
	}
	return nil
}

func (s *SQLiteStore) GetWeather(ctx context.Context, city, country string) (*WeatherReport, error) {
	var (
		r       WeatherReport
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT city, country, payload, updated_at FROM weather_cache WHERE location = ?",
		weatherLocation(city, country),
	).Scan(&r.City, &r.Country, &r.Payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("weather %s, %s: %w", city, country, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get weather: %w", err)
	}
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

// Subscribers

func (s *SQLiteStore) AddSubscriber(ctx context.Context, sub *Subscriber) (bool, error) {
	created := sub.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("subscribers").
		Cols("email", "locale", "created_at").
		Values(strings.ToLower(sub.Email), sub.Locale, formatTime(created))

	query, args := ib.Build()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("add subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add subscriber: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CountSubscribers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscribers").Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}
