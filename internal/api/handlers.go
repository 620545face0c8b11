package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vamosnene/vamosnene/internal/calendar"
	"github.com/vamosnene/vamosnene/internal/debuglog"
	"github.com/vamosnene/vamosnene/internal/metrics"
	"github.com/vamosnene/vamosnene/internal/news"
	"github.com/vamosnene/vamosnene/internal/storage"
	"github.com/vamosnene/vamosnene/internal/validation"
	"github.com/vamosnene/vamosnene/internal/weather"
)

const defaultLocale = "es-AR"

var whereToWatch = []string{
	"Streaming: Disney+ (según plan/disponibilidad)",
	"TV/cable: ESPN / Fox Sports (según operador)",
	"Operadores típicos: Flow, DirecTV, Telecentro, Movistar (puede variar)",
}

// syncJobs are the jobs accepted by the admin trigger.
var syncJobs = map[string]bool{
	storage.MetaNews:     true,
	storage.MetaSchedule: true,
	storage.MetaWeather:  true,
	"all":                true,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{"ts": s.clock().UTC().Format(time.RFC3339)})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.news.List(r.Context(), news.Query{
		Text:   q.Get("q"),
		Focus:  q.Get("only_colapinto") == "1" || q.Get("focus") == "1",
		Limit:  intParam(q.Get("limit"), news.DefaultLimit),
		Offset: intParam(q.Get("offset"), 0),
	})
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeOK(w, page)
}

func (s *Server) handleNewsSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	items, err := s.news.Search(r.Context(), query, intParam(q.Get("limit"), news.DefaultLimit))
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"query": query, "items": items})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context(), true)
	if err != nil {
		serverError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(sources))
	for _, src := range sources {
		items = append(items, map[string]any{
			"code":         src.Code,
			"name":         src.Name,
			"site_url":     src.SiteURL,
			"lang":         src.Lang,
			"last_fetched": nullTime(src.LastFetched),
		})
	}
	writeOK(w, map[string]any{"items": items})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	meta, err := s.store.ListMeta(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	if meta == nil {
		meta = []*storage.SyncMeta{}
	}
	body := map[string]any{"items": meta}
	n, indexed, err := s.news.IndexSize()
	if err != nil {
		serverError(w, r, err)
		return
	}
	if indexed {
		body["index_documents"] = n
	}
	writeOK(w, body)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	season := intParam(r.URL.Query().Get("season"), s.cfg.Calendar.Season)
	events, err := s.store.ListEvents(r.Context(), season)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if events == nil {
		events = []*storage.Event{}
	}
	writeOK(w, map[string]any{"items": events})
}

func (s *Server) handleGrandPrix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ev, err := s.store.GetEvent(ctx, chi.URLParam(r, "slug"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, nil)
		return
	}
	if err != nil {
		serverError(w, r, err)
		return
	}

	fc, err := weather.Lookup(ctx, s.store, ev.Locality, ev.Country)
	if err != nil {
		serverError(w, r, err)
		return
	}
	sessions := ev.Sessions
	if sessions == nil {
		sessions = []storage.Session{}
	}
	writeOK(w, map[string]any{"event": ev, "sessions": sessions, "weather": fc})
}

func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := s.store.ListEvents(ctx, s.cfg.Calendar.Season)
	if err != nil {
		serverError(w, r, err)
		return
	}

	now := s.clock()
	status := &calendar.Status{Status: calendar.StatusPanel, Sessions: []calendar.SessionStatus{}}
	var fc *weather.Forecast
	current := calendar.Current(events, now)
	if current != nil {
		status = calendar.ComputeStatus(now, current.Sessions)
		if fc, err = weather.Lookup(ctx, s.store, current.Locality, current.Country); err != nil {
			serverError(w, r, err)
			return
		}
	}

	lastSync, err := s.firstMeta(r, storage.MetaSchedule, storage.MetaNews, storage.MetaWeather)
	if err != nil {
		serverError(w, r, err)
		return
	}

	writeOK(w, map[string]any{
		"status":         status.Status,
		"current_event":  current,
		"sessions":       status.Sessions,
		"next_session":   status.Next,
		"weather":        fc,
		"where_to_watch": whereToWatch,
		"meta":           map[string]any{"last_sync": lastSync},
	})
}

// firstMeta returns the value of the first metadata key that is set.
func (s *Server) firstMeta(r *http.Request, keys ...string) (*string, error) {
	for _, k := range keys {
		m, err := s.store.GetMeta(r.Context(), k)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &m.Value, nil
	}
	return nil, nil
}

type subscribeRequest struct {
	Email  string `json:"email"`
	Locale string `json:"locale"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidEmail, nil)
		return
	}
	email, err := validation.Email(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidEmail, nil)
		return
	}
	locale := strings.TrimSpace(req.Locale)
	if locale == "" || len(locale) > 16 {
		locale = defaultLocale
	}

	added, err := s.store.AddSubscriber(r.Context(), &storage.Subscriber{
		Email:     email,
		Locale:    locale,
		CreatedAt: s.clock().UTC(),
	})
	if err != nil {
		serverError(w, r, err)
		return
	}
	if added {
		metrics.SubscribersTotal.Inc()
		debuglog.WithFields(debuglog.Fields{"locale": locale}).Info("new subscriber")
	}
	writeOK(w, map[string]any{"subscribed": true})
}

// requireAdmin accepts the admin key from the "key" query parameter or the
// X-Admin-Key header. An unset key locks the admin routes.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.cfg.Server.AdminKey
		got := r.URL.Query().Get("key")
		if got == "" {
			got = r.Header.Get("X-Admin-Key")
		}
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAdminSync(w http.ResponseWriter, r *http.Request) {
	job := r.URL.Query().Get("job")
	if job == "" {
		job = "all"
	}
	if !syncJobs[job] {
		writeError(w, http.StatusBadRequest, codeInvalidJob, nil)
		return
	}
	if err := s.sync(r.Context(), job); err != nil {
		serverError(w, r, err)
		return
	}
	writeOK(w, map[string]any{"synced": true, "job": job})
}

// intParam parses a query integer, returning def when it is missing or
// malformed.
func intParam(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
