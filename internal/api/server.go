// Package api serves the public JSON API, the sitemap and the metrics
// endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/debuglog"
	"github.com/vamosnene/vamosnene/internal/metrics"
	"github.com/vamosnene/vamosnene/internal/news"
	"github.com/vamosnene/vamosnene/internal/storage"
)

// SyncFunc runs a named sync job ("news", "schedule", "weather" or "all").
type SyncFunc func(ctx context.Context, job string) error

type Server struct {
	store    storage.Store
	news     *news.Service
	sync     SyncFunc
	cfg      *config.Config
	clock    func() time.Time
	router   chi.Router
	shutdown time.Duration
}

func NewServer(cfg *config.Config, store storage.Store, newsService *news.Service, sync SyncFunc) *Server {
	s := &Server{
		store:    store,
		news:     newsService,
		sync:     sync,
		cfg:      cfg,
		clock:    time.Now,
		shutdown: cfg.Server.ShutdownTimeout,
	}
	if s.shutdown <= 0 {
		s.shutdown = 10 * time.Second
	}
	s.router = s.routes()
	return s
}

// SetClock replaces the time source used for live status.
func (s *Server) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Admin-Key"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/news", s.handleNews)
		r.Get("/news/search", s.handleNewsSearch)
		r.Get("/sources", s.handleSources)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/gp/{slug}", s.handleGrandPrix)
		r.Get("/now", s.handleNow)
		r.Post("/subscribe", s.handleSubscribe)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/admin/sync", s.handleAdminSync)
			r.Post("/admin/sync", s.handleAdminSync)
		})
	})

	r.Get("/sitemap.xml", s.handleSitemap)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		debuglog.WithFields(debuglog.Fields{"addr": srv.Addr}).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	debuglog.Infof("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
