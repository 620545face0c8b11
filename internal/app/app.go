// Package app assembles the store, sync jobs, query service and HTTP API
// from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vamosnene/vamosnene/internal/api"
	"github.com/vamosnene/vamosnene/internal/calendar"
	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/debuglog"
	"github.com/vamosnene/vamosnene/internal/feed"
	"github.com/vamosnene/vamosnene/internal/metrics"
	"github.com/vamosnene/vamosnene/internal/news"
	"github.com/vamosnene/vamosnene/internal/scheduler"
	"github.com/vamosnene/vamosnene/internal/search"
	"github.com/vamosnene/vamosnene/internal/storage"
	"github.com/vamosnene/vamosnene/internal/weather"
)

// Job names accepted by RunSync.
const (
	JobNews     = storage.MetaNews
	JobSchedule = storage.MetaSchedule
	JobWeather  = storage.MetaWeather
	JobAll      = "all"
)

// ErrUnknownJob is returned by RunSync for an unrecognized job name.
var ErrUnknownJob = errors.New("unknown sync job")

type App struct {
	Config   *config.Config
	Store    storage.Store
	Manager  *feed.Manager
	Calendar *calendar.Syncer
	Weather  *weather.Syncer
	News     *news.Service
	Searcher search.Searcher

	index *search.BleveEngine
}

// New opens the store, seeds the configured sources and builds every
// component. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := storage.Open(cfg.Database.Driver, cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &App{
		Config:   cfg,
		Store:    store,
		Manager:  feed.NewManager(store, cfg),
		Calendar: calendar.NewSyncer(calendar.NewClient(cfg), store, cfg.Calendar.Season),
		Weather:  weather.NewSyncer(store, cfg),
	}

	if err := a.Manager.SeedSources(ctx, cfg.News.Sources); err != nil {
		store.Close()
		return nil, err
	}

	if cfg.Database.SearchIndex != "" {
		idx, err := search.NewBleveEngine(ctx, store, cfg.Database.SearchIndex)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("opening search index: %w", err)
		}
		a.index = idx
		a.Searcher = idx
		a.Manager.AddListener(idx)
	} else {
		a.Searcher = search.NewEngine(store)
	}

	a.News = news.NewService(store, a.Searcher, cfg.News.FocusTerm)
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}

// RunSync runs one job by name. "all" runs schedule, weather and news in
// that order; a disabled weather job is skipped there.
func (a *App) RunSync(ctx context.Context, job string) error {
	switch job {
	case JobNews:
		return a.observe(job, func() error {
			_, err := a.Manager.Sync(ctx)
			return err
		})
	case JobSchedule:
		return a.observe(job, func() error {
			_, err := a.Calendar.Sync(ctx)
			return err
		})
	case JobWeather:
		return a.observe(job, func() error {
			_, err := a.Weather.Sync(ctx)
			return err
		})
	case JobAll:
		var errs []error
		for _, j := range []string{JobSchedule, JobWeather, JobNews} {
			err := a.RunSync(ctx, j)
			if errors.Is(err, weather.ErrDisabled) {
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", j, err))
			}
			if ctx.Err() != nil {
				break
			}
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
}

func (a *App) observe(job string, fn func() error) error {
	started := time.Now()
	err := fn()
	if errors.Is(err, weather.ErrDisabled) {
		return err
	}
	metrics.ObserveSync(job, started, err)
	return err
}

// Scheduler returns the periodic jobs of the configuration. Weather is
// left out without an API key.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New()
	jobs := []scheduler.Job{
		{Name: JobSchedule, Interval: a.Config.Calendar.SyncInterval},
		{Name: JobNews, Interval: a.Config.News.SyncInterval},
	}
	if a.Weather.Enabled() {
		jobs = append(jobs, scheduler.Job{Name: JobWeather, Interval: a.Config.Weather.SyncInterval})
	}
	for _, j := range jobs {
		name := j.Name
		j.Run = func(ctx context.Context) error { return a.RunSync(ctx, name) }
		if err := s.Add(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Server returns the HTTP API bound to this app.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Config, a.Store, a.News, a.RunSync)
}

// Serve runs the scheduler and the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	sched, err := a.Scheduler()
	if err != nil {
		return err
	}
	srv := a.Server()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	debuglog.WithFields(debuglog.Fields{
		"addr": a.Config.Server.Addr,
		"jobs": sched.Jobs(),
	}).Info("serving")
	return g.Wait()
}
