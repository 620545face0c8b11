// Package weather caches OpenWeather forecasts for the locations of the
// season's events.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/debuglog"
	"github.com/vamosnene/vamosnene/internal/storage"
)

const (
	defaultBaseURL = "https://api.openweathermap.org/data/2.5"
	maxPayload     = 2 << 20
)

// ErrDisabled is returned by Sync when no API key is configured.
var ErrDisabled = errors.New("weather sync disabled: no API key")

type Store interface {
	storage.EventStore
	storage.WeatherStore
	storage.MetaStore
}

// Location is a city the forecast is fetched for.
type Location struct {
	City    string
	Country string
}

func (l Location) key() string {
	return strings.ToLower(l.City + "|" + l.Country)
}

type Syncer struct {
	store   Store
	client  *http.Client
	baseURL string
	apiKey  string
	units   string
	lang    string
	season  int
	clock   func() time.Time
}

func NewSyncer(store Store, cfg *config.Config) *Syncer {
	s := &Syncer{
		store:   store,
		client:  &http.Client{Timeout: cfg.Weather.HTTPTimeout},
		baseURL: strings.TrimRight(cfg.Weather.BaseURL, "/"),
		apiKey:  cfg.Weather.APIKey,
		units:   cfg.Weather.Units,
		lang:    cfg.Weather.Lang,
		season:  cfg.Calendar.Season,
		clock:   time.Now,
	}
	if s.baseURL == "" {
		s.baseURL = defaultBaseURL
	}
	if s.client.Timeout <= 0 {
		s.client.Timeout = 15 * time.Second
	}
	if s.units == "" {
		s.units = "metric"
	}
	if s.lang == "" {
		s.lang = "es"
	}
	return s
}

func (s *Syncer) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Enabled reports whether an API key is configured.
func (s *Syncer) Enabled() bool {
	return s.apiKey != ""
}

// Sync refreshes the forecast of every distinct event location of the
// season. A location that fails is logged and skipped; the weather sync
// time is recorded once all locations were tried.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, ErrDisabled
	}

	events, err := s.store.ListEvents(ctx, s.season)
	if err != nil {
		return 0, fmt.Errorf("listing events: %w", err)
	}

	saved := 0
	for _, loc := range Locations(events) {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		logger := debuglog.WithFields(debuglog.Fields{"job": storage.MetaWeather, "city": loc.City, "country": loc.Country})

		payload, err := s.Forecast(ctx, loc)
		if err != nil {
			logger.WithError(err).Warn("forecast fetch failed")
			continue
		}
		report := &storage.WeatherReport{
			City:      loc.City,
			Country:   loc.Country,
			Payload:   string(payload),
			UpdatedAt: s.clock().UTC(),
		}
		if err := s.store.SaveWeather(ctx, report); err != nil {
			logger.WithError(err).Warn("saving forecast failed")
			continue
		}
		saved++
	}

	now := s.clock()
	if err := s.store.SetMeta(ctx, storage.MetaWeather, now.UTC().Format(time.RFC3339), now); err != nil {
		return saved, fmt.Errorf("recording sync time: %w", err)
	}
	debuglog.WithFields(debuglog.Fields{"job": storage.MetaWeather, "locations": saved}).Info("weather sync finished")
	return saved, nil
}

// Locations returns the distinct non-empty (city, country) pairs of events,
// compared case-insensitively, in event order.
func Locations(events []*storage.Event) []Location {
	locs := lo.FilterMap(events, func(ev *storage.Event, _ int) (Location, bool) {
		loc := Location{City: strings.TrimSpace(ev.Locality), Country: strings.TrimSpace(ev.Country)}
		return loc, loc.City != "" && loc.Country != ""
	})
	return lo.UniqBy(locs, Location.key)
}

// Forecast fetches the raw forecast document for loc.
func (s *Syncer) Forecast(ctx context.Context, loc Location) ([]byte, error) {
	q := url.Values{}
	q.Set("q", loc.City+","+loc.Country)
	q.Set("appid", s.apiKey)
	q.Set("units", s.units)
	q.Set("lang", s.lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching forecast: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, fmt.Errorf("reading forecast: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching forecast: HTTP %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("forecast for %s is not JSON", loc.City)
	}
	return body, nil
}

// Forecast is a cached forecast as served to clients.
type Forecast struct {
	City      string          `json:"city"`
	UpdatedAt time.Time       `json:"updated_at"`
	Raw       json.RawMessage `json:"raw"`
}

// Lookup returns the cached forecast for a location, or nil when none is
// stored or the payload is unreadable. The city name reported by the
// provider wins over the stored one.
func Lookup(ctx context.Context, store storage.WeatherStore, city, country string) (*Forecast, error) {
	if strings.TrimSpace(city) == "" || strings.TrimSpace(country) == "" {
		return nil, nil
	}
	r, err := store.GetWeather(ctx, city, country)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc struct {
		City struct {
			Name string `json:"name"`
		} `json:"city"`
	}
	if err := json.Unmarshal([]byte(r.Payload), &doc); err != nil {
		return nil, nil
	}
	name := doc.City.Name
	if name == "" {
		name = city
	}
	return &Forecast{City: name, UpdatedAt: r.UpdatedAt, Raw: json.RawMessage(r.Payload)}, nil
}
