package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/storage"
)

func setupTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.Open("bolt", filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedEvents(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 3, 8, 4, 0, 0, 0, time.UTC)
	for i, ev := range []*storage.Event{
		{Slug: "australia", Locality: "Melbourne", Country: "Australia"},
		{Slug: "melbourne-again", Locality: "MELBOURNE ", Country: "australia"},
		{Slug: "no-city", Locality: "", Country: "Bahrain"},
		{Slug: "brazil", Locality: "São Paulo", Country: "Brazil"},
	} {
		ev.Season = 2026
		ev.Round = i + 1
		ev.StartAt = start.Add(time.Duration(i) * 7 * 24 * time.Hour)
		ev.EndAt = ev.StartAt.Add(3 * time.Hour)
		require.NoError(t, store.UpsertEvent(ctx, ev))
	}
}

func TestLocations(t *testing.T) {
	locs := Locations([]*storage.Event{
		{Locality: "Melbourne", Country: "Australia"},
		{Locality: " melbourne", Country: "AUSTRALIA"},
		{Locality: "Monaco", Country: ""},
		{Locality: "Suzuka", Country: "Japan"},
	})
	assert.Equal(t, []Location{
		{City: "Melbourne", Country: "Australia"},
		{City: "Suzuka", Country: "Japan"},
	}, locs)
}

func TestSync_Disabled(t *testing.T) {
	cfg := config.TestConfig()
	cfg.Weather.APIKey = ""
	s := NewSyncer(setupTestStore(t), cfg)

	assert.False(t, s.Enabled())
	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestSync(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "secret", q.Get("appid"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "es", q.Get("lang"))

		mu.Lock()
		queries = append(queries, q.Get("q"))
		mu.Unlock()

		if q.Get("q") == "São Paulo,Brazil" {
			http.Error(w, "city not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"city":{"name":"Melbourne City"},"list":[]}`))
	}))
	defer srv.Close()

	cfg := config.TestConfig()
	cfg.Weather.APIKey = "secret"
	cfg.Weather.BaseURL = srv.URL
	store := setupTestStore(t)
	seedEvents(t, store)

	s := NewSyncer(store, cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()

	saved, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
	assert.Equal(t, []string{"Melbourne,Australia", "São Paulo,Brazil"}, queries)

	meta, err := store.GetMeta(ctx, storage.MetaWeather)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", meta.Value)

	fc, err := Lookup(ctx, store, "melbourne", "Australia")
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Equal(t, "Melbourne City", fc.City)
	assert.Equal(t, now, fc.UpdatedAt)
	assert.JSONEq(t, `{"city":{"name":"Melbourne City"},"list":[]}`, string(fc.Raw))
}

func TestLookup_Missing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	fc, err := Lookup(ctx, store, "Suzuka", "Japan")
	require.NoError(t, err)
	assert.Nil(t, fc)

	fc, err = Lookup(ctx, store, "", "Japan")
	require.NoError(t, err)
	assert.Nil(t, fc)
}

func TestLookup_FallsBackToStoredCity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveWeather(ctx, &storage.WeatherReport{
		City: "Suzuka", Country: "Japan", Payload: `{"list":[]}`, UpdatedAt: time.Now().UTC(),
	}))

	fc, err := Lookup(ctx, store, "Suzuka", "Japan")
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Equal(t, "Suzuka", fc.City)
}
