package config

import "time"

// TestConfig returns a config suitable for testing. Database paths are left
// empty so callers point them at t.TempDir().
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database.Path = ""
	cfg.Database.SearchIndex = ""
	cfg.News.HTTPTimeout = 5 * time.Second
	cfg.News.UserAgent = "vamosnene-test/1.0"
	cfg.News.Sources = nil
	cfg.Calendar.Season = 2026
	cfg.Calendar.HTTPTimeout = 5 * time.Second
	cfg.Weather.HTTPTimeout = 5 * time.Second
	cfg.Server.AdminKey = "test-admin-key"
	cfg.Log.Level = "off"
	return cfg
}
