package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const EnvPrefix = "VAMOSNENE"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	News     NewsConfig     `mapstructure:"news"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AdminKey        string        `mapstructure:"admin_key"`
	SiteOrigin      string        `mapstructure:"site_origin"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver selects the storage backend: "bolt" or "sqlite".
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
}

type NewsConfig struct {
	HTTPTimeout   time.Duration  `mapstructure:"http_timeout"`
	UserAgent     string         `mapstructure:"user_agent"`
	MaxEntries    int            `mapstructure:"max_entries"`
	SnippetLength int            `mapstructure:"snippet_length"`
	MaxBodyBytes  int64          `mapstructure:"max_body_bytes"`
	Workers       int            `mapstructure:"workers"`
	SyncInterval  time.Duration  `mapstructure:"sync_interval"`
	FocusTerm     string         `mapstructure:"focus_term"`
	Sources       []SourceConfig `mapstructure:"sources"`
}

type SourceConfig struct {
	Code     string `mapstructure:"code" toml:"code"`
	Name     string `mapstructure:"name" toml:"name"`
	SiteURL  string `mapstructure:"site_url" toml:"site_url"`
	FeedURL  string `mapstructure:"feed_url" toml:"feed_url"`
	Lang     string `mapstructure:"lang" toml:"lang"`
	Disabled bool   `mapstructure:"disabled" toml:"disabled,omitempty"`
}

type CalendarConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Season       int           `mapstructure:"season"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

type WeatherConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Units        string        `mapstructure:"units"`
	Lang         string        `mapstructure:"lang"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
	Path   string `mapstructure:"path" toml:"path"`
}

// DefaultSources is the seed list applied when the config names no sources.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Code: "f1latam", Name: "F1Latam", SiteURL: "https://www.f1latam.com/", FeedURL: "https://www.f1latam.com/rss/rss.php", Lang: "es"},
		{Code: "motorsport-latam", Name: "Motorsport LATAM (F1)", SiteURL: "https://lat.motorsport.com/f1/", FeedURL: "https://lat.motorsport.com/rss/f1/news/", Lang: "es"},
		{Code: "motorsport-es", Name: "Motorsport ES (F1)", SiteURL: "https://es.motorsport.com/f1/", FeedURL: "https://es.motorsport.com/rss/f1/news/", Lang: "es"},
		{Code: "motorsport", Name: "Motorsport (F1)", SiteURL: "https://www.motorsport.com/f1/", FeedURL: "https://www.motorsport.com/rss/f1/news/", Lang: "en"},
	}
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".vamosnene")

	return &Config{
		Server: ServerConfig{
			Addr:            ":8787",
			SiteOrigin:      "https://vamosnene.com.ar",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      "bolt",
			Path:        filepath.Join(dataDir, "vamosnene.db"),
			Timeout:     1 * time.Second,
			SearchIndex: filepath.Join(dataDir, "index.bleve"),
		},
		News: NewsConfig{
			HTTPTimeout:   15 * time.Second,
			UserAgent:     "vamosnene/1.0 (+https://vamosnene.com.ar)",
			MaxEntries:    30,
			SnippetLength: 220,
			MaxBodyBytes:  5 << 20,
			Workers:       1,
			SyncInterval:  30 * time.Minute,
			FocusTerm:     "colapinto",
			Sources:       DefaultSources(),
		},
		Calendar: CalendarConfig{
			BaseURL:      "https://api.jolpi.ca/ergast/f1",
			Season:       time.Now().Year(),
			HTTPTimeout:  15 * time.Second,
			SyncInterval: 12 * time.Hour,
		},
		Weather: WeatherConfig{
			BaseURL:      "https://api.openweathermap.org/data/2.5",
			Units:        "metric",
			Lang:         "es",
			HTTPTimeout:  15 * time.Second,
			SyncInterval: 3 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// setDefaults registers every leaf key so environment overrides resolve
// even when no config file mentions the key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.admin_key", cfg.Server.AdminKey)
	v.SetDefault("server.site_origin", cfg.Server.SiteOrigin)
	v.SetDefault("server.cors_origins", cfg.Server.CORSOrigins)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.timeout", cfg.Database.Timeout)
	v.SetDefault("database.search_index", cfg.Database.SearchIndex)

	v.SetDefault("news.http_timeout", cfg.News.HTTPTimeout)
	v.SetDefault("news.user_agent", cfg.News.UserAgent)
	v.SetDefault("news.max_entries", cfg.News.MaxEntries)
	v.SetDefault("news.snippet_length", cfg.News.SnippetLength)
	v.SetDefault("news.max_body_bytes", cfg.News.MaxBodyBytes)
	v.SetDefault("news.workers", cfg.News.Workers)
	v.SetDefault("news.sync_interval", cfg.News.SyncInterval)
	v.SetDefault("news.focus_term", cfg.News.FocusTerm)

	v.SetDefault("calendar.base_url", cfg.Calendar.BaseURL)
	v.SetDefault("calendar.season", cfg.Calendar.Season)
	v.SetDefault("calendar.http_timeout", cfg.Calendar.HTTPTimeout)
	v.SetDefault("calendar.sync_interval", cfg.Calendar.SyncInterval)

	v.SetDefault("weather.api_key", cfg.Weather.APIKey)
	v.SetDefault("weather.base_url", cfg.Weather.BaseURL)
	v.SetDefault("weather.units", cfg.Weather.Units)
	v.SetDefault("weather.lang", cfg.Weather.Lang)
	v.SetDefault("weather.http_timeout", cfg.Weather.HTTPTimeout)
	v.SetDefault("weather.sync_interval", cfg.Weather.SyncInterval)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.path", cfg.Log.Path)
}

// DefaultPath is where `config init` writes and Load looks first.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "vamosnene", "config.toml")
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(config.News.Sources) == 0 {
		config.News.Sources = DefaultSources()
	}
	normalize(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("database.driver must be bolt or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	seen := make(map[string]bool, len(c.News.Sources))
	for i, s := range c.News.Sources {
		if s.Code == "" || s.FeedURL == "" {
			return fmt.Errorf("news.sources[%d]: code and feed_url are required", i)
		}
		if seen[s.Code] {
			return fmt.Errorf("news.sources[%d]: duplicate code %q", i, s.Code)
		}
		seen[s.Code] = true
	}
	return nil
}

func normalize(cfg *Config) {
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Log.Path = expandPath(cfg.Log.Path)

	if cfg.News.MaxEntries <= 0 {
		cfg.News.MaxEntries = 30
	}
	if cfg.News.SnippetLength <= 0 {
		cfg.News.SnippetLength = 220
	}
	if cfg.News.Workers <= 0 {
		cfg.News.Workers = 1
	}
	for i := range cfg.News.Sources {
		s := &cfg.News.Sources[i]
		s.Code = strings.ToLower(strings.TrimSpace(s.Code))
		s.Lang = strings.ToLower(strings.TrimSpace(s.Lang))
		if s.Name == "" {
			s.Name = s.Code
		}
	}
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// fileConfig mirrors Config with durations rendered as strings so the
// written TOML stays readable and round-trips through Load.
type fileConfig struct {
	Server struct {
		Addr            string   `toml:"addr"`
		AdminKey        string   `toml:"admin_key"`
		SiteOrigin      string   `toml:"site_origin"`
		CORSOrigins     []string `toml:"cors_origins"`
		ShutdownTimeout string   `toml:"shutdown_timeout"`
	} `toml:"server"`
	Database struct {
		Driver      string `toml:"driver"`
		Path        string `toml:"path"`
		Timeout     string `toml:"timeout"`
		SearchIndex string `toml:"search_index"`
	} `toml:"database"`
	News struct {
		HTTPTimeout   string         `toml:"http_timeout"`
		UserAgent     string         `toml:"user_agent"`
		MaxEntries    int            `toml:"max_entries"`
		SnippetLength int            `toml:"snippet_length"`
		MaxBodyBytes  int64          `toml:"max_body_bytes"`
		Workers       int            `toml:"workers"`
		SyncInterval  string         `toml:"sync_interval"`
		FocusTerm     string         `toml:"focus_term"`
		Sources       []SourceConfig `toml:"sources"`
	} `toml:"news"`
	Calendar struct {
		BaseURL      string `toml:"base_url"`
		Season       int    `toml:"season"`
		HTTPTimeout  string `toml:"http_timeout"`
		SyncInterval string `toml:"sync_interval"`
	} `toml:"calendar"`
	Weather struct {
		APIKey       string `toml:"api_key"`
		BaseURL      string `toml:"base_url"`
		Units        string `toml:"units"`
		Lang         string `toml:"lang"`
		HTTPTimeout  string `toml:"http_timeout"`
		SyncInterval string `toml:"sync_interval"`
	} `toml:"weather"`
	Log LogConfig `toml:"log"`
}

func Save(config *Config, path string) error {
	var fc fileConfig

	fc.Server.Addr = config.Server.Addr
	fc.Server.AdminKey = config.Server.AdminKey
	fc.Server.SiteOrigin = config.Server.SiteOrigin
	fc.Server.CORSOrigins = config.Server.CORSOrigins
	fc.Server.ShutdownTimeout = config.Server.ShutdownTimeout.String()

	fc.Database.Driver = config.Database.Driver
	fc.Database.Path = config.Database.Path
	fc.Database.Timeout = config.Database.Timeout.String()
	fc.Database.SearchIndex = config.Database.SearchIndex

	fc.News.HTTPTimeout = config.News.HTTPTimeout.String()
	fc.News.UserAgent = config.News.UserAgent
	fc.News.MaxEntries = config.News.MaxEntries
	fc.News.SnippetLength = config.News.SnippetLength
	fc.News.MaxBodyBytes = config.News.MaxBodyBytes
	fc.News.Workers = config.News.Workers
	fc.News.SyncInterval = config.News.SyncInterval.String()
	fc.News.FocusTerm = config.News.FocusTerm
	fc.News.Sources = config.News.Sources

	fc.Calendar.BaseURL = config.Calendar.BaseURL
	fc.Calendar.Season = config.Calendar.Season
	fc.Calendar.HTTPTimeout = config.Calendar.HTTPTimeout.String()
	fc.Calendar.SyncInterval = config.Calendar.SyncInterval.String()

	fc.Weather.APIKey = config.Weather.APIKey
	fc.Weather.BaseURL = config.Weather.BaseURL
	fc.Weather.Units = config.Weather.Units
	fc.Weather.Lang = config.Weather.Lang
	fc.Weather.HTTPTimeout = config.Weather.HTTPTimeout.String()
	fc.Weather.SyncInterval = config.Weather.SyncInterval.String()

	fc.Log = config.Log

	data, err := toml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
