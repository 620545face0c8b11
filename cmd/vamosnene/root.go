package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/debuglog"
)

type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	envFile    string
	quiet      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "vamosnene",
		Short:         "F1 news, calendar and weather backend",
		Long:          "vamosnene ingests F1 news feeds, the race calendar and circuit forecasts, and serves them as a JSON API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to configuration file")
	flags.StringVar(&opts.dbPath, "db", "", "path to database file (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "skip startup banner")

	cmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newSourcesCmd(opts),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// load reads the dotenv file and configuration, applies flag overrides and
// sets up logging.
func (o *rootOptions) load() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = strings.ToLower(o.logLevel)
	}

	if err := debuglog.Setup(debuglog.Options{
		Level:  debuglog.ParseLogLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Path:   cfg.Log.Path,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
