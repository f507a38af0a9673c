package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/bosqueabierto/mtbmap/internal/catalog"
	"github.com/bosqueabierto/mtbmap/internal/config"
	"github.com/bosqueabierto/mtbmap/internal/database"
	"github.com/bosqueabierto/mtbmap/internal/errtrack"
	"github.com/bosqueabierto/mtbmap/internal/fetch"
	"github.com/bosqueabierto/mtbmap/internal/influx"
	"github.com/bosqueabierto/mtbmap/internal/loader"
	"github.com/bosqueabierto/mtbmap/internal/logging"
	intOtel "github.com/bosqueabierto/mtbmap/internal/otel"
)

// appOptions are the root flags every command shares.
type appOptions struct {
	configDir string
	logLevel  string
	// console keeps logging to stdout when a log file is open
	console bool
}

// app holds the services shared by every command.
type app struct {
	start    time.Time
	level    string
	logs     *logging.SlogManager
	logger   *slog.Logger
	logFile  *os.File
	otel     *intOtel.Provider
	graylog  io.Closer
	db       *database.Manager
	influx   *influx.Manager
	reporter *errtrack.Reporter

	source      fetch.Source
	healthcheck func(ctx context.Context) error
	session     atomic.Pointer[loader.Session]
}

// newApp loads the config and sets up logging, telemetry and error reporting.
// Failures of optional outputs are logged and skipped.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{
		start: time.Now(),
		logs:  logging.NewSlogManager(),
	}

	configErr := config.Load(opts.configDir)

	a.level = opts.logLevel
	if a.level == "" {
		a.level = config.GetString("logLevel")
	}

	logsDir := config.GetString("logsDir")
	f, err := logging.OpenLogFile(logsDir, AppName, a.start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
	} else {
		a.logFile = f
	}

	// first pass: file and console only, so that the optional outputs below can log
	a.logs.Setup(logging.Options{File: a.logOutput(), Console: opts.console, Level: a.level})
	a.logger = a.logs.Logger()
	if configErr != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		a.logger.Info("Loaded config", "dir", opts.configDir)
	}

	var provider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		a.otel, err = intOtel.New(ctx, intOtel.FromSettings(otelCfg, Version, a.logOutput()))
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			provider = a.otel.LoggerProvider()
			a.logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var graylog io.Writer
	if config.GetBool("graylog.enabled") {
		w, err := logging.NewGraylogWriter(config.GetString("graylog.address"))
		if err != nil {
			a.logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			a.graylog = w
			graylog = w
		}
	}

	if provider != nil || graylog != nil {
		a.logs.Setup(logging.Options{
			File:     a.logOutput(),
			Console:  opts.console,
			Level:    a.level,
			Provider: provider,
			Graylog:  graylog,
		})
		a.logger = a.logs.Logger()
	}

	a.logs.SetContext(func() []slog.Attr {
		s := a.session.Load()
		if s == nil {
			return nil
		}
		return []slog.Attr{slog.Bool("routesLoaded", s.RoutesLoaded())}
	})

	hostname, _ := os.Hostname()
	a.reporter, err = errtrack.New(errtrack.Config{
		DSN:         config.GetString("sentry.dsn"),
		Environment: config.GetString("sentry.environment"),
		Release:     AppName + "@" + Version,
		ServerName:  hostname,
	}, a.logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	if config.GetBool("influx.enabled") {
		backup := filepath.Join(logsDir, fmt.Sprintf("trail_loads.%s.gz", a.start.Format("20060102_150405")))
		m := influx.NewManager(logging.NewZerolog(a.rawOutput(), a.level, "influx"), backup)
		if err := m.Connect(ctx); err != nil {
			a.logger.Error("Failed to set up InfluxDB", "error", err)
		} else {
			a.influx = m
		}
	}

	return a, nil
}

// logOutput returns the log file, or nil when it could not be opened.
func (a *app) logOutput() io.Writer {
	if a.logFile == nil {
		return nil
	}
	return a.logFile
}

// rawOutput is where the zerolog managers write.
func (a *app) rawOutput() io.Writer {
	if a.logFile == nil {
		return os.Stderr
	}
	return a.logFile
}

// openCatalog reads the catalog from catalog.source.
func (a *app) openCatalog(ctx context.Context) (*catalog.Catalog, error) {
	switch src := config.GetString("catalog.source"); src {
	case config.SourceEmbedded, "":
		return catalog.Embedded()
	case config.SourceFile:
		return catalog.LoadFile(config.GetString("catalog.path"))
	case config.SourceDatabase:
		store, err := a.catalogStore(ctx)
		if err != nil {
			return nil, err
		}
		return store.Load(ctx)
	default:
		return nil, fmt.Errorf("unknown catalog source %q", src)
	}
}

// catalogStore connects to the database on first use and migrates the trails table.
func (a *app) catalogStore(ctx context.Context) (*catalog.Store, error) {
	if a.db == nil {
		m := database.NewManager(logging.NewZerolog(a.rawOutput(), a.level, "database"))
		if err := m.Connect(ctx, database.SettingsFromConfig()); err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.db = m
	}
	store := catalog.NewStore(a.db.DB)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// openSource picks the asset origin: the HTTP base URL when set, the local
// directory otherwise.
func (a *app) openSource() fetch.Source {
	if a.source != nil {
		return a.source
	}
	cfg := config.GetAssetsConfig()
	if cfg.BaseURL != "" {
		client := fetch.New(cfg.BaseURL, cfg.Timeout)
		a.source = client
		a.healthcheck = client.Healthcheck
		a.logger.Info("Fetching assets over HTTP", "baseUrl", cfg.BaseURL)
	} else {
		a.source = fetch.NewDirSource(cfg.Dir)
		a.logger.Info("Reading assets from disk", "dir", cfg.Dir)
	}
	return a.source
}

// openSession builds the map session over the configured catalog and assets.
func (a *app) openSession(ctx context.Context) (*loader.Session, error) {
	cat, err := a.openCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	opts := loader.Options{
		Concurrency: config.GetRoutesConfig().Concurrency,
		Logger:      a.logger,
		Reporter:    a.reporter,
	}
	if a.influx != nil {
		opts.Recorder = a.influx
	}

	session, err := loader.NewSession(cat, a.openSource(), opts)
	if err != nil {
		return nil, err
	}
	a.session.Store(session)

	a.logger.Info("Session started", "session", session.ID(), "trails", cat.Len())
	return session, nil
}

// Close flushes and releases everything newApp opened.
func (a *app) Close(ctx context.Context) {
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}
	a.reporter.Flush(2 * time.Second)

	if err := a.logs.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shut down OTel: %v\n", err)
	}
	if a.graylog != nil {
		_ = a.graylog.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
