// Package bootstrap wires all dependencies behind the command line
// surfaces. Configuration comes from afwizard.yaml with AFWIZARD_*
// environment overrides.
package bootstrap

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/adapters/clock"
	"github.com/ssciwr/afwizard/adapters/lastools"
	"github.com/ssciwr/afwizard/adapters/opals"
	"github.com/ssciwr/afwizard/adapters/pdal"
	"github.com/ssciwr/afwizard/adapters/sqlite"
	"github.com/ssciwr/afwizard/adapters/workspace"
	"github.com/ssciwr/afwizard/app"
	"github.com/ssciwr/afwizard/config"
	"github.com/ssciwr/afwizard/core/registry"
	"github.com/ssciwr/afwizard/core/schema"
	"github.com/ssciwr/afwizard/ports"
)

// App represents the running application.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *sqlite.DB
	Backends  *registry.Registry
	Union     *schema.Union
	Libraries *app.LibraryRegistry
	Engine    *app.Engine
	Workspace *workspace.Workspace
	Journal   ports.Journal

	logFile *os.File
}

// New creates and initializes the application from the given
// configuration.
func New(cfg *config.Config) (*App, error) {
	logger, sink, logFile, err := setupLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		logFile: logFile,
	}

	logger.Debug().Msg("initializing afwizard")

	a.Workspace = workspace.New()

	if err := a.initBackends(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initLibraries(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initJournal(); err != nil {
		a.Close()
		return nil, err
	}

	ops := pdal.NewDatasetOps(cfg.Backends.PDAL.Executable, a.Workspace, logger)
	a.Engine = app.NewEngine(app.EngineDeps{
		Backends:  a.Backends,
		Ops:       ops,
		Libraries: a.Libraries,
		Workspace: a.Workspace,
		Journal:   a.Journal,
		Clock:     clock.System{},
		LogSink:   sink,
	}, logger)

	return a, nil
}

// initBackends registers the filtering toolchains and composes the
// variant schema over the enabled ones.
func (a *App) initBackends() error {
	reg := registry.New()
	backends := []ports.Backend{
		pdal.NewBackend(a.Config.Backends.PDAL.Executable, a.Workspace, a.Logger),
		lastools.NewBackend(a.Config.Backends.LASTools.Dir, a.Workspace, a.Logger),
		opals.NewBackend(a.Config.Backends.OPALS.Dir, a.Workspace, a.Logger),
	}
	for _, b := range backends {
		if err := reg.Register(b); err != nil {
			return fmt.Errorf("register backend: %w", err)
		}
		a.Logger.Debug().
			Str("backend", b.Identifier()).
			Bool("enabled", b.Enabled()).
			Msg("backend registered")
	}
	a.Backends = reg

	enabled := reg.Enabled()
	union, err := schema.Compose(enabled)
	if err != nil {
		return fmt.Errorf("compose backend schemas: %w", err)
	}
	a.Union = union

	a.Logger.Info().
		Int("enabled", len(enabled)).
		Int("variants", len(union.Variants())).
		Msg("filtering backends ready")
	return nil
}

// initLibraries builds the filter library session from the defaults and
// the configured directories.
func (a *App) initLibraries() error {
	libraries := app.NewLibraryRegistry(a.Union, a.Logger)
	for _, lib := range a.Config.Libraries {
		opts := app.LibraryOptions{Recursive: lib.Recursive, Name: lib.Name}
		if _, err := libraries.Add(lib.Path, opts); err != nil {
			a.Logger.Warn().Err(err).Str("path", lib.Path).Msg("skipping configured library")
		}
	}
	if a.Config.CurrentLibrary != "" {
		if err := libraries.SetCurrent(a.Config.CurrentLibrary, false, ""); err != nil {
			return fmt.Errorf("current library: %w", err)
		}
	}
	a.Libraries = libraries
	return nil
}

// initJournal opens the execution journal database when enabled.
func (a *App) initJournal() error {
	if !a.Config.Journal.Enabled {
		return nil
	}

	if a.Config.DataDir != "" {
		if err := os.MkdirAll(a.Config.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	path := a.Config.JournalPath()
	db, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate journal: %w", err)
	}

	a.DB = db
	a.Journal = sqlite.NewJournalStore(db)
	a.Logger.Info().Str("path", path).Msg("execution journal initialized")
	return nil
}

// Close releases the journal database, the session workspace and the
// log file.
func (a *App) Close() error {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("journal close error")
		}
	}
	if a.Workspace != nil {
		if err := a.Workspace.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("workspace close error")
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return nil
}

// setupLogger builds the process logger. The returned writer carries the
// full log stream and is additionally handed to the engine, which tees
// per-run output into the run's output directory.
func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, io.Writer, *os.File, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var logFile *os.File
	if cfg.File != "" {
		logFile, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, logFile)
	}

	return zerolog.New(out).With().Timestamp().Logger(), out, logFile, nil
}
