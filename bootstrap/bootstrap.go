// Package bootstrap wires configuration, the schema, storage and the
// transaction handle into a ready App.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/scopedb/adapters/idgen"
	"github.com/artpar/scopedb/adapters/memory"
	"github.com/artpar/scopedb/adapters/metrics"
	"github.com/artpar/scopedb/adapters/sqlite"
	"github.com/artpar/scopedb/config"
	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/core/txn"
	"github.com/artpar/scopedb/ports"
)

// ErrNotMigrated is returned when a SQLite database has no recorded schema
// and Options.Migrate is false.
var ErrNotMigrated = errors.New("database has no schema; run migrate")

// App is a wired scopedb instance.
type App struct {
	Logger   zerolog.Logger
	Schema   *schema.Validated
	DB       *sqlite.DB // nil for the memory driver
	Handle   *txn.Handle
	Metrics  *metrics.Collector // nil unless metrics are enabled
	Registry *prometheus.Registry

	cfg    *config.Config
	holder *config.Holder
	ids    ports.IDGenerator
}

// Options configures New.
type Options struct {
	// ConfigPath is loaded through a config.Holder. Ignored if Config is set.
	ConfigPath string
	Config     *config.Config

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Migrate creates missing tables. Without it a SQLite database must
	// already hold the configured schema.
	Migrate bool

	// Watch reloads the config on file change and SIGHUP.
	Watch bool

	// Metrics collects metrics even when the config does not enable them.
	Metrics bool

	// IDs generates transaction ids. Defaults to idgen.UUID.
	IDs ports.IDGenerator
}

// New loads the configuration and schema, opens storage and returns an App
// holding one transaction handle.
func New(ctx context.Context, opts Options) (*App, error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}

	a := &App{ids: opts.IDs}
	if a.ids == nil {
		a.ids = idgen.UUID{}
	}

	cfg := opts.Config
	if cfg == nil {
		h, err := config.NewHolder(opts.ConfigPath, zerolog.Nop())
		if err != nil {
			return nil, err
		}
		a.holder = h
		cfg = h.Get()
	}
	a.cfg = cfg

	a.Logger = NewLogger(cfg.Logging, out)
	a.Logger.Debug().Str("driver", cfg.Database.Driver).Msg("initializing scopedb")

	if cfg.Metrics.Enabled || opts.Metrics {
		a.Registry = prometheus.NewRegistry()
		a.Metrics = metrics.NewWithRegistry(a.Registry)
	}

	s, err := LoadSchema(cfg.Schema.Paths)
	a.Metrics.SchemaRegistered(err)
	if err != nil {
		a.stopHolder()
		return nil, fmt.Errorf("load schema: %w", err)
	}
	a.Schema = s
	a.Logger.Debug().
		Int("tables", len(s.Tables())).
		Str("fingerprint", s.Fingerprint()).
		Msg("schema registered")

	if err := a.initStorage(ctx, cfg, opts.Migrate); err != nil {
		a.stopHolder()
		return nil, err
	}

	if a.holder != nil {
		a.holder.SetLogger(a.Logger)
		if a.Metrics != nil {
			a.holder.Instrument(a.Metrics.ConfigReloads, a.Metrics.ConfigReloadErrors)
		}
		a.holder.OnChange(a.applyConfig)
		if opts.Watch {
			if err := a.holder.WatchFile(); err != nil {
				a.Logger.Warn().Err(err).Msg("config file watch unavailable")
			}
			a.holder.WatchSignals()
		}
	}

	return a, nil
}

// LoadSchema parses the declaration files at paths and registers them.
// On failure the error carries every diagnostic.
func LoadSchema(paths []string) (*schema.Validated, error) {
	desc, err := schema.ParsePaths(paths...)
	if err != nil {
		return nil, err
	}
	return schema.RegisterSchema(desc)
}

func (a *App) initStorage(ctx context.Context, cfg *config.Config, migrate bool) error {
	switch cfg.Database.Driver {
	case "memory":
		a.Handle = txn.NewHandle(memory.NewStore(a.Schema).Connect())
		return nil
	case "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}

	if migrate {
		err = db.EnsureSchema(ctx, a.Schema)
	} else {
		err = checkRecorded(ctx, db, a.Schema)
	}
	if err != nil {
		db.Close()
		return err
	}

	conn, err := sqlite.Connect(ctx, db, a.Logger)
	if err != nil {
		db.Close()
		return err
	}

	a.DB = db
	a.Handle = txn.NewHandle(conn)
	a.Logger.Debug().Str("dsn", cfg.Database.DSN).Msg("database initialized")
	return nil
}

func checkRecorded(ctx context.Context, db *sqlite.DB, s *schema.Validated) error {
	fp, err := db.RecordedFingerprint(ctx)
	if err != nil {
		return err
	}
	switch fp {
	case "":
		return ErrNotMigrated
	case s.Fingerprint():
		return nil
	default:
		return fmt.Errorf("%w: recorded %s, configured %s", sqlite.ErrSchemaMismatch, fp, s.Fingerprint())
	}
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	if a.holder != nil {
		return a.holder.Get()
	}
	return a.cfg
}

// Begin opens a transaction on the App's handle, waiting at most the
// configured open timeout for the handle.
func (a *App) Begin(ctx context.Context, writable bool) (*txn.Transaction, error) {
	if d := a.Config().Transaction.OpenTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	opts := txn.Options{
		Writable: writable,
		Logger:   a.Logger,
		IDs:      a.ids,
	}
	if a.Metrics != nil {
		opts.Metrics = a.Metrics
	}
	return txn.Open(ctx, a.Handle, a.Schema, opts)
}

// Close releases the handle and the database.
func (a *App) Close() error {
	a.stopHolder()

	var errs []error
	if a.Handle != nil {
		if err := a.Handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close handle: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	a.Logger.Debug().Msg("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) stopHolder() {
	if a.holder != nil {
		a.holder.Stop()
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Logging.Level))
}

// NewLogger builds the process logger. The level is applied globally so a
// config reload can change it.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}
