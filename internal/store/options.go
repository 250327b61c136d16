package store

import (
	"log/slog"
	"strings"
)

// Opts holds configuration options for the store backends.
type Opts struct {
	DSN    string // database connection string or SQLite file path
	Driver string // "postgres" or "sqlite3"; empty means auto-detect
}

// Option defines a configuration option for the store backends.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithPostgresDSN selects the PostgreSQL backend with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// WithDSN sets a connection string and lets New pick the backend from its shape.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and
// "sqlite3" for anything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend selected by the options. Without a DSN it returns an
// in-memory store.
func New(opts ...Option) (Backend, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDSNType(cfg.DSN)
	}
	slog.Debug("store.New: opening backend", "driver", driver)
	if driver == "postgres" {
		return NewPostgresStore(WithPostgresDSN(cfg.DSN))
	}
	return NewSQLiteStore(WithSQLiteDSN(cfg.DSN))
}
