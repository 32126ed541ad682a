package postgres

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers pgx5://
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies the embedded schema migrations
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens a migration session for a postgres:// or
// postgresql:// URL DSN.
func NewMigrator(dsn string, logger *slog.Logger) (*Migrator, error) {
	migrateURL, err := toMigrateURL(dsn)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open embedded migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize migrator")
	}
	if logger != nil {
		m.Log = &migrateLogger{logger: logger}
	}

	return &Migrator{m: m}, nil
}

// Up applies all pending migrations. Being already current is not an error.
func (x *Migrator) Up() error {
	if err := x.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return goerr.Wrap(err, "failed to apply migrations")
	}
	return nil
}

// Version returns the applied schema version. ok is false when no
// migration has been applied yet.
func (x *Migrator) Version() (version uint, dirty bool, ok bool, err error) {
	version, dirty, err = x.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, goerr.Wrap(err, "failed to read schema version")
	}
	return version, dirty, true, nil
}

func (x *Migrator) Close() error {
	srcErr, dbErr := x.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return goerr.Wrap(err, "failed to close migrator")
	}
	return nil
}

func toMigrateURL(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse postgres DSN")
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", goerr.New("postgres DSN must be a postgres:// URL", goerr.V("scheme", u.Scheme))
	}
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
