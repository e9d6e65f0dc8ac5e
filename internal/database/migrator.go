package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// MigrationsTable records the applied comment_threads schema version.
const MigrationsTable = "schema_migrations"

// Migrator applies the SQL files under migrations/ to a DB.
type Migrator struct {
	m      *migrate.Migrate
	sqlDB  *sql.DB
	logger zerolog.Logger
}

// NewMigrator reads migrations from dir and binds them to db's pool.
func NewMigrator(db *DB, dir string, logger zerolog.Logger) (*Migrator, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("database is required")
	case db.pool == nil:
		return nil, fmt.Errorf("database pool not initialized")
	case dir == "":
		return nil, fmt.Errorf("migrations path is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations path %q: %w", dir, err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{
		m:      m,
		sqlDB:  sqlDB,
		logger: logger.With().Str("migrations", dir).Logger(),
	}, nil
}

// apply runs one migrate action. Having nothing left to do is not an error.
func (mg *Migrator) apply(action string, fn func() error) error {
	err := fn()
	switch {
	case err == nil:
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, os.ErrNotExist):
		mg.logger.Info().Str("action", action).Msg("schema already at target version")
		return nil
	default:
		return fmt.Errorf("migrate %s: %w", action, err)
	}

	v, dirty, verr := mg.m.Version()
	mg.logger.Info().
		Str("action", action).
		Uint("version", v).
		Bool("dirty", dirty).
		AnErr("version_error", verr).
		Msg("comment_threads schema migrated")
	return nil
}

// Up applies every pending migration.
func (mg *Migrator) Up() error {
	return mg.apply("up", mg.m.Up)
}

// Down reverts every applied migration, dropping comment_threads.
func (mg *Migrator) Down() error {
	return mg.apply("down", mg.m.Down)
}

// Steps moves n migrations forward, or back when n is negative.
func (mg *Migrator) Steps(n int) error {
	return mg.apply(fmt.Sprintf("steps %d", n), func() error { return mg.m.Steps(n) })
}

// Version returns the applied version. migrate.ErrNilVersion means none.
func (mg *Migrator) Version() (uint, bool, error) {
	return mg.m.Version()
}

// Force records version as applied and clears the dirty flag without
// running any SQL.
func (mg *Migrator) Force(version int) error {
	mg.logger.Warn().Int("version", version).Msg("forcing schema version")
	return mg.m.Force(version)
}

// Close releases the source and the database/sql wrapper over the pool.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if mg.sqlDB != nil {
		dbErr = errors.Join(dbErr, mg.sqlDB.Close())
	}
	if err := errors.Join(srcErr, dbErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}
