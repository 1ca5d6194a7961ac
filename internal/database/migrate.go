package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"slotswap/internal/middleware"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// newMigrator binds golang-migrate to the pool behind db. The returned
// instance must not be closed: closing it would close the shared pool.
func newMigrator(db *gorm.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migration files: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}

// RunMigrations applies every pending embedded SQL migration.
func RunMigrations(db *gorm.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	if dirty {
		middleware.Logger.Warn("database migration is dirty", slog.Uint64("version", uint64(version)))
	} else {
		middleware.Logger.Info("database migrations applied", slog.Uint64("version", uint64(version)))
	}
	return nil
}

// RollbackMigrations reverts the most recent steps migrations.
func RollbackMigrations(db *gorm.DB, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback %d migration(s): %w", steps, err)
	}
	middleware.Logger.Info("database migrations rolled back", slog.Int("steps", steps))
	return nil
}

// MigrationVersion reports the applied schema version. A database that has
// never been migrated reports version 0.
func MigrationVersion(db *gorm.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// AvailableMigrations lists the versions embedded in the binary, ascending.
func AvailableMigrations() ([]uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	defer source.Close()

	var versions []uint
	v, err := source.First()
	for err == nil {
		versions = append(versions, v)
		v, err = source.Next(v)
	}
	return versions, nil
}
