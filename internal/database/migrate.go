package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloo-solutions/unirank/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DefaultMigrationsSource is where migrations live relative to the working directory.
const DefaultMigrationsSource = "file://migrations"

// MigrationStatus reports the schema version after a migration run.
type MigrationStatus struct {
	Version uint
	Changed bool
}

// Migrate applies pending migrations (steps == 0) or rolls back |steps| migrations
// when steps is negative.
func Migrate(databaseURL, source string, steps int, logger *slog.Logger) (*MigrationStatus, error) {
	logger = logging.OrDiscard(logger)
	if source == "" {
		source = DefaultMigrationsSource
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if steps < 0 {
		err = m.Steps(steps)
	} else {
		err = m.Up()
	}
	changed := err == nil
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("migrations: database has no applied migrations")
		return &MigrationStatus{Changed: changed}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return nil, fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}

	if changed {
		logger.Info("migrations: applied successfully", slog.Uint64("version", uint64(version)))
	} else {
		logger.Info("migrations: database is up to date", slog.Uint64("version", uint64(version)))
	}
	return &MigrationStatus{Version: version, Changed: changed}, nil
}
