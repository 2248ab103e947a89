package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"toolshed-backend/internal/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies every pending up migration. An empty path uses the
// migrations embedded in the binary; otherwise path is a directory on disk.
func RunMigrations(db *sql.DB, path string) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres driver: %w", err)
	}

	var m *migrate.Migrate
	if path == "" {
		src, err := iofs.New(migrationFS, "migrations")
		if err != nil {
			return fmt.Errorf("opening embedded migrations: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
		if err != nil {
			return fmt.Errorf("creating migrate instance: %w", err)
		}
	} else {
		m, err = migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", path), "postgres", driver)
		if err != nil {
			return fmt.Errorf("creating migrate instance: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations applied", "version", version, "dirty", dirty)
	return nil
}
