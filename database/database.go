package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDatabaseUnreachable is returned by InitDB when the pool opened but the
// first ping failed. The returned *sql.DB is still usable once the server
// comes up.
var ErrDatabaseUnreachable = errors.New("database unreachable")

// InitDB initializes the database connection
func InitDB(dataSourceName string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return db, fmt.Errorf("%w: %w", ErrDatabaseUnreachable, err)
	}

	logger.Info("connected to PostgreSQL database")
	return db, nil
}

// EnsureSchema applies the embedded migrations. The table is created with
// IF NOT EXISTS, so running against a database that already holds
// sent_emails is a no-op.
func EnsureSchema(databaseURL string, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrate instance", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("sent_emails table ready, no migrations to apply")
		return nil
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("sent_emails table ready, migrations applied")
	return nil
}
