// Package postgresql provides a persistence.Store backed by PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/dukex/procshift/pkg/persistence/sqlbase"
)

// Store implements persistence.Store on PostgreSQL. Each process instance is
// spread over one row per record, and every commit runs in one transaction
// holding a row lock on the instance.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects to databaseURL and brings the schema up to date.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:     database,
		logger: logger.With("module", "postgresql_store"),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// InstanceIDsByDefinition returns the ids of every instance bound to definitionID.
func (s *Store) InstanceIDsByDefinition(ctx context.Context, definitionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM process_instances WHERE definition_id = $1 ORDER BY id", definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() { _ = rows.Close() }()

	ids := []string{}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan instance id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instances: %w", err)
	}

	return ids, nil
}
