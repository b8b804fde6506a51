package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/persistence/persistencetest"
	"github.com/dukex/procshift/pkg/persistence/postgresql"
	"github.com/dukex/procshift/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"variables", "jobs", "event_subscriptions", "activity_instances", "executions", "process_instances", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Store, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("procshift_test"),
			postgres.WithUsername("procshift"),
			postgres.WithPassword("procshift"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewStore(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, store.Close(ctx))
		dropDb(ctx, t, databaseURL)
		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewStore_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	for _, table := range []string{"process_instances", "executions", "activity_instances", "event_subscriptions", "jobs", "variables", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewStore_MigrationsAreIdempotent(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewStore(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))
}

func TestStore(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		t.Helper()

		store, _, _ := setupTestDB(t)

		return store
	})
}

func TestStore_EndedAtRoundTrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	s := testutil.CreateTestSnapshot(func(s *models.Snapshot) {
		endedAt := testutil.StartedAt.Add(90 * time.Minute)
		s.Instance.State = models.InstanceStateEnded
		s.Instance.EndedAt = &endedAt
		s.Instance.BusinessKey = "order-42"
	})

	require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))

	loaded, err := store.LoadSnapshot(ctx, s.Instance.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Instance.EndedAt)
	assert.True(t, s.Instance.EndedAt.Equal(*loaded.Instance.EndedAt))
	assert.Equal(t, "order-42", loaded.Instance.BusinessKey)
}
