package boltdb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/persistence/boltdb"
	"github.com/dukex/procshift/pkg/persistence/persistencetest"
	"github.com/dukex/procshift/pkg/testutil"
)

func openStore(t *testing.T, path string) *boltdb.Store {
	t.Helper()

	store, err := boltdb.Open(context.Background(), path)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store
}

func TestStore(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return openStore(t, filepath.Join(t.TempDir(), "procshift.db"))
	})
}

func TestStore_ReindexesMigratedInstances(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, "bolt://"+filepath.Join(t.TempDir(), "procshift.db"))

	s := testutil.CreateTestSnapshot()
	require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))

	before, err := store.LoadSnapshot(ctx, s.Instance.ID)
	require.NoError(t, err)

	after := before.Clone()
	after.Instance.DefinitionID = "process:2"
	require.NoError(t, store.Commit(ctx, models.Diff(before, after)))

	ids, err := store.InstanceIDsByDefinition(ctx, "process:1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = store.InstanceIDsByDefinition(ctx, "process:2")
	require.NoError(t, err)
	assert.Equal(t, []string{s.Instance.ID}, ids)
}

func TestOpen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := boltdb.Open(ctx, filepath.Join(t.TempDir(), "procshift.db"))
	assert.ErrorIs(t, err, context.Canceled)
}
