package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/persistence/persistencetest"
	"github.com/dukex/procshift/pkg/testutil"
)

func TestStore(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return NewStore(t.TempDir())
	})
}

func TestNewStore(t *testing.T) {
	assert.Equal(t, "/tmp/test", NewStore("/tmp/test").root)
	assert.Equal(t, "/tmp/test", NewStore("file:///tmp/test").root)
}

func TestStore_WritesOneDocumentPerInstance(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	s := testutil.CreateTestSnapshot()

	require.NoError(t, store.Commit(t.Context(), models.Diff(nil, s)))

	entries, err := os.ReadDir(filepath.Join(dir, "instances"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, s.Instance.ID+".json", entries[0].Name())
}

func TestStore_RejectsUnsafeInstanceIDs(t *testing.T) {
	store := NewStore(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := store.LoadSnapshot(t.Context(), id)
		require.Error(t, err, id)
		assert.ErrorIs(t, err, persistence.ErrInvalidInstanceID)

		err = store.Commit(t.Context(), &models.Changeset{InstanceID: id})
		assert.ErrorIs(t, err, persistence.ErrInvalidInstanceID)
	}
}

func TestStore_HealthCheck(t *testing.T) {
	assert.NoError(t, NewStore(t.TempDir()).HealthCheck(t.Context()))
	assert.Error(t, NewStore(filepath.Join(t.TempDir(), "missing")).HealthCheck(t.Context()))
	assert.NoError(t, NewStore(t.TempDir()).Close(t.Context()))
}
