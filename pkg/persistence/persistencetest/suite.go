// Package persistencetest provides a conformance suite shared by every
// persistence.Store implementation.
package persistencetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/testutil"
)

// Run exercises store against the persistence.Store contract. newStore must
// return an empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) persistence.Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("load missing instance", func(t *testing.T) {
		store := newStore(t)

		_, err := store.LoadSnapshot(ctx, "missing")
		require.Error(t, err)
		assert.True(t, persistence.IsInstanceNotFound(err))
	})

	t.Run("create and load", func(t *testing.T) {
		store := newStore(t)
		s := testutil.CreateTestSnapshot()

		require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))

		loaded, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)

		s.Instance.Revision = 1
		assertSnapshotEqual(t, s, loaded)
	})

	t.Run("create twice conflicts", func(t *testing.T) {
		store := newStore(t)
		s := testutil.CreateTestSnapshot()

		require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))

		err := store.Commit(ctx, models.Diff(nil, s))
		require.Error(t, err)
		assert.True(t, persistence.IsConflict(err))
	})

	t.Run("update applies every table", func(t *testing.T) {
		store := newStore(t)
		s := testutil.CreateTestSnapshot(testutil.WithTimerJob("timer", testutil.StartedAt.Add(time.Hour)))
		require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))

		before, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)

		after := before.Clone()
		after.Instance.DefinitionID = "process:2"

		task := testutil.ExecutionAt(after, "userTask")
		task.DefinitionID = "process:2"
		after.Executions[task.ID] = task

		for id, sub := range after.EventSubscriptions {
			sub.ActivityID = "newBoundary"
			after.EventSubscriptions[id] = sub
		}

		for id := range after.Jobs {
			delete(after.Jobs, id)
		}

		after.Variables[task.VariableScopeID] = map[string]any{
			"approved": true,
			"amount":   12.5,
			"tags":     []any{"a", "b"},
			"nested":   map[string]any{"key": "value"},
		}

		require.NoError(t, store.Commit(ctx, models.Diff(before, after)))

		loaded, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)

		after.Instance.Revision = 2
		assertSnapshotEqual(t, after, loaded)
	})

	t.Run("stale revision leaves state untouched", func(t *testing.T) {
		store := newStore(t)
		s := testutil.CreateTestSnapshot()
		require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))

		before, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)

		stale := before.Clone()
		stale.Instance.Revision = 0

		changed := before.Clone()
		changed.Instance.DefinitionID = "process:2"
		for id := range changed.EventSubscriptions {
			delete(changed.EventSubscriptions, id)
		}

		err = store.Commit(ctx, models.Diff(stale, changed))
		require.Error(t, err)
		assert.True(t, persistence.IsConflict(err))

		reloaded, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)
		assertSnapshotEqual(t, before, reloaded)
	})

	t.Run("concurrent commits on one revision", func(t *testing.T) {
		store := newStore(t)
		s := testutil.CreateTestSnapshot()
		require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))

		before, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)

		const writers = 8

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			conflicts int
		)

		for i := range writers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				after := before.Clone()
				after.Variables[after.Instance.ID] = map[string]any{"writer": float64(i)}

				err := store.Commit(ctx, models.Diff(before, after))

				mu.Lock()
				defer mu.Unlock()

				switch {
				case err == nil:
					succeeded++
				case persistence.IsConflict(err):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}

		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, writers-1, conflicts)

		loaded, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), loaded.Instance.Revision)
	})

	t.Run("instance ids by definition", func(t *testing.T) {
		store := newStore(t)

		first := testutil.CreateTestSnapshot()
		second := testutil.CreateTestSnapshot()
		other := testutil.CreateTestSnapshot(func(s *models.Snapshot) {
			s.Instance.DefinitionID = "other:1"
		})

		for _, s := range []*models.Snapshot{first, second, other} {
			require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))
		}

		ids, err := store.InstanceIDsByDefinition(ctx, "process:1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{first.Instance.ID, second.Instance.ID}, ids)

		ids, err = store.InstanceIDsByDefinition(ctx, "unknown:1")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("ended instance keeps its record", func(t *testing.T) {
		store := newStore(t)
		s := testutil.CreateTestSnapshot()
		require.NoError(t, store.Commit(ctx, models.Diff(nil, s)))

		before, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)

		ended := models.NewSnapshot(before.Instance)
		endedAt := testutil.StartedAt.Add(time.Hour)
		ended.Instance.State = models.InstanceStateEnded
		ended.Instance.EndedAt = &endedAt

		require.NoError(t, store.Commit(ctx, models.Diff(before, ended)))

		loaded, err := store.LoadSnapshot(ctx, s.Instance.ID)
		require.NoError(t, err)
		assert.True(t, loaded.Instance.IsEnded())
		assert.Empty(t, loaded.Executions)
		assert.Empty(t, loaded.EventSubscriptions)
		assert.Empty(t, loaded.Variables)
	})

	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, newStore(t).HealthCheck(ctx))
	})
}

func assertSnapshotEqual(t *testing.T, expected, actual *models.Snapshot) {
	t.Helper()

	if !expected.Equal(actual) {
		assert.Equal(t, expected, actual)
	}
}
