package runtime

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/lock"
	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence/memory"
	"github.com/dukex/procshift/pkg/testutil"
	"github.com/dukex/procshift/pkg/tree"
)

var now = time.Date(2016, 2, 10, 8, 0, 0, 0, time.UTC)

func setupEngine(t *testing.T, docs ...definition.Document) (*Engine, *memory.Store) {
	t.Helper()

	registry := definition.NewRegistry(slog.Default())
	for _, doc := range docs {
		require.NoError(t, registry.Register(definition.MustNew(doc)))
	}

	store := memory.NewStore()

	return NewEngine(registry, store, lock.NewLocal(), WithClock(func() time.Time { return now })), store
}

func TestEngine_StartAndComplete(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEngine(t, testutil.UserTaskProcess("process"))

	s, err := engine.Start(ctx, "process:1", map[string]any{"customer": "ACME"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Instance.Revision)
	assert.Equal(t, models.InstanceStateActive, s.Instance.State)
	assert.Equal(t, map[string]any{"customer": "ACME"}, s.Variables[s.Instance.ID])

	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect("userTask").AsNonScope()).AsScope(),
	))
	assert.True(t, tree.DescribeActivityInstances(s).Matches(
		tree.Expect("process:1", tree.Expect("userTask")).WithID(s.Instance.ID),
	))

	task := testutil.ActivityInstanceAt(s, "userTask")

	ended, err := engine.Complete(ctx, s.Instance.ID, task.ID)
	require.NoError(t, err)
	assert.True(t, ended.Instance.IsEnded())
	require.NotNil(t, ended.Instance.EndedAt)
	assert.Equal(t, now, *ended.Instance.EndedAt)
	assert.Empty(t, ended.Executions)
	assert.Empty(t, ended.ActivityInstances)

	loaded, err := store.LoadSnapshot(ctx, s.Instance.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Instance.Revision)
	assert.True(t, loaded.Instance.IsEnded())

	_, err = engine.Complete(ctx, s.Instance.ID, task.ID)
	assert.ErrorIs(t, err, ErrInstanceEnded)
}

func TestEngine_Complete_Errors(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t, testutil.BoundaryEventProcess("process", models.EventKindMessage))

	s, err := engine.Start(ctx, "process:1", nil)
	require.NoError(t, err)

	_, err = engine.Complete(ctx, s.Instance.ID, "missing")
	assert.ErrorIs(t, err, ErrActivityInstanceNotFound)
	assert.True(t, IsNotFound(err))

	_, err = engine.CorrelateMessage(ctx, s.Instance.ID, "Unknown")
	assert.ErrorIs(t, err, ErrNoMatchingSubscription)

	_, err = engine.ExecuteJob(ctx, s.Instance.ID, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestEngine_BoundaryMessage(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t, testutil.BoundaryEventProcess("process", models.EventKindMessage))

	s, err := engine.Start(ctx, "process:1", nil)
	require.NoError(t, err)

	task := testutil.ExecutionAt(s, "userTask")
	assert.True(t, task.IsScope)
	require.Len(t, s.EventSubscriptions, 1)

	for _, sub := range s.EventSubscriptions {
		assert.Equal(t, "boundary", sub.ActivityID)
		assert.Equal(t, task.ID, sub.ExecutionID)
		assert.Equal(t, testutil.MessageName, sub.EventName)
	}

	s, err = engine.CorrelateMessage(ctx, s.Instance.ID, testutil.MessageName)
	require.NoError(t, err)

	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect("afterBoundaryTask")),
	))
	assert.Empty(t, s.EventSubscriptions)
}

func TestEngine_NonInterruptingBoundary(t *testing.T) {
	ctx := context.Background()

	doc := testutil.BoundaryEventProcess("process", models.EventKindSignal)
	doc.Activities[3].NonInterrupting = true

	engine, _ := setupEngine(t, doc)

	s, err := engine.Start(ctx, "process:1", nil)
	require.NoError(t, err)

	s, err = engine.SendSignal(ctx, s.Instance.ID, testutil.SignalName)
	require.NoError(t, err)

	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect("userTask"), tree.Expect("afterBoundaryTask")),
	))
	assert.Len(t, s.EventSubscriptions, 1)
}

func TestEngine_BoundaryTimer(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t, testutil.BoundaryEventProcess("process", models.EventKindTimer))

	s, err := engine.Start(ctx, "process:1", nil)
	require.NoError(t, err)
	require.Len(t, s.Jobs, 1)

	var job models.Job
	for _, j := range s.Jobs {
		job = j
	}

	due, _ := time.Parse(time.RFC3339, testutil.TimerDate)
	assert.Equal(t, due, job.DueTime)
	assert.Equal(t, models.JobKindTimer, job.Kind)

	s, err = engine.ExecuteJob(ctx, s.Instance.ID, job.ID)
	require.NoError(t, err)

	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect("afterBoundaryTask")),
	))
	assert.Empty(t, s.Jobs)
}

func TestEngine_ParallelBranches(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t, testutil.ParallelTasksProcess("process"))

	s, err := engine.Start(ctx, "process:1", nil)
	require.NoError(t, err)

	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect("userTask1"), tree.Expect("userTask2")),
	))

	s, err = engine.Complete(ctx, s.Instance.ID, testutil.ActivityInstanceAt(s, "userTask1").ID)
	require.NoError(t, err)
	assert.False(t, s.Instance.IsEnded())

	s, err = engine.Complete(ctx, s.Instance.ID, testutil.ActivityInstanceAt(s, "userTask2").ID)
	require.NoError(t, err)
	assert.True(t, s.Instance.IsEnded())
}

func TestEngine_SubProcess(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t, testutil.SubProcessProcess("process"))

	s, err := engine.Start(ctx, "process:1", nil)
	require.NoError(t, err)

	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect("subProcess", tree.Expect("userTask").AsNonScope()).AsScope()),
	))
	assert.True(t, tree.DescribeActivityInstances(s).Matches(
		tree.Expect("process:1", tree.Expect("subProcess", tree.Expect("userTask"))),
	))

	s, err = engine.Complete(ctx, s.Instance.ID, testutil.ActivityInstanceAt(s, "userTask").ID)
	require.NoError(t, err)
	assert.True(t, s.Instance.IsEnded())
}

func TestEngine_MultiInstance(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t, testutil.MultiInstanceProcess("process", 3))

	s, err := engine.Start(ctx, "process:1", nil)
	require.NoError(t, err)

	body := definition.MultiInstanceBodyID("userTask")
	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect(body, tree.Expect("userTask"), tree.Expect("userTask"), tree.Expect("userTask")).AsScope()),
	))

	for range 2 {
		s, err = engine.Complete(ctx, s.Instance.ID, testutil.ActivityInstanceAt(s, "userTask").ID)
		require.NoError(t, err)
		assert.False(t, s.Instance.IsEnded())
	}

	s, err = engine.Complete(ctx, s.Instance.ID, testutil.ActivityInstanceAt(s, "userTask").ID)
	require.NoError(t, err)
	assert.True(t, s.Instance.IsEnded())
}

func TestEngine_StartAt(t *testing.T) {
	ctx := context.Background()
	engine, _ := setupEngine(t, testutil.SubProcessProcess("process"), testutil.ParallelTasksProcess("parallel"))

	s, err := engine.StartAt(ctx, "process:1", []string{"userTask"}, nil)
	require.NoError(t, err)
	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect("subProcess", tree.Expect("userTask"))),
	))

	s, err = engine.StartAt(ctx, "parallel:1", []string{"userTask1", "userTask2"}, nil)
	require.NoError(t, err)
	assert.True(t, tree.DescribeExecutions(s).Matches(
		tree.Expect("", tree.Expect("userTask1"), tree.Expect("userTask2")),
	))

	_, err = engine.StartAt(ctx, "process:1", []string{"missing"}, nil)
	assert.ErrorIs(t, err, definition.ErrActivityNotFound)
}

func TestEngine_StartUnknownDefinition(t *testing.T) {
	engine, _ := setupEngine(t)

	_, err := engine.Start(context.Background(), "missing:1", nil)
	assert.True(t, errors.Is(err, definition.ErrDefinitionNotFound))
}
