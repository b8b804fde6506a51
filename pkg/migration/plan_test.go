package migration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/testutil"
)

func mustDefinition(t *testing.T, doc definition.Document) *definition.Definition {
	t.Helper()

	def, err := definition.New(doc)
	require.NoError(t, err)

	return def
}

func requireViolation(t *testing.T, err error, kind ViolationKind) *ValidationError {
	t.Helper()

	require.Error(t, err)
	assert.True(t, IsPlanInvalid(err))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has(kind), "expected %s in:\n%v", kind, verr)

	return verr
}

func TestNewPlan_Valid(t *testing.T) {
	source := mustDefinition(t, testutil.BoundaryEventProcess("process", models.EventKindMessage))
	target := definition.Modify(source).WithVersion(2).ChangeActivityID("boundary", "newBoundary").MustDone()

	plan, err := NewPlan(source, target, []Instruction{
		{SourceActivityID: "userTask", TargetActivityID: "userTask"},
		{SourceActivityID: "boundary", TargetActivityID: "newBoundary", Variables: map[string]any{"k": "v"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ID())
	assert.Equal(t, "process:1", plan.SourceDefinitionID())
	assert.Equal(t, "process:2", plan.TargetDefinitionID())
	assert.False(t, plan.CreatedAt().IsZero())

	in, ok := plan.InstructionFor("boundary")
	require.True(t, ok)
	assert.Equal(t, "newBoundary", in.TargetActivityID)

	_, ok = plan.InstructionFor("afterBoundaryTask")
	assert.False(t, ok)

	instructions := plan.Instructions()
	instructions[1].Variables["k"] = "changed"

	in, _ = plan.InstructionFor("boundary")
	assert.Equal(t, "v", in.Variables["k"])

	data, err := json.Marshal(plan)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_definition_id":"process:1"`)
	assert.Contains(t, string(data), `"target_activity_id":"newBoundary"`)
}

func TestNewPlan_RejectsAmbiguousTarget(t *testing.T) {
	source := mustDefinition(t, testutil.ParallelTasksProcess("process"))
	target := mustDefinition(t, testutil.Version(testutil.ParallelTasksProcess("process"), 2))

	_, err := NewPlan(source, target, []Instruction{
		{SourceActivityID: "userTask1", TargetActivityID: "userTask1"},
		{SourceActivityID: "userTask2", TargetActivityID: "userTask1"},
	})

	verr := requireViolation(t, err, ViolationAmbiguousTarget)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, 1, verr.Violations[0].Index)
}

func TestNewPlan_RejectsDuplicateSource(t *testing.T) {
	source := mustDefinition(t, testutil.ParallelTasksProcess("process"))
	target := mustDefinition(t, testutil.Version(testutil.ParallelTasksProcess("process"), 2))

	_, err := NewPlan(source, target, []Instruction{
		{SourceActivityID: "userTask1", TargetActivityID: "userTask1"},
		{SourceActivityID: "userTask1", TargetActivityID: "userTask2"},
	})

	requireViolation(t, err, ViolationDuplicateSource)
}

func TestNewPlan_ReportsEveryViolation(t *testing.T) {
	source := mustDefinition(t, testutil.UserTaskProcess("process"))
	target := mustDefinition(t, testutil.Version(testutil.UserTaskProcess("process"), 2))

	_, err := NewPlan(source, target, []Instruction{
		{SourceActivityID: "missing", TargetActivityID: "userTask"},
		{SourceActivityID: "userTask", TargetActivityID: "alsoMissing"},
		{SourceActivityID: "", TargetActivityID: "endEvent"},
		{SourceActivityID: "startEvent", TargetActivityID: "startEvent"},
	})

	verr := requireViolation(t, err, ViolationSourceNotFound)
	assert.True(t, verr.Has(ViolationTargetNotFound))
	assert.True(t, verr.Has(ViolationMissingActivityID))
	assert.True(t, verr.Has(ViolationNotMigratable))
	assert.Len(t, verr.Violations, 4)
	assert.Contains(t, verr.Error(), "4 violation(s)")

	var v Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, ViolationSourceNotFound, v.Kind)

	indexes := make([]int, 0, len(verr.Violations))
	for _, violation := range verr.Violations {
		indexes = append(indexes, violation.Index)
	}

	assert.Equal(t, []int{0, 1, 2, 3}, indexes)
}

func TestNewPlan_MultiInstanceBodyMustBeMapped(t *testing.T) {
	source := mustDefinition(t, testutil.MultiInstanceProcess("process", 2))
	target := mustDefinition(t, testutil.Version(testutil.MultiInstanceProcess("process", 2), 2))
	renamed := definition.Modify(source).WithVersion(3).ChangeActivityID("userTask", "reviewTask").MustDone()

	body := definition.MultiInstanceBodyID("userTask")

	t.Run("inner activity alone", func(t *testing.T) {
		_, err := NewPlan(source, target, []Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}})
		verr := requireViolation(t, err, ViolationBodyNotMapped)
		require.Len(t, verr.Violations, 1)
		assert.Equal(t, "userTask", verr.Violations[0].SourceActivityID)
	})

	t.Run("body mapped elsewhere", func(t *testing.T) {
		_, err := NewPlan(source, renamed, []Instruction{
			{SourceActivityID: body, TargetActivityID: definition.MultiInstanceBodyID("reviewTask")},
			{SourceActivityID: "userTask", TargetActivityID: "reviewTask"},
		})
		require.NoError(t, err)

		_, err = NewPlan(source, target, []Instruction{
			{SourceActivityID: body, TargetActivityID: body},
			{SourceActivityID: "userTask", TargetActivityID: "userTask"},
		})
		require.NoError(t, err)
	})

	t.Run("equal activities", func(t *testing.T) {
		_, err := NewPlan(source, target, MapEqualActivities(source, target))
		require.NoError(t, err)
	})
}

func TestNewPlan_KindCompatibility(t *testing.T) {
	source := mustDefinition(t, testutil.UserTaskProcess("process"))

	receive := definition.Modify(source).WithVersion(2).
		Update("userTask", func(a *definition.Activity) { a.Kind = definition.KindReceiveTask }).
		MustDone()

	_, err := NewPlan(source, receive, []Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}})
	require.NoError(t, err)

	sub := mustDefinition(t, testutil.Version(testutil.SubProcessProcess("process"), 2))

	_, err = NewPlan(source, sub, []Instruction{{SourceActivityID: "userTask", TargetActivityID: "subProcess"}})
	requireViolation(t, err, ViolationIncompatibleKind)
}

func TestNewPlan_Multiplicity(t *testing.T) {
	source := mustDefinition(t, testutil.UserTaskProcess("process"))
	target := mustDefinition(t, testutil.Version(testutil.MultiInstanceProcess("process", 2), 2))

	_, err := NewPlan(source, target, []Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}})
	requireViolation(t, err, ViolationMultiplicity)

	_, err = NewPlan(target, source, []Instruction{
		{SourceActivityID: definition.MultiInstanceBodyID("userTask"), TargetActivityID: "userTask"},
	})
	requireViolation(t, err, ViolationMultiplicity)
}

func TestNewPlan_BoundaryEvents(t *testing.T) {
	source := mustDefinition(t, testutil.BoundaryEventProcess("process", models.EventKindMessage))
	timer := mustDefinition(t, testutil.Version(testutil.BoundaryEventProcess("process", models.EventKindTimer), 2))
	same := mustDefinition(t, testutil.Version(testutil.BoundaryEventProcess("process", models.EventKindMessage), 3))

	t.Run("trigger kind must match", func(t *testing.T) {
		_, err := NewPlan(source, timer, []Instruction{
			{SourceActivityID: "userTask", TargetActivityID: "userTask"},
			{SourceActivityID: "boundary", TargetActivityID: "boundary"},
		})
		requireViolation(t, err, ViolationIncompatibleTrigger)
	})

	t.Run("host must be mapped", func(t *testing.T) {
		_, err := NewPlan(source, same, []Instruction{
			{SourceActivityID: "boundary", TargetActivityID: "boundary"},
		})
		requireViolation(t, err, ViolationBoundaryHostNotMapped)
	})

	t.Run("host must be mapped onto the target host", func(t *testing.T) {
		_, err := NewPlan(source, same, []Instruction{
			{SourceActivityID: "userTask", TargetActivityID: "afterBoundaryTask"},
			{SourceActivityID: "boundary", TargetActivityID: "boundary"},
		})
		requireViolation(t, err, ViolationBoundaryHostNotMapped)
	})

	t.Run("update trigger needs a target trigger", func(t *testing.T) {
		_, err := NewPlan(source, same, []Instruction{
			{SourceActivityID: "userTask", TargetActivityID: "userTask", UpdateEventTrigger: true},
		})
		requireViolation(t, err, ViolationNoTriggerToUpdate)
	})
}

func TestNewPlan_ParentScope(t *testing.T) {
	flat := mustDefinition(t, testutil.UserTaskProcess("process"))
	nested := mustDefinition(t, testutil.Version(testutil.SubProcessProcess("process"), 2))

	t.Run("introduced scope", func(t *testing.T) {
		_, err := NewPlan(flat, nested, []Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}})
		require.NoError(t, err)
	})

	t.Run("removed scope", func(t *testing.T) {
		_, err := NewPlan(nested, flat, []Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}})
		require.NoError(t, err)
	})

	t.Run("mapped scope must contain the target", func(t *testing.T) {
		moved := definition.Modify(nested).WithVersion(3).
			Add(definition.Activity{ID: "otherSubProcess", Kind: definition.KindSubProcess}).
			Add(definition.Activity{ID: "otherTask", Kind: definition.KindUserTask, ParentID: "otherSubProcess"}).
			MustDone()

		_, err := NewPlan(nested, moved, []Instruction{
			{SourceActivityID: "subProcess", TargetActivityID: "subProcess"},
			{SourceActivityID: "userTask", TargetActivityID: "otherTask"},
		})
		requireViolation(t, err, ViolationInconsistentParent)
	})

	t.Run("introduced scope must not be targeted", func(t *testing.T) {
		source := mustDefinition(t, testutil.ParallelTasksProcess("parallel"))
		target := definition.Modify(source).WithVersion(2).
			Update("userTask2", func(a *definition.Activity) { a.Kind = definition.KindSubProcess }).
			Move("userTask1", "userTask2").
			Update("fork", func(a *definition.Activity) { a.Outgoing = []string{"userTask2"} }).
			Update("userTask1", func(a *definition.Activity) { a.Outgoing = nil }).
			MustDone()

		_, err := NewPlan(source, target, []Instruction{
			{SourceActivityID: "userTask1", TargetActivityID: "userTask1"},
			{SourceActivityID: "userTask2", TargetActivityID: "userTask2"},
		})
		verr := requireViolation(t, err, ViolationInconsistentParent)
		assert.True(t, verr.Has(ViolationIncompatibleKind))
	})
}

func TestBuildPlan_ResolvesDefinitions(t *testing.T) {
	ctx := context.Background()

	registry := definition.NewRegistry(slog.Default())
	require.NoError(t, registry.Register(mustDefinition(t, testutil.UserTaskProcess("process"))))
	require.NoError(t, registry.Register(mustDefinition(t, testutil.Version(testutil.UserTaskProcess("process"), 2))))

	plan, err := BuildPlan(ctx, registry, "process:1", "process:2", MapEqualActivities(
		mustDefinition(t, testutil.UserTaskProcess("process")),
		mustDefinition(t, testutil.Version(testutil.UserTaskProcess("process"), 2)),
	))
	require.NoError(t, err)
	assert.Len(t, plan.Instructions(), 1)

	_, err = BuildPlan(ctx, registry, "process:1", "process:9", nil)
	assert.ErrorIs(t, err, definition.ErrDefinitionNotFound)
}
