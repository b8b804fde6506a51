package definition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModify_ChangeActivityID(t *testing.T) {
	source := MustNew(boundaryDocument())

	target, err := Modify(source).
		WithVersion(2).
		ChangeActivityID("boundary", "newBoundary").
		Done()
	require.NoError(t, err)

	assert.Equal(t, "process:2", target.ID())

	_, ok := target.Activity("boundary")
	assert.False(t, ok)

	renamed, ok := target.Activity("newBoundary")
	require.True(t, ok)
	assert.Equal(t, "userTask", renamed.AttachedTo)
	assert.Equal(t, "Message", renamed.Trigger.Name)

	// the source definition is untouched
	_, ok = source.Activity("boundary")
	assert.True(t, ok)
}

func TestModify_ChangeHostIDUpdatesReferences(t *testing.T) {
	target := Modify(MustNew(boundaryDocument())).
		WithVersion(2).
		ChangeActivityID("userTask", "reviewTask").
		MustDone()

	start, _ := target.Activity("startEvent")
	assert.Equal(t, []string{"reviewTask"}, start.Outgoing)

	boundary, _ := target.Activity("boundary")
	assert.Equal(t, "reviewTask", boundary.AttachedTo)
	assert.True(t, target.IsScope("reviewTask"))
}

func TestModify_RenameMessageAndSignal(t *testing.T) {
	target := Modify(MustNew(boundaryDocument())).
		WithVersion(2).
		RenameMessage("Message", "NewMessage").
		MustDone()

	boundary, _ := target.Activity("boundary")
	assert.Equal(t, "NewMessage", boundary.Trigger.Name)

	_, err := Modify(target).RenameSignal("Signal", "NewSignal").Done()
	assert.ErrorContains(t, err, `no signal trigger named "Signal"`)
}

func TestModify_SwapActivityIDs(t *testing.T) {
	target := Modify(MustNew(boundaryDocument())).
		WithVersion(2).
		SwapActivityIDs("userTask", "afterBoundaryTask").
		MustDone()

	boundary, _ := target.Activity("boundary")
	assert.Equal(t, "afterBoundaryTask", boundary.AttachedTo)
	assert.Equal(t, []string{"userTask"}, boundary.Outgoing)
	assert.True(t, target.IsScope("afterBoundaryTask"))
	assert.False(t, target.IsScope("userTask"))
}

func TestModify_RemoveActivity(t *testing.T) {
	target := Modify(MustNew(boundaryDocument())).
		WithVersion(2).
		RemoveActivity("boundary").
		RemoveActivity("afterBoundaryTask").
		MustDone()

	assert.Len(t, target.Activities(), 3)
	assert.False(t, target.IsScope("userTask"))

	// removing a host drops its boundary events and dangling flows
	withoutHost := Modify(MustNew(boundaryDocument())).RemoveActivity("userTask").MustDone()

	_, ok := withoutHost.Activity("boundary")
	assert.False(t, ok)

	start, _ := withoutHost.Activity("startEvent")
	assert.Empty(t, start.Outgoing)
}

func TestModify_WrapInSubProcess(t *testing.T) {
	target := Modify(MustNew(boundaryDocument())).
		WithVersion(2).
		WrapInSubProcess("subProcess", "userTask").
		MustDone()

	sub, ok := target.Activity("subProcess")
	require.True(t, ok)
	assert.Equal(t, KindSubProcess, sub.Kind)
	assert.ElementsMatch(t, []string{"endEvent", "afterBoundaryTask"}, sub.Outgoing)

	task, _ := target.Activity("userTask")
	assert.Equal(t, "subProcess", task.ParentID)
	assert.Equal(t, []string{"subProcess_end"}, task.Outgoing)

	boundary, _ := target.Activity("boundary")
	assert.Equal(t, "subProcess", boundary.ParentID)

	starts := target.StartEvents("subProcess")
	require.Len(t, starts, 1)
	assert.Equal(t, []string{"userTask"}, starts[0].Outgoing)

	outerStart, _ := target.Activity("startEvent")
	assert.Equal(t, []string{"subProcess"}, outerStart.Outgoing)

	assert.Equal(t, []string{"subProcess"}, target.Ancestors("userTask"))
}

func TestModify_Errors(t *testing.T) {
	_, err := Modify(MustNew(boundaryDocument())).
		ChangeActivityID("missing", "other").
		ChangeActivityID("userTask", "boundary").
		WrapInSubProcess("sub").
		Done()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActivityNotFound)
	assert.Contains(t, err.Error(), `activity "boundary" already exists`)
	assert.Contains(t, err.Error(), "must wrap at least one activity")
}
