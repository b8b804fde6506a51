package runtime

import (
	"fmt"
	"slices"
	"time"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/tree"
)

// maxSteps bounds the activities entered by one operation so a cycle of
// pass-through activities cannot spin forever.
const maxSteps = 10_000

// operation moves tokens through one definition on a working copy of an
// instance. Scopes whose last child left are completed when the operation
// settles, never in the middle of a move.
type operation struct {
	def   *definition.Definition
	tree  *tree.Tree
	now   time.Time
	newID models.IDGenerator

	pending []string
	steps   int
	ended   bool
}

func newOperation(def *definition.Definition, s *models.Snapshot, now time.Time, newID models.IDGenerator) *operation {
	return &operation{
		def:   def,
		tree:  tree.New(s),
		now:   now,
		newID: newID,
	}
}

// createRoot adds the process level execution and activity instance of a new
// instance.
func (o *operation) createRoot(vars map[string]any) (models.Execution, error) {
	instance := o.tree.Instance()

	root := models.Execution{
		ID:                instance.ID,
		ProcessInstanceID: instance.ID,
		DefinitionID:      o.def.ID(),
		VariableScopeID:   instance.ID,
		IsScope:           true,
	}

	if err := o.tree.CreateExecution(root); err != nil {
		return root, err
	}

	err := o.tree.CreateActivityInstance(models.ActivityInstance{
		ID:          instance.ID,
		ActivityID:  o.def.ID(),
		ExecutionID: instance.ID,
	})
	if err != nil {
		return root, err
	}

	o.tree.SetVariables(root.VariableScopeID, vars)

	return root, nil
}

// take enters every activity in ids inside scope.
func (o *operation) take(ids []string, scope models.Execution) error {
	for _, id := range ids {
		a, ok := o.def.Activity(id)
		if !ok {
			return fmt.Errorf("%w: %s", definition.ErrActivityNotFound, id)
		}

		if a.MultiInstance && !a.IsMultiInstanceBody() {
			a, _ = o.def.Activity(definition.MultiInstanceBodyID(id))
		}

		if err := o.enter(a, scope); err != nil {
			return err
		}
	}

	return nil
}

func (o *operation) enter(a definition.Activity, scope models.Execution) error {
	o.steps++
	if o.steps > maxSteps {
		return fmt.Errorf("%w: entering %s", ErrStepLimit, a.ID)
	}

	switch a.Kind {
	case definition.KindStartEvent, definition.KindGateway, definition.KindServiceTask:
		return o.take(a.Outgoing, scope)

	case definition.KindEndEvent:
		o.pending = append(o.pending, scope.ID)
		return nil

	case definition.KindUserTask, definition.KindReceiveTask, definition.KindIntermediateCatchEvent:
		e, err := o.createExecution(a, scope)
		if err != nil {
			return err
		}

		if a.HasTrigger() {
			if err := o.tree.AddTriggerRecords(a, e, o.now, o.newID); err != nil {
				return err
			}
		}

		return o.addBoundaryEvents(a, e)

	case definition.KindSubProcess:
		e, err := o.createExecution(a, scope)
		if err != nil {
			return err
		}

		if err := o.addBoundaryEvents(a, e); err != nil {
			return err
		}

		o.pending = append(o.pending, e.ID)

		for _, start := range o.def.StartEvents(a.ID) {
			if err := o.enter(start, e); err != nil {
				return err
			}
		}

		return nil

	case definition.KindMultiInstanceBody:
		e, err := o.createExecution(a, scope)
		if err != nil {
			return err
		}

		o.pending = append(o.pending, e.ID)

		inner, _ := o.def.Activity(a.InnerActivityID())
		for range a.LoopCardinality {
			if err := o.enter(inner, e); err != nil {
				return err
			}
		}

		return nil

	default:
		return fmt.Errorf("activity %s of kind %s cannot be entered by sequence flow", a.ID, a.Kind)
	}
}

func (o *operation) createExecution(a definition.Activity, scope models.Execution) (models.Execution, error) {
	parentAI, ok := o.tree.ActivityInstanceForExecution(scope.ID)
	if !ok {
		return models.Execution{}, fmt.Errorf("%w: scope of %s", ErrActivityInstanceNotFound, a.ID)
	}

	id := o.newID()

	err := o.tree.CreateExecution(models.Execution{
		ID:                id,
		ParentID:          scope.ID,
		ProcessInstanceID: scope.ProcessInstanceID,
		DefinitionID:      o.def.ID(),
		ActivityID:        a.ID,
		IsScope:           o.def.IsScope(a.ID),
	})
	if err != nil {
		return models.Execution{}, err
	}

	err = o.tree.CreateActivityInstance(models.ActivityInstance{
		ID:          tree.NewActivityInstanceID(a.ID, o.newID),
		ActivityID:  a.ID,
		ParentID:    parentAI.ID,
		ExecutionID: id,
	})
	if err != nil {
		return models.Execution{}, err
	}

	e, _ := o.tree.Execution(id)

	return e, nil
}

func (o *operation) addBoundaryEvents(host definition.Activity, e models.Execution) error {
	for _, b := range o.def.BoundaryEvents(host.ID) {
		if err := o.tree.AddTriggerRecords(b, e, o.now, o.newID); err != nil {
			return err
		}
	}

	return nil
}

// ensureScopes creates the executions of the scopes enclosing activityID that
// do not exist yet and returns the innermost one. Executions created by
// earlier calls are shared.
func (o *operation) ensureScopes(activityID string, created map[string]models.Execution) (models.Execution, error) {
	scope, _ := o.tree.Root()

	ancestors := o.def.Ancestors(activityID)
	slices.Reverse(ancestors)

	for _, id := range ancestors {
		if e, ok := created[id]; ok {
			scope = e
			continue
		}

		a, _ := o.def.Activity(id)

		e, err := o.createExecution(a, scope)
		if err != nil {
			return scope, err
		}

		if err := o.addBoundaryEvents(a, e); err != nil {
			return scope, err
		}

		created[id] = e
		scope = e
	}

	return scope, nil
}

// leave completes the activity of e and continues along its outgoing flows in
// the enclosing scope.
func (o *operation) leave(e models.Execution) error {
	a, ok := o.def.Activity(e.ActivityID)
	if !ok {
		return fmt.Errorf("%w: %s", definition.ErrActivityNotFound, e.ActivityID)
	}

	scope, ok := o.tree.Execution(e.ParentID)
	if !ok {
		return fmt.Errorf("%w: %s", tree.ErrExecutionNotFound, e.ParentID)
	}

	if err := o.removeSubtree(e.ID); err != nil {
		return err
	}

	o.pending = append(o.pending, scope.ID)

	return o.take(a.Outgoing, scope)
}

// fire reacts to the trigger of activity waited for by execution e.
func (o *operation) fire(a definition.Activity, e models.Execution) error {
	if a.Kind != definition.KindBoundaryEvent {
		return o.leave(e)
	}

	scope, ok := o.tree.Execution(e.ParentID)
	if !ok {
		return fmt.Errorf("%w: %s", tree.ErrExecutionNotFound, e.ParentID)
	}

	if !a.NonInterrupting {
		if err := o.removeSubtree(e.ID); err != nil {
			return err
		}
	}

	o.pending = append(o.pending, scope.ID)

	return o.take(a.Outgoing, scope)
}

// removeSubtree deletes e, its descendants and every record they own.
func (o *operation) removeSubtree(id string) error {
	for _, child := range o.tree.Children(id) {
		if err := o.removeSubtree(child.ID); err != nil {
			return err
		}
	}

	for _, sub := range o.tree.EventSubscriptionsFor(id) {
		o.tree.RemoveEventSubscription(sub.ID)
	}

	for _, job := range o.tree.JobsFor(id) {
		o.tree.RemoveJob(job.ID)
	}

	if ai, ok := o.tree.ActivityInstanceForExecution(id); ok {
		if err := o.tree.RemoveActivityInstance(ai.ID); err != nil {
			return err
		}
	}

	return o.tree.RemoveExecution(id)
}

// settle completes every pending scope that has no children left, which may in
// turn complete the enclosing scopes and finally the instance.
func (o *operation) settle() error {
	for len(o.pending) > 0 {
		id := o.pending[0]
		o.pending = o.pending[1:]

		e, ok := o.tree.Execution(id)
		if !ok || len(o.tree.Children(id)) > 0 {
			continue
		}

		if e.IsRoot() {
			return o.end(e)
		}

		if err := o.leave(e); err != nil {
			return err
		}
	}

	return nil
}

func (o *operation) end(root models.Execution) error {
	if err := o.removeSubtree(root.ID); err != nil {
		return err
	}

	now := o.now.UTC()

	instance := o.tree.Instance()
	instance.State = models.InstanceStateEnded
	instance.EndedAt = &now
	o.tree.SetInstance(instance)

	o.ended = true
	o.pending = nil

	return nil
}
