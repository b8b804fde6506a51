package tree

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dukex/procshift/pkg/definition"
)

// ErrInvalidTree is returned when the execution tree does not mirror the scope
// nesting of its process definition.
var ErrInvalidTree = errors.New("execution tree does not match process definition")

// Validate checks the structural invariants of the tree against def: every
// execution references an activity of def, the parent of an execution sits on
// the flow scope of its activity, and every execution is backed by exactly one
// activity instance nested like the executions.
func (t *Tree) Validate(def *definition.Definition) error {
	var errs error

	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidTree}, args...)...))
	}

	instance := t.Instance()
	if instance.DefinitionID != def.ID() {
		fail("instance %s references %s, expected %s", instance.ID, instance.DefinitionID, def.ID())
	}

	roots := 0

	backing := map[string]int{}
	for _, ai := range t.s.ActivityInstances {
		backing[ai.ExecutionID]++
	}

	for _, e := range t.Executions() {
		if e.DefinitionID != def.ID() {
			fail("execution %s references definition %s", e.ID, e.DefinitionID)
		}

		if backing[e.ID] != 1 {
			fail("execution %s is backed by %d activity instances", e.ID, backing[e.ID])
		}

		ai, _ := t.ActivityInstanceForExecution(e.ID)

		if e.IsRoot() {
			roots++

			if e.ActivityID != "" {
				fail("root execution %s references activity %s", e.ID, e.ActivityID)
			}

			if ai.ID != instance.ID || ai.ActivityID != def.ID() {
				fail("root activity instance %s does not represent %s", ai.ID, def.ID())
			}

			continue
		}

		a, ok := def.Activity(e.ActivityID)
		if !ok {
			fail("execution %s references unknown activity %s", e.ID, e.ActivityID)
			continue
		}

		parent, ok := t.Execution(e.ParentID)
		if !ok {
			fail("execution %s has unknown parent %s", e.ID, e.ParentID)
			continue
		}

		if parent.ActivityID != a.ParentID {
			fail("execution %s at %s is nested in %q instead of %q", e.ID, a.ID, parent.ActivityID, a.ParentID)
		}

		if e.IsScope != def.IsScope(a.ID) {
			fail("execution %s at %s has scope flag %t", e.ID, a.ID, e.IsScope)
		}

		if ai.ActivityID != e.ActivityID {
			fail("activity instance %s of execution %s is at %s", ai.ID, e.ID, ai.ActivityID)
		}

		if parentAI, ok := t.ActivityInstanceForExecution(parent.ID); ok && ai.ParentID != parentAI.ID {
			fail("activity instance %s is nested in %s instead of %s", ai.ID, ai.ParentID, parentAI.ID)
		}
	}

	if roots != 1 {
		fail("instance %s has %d root executions", instance.ID, roots)
	}

	for _, ai := range t.ActivityInstances() {
		if _, ok := t.Execution(ai.ExecutionID); !ok {
			fail("activity instance %s references unknown execution %s", ai.ID, ai.ExecutionID)
		}
	}

	for _, sub := range t.EventSubscriptions() {
		if _, ok := t.Execution(sub.ExecutionID); !ok {
			fail("event subscription %s references unknown execution %s", sub.ID, sub.ExecutionID)
		}

		if _, ok := def.Activity(sub.ActivityID); !ok {
			fail("event subscription %s references unknown activity %s", sub.ID, sub.ActivityID)
		}
	}

	for _, job := range t.Jobs() {
		if _, ok := t.Execution(job.ExecutionID); !ok {
			fail("job %s references unknown execution %s", job.ID, job.ExecutionID)
		}

		if _, ok := def.Activity(job.ActivityID); !ok {
			fail("job %s references unknown activity %s", job.ID, job.ActivityID)
		}
	}

	return errs
}
