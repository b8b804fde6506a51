// Package tree provides the read/write model of a process instance's execution
// and activity instance trees, built over the flat record tables of a
// snapshot.
package tree

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dukex/procshift/pkg/models"
)

var (
	ErrExecutionNotFound        = errors.New("execution not found")
	ErrActivityInstanceNotFound = errors.New("activity instance not found")
	ErrDuplicateID              = errors.New("record id already exists")
	ErrHasChildren              = errors.New("execution still has children")
	ErrCycle                    = errors.New("reparenting would create a cycle")
)

// Tree is a mutable working copy of a snapshot. Mutations never touch the
// snapshot it was created from.
type Tree struct {
	s *models.Snapshot
}

// New creates a tree over a deep copy of s.
func New(s *models.Snapshot) *Tree {
	return &Tree{s: s.Clone()}
}

// Snapshot returns a deep copy of the current state.
func (t *Tree) Snapshot() *models.Snapshot {
	return t.s.Clone()
}

// Instance returns the process instance record.
func (t *Tree) Instance() models.ProcessInstance {
	return t.s.Instance
}

// SetInstance replaces the process instance record.
func (t *Tree) SetInstance(instance models.ProcessInstance) {
	t.s.Instance = instance
}

// Execution looks up an execution by id.
func (t *Tree) Execution(id string) (models.Execution, bool) {
	e, ok := t.s.Executions[id]
	return e, ok
}

// Root returns the process instance execution.
func (t *Tree) Root() (models.Execution, bool) {
	return t.s.RootExecution()
}

// Executions returns every execution ordered by id.
func (t *Tree) Executions() []models.Execution {
	return sortedValues(t.s.Executions, func(e models.Execution) string { return e.ID })
}

// Children returns the direct children of an execution ordered by id.
func (t *Tree) Children(id string) []models.Execution {
	var out []models.Execution

	for _, e := range t.s.Executions {
		if e.ParentID == id && e.ID != id {
			out = append(out, e)
		}
	}

	slices.SortFunc(out, func(a, b models.Execution) int { return cmp.Compare(a.ID, b.ID) })

	return out
}

// Depth returns the number of ancestors of an execution; the root has depth 0.
func (t *Tree) Depth(id string) int {
	depth := 0

	for e, ok := t.s.Executions[id]; ok && !e.IsRoot(); e, ok = t.s.Executions[e.ParentID] {
		depth++

		if depth > len(t.s.Executions) {
			break
		}
	}

	return depth
}

// BottomUp returns every execution, deepest first. Executions of equal depth
// are ordered by id.
func (t *Tree) BottomUp() []models.Execution {
	all := t.Executions()

	depths := make(map[string]int, len(all))
	for _, e := range all {
		depths[e.ID] = t.Depth(e.ID)
	}

	slices.SortStableFunc(all, func(a, b models.Execution) int {
		return cmp.Compare(depths[b.ID], depths[a.ID])
	})

	return all
}

// ExecutionsAt returns the executions currently at activityID.
func (t *Tree) ExecutionsAt(activityID string) []models.Execution {
	var out []models.Execution

	for _, e := range t.Executions() {
		if e.ActivityID == activityID && !e.IsRoot() {
			out = append(out, e)
		}
	}

	return out
}

// ActivityInstance looks up an activity instance by id.
func (t *Tree) ActivityInstance(id string) (models.ActivityInstance, bool) {
	ai, ok := t.s.ActivityInstances[id]
	return ai, ok
}

// ActivityInstances returns every activity instance ordered by id.
func (t *Tree) ActivityInstances() []models.ActivityInstance {
	return sortedValues(t.s.ActivityInstances, func(ai models.ActivityInstance) string { return ai.ID })
}

// ChildActivityInstances returns the direct children of an activity instance.
func (t *Tree) ChildActivityInstances(id string) []models.ActivityInstance {
	var out []models.ActivityInstance

	for _, ai := range t.ActivityInstances() {
		if ai.ParentID == id && ai.ID != id {
			out = append(out, ai)
		}
	}

	return out
}

// LeafActivityInstances returns the activity instances without children,
// excluding the process-level one.
func (t *Tree) LeafActivityInstances() []models.ActivityInstance {
	parents := map[string]bool{}
	for _, ai := range t.s.ActivityInstances {
		parents[ai.ParentID] = true
	}

	var out []models.ActivityInstance

	for _, ai := range t.ActivityInstances() {
		if !ai.IsRoot() && !parents[ai.ID] {
			out = append(out, ai)
		}
	}

	return out
}

// ActivityInstanceForExecution returns the activity instance backed by an
// execution.
func (t *Tree) ActivityInstanceForExecution(executionID string) (models.ActivityInstance, bool) {
	for _, ai := range t.ActivityInstances() {
		if ai.ExecutionID == executionID {
			return ai, true
		}
	}

	return models.ActivityInstance{}, false
}

// EventSubscriptions returns every subscription ordered by id.
func (t *Tree) EventSubscriptions() []models.EventSubscription {
	return sortedValues(t.s.EventSubscriptions, func(s models.EventSubscription) string { return s.ID })
}

// EventSubscriptionsFor returns the subscriptions owned by an execution.
func (t *Tree) EventSubscriptionsFor(executionID string) []models.EventSubscription {
	var out []models.EventSubscription

	for _, sub := range t.EventSubscriptions() {
		if sub.ExecutionID == executionID {
			out = append(out, sub)
		}
	}

	return out
}

// Jobs returns every job ordered by id.
func (t *Tree) Jobs() []models.Job {
	return sortedValues(t.s.Jobs, func(j models.Job) string { return j.ID })
}

// JobsFor returns the jobs owned by an execution.
func (t *Tree) JobsFor(executionID string) []models.Job {
	var out []models.Job

	for _, job := range t.Jobs() {
		if job.ExecutionID == executionID {
			out = append(out, job)
		}
	}

	return out
}

// Variables returns a copy of the variables of a scope.
func (t *Tree) Variables(scopeID string) map[string]any {
	return maps.Clone(t.s.Variables[scopeID])
}

// Reparent moves an execution beneath newParentID.
func (t *Tree) Reparent(id, newParentID string) error {
	e, ok := t.s.Executions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	if _, ok := t.s.Executions[newParentID]; !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, newParentID)
	}

	for cur := newParentID; cur != ""; cur = t.s.Executions[cur].ParentID {
		if cur == id {
			return fmt.Errorf("%w: %s beneath %s", ErrCycle, id, newParentID)
		}
	}

	e.ParentID = newParentID
	t.s.Executions[id] = e

	return nil
}

// RewriteActivity points an execution at another activity and definition,
// keeping its id and variable scope.
func (t *Tree) RewriteActivity(id, activityID, definitionID string) error {
	e, ok := t.s.Executions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	e.ActivityID = activityID
	e.DefinitionID = definitionID
	t.s.Executions[id] = e

	return nil
}

// SetScope marks whether an execution owns a scope.
func (t *Tree) SetScope(id string, scope bool) error {
	e, ok := t.s.Executions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	e.IsScope = scope
	t.s.Executions[id] = e

	return nil
}

// CreateExecution adds a new execution. Its parent must exist unless it is the
// root.
func (t *Tree) CreateExecution(e models.Execution) error {
	if _, ok := t.s.Executions[e.ID]; ok {
		return fmt.Errorf("%w: execution %s", ErrDuplicateID, e.ID)
	}

	if !e.IsRoot() {
		if _, ok := t.s.Executions[e.ParentID]; !ok {
			return fmt.Errorf("%w: parent %s", ErrExecutionNotFound, e.ParentID)
		}
	}

	if e.VariableScopeID == "" {
		e.VariableScopeID = e.ID
	}

	t.s.Executions[e.ID] = e

	return nil
}

// RemoveExecution deletes a childless execution together with its variable
// scope.
func (t *Tree) RemoveExecution(id string) error {
	e, ok := t.s.Executions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}

	if len(t.Children(id)) > 0 {
		return fmt.Errorf("%w: %s", ErrHasChildren, id)
	}

	delete(t.s.Executions, id)

	if e.VariableScopeID == id {
		delete(t.s.Variables, id)
	}

	return nil
}

// CreateActivityInstance adds a new activity instance.
func (t *Tree) CreateActivityInstance(ai models.ActivityInstance) error {
	if _, ok := t.s.ActivityInstances[ai.ID]; ok {
		return fmt.Errorf("%w: activity instance %s", ErrDuplicateID, ai.ID)
	}

	if !ai.IsRoot() {
		if _, ok := t.s.ActivityInstances[ai.ParentID]; !ok {
			return fmt.Errorf("%w: parent %s", ErrActivityInstanceNotFound, ai.ParentID)
		}
	}

	t.s.ActivityInstances[ai.ID] = ai

	return nil
}

// UpdateActivityInstance replaces an existing activity instance record.
func (t *Tree) UpdateActivityInstance(ai models.ActivityInstance) error {
	if _, ok := t.s.ActivityInstances[ai.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrActivityInstanceNotFound, ai.ID)
	}

	t.s.ActivityInstances[ai.ID] = ai

	return nil
}

// RemoveActivityInstance deletes an activity instance.
func (t *Tree) RemoveActivityInstance(id string) error {
	if _, ok := t.s.ActivityInstances[id]; !ok {
		return fmt.Errorf("%w: %s", ErrActivityInstanceNotFound, id)
	}

	delete(t.s.ActivityInstances, id)

	return nil
}

// PutEventSubscription inserts or replaces a subscription.
func (t *Tree) PutEventSubscription(sub models.EventSubscription) {
	t.s.EventSubscriptions[sub.ID] = sub
}

// RemoveEventSubscription deletes a subscription.
func (t *Tree) RemoveEventSubscription(id string) {
	delete(t.s.EventSubscriptions, id)
}

// PutJob inserts or replaces a job.
func (t *Tree) PutJob(job models.Job) {
	t.s.Jobs[job.ID] = job
}

// RemoveJob deletes a job.
func (t *Tree) RemoveJob(id string) {
	delete(t.s.Jobs, id)
}

// SetVariables merges vars into a variable scope.
func (t *Tree) SetVariables(scopeID string, vars map[string]any) {
	if len(vars) == 0 {
		return
	}

	scope, ok := t.s.Variables[scopeID]
	if !ok {
		scope = map[string]any{}
		t.s.Variables[scopeID] = scope
	}

	maps.Copy(scope, vars)
}

func sortedValues[V any](m map[string]V, id func(V) string) []V {
	out := slices.Collect(maps.Values(m))
	slices.SortFunc(out, func(a, b V) int { return cmp.Compare(id(a), id(b)) })

	return out
}
