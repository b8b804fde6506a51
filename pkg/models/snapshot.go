package models

import (
	"cmp"
	"maps"
	"reflect"
	"slices"
)

// Snapshot is a consistent view of every record owned by one process instance.
// Records are kept in flat tables keyed by id; the execution tree is expressed
// through parent id references only.
type Snapshot struct {
	Instance           ProcessInstance              `json:"instance"`
	Executions         map[string]Execution         `json:"executions"`
	ActivityInstances  map[string]ActivityInstance  `json:"activity_instances"`
	EventSubscriptions map[string]EventSubscription `json:"event_subscriptions"`
	Jobs               map[string]Job               `json:"jobs"`
	Variables          map[string]map[string]any    `json:"variables"` // Keyed by variable scope id
}

// NewSnapshot creates an empty snapshot for instance.
func NewSnapshot(instance ProcessInstance) *Snapshot {
	return &Snapshot{
		Instance:           instance,
		Executions:         map[string]Execution{},
		ActivityInstances:  map[string]ActivityInstance{},
		EventSubscriptions: map[string]EventSubscription{},
		Jobs:               map[string]Job{},
		Variables:          map[string]map[string]any{},
	}
}

// Clone returns a deep copy of the snapshot. Variable values are copied by
// assignment.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	out := &Snapshot{
		Instance:           s.Instance,
		Executions:         cloneMap(s.Executions),
		ActivityInstances:  cloneMap(s.ActivityInstances),
		EventSubscriptions: cloneMap(s.EventSubscriptions),
		Jobs:               cloneMap(s.Jobs),
		Variables:          make(map[string]map[string]any, len(s.Variables)),
	}

	if s.Instance.EndedAt != nil {
		ended := *s.Instance.EndedAt
		out.Instance.EndedAt = &ended
	}

	for scope, vars := range s.Variables {
		out.Variables[scope] = cloneMap(vars)
	}

	return out
}

// Equal compares every record of two snapshots, including the revision.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}

	if !s.Instance.Equal(o.Instance) || s.Instance.Revision != o.Instance.Revision {
		return false
	}

	if !maps.Equal(normalize(s.Executions), normalize(o.Executions)) ||
		!maps.Equal(normalize(s.ActivityInstances), normalize(o.ActivityInstances)) {
		return false
	}

	if !maps.EqualFunc(normalize(s.EventSubscriptions), normalize(o.EventSubscriptions), EventSubscription.Equal) ||
		!maps.EqualFunc(normalize(s.Jobs), normalize(o.Jobs), Job.Equal) {
		return false
	}

	return variablesEqual(s.Variables, o.Variables)
}

// RootExecution returns the execution representing the process scope.
func (s *Snapshot) RootExecution() (Execution, bool) {
	for _, e := range s.Executions {
		if e.IsRoot() {
			return e, true
		}
	}

	return Execution{}, false
}

// Changeset is the set of writes that moves a persisted instance from one
// snapshot to the next. It is committed atomically and only if the persisted
// revision still equals ExpectedRevision.
type Changeset struct {
	InstanceID       string          `json:"instance_id"`
	ExpectedRevision uint64          `json:"expected_revision"` // 0 creates the instance
	Instance         ProcessInstance `json:"instance"`

	PutExecutions    []Execution `json:"put_executions,omitempty"`
	DeleteExecutions []string    `json:"delete_executions,omitempty"`

	PutActivityInstances    []ActivityInstance `json:"put_activity_instances,omitempty"`
	DeleteActivityInstances []string           `json:"delete_activity_instances,omitempty"`

	PutEventSubscriptions    []EventSubscription `json:"put_event_subscriptions,omitempty"`
	DeleteEventSubscriptions []string            `json:"delete_event_subscriptions,omitempty"`

	PutJobs    []Job    `json:"put_jobs,omitempty"`
	DeleteJobs []string `json:"delete_jobs,omitempty"`

	PutVariables    map[string]map[string]any `json:"put_variables,omitempty"` // Whole scope replaced
	DeleteVariables []string                  `json:"delete_variables,omitempty"`
}

// Diff computes the changeset turning before into after. A nil before yields
// a changeset creating the instance.
func Diff(before, after *Snapshot) *Changeset {
	if before == nil {
		before = NewSnapshot(ProcessInstance{})
	}

	c := &Changeset{
		InstanceID:       after.Instance.ID,
		ExpectedRevision: before.Instance.Revision,
		Instance:         after.Instance,
	}

	c.PutExecutions, c.DeleteExecutions = diffTable(before.Executions, after.Executions,
		func(a, b Execution) bool { return a == b })
	c.PutActivityInstances, c.DeleteActivityInstances = diffTable(before.ActivityInstances, after.ActivityInstances,
		func(a, b ActivityInstance) bool { return a == b })
	c.PutEventSubscriptions, c.DeleteEventSubscriptions = diffTable(before.EventSubscriptions, after.EventSubscriptions,
		EventSubscription.Equal)
	c.PutJobs, c.DeleteJobs = diffTable(before.Jobs, after.Jobs, Job.Equal)

	for _, scope := range slices.Sorted(maps.Keys(after.Variables)) {
		vars := after.Variables[scope]
		if old, ok := before.Variables[scope]; ok && reflect.DeepEqual(old, vars) {
			continue
		}

		if c.PutVariables == nil {
			c.PutVariables = map[string]map[string]any{}
		}

		c.PutVariables[scope] = cloneMap(vars)
	}

	for _, scope := range slices.Sorted(maps.Keys(before.Variables)) {
		if _, ok := after.Variables[scope]; !ok {
			c.DeleteVariables = append(c.DeleteVariables, scope)
		}
	}

	return c
}

// Apply returns a copy of s with the changeset written and the revision
// advanced. A nil s is treated as an empty instance.
func Apply(s *Snapshot, c *Changeset) *Snapshot {
	var out *Snapshot
	if s == nil {
		out = NewSnapshot(c.Instance)
	} else {
		out = s.Clone()
	}

	out.Instance = c.Instance
	out.Instance.Revision = c.ExpectedRevision + 1

	for _, id := range c.DeleteExecutions {
		delete(out.Executions, id)
	}

	for _, e := range c.PutExecutions {
		out.Executions[e.ID] = e
	}

	for _, id := range c.DeleteActivityInstances {
		delete(out.ActivityInstances, id)
	}

	for _, ai := range c.PutActivityInstances {
		out.ActivityInstances[ai.ID] = ai
	}

	for _, id := range c.DeleteEventSubscriptions {
		delete(out.EventSubscriptions, id)
	}

	for _, sub := range c.PutEventSubscriptions {
		out.EventSubscriptions[sub.ID] = sub
	}

	for _, id := range c.DeleteJobs {
		delete(out.Jobs, id)
	}

	for _, job := range c.PutJobs {
		out.Jobs[job.ID] = job
	}

	for _, scope := range c.DeleteVariables {
		delete(out.Variables, scope)
	}

	for scope, vars := range c.PutVariables {
		out.Variables[scope] = cloneMap(vars)
	}

	return out
}

func diffTable[T any](before, after map[string]T, equal func(a, b T) bool) (puts []T, deletes []string) {
	for _, id := range slices.Sorted(maps.Keys(after)) {
		if old, ok := before[id]; ok && equal(old, after[id]) {
			continue
		}

		puts = append(puts, after[id])
	}

	for _, id := range slices.Sorted(maps.Keys(before)) {
		if _, ok := after[id]; !ok {
			deletes = append(deletes, id)
		}
	}

	return puts, deletes
}

func cloneMap[K cmp.Ordered, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	maps.Copy(out, m)

	return out
}

// normalize makes nil and empty tables compare equal.
func normalize[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}

	return m
}

func variablesEqual(a, b map[string]map[string]any) bool {
	if len(a) != len(b) {
		return false
	}

	for scope, vars := range a {
		other, ok := b[scope]
		if !ok {
			return false
		}

		if len(vars) == 0 && len(other) == 0 {
			continue
		}

		if !reflect.DeepEqual(vars, other) {
			return false
		}
	}

	return true
}
