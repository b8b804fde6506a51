package migration

import (
	"fmt"
	"slices"
	"time"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/tree"
)

type scopeKey struct {
	parentExecutionID string
	activityID        string
}

// transformer rewrites one snapshot for a plan. It never touches the snapshot
// it was given.
type transformer struct {
	plan   *Plan
	source *definition.Definition
	target *definition.Definition
	now    time.Time
	newID  models.IDGenerator

	before *models.Snapshot
	tree   *tree.Tree

	synthesized map[scopeKey]string
}

// transform returns the migrated copy of before.
func transform(
	plan *Plan,
	source, target *definition.Definition,
	before *models.Snapshot,
	now time.Time,
	newID models.IDGenerator,
) (*models.Snapshot, error) {
	instance := before.Instance

	if instance.IsEnded() {
		return nil, fmt.Errorf("%w: %s", ErrInstanceEnded, instance.ID)
	}

	if instance.DefinitionID != source.ID() {
		return nil, fmt.Errorf("%w: %s is on %s, plan migrates %s",
			ErrDefinitionMismatch, instance.ID, instance.DefinitionID, source.ID())
	}

	t := &transformer{
		plan:        plan,
		source:      source,
		target:      target,
		now:         now,
		newID:       newID,
		before:      before,
		tree:        tree.New(before),
		synthesized: map[scopeKey]string{},
	}

	if err := t.checkCompleteness(); err != nil {
		return nil, err
	}

	steps := []func() error{
		t.migrateExecutions,
		t.migrateEventSubscriptions,
		t.migrateJobs,
		t.addMissingTriggerRecords,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	instance.DefinitionID = target.ID()
	t.tree.SetInstance(instance)

	if err := t.tree.Validate(target); err != nil {
		return nil, &InconsistentScopeError{
			InstanceID: instance.ID,
			Reason:     "migrated tree does not match " + target.ID(),
			Err:        err,
		}
	}

	return t.tree.Snapshot(), nil
}

func (t *transformer) checkCompleteness() error {
	var activityIDs, activityInstanceIDs []string

	for _, ai := range t.tree.LeafActivityInstances() {
		if _, ok := t.plan.InstructionFor(ai.ActivityID); ok {
			continue
		}

		activityInstanceIDs = append(activityInstanceIDs, ai.ID)

		if !slices.Contains(activityIDs, ai.ActivityID) {
			activityIDs = append(activityIDs, ai.ActivityID)
		}
	}

	if len(activityIDs) == 0 {
		return nil
	}

	slices.Sort(activityIDs)

	return &IncompleteMappingError{
		InstanceID:          t.before.Instance.ID,
		ActivityIDs:         activityIDs,
		ActivityInstanceIDs: activityInstanceIDs,
	}
}

// migrateExecutions walks the executions deepest first, so every child is
// settled before its ancestors are rewritten or removed.
func (t *transformer) migrateExecutions() error {
	for _, e := range t.tree.BottomUp() {
		var err error

		switch {
		case e.IsRoot():
			err = t.migrateRoot(e)
		case t.isMapped(e.ActivityID):
			err = t.migrateExecution(e)
		default:
			err = t.removeExecution(e)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (t *transformer) migrateRoot(root models.Execution) error {
	if err := t.tree.RewriteActivity(root.ID, "", t.target.ID()); err != nil {
		return t.scopeError(root, "cannot rewrite process scope", err)
	}

	ai, ok := t.tree.ActivityInstanceForExecution(root.ID)
	if !ok {
		return t.scopeError(root, "process scope has no activity instance", nil)
	}

	ai.ActivityID = t.target.ID()

	return t.tree.UpdateActivityInstance(ai)
}

func (t *transformer) migrateExecution(e models.Execution) error {
	in, _ := t.plan.InstructionFor(e.ActivityID)

	activity, ok := t.target.Activity(in.TargetActivityID)
	if !ok {
		return t.scopeError(e, fmt.Sprintf("target activity %s does not exist", in.TargetActivityID), nil)
	}

	ancestor, ancestorTarget := t.survivingAncestor(e)

	introduced, ok := introducedScopes(t.target, activity.ID, ancestorTarget)
	if !ok {
		return t.scopeError(e, fmt.Sprintf("surviving scope %s is migrated to %s, which does not contain %s",
			scopeName(ancestor.ActivityID), scopeName(ancestorTarget), activity.ID), nil)
	}

	parentID := ancestor.ID

	for i := len(introduced) - 1; i >= 0; i-- {
		var err error

		parentID, err = t.ensureScope(parentID, introduced[i])
		if err != nil {
			return t.scopeError(e, "cannot introduce scope "+introduced[i], err)
		}
	}

	if e.ParentID != parentID {
		if err := t.tree.Reparent(e.ID, parentID); err != nil {
			return t.scopeError(e, "cannot move execution", err)
		}
	}

	if err := t.tree.RewriteActivity(e.ID, activity.ID, t.target.ID()); err != nil {
		return t.scopeError(e, "cannot rewrite execution", err)
	}

	if err := t.tree.SetScope(e.ID, t.target.IsScope(activity.ID)); err != nil {
		return t.scopeError(e, "cannot rewrite execution", err)
	}

	ai, ok := t.tree.ActivityInstanceForExecution(e.ID)
	if !ok {
		return t.scopeError(e, "execution has no activity instance", nil)
	}

	parentAI, ok := t.tree.ActivityInstanceForExecution(parentID)
	if !ok {
		return t.scopeError(e, "parent execution has no activity instance", nil)
	}

	ai.ActivityID = activity.ID
	ai.ParentID = parentAI.ID

	if err := t.tree.UpdateActivityInstance(ai); err != nil {
		return t.scopeError(e, "cannot rewrite activity instance", err)
	}

	t.tree.SetVariables(e.VariableScopeID, in.Variables)

	return nil
}

// removeExecution drops an unmapped scope. Its children were already moved to
// the next surviving ancestor.
func (t *transformer) removeExecution(e models.Execution) error {
	if len(t.tree.Children(e.ID)) > 0 {
		return t.scopeError(e, "unmapped scope still contains executions", nil)
	}

	for _, sub := range t.tree.EventSubscriptionsFor(e.ID) {
		t.tree.RemoveEventSubscription(sub.ID)
	}

	for _, job := range t.tree.JobsFor(e.ID) {
		t.tree.RemoveJob(job.ID)
	}

	if ai, ok := t.tree.ActivityInstanceForExecution(e.ID); ok {
		if err := t.tree.RemoveActivityInstance(ai.ID); err != nil {
			return t.scopeError(e, "cannot remove activity instance", err)
		}
	}

	if err := t.tree.RemoveExecution(e.ID); err != nil {
		return t.scopeError(e, "cannot remove execution", err)
	}

	return nil
}

// survivingAncestor returns the nearest ancestor of e in the source tree that
// is migrated, and the target activity it is migrated to. The root always
// survives.
func (t *transformer) survivingAncestor(e models.Execution) (models.Execution, string) {
	for parent := t.before.Executions[e.ParentID]; ; parent = t.before.Executions[parent.ParentID] {
		if parent.IsRoot() {
			return parent, ""
		}

		if target, ok := t.plan.targetOf(parent.ActivityID); ok {
			return parent, target
		}
	}
}

// ensureScope returns the execution at scopeID directly beneath
// parentExecutionID, synthesizing it once and sharing it between siblings.
func (t *transformer) ensureScope(parentExecutionID, scopeID string) (string, error) {
	key := scopeKey{parentExecutionID: parentExecutionID, activityID: scopeID}
	if id, ok := t.synthesized[key]; ok {
		return id, nil
	}

	parentAI, ok := t.tree.ActivityInstanceForExecution(parentExecutionID)
	if !ok {
		return "", fmt.Errorf("%w: activity instance of %s", tree.ErrActivityInstanceNotFound, parentExecutionID)
	}

	execution := models.Execution{
		ID:                t.newID(),
		ParentID:          parentExecutionID,
		ProcessInstanceID: t.before.Instance.ID,
		DefinitionID:      t.target.ID(),
		ActivityID:        scopeID,
		IsScope:           t.target.IsScope(scopeID),
	}

	if err := t.tree.CreateExecution(execution); err != nil {
		return "", err
	}

	err := t.tree.CreateActivityInstance(models.ActivityInstance{
		ID:          tree.NewActivityInstanceID(scopeID, t.newID),
		ActivityID:  scopeID,
		ParentID:    parentAI.ID,
		ExecutionID: execution.ID,
	})
	if err != nil {
		return "", err
	}

	t.synthesized[key] = execution.ID

	return execution.ID, nil
}

// migrateEventSubscriptions keeps the subscriptions of mapped activities under
// their ids and drops the rest.
func (t *transformer) migrateEventSubscriptions() error {
	for _, sub := range t.tree.EventSubscriptions() {
		in, ok := t.plan.InstructionFor(sub.ActivityID)
		if !ok {
			t.tree.RemoveEventSubscription(sub.ID)
			continue
		}

		activity, ok := t.target.Activity(in.TargetActivityID)
		if !ok || activity.Trigger == nil || activity.Trigger.Kind != sub.Kind {
			t.tree.RemoveEventSubscription(sub.ID)
			continue
		}

		t.tree.PutEventSubscription(MigrateEventSubscription(sub, in, activity))
	}

	return nil
}

// migrateJobs keeps the jobs of mapped activities under their ids and drops
// the rest.
func (t *transformer) migrateJobs() error {
	for _, job := range t.tree.Jobs() {
		in, ok := t.plan.InstructionFor(job.ActivityID)
		if !ok {
			t.tree.RemoveJob(job.ID)
			continue
		}

		activity, ok := t.target.Activity(in.TargetActivityID)
		if !ok {
			t.tree.RemoveJob(job.ID)
			continue
		}

		if job.Kind == models.JobKindTimer && (activity.Trigger == nil || activity.Trigger.Kind != models.EventKindTimer) {
			t.tree.RemoveJob(job.ID)
			continue
		}

		migrated, err := MigrateJob(job, in, activity, t.now)
		if err != nil {
			return fmt.Errorf("process instance %s: %w", t.before.Instance.ID, err)
		}

		t.tree.PutJob(migrated)
	}

	return nil
}

// addMissingTriggerRecords creates the subscriptions and timer jobs the target
// declares but the source had no counterpart for: triggers of boundary events
// new to a host, of synthesized scopes, and of wait states that gained one.
func (t *transformer) addMissingTriggerRecords() error {
	for _, e := range t.tree.Executions() {
		if e.IsRoot() {
			continue
		}

		activity, ok := t.target.Activity(e.ActivityID)
		if !ok {
			continue
		}

		candidates := t.target.BoundaryEvents(activity.ID)
		if activity.HasTrigger() && activity.Kind != definition.KindBoundaryEvent {
			candidates = append(candidates, activity)
		}

		for _, candidate := range candidates {
			if t.hasTriggerRecord(e.ID, candidate.ID) {
				continue
			}

			if err := t.tree.AddTriggerRecords(candidate, e, t.now, t.newID); err != nil {
				return fmt.Errorf("process instance %s: %w", t.before.Instance.ID, err)
			}
		}
	}

	return nil
}

func (t *transformer) hasTriggerRecord(executionID, activityID string) bool {
	for _, sub := range t.tree.EventSubscriptionsFor(executionID) {
		if sub.ActivityID == activityID {
			return true
		}
	}

	for _, job := range t.tree.JobsFor(executionID) {
		if job.ActivityID == activityID && job.Kind == models.JobKindTimer {
			return true
		}
	}

	return false
}

func (t *transformer) isMapped(activityID string) bool {
	_, ok := t.plan.InstructionFor(activityID)
	return ok
}

func (t *transformer) scopeError(e models.Execution, reason string, err error) error {
	return &InconsistentScopeError{
		InstanceID:  t.before.Instance.ID,
		ExecutionID: e.ID,
		ActivityID:  e.ActivityID,
		Reason:      reason,
		Err:         err,
	}
}
