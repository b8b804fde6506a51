// Package runtime provides a minimal process engine: it starts instances and
// moves their tokens on completions, messages, signals and timers, building
// the same execution trees the migrator rewrites.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/eventbus"
	"github.com/dukex/procshift/pkg/events"
	"github.com/dukex/procshift/pkg/lock"
	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/otelhelper"
	"github.com/dukex/procshift/pkg/persistence"
)

type Engine struct {
	provider  definition.Provider
	store     persistence.Store
	locker    lock.Locker
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	newID     models.IDGenerator
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID models.IDGenerator) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(provider definition.Provider, store persistence.Store, locker lock.Locker, opts ...Option) *Engine {
	e := &Engine{
		provider:  provider,
		store:     store,
		locker:    locker,
		publisher: eventbus.NopPublisher{},
		tracer:    otelhelper.NoopTracer(),
		logger:    slog.Default(),
		now:       time.Now,
		newID:     models.NewUUID,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "runtime")

	return e
}

// Start creates an instance of definitionID and runs it from its start events
// until every token waits.
func (e *Engine) Start(ctx context.Context, definitionID string, vars map[string]any) (*models.Snapshot, error) {
	return e.start(ctx, "runtime.start", definitionID, vars, func(o *operation, root models.Execution) error {
		starts := o.def.StartEvents("")
		if len(starts) == 0 {
			return fmt.Errorf("%w: %s", ErrNoStartEvent, definitionID)
		}

		for _, start := range starts {
			if err := o.enter(start, root); err != nil {
				return err
			}
		}

		return nil
	})
}

// StartAt creates an instance of definitionID with one token waiting in each of
// activityIDs, creating the enclosing scopes along the way.
func (e *Engine) StartAt(ctx context.Context, definitionID string, activityIDs []string, vars map[string]any) (*models.Snapshot, error) {
	return e.start(ctx, "runtime.start_at", definitionID, vars, func(o *operation, _ models.Execution) error {
		created := map[string]models.Execution{}

		for _, id := range activityIDs {
			a, ok := o.def.Activity(id)
			if !ok {
				return fmt.Errorf("%w: %s", definition.ErrActivityNotFound, id)
			}

			scope, err := o.ensureScopes(a.ID, created)
			if err != nil {
				return err
			}

			if err := o.enter(a, scope); err != nil {
				return err
			}
		}

		return nil
	})
}

// Complete finishes the user or receive task backed by activityInstanceID.
func (e *Engine) Complete(ctx context.Context, instanceID, activityInstanceID string) (*models.Snapshot, error) {
	return e.modify(ctx, "runtime.complete", instanceID, func(o *operation) error {
		ai, ok := o.tree.ActivityInstance(activityInstanceID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrActivityInstanceNotFound, activityInstanceID)
		}

		a, ok := o.def.Activity(ai.ActivityID)
		if !ok || (a.Kind != definition.KindUserTask && a.Kind != definition.KindReceiveTask) {
			return fmt.Errorf("%w: %s", ErrNotCompletable, ai.ActivityID)
		}

		execution, _ := o.tree.Execution(ai.ExecutionID)

		return o.leave(execution)
	}, attribute.String(otelhelper.ActivityInstanceIDKey, activityInstanceID))
}

// CorrelateMessage delivers a message to the first subscription waiting for
// name.
func (e *Engine) CorrelateMessage(ctx context.Context, instanceID, name string) (*models.Snapshot, error) {
	return e.modify(ctx, "runtime.correlate_message", instanceID, func(o *operation) error {
		for _, sub := range o.tree.EventSubscriptions() {
			if sub.Kind == models.EventKindMessage && sub.EventName == name {
				return e.fireSubscription(o, sub)
			}
		}

		return fmt.Errorf("%w: message %s", ErrNoMatchingSubscription, name)
	}, attribute.String(otelhelper.EventNameKey, name))
}

// SendSignal delivers a signal to every subscription waiting for name.
func (e *Engine) SendSignal(ctx context.Context, instanceID, name string) (*models.Snapshot, error) {
	return e.modify(ctx, "runtime.send_signal", instanceID, func(o *operation) error {
		var matched []models.EventSubscription

		for _, sub := range o.tree.EventSubscriptions() {
			if sub.Kind == models.EventKindSignal && sub.EventName == name {
				matched = append(matched, sub)
			}
		}

		if len(matched) == 0 {
			return fmt.Errorf("%w: signal %s", ErrNoMatchingSubscription, name)
		}

		for _, sub := range matched {
			if _, ok := o.tree.Execution(sub.ExecutionID); !ok {
				continue
			}

			if err := e.fireSubscription(o, sub); err != nil {
				return err
			}
		}

		return nil
	}, attribute.String(otelhelper.EventNameKey, name))
}

// ExecuteJob runs a job. A timer job fires its activity; an async continuation
// leaves it.
func (e *Engine) ExecuteJob(ctx context.Context, instanceID, jobID string) (*models.Snapshot, error) {
	return e.modify(ctx, "runtime.execute_job", instanceID, func(o *operation) error {
		var job models.Job

		found := false

		for _, j := range o.tree.Jobs() {
			if j.ID == jobID {
				job, found = j, true
				break
			}
		}

		if !found {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}

		o.tree.RemoveJob(job.ID)

		execution, ok := o.tree.Execution(job.ExecutionID)
		if !ok {
			return fmt.Errorf("job %s references unknown execution %s", job.ID, job.ExecutionID)
		}

		a, ok := o.def.Activity(job.ActivityID)
		if !ok {
			return fmt.Errorf("%w: %s", definition.ErrActivityNotFound, job.ActivityID)
		}

		if job.Kind != models.JobKindTimer {
			return o.leave(execution)
		}

		if a.NonInterrupting && a.Trigger != nil && a.Trigger.Timer != nil && a.Trigger.Timer.IsCycle() {
			if err := o.tree.AddTriggerRecords(a, execution, o.now, o.newID); err != nil {
				return err
			}
		}

		return o.fire(a, execution)
	}, attribute.String(otelhelper.JobIDKey, jobID))
}

func (e *Engine) fireSubscription(o *operation, sub models.EventSubscription) error {
	a, ok := o.def.Activity(sub.ActivityID)
	if !ok {
		return fmt.Errorf("%w: %s", definition.ErrActivityNotFound, sub.ActivityID)
	}

	execution, ok := o.tree.Execution(sub.ExecutionID)
	if !ok {
		return fmt.Errorf("subscription %s references unknown execution %s", sub.ID, sub.ExecutionID)
	}

	return o.fire(a, execution)
}

func (e *Engine) start(
	ctx context.Context,
	op, definitionID string,
	vars map[string]any,
	run func(o *operation, root models.Execution) error,
) (*models.Snapshot, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, op, attribute.String(otelhelper.DefinitionIDKey, definitionID))
	defer span.End()

	def, err := e.provider.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, otelhelper.SetError(span, err)
	}

	now := e.now()
	instanceID := e.newID()

	span.SetAttributes(attribute.String(otelhelper.ProcessInstanceIDKey, instanceID))

	o := newOperation(def, models.NewSnapshot(models.ProcessInstance{
		ID:           instanceID,
		DefinitionID: def.ID(),
		State:        models.InstanceStateActive,
		StartedAt:    now.UTC(),
	}), now, e.newID)

	root, err := o.createRoot(vars)
	if err == nil {
		err = run(o, root)
	}

	if err == nil {
		err = o.settle()
	}

	if err != nil {
		otelhelper.SetError(span, err)
		return nil, &OperationError{Op: op, InstanceID: instanceID, Err: err}
	}

	after, err := e.commit(ctx, op, nil, o)
	if err != nil {
		return nil, otelhelper.SetError(span, err)
	}

	e.logger.InfoContext(ctx, "Started process instance",
		"process_instance_id", instanceID,
		"definition_id", def.ID(),
	)

	e.publish(ctx, instanceID, events.ProcessInstanceStarted{
		BaseEvent:    events.NewBaseEvent(events.ProcessInstanceStartedEvent, instanceID),
		DefinitionID: def.ID(),
		BusinessKey:  after.Instance.BusinessKey,
	})
	e.publishEnded(ctx, o, after)

	return after, nil
}

// modify runs fn on the current state of the instance under its lock and
// commits the result.
func (e *Engine) modify(
	ctx context.Context,
	op, instanceID string,
	fn func(o *operation) error,
	attrs ...attribute.KeyValue,
) (*models.Snapshot, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, op,
		append(attrs, attribute.String(otelhelper.ProcessInstanceIDKey, instanceID))...)
	defer span.End()

	after, o, err := e.modifyLocked(ctx, op, instanceID, fn)
	if err != nil {
		otelhelper.SetError(span, err)
		e.logger.DebugContext(ctx, "Runtime operation failed", "op", op, "process_instance_id", instanceID, "error", err)

		return nil, err
	}

	e.publishEnded(ctx, o, after)

	return after, nil
}

func (e *Engine) modifyLocked(
	ctx context.Context,
	op, instanceID string,
	fn func(o *operation) error,
) (*models.Snapshot, *operation, error) {
	unlock, err := e.locker.Lock(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	before, err := e.store.LoadSnapshot(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	if before.Instance.IsEnded() {
		return nil, nil, &OperationError{Op: op, InstanceID: instanceID, Err: ErrInstanceEnded}
	}

	def, err := e.provider.GetDefinition(ctx, before.Instance.DefinitionID)
	if err != nil {
		return nil, nil, err
	}

	o := newOperation(def, before, e.now(), e.newID)

	if err := fn(o); err != nil {
		return nil, nil, &OperationError{Op: op, InstanceID: instanceID, Err: err}
	}

	if err := o.settle(); err != nil {
		return nil, nil, &OperationError{Op: op, InstanceID: instanceID, Err: err}
	}

	after, err := e.commit(ctx, op, before, o)
	if err != nil {
		return nil, nil, err
	}

	return after, o, nil
}

func (e *Engine) commit(ctx context.Context, op string, before *models.Snapshot, o *operation) (*models.Snapshot, error) {
	after := o.tree.Snapshot()
	instanceID := after.Instance.ID

	if !o.ended {
		if err := o.tree.Validate(o.def); err != nil {
			return nil, &OperationError{Op: op, InstanceID: instanceID, Err: err}
		}
	}

	changeset := models.Diff(before, after)
	if err := e.store.Commit(ctx, changeset); err != nil {
		return nil, &OperationError{Op: op, InstanceID: instanceID, Err: err}
	}

	after.Instance.Revision = changeset.ExpectedRevision + 1

	return after, nil
}

func (e *Engine) publishEnded(ctx context.Context, o *operation, after *models.Snapshot) {
	if !o.ended {
		return
	}

	instance := after.Instance

	e.logger.InfoContext(ctx, "Process instance ended",
		"process_instance_id", instance.ID,
		"definition_id", instance.DefinitionID,
	)

	var duration time.Duration
	if instance.EndedAt != nil {
		duration = instance.EndedAt.Sub(instance.StartedAt)
	}

	e.publish(ctx, instance.ID, events.ProcessInstanceEnded{
		BaseEvent:    events.NewBaseEvent(events.ProcessInstanceEndedEvent, instance.ID),
		DefinitionID: instance.DefinitionID,
		Duration:     duration,
	})
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"process_instance_id", key,
			"error", err,
		)
	}
}
