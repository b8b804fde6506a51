package migration

import (
	"context"
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

// Migrator applies plans to single process instances. Each application runs
// under the instance lock and commits all changes in one revision-checked
// changeset, or none.
type Migrator struct {
	provider  definition.Provider
	store     persistence.Store
	locker    lock.Locker
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	newID     models.IDGenerator
}

type Option func(*Migrator)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) { m.logger = logger }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(m *Migrator) { m.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Migrator) { m.tracer = tracer }
}

// WithClock sets the time source used for re-evaluated and new timers.
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) { m.now = now }
}

// WithIDGenerator sets the generator for synthesized records.
func WithIDGenerator(newID models.IDGenerator) Option {
	return func(m *Migrator) { m.newID = newID }
}

func NewMigrator(provider definition.Provider, store persistence.Store, locker lock.Locker, opts ...Option) *Migrator {
	m := &Migrator{
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
		opt(m)
	}

	m.logger = m.logger.With("module", "migrator")

	return m
}

// Apply migrates one instance according to plan and returns the committed
// snapshot. On any error the persisted instance is unchanged.
func (m *Migrator) Apply(ctx context.Context, plan *Plan, instanceID string) (*models.Snapshot, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "migration.apply",
		attribute.String(otelhelper.ProcessInstanceIDKey, instanceID),
		attribute.String(otelhelper.PlanIDKey, plan.ID()),
		attribute.String(otelhelper.SourceDefinitionIDKey, plan.SourceDefinitionID()),
		attribute.String(otelhelper.TargetDefinitionIDKey, plan.TargetDefinitionID()),
	)
	defer span.End()

	logger := m.logger.With(
		"process_instance_id", instanceID,
		"plan_id", plan.ID(),
	)

	migrated, err := m.apply(ctx, plan, instanceID)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to migrate process instance", "error", err)
		m.publish(ctx, instanceID, events.ProcessInstanceMigrationFailed{
			BaseEvent: events.NewBaseEvent(events.ProcessInstanceMigrationFailedEvent, instanceID),
			PlanID:    plan.ID(),
			Error:     err.Error(),
			Retryable: IsRetryable(err),
		})

		return nil, err
	}

	span.SetAttributes(attribute.Int64(otelhelper.RevisionKey, int64(migrated.Instance.Revision)))
	logger.InfoContext(ctx, "Migrated process instance",
		"source_definition_id", plan.SourceDefinitionID(),
		"target_definition_id", plan.TargetDefinitionID(),
		"revision", migrated.Instance.Revision,
	)

	m.publish(ctx, instanceID, events.ProcessInstanceMigrated{
		BaseEvent:          events.NewBaseEvent(events.ProcessInstanceMigratedEvent, instanceID),
		PlanID:             plan.ID(),
		SourceDefinitionID: plan.SourceDefinitionID(),
		TargetDefinitionID: plan.TargetDefinitionID(),
		Revision:           migrated.Instance.Revision,
	})

	return migrated, nil
}

func (m *Migrator) apply(ctx context.Context, plan *Plan, instanceID string) (*models.Snapshot, error) {
	source, err := m.provider.GetDefinition(ctx, plan.SourceDefinitionID())
	if err != nil {
		return nil, err
	}

	target, err := m.provider.GetDefinition(ctx, plan.TargetDefinitionID())
	if err != nil {
		return nil, err
	}

	unlock, err := m.locker.Lock(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	before, err := m.store.LoadSnapshot(ctx, instanceID)
	if err != nil {
		return nil, &PersistenceFailure{Op: "load", InstanceID: instanceID, Err: err}
	}

	after, err := transform(plan, source, target, before, m.now(), m.newID)
	if err != nil {
		return nil, err
	}

	changeset := models.Diff(before, after)

	if err := m.store.Commit(ctx, changeset); err != nil {
		if persistence.IsConflict(err) {
			return nil, &OptimisticLockError{
				InstanceID:       instanceID,
				ExpectedRevision: changeset.ExpectedRevision,
				Err:              err,
			}
		}

		return nil, &PersistenceFailure{Op: "commit", InstanceID: instanceID, Err: err}
	}

	after.Instance.Revision = changeset.ExpectedRevision + 1

	return after, nil
}

// Preview computes the migrated snapshot without committing it.
func (m *Migrator) Preview(ctx context.Context, plan *Plan, instanceID string) (*models.Snapshot, error) {
	source, err := m.provider.GetDefinition(ctx, plan.SourceDefinitionID())
	if err != nil {
		return nil, err
	}

	target, err := m.provider.GetDefinition(ctx, plan.TargetDefinitionID())
	if err != nil {
		return nil, err
	}

	before, err := m.store.LoadSnapshot(ctx, instanceID)
	if err != nil {
		return nil, &PersistenceFailure{Op: "load", InstanceID: instanceID, Err: err}
	}

	return transform(plan, source, target, before, m.now(), m.newID)
}

func (m *Migrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := m.publisher.Publish(ctx, key, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"process_instance_id", key,
			"error", err,
		)
	}
}
