package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/eventbus"
	"github.com/dukex/procshift/pkg/events"
	"github.com/dukex/procshift/pkg/migration"
	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/tree"
)

// Migration exposes plan building and plan execution to the outer layers.
// Built plans are kept in memory for the lifetime of the service.
type Migration struct {
	provider  definition.Provider
	store     persistence.Store
	migrator  *migration.Migrator
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	batchOpts []migration.BatchOption

	mu    sync.RWMutex
	plans map[string]*migration.Plan
}

// NewMigration creates a new migration service.
func NewMigration(
	provider definition.Provider,
	store persistence.Store,
	migrator *migration.Migrator,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	batchOpts ...migration.BatchOption,
) *Migration {
	if publisher == nil {
		publisher = eventbus.NopPublisher{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Migration{
		provider:  provider,
		store:     store,
		migrator:  migrator,
		publisher: publisher,
		logger:    logger.With("module", "migration_service"),
		batchOpts: batchOpts,
		plans:     map[string]*migration.Plan{},
	}
}

// HealthCheck checks the health of the persistence layer.
func (m *Migration) HealthCheck(ctx context.Context) (string, bool) {
	if m.store == nil {
		return "Persistence layer not initialized", false
	}

	err := m.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// BuildMigrationPlan validates instructions against both definitions and
// stores the resulting plan.
func (m *Migration) BuildMigrationPlan(
	ctx context.Context,
	sourceDefinitionID, targetDefinitionID string,
	instructions []migration.Instruction,
) (*migration.Plan, error) {
	if sourceDefinitionID == "" || targetDefinitionID == "" {
		return nil, NewValidationError(
			"BuildMigrationPlan",
			"DEFINITION_ID_REQUIRED",
			fmt.Sprintf("source (%q) and target (%q) definition ids are required", sourceDefinitionID, targetDefinitionID),
			ErrDefinitionIDRequired,
		)
	}

	if len(instructions) == 0 {
		return nil, NewValidationError(
			"BuildMigrationPlan",
			"INSTRUCTIONS_REQUIRED",
			fmt.Sprintf("plan from %s to %s has no instructions", sourceDefinitionID, targetDefinitionID),
			ErrInstructionsRequired,
		)
	}

	plan, err := migration.BuildPlan(ctx, m.provider, sourceDefinitionID, targetDefinitionID, instructions)
	if err != nil {
		return nil, fmt.Errorf("failed to build migration plan: %w", err)
	}

	m.mu.Lock()
	m.plans[plan.ID()] = plan
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Migration plan created",
		"plan_id", plan.ID(),
		"source_definition_id", sourceDefinitionID,
		"target_definition_id", targetDefinitionID,
		"instructions", len(instructions),
	)

	event := events.MigrationPlanCreated{
		BaseEvent:          events.NewBaseEvent(events.MigrationPlanCreatedEvent, ""),
		PlanID:             plan.ID(),
		SourceDefinitionID: sourceDefinitionID,
		TargetDefinitionID: targetDefinitionID,
		Instructions:       len(instructions),
	}

	if err := m.publisher.Publish(ctx, plan.ID(), event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish plan event", "plan_id", plan.ID(), "error", err)
	}

	return plan, nil
}

// GetPlan returns a plan previously built by this service.
func (m *Migration) GetPlan(_ context.Context, planID string) (*migration.Plan, error) {
	if planID == "" {
		return nil, NewValidationError("GetPlan", "PLAN_ID_REQUIRED", "migration plan id is required", ErrPlanIDRequired)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	plan, ok := m.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}

	return plan, nil
}

// ExecutionReport summarizes a batch run.
type ExecutionReport struct {
	PlanID    string          `json:"plan_id"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Cancelled int             `json:"cancelled"`
	Outcomes  []OutcomeReport `json:"outcomes"`
}

// OutcomeReport is a migration.Outcome with its error rendered as text.
type OutcomeReport struct {
	migration.Outcome

	Error string `json:"error,omitempty"`
}

// ExecuteMigrationPlan runs the stored plan planID. Without instanceIDs every
// instance currently on the plan's source definition is migrated.
func (m *Migration) ExecuteMigrationPlan(ctx context.Context, planID string, instanceIDs []string) (*ExecutionReport, error) {
	plan, err := m.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	return m.ExecutePlan(ctx, plan, instanceIDs)
}

// ExecutePlan runs plan against instanceIDs, or against every instance on the
// plan's source definition when instanceIDs is empty.
func (m *Migration) ExecutePlan(ctx context.Context, plan *migration.Plan, instanceIDs []string) (*ExecutionReport, error) {
	for i, id := range instanceIDs {
		if id == "" {
			return nil, NewValidationError(
				"ExecutePlan",
				"INSTANCE_ID_REQUIRED",
				fmt.Sprintf("process instance id at position %d is empty", i),
				ErrInstanceIDRequired,
			)
		}
	}

	if len(instanceIDs) == 0 {
		ids, err := m.store.InstanceIDsByDefinition(ctx, plan.SourceDefinitionID())
		if err != nil {
			return nil, fmt.Errorf("failed to list instances of %s: %w", plan.SourceDefinitionID(), err)
		}

		instanceIDs = ids
	}

	outcomes := migration.NewBatch(m.migrator, m.batchOpts...).ExecuteAll(ctx, plan, instanceIDs)

	report := &ExecutionReport{
		PlanID:   plan.ID(),
		Total:    len(outcomes),
		Outcomes: make([]OutcomeReport, 0, len(outcomes)),
	}

	for _, o := range outcomes {
		r := OutcomeReport{Outcome: o}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}

		switch o.Status {
		case migration.StatusSucceeded:
			report.Succeeded++
		case migration.StatusFailed:
			report.Failed++
		case migration.StatusCancelled:
			report.Cancelled++
		}

		report.Outcomes = append(report.Outcomes, r)
	}

	slices.SortFunc(report.Outcomes, func(a, b OutcomeReport) int {
		return cmp.Compare(a.InstanceID, b.InstanceID)
	})

	return report, nil
}

// InstanceTree is the read model of one process instance.
type InstanceTree struct {
	ProcessInstance    models.ProcessInstance     `json:"process_instance"`
	Executions         *tree.Node                 `json:"executions"`
	ActivityInstances  *tree.Node                 `json:"activity_instances"`
	EventSubscriptions []models.EventSubscription `json:"event_subscriptions"`
	Jobs               []models.Job               `json:"jobs"`
}

// GetInstanceTree loads the execution and activity instance trees of an
// instance.
func (m *Migration) GetInstanceTree(ctx context.Context, instanceID string) (*InstanceTree, error) {
	if instanceID == "" {
		return nil, NewValidationError("GetInstanceTree", "INSTANCE_ID_REQUIRED", "process instance id is required", ErrInstanceIDRequired)
	}

	s, err := m.store.LoadSnapshot(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load process instance: %w", err)
	}

	return describe(s), nil
}
