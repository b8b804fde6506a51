// Package events defines event types and structures for process instance and
// migration lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every lifecycle event.
const Topic = "procshift.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Process instance lifecycle events.
	ProcessInstanceStartedEvent EventType = "process_instance.started"
	ProcessInstanceEndedEvent   EventType = "process_instance.ended"

	// Migration lifecycle events.
	MigrationPlanCreatedEvent           EventType = "migration_plan.created"
	ProcessInstanceMigratedEvent        EventType = "process_instance.migrated"
	ProcessInstanceMigrationFailedEvent EventType = "process_instance.migration_failed"
	MigrationBatchCompletedEvent        EventType = "migration_batch.completed"
)

type BaseEvent struct {
	ID                string         `json:"id"`
	Type              EventType      `json:"type"`
	Timestamp         time.Time      `json:"timestamp"`
	ProcessInstanceID string         `json:"process_instance_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type ProcessInstanceStarted struct {
	BaseEvent

	DefinitionID string `json:"definition_id"`
	BusinessKey  string `json:"business_key,omitempty"`
}

func (e ProcessInstanceStarted) GetType() EventType {
	return ProcessInstanceStartedEvent
}

type ProcessInstanceEnded struct {
	BaseEvent

	DefinitionID string        `json:"definition_id"`
	Duration     time.Duration `json:"duration"`
}

func (e ProcessInstanceEnded) GetType() EventType {
	return ProcessInstanceEndedEvent
}

type MigrationPlanCreated struct {
	BaseEvent

	PlanID             string `json:"plan_id"`
	SourceDefinitionID string `json:"source_definition_id"`
	TargetDefinitionID string `json:"target_definition_id"`
	Instructions       int    `json:"instructions"`
}

func (e MigrationPlanCreated) GetType() EventType {
	return MigrationPlanCreatedEvent
}

// ProcessInstanceMigrated is published after the migrated state is committed.
type ProcessInstanceMigrated struct {
	BaseEvent

	PlanID             string `json:"plan_id"`
	SourceDefinitionID string `json:"source_definition_id"`
	TargetDefinitionID string `json:"target_definition_id"`
	Revision           uint64 `json:"revision"`
}

func (e ProcessInstanceMigrated) GetType() EventType {
	return ProcessInstanceMigratedEvent
}

// ProcessInstanceMigrationFailed is published when a migration attempt was
// aborted. The instance is left untouched.
type ProcessInstanceMigrationFailed struct {
	BaseEvent

	PlanID    string `json:"plan_id"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (e ProcessInstanceMigrationFailed) GetType() EventType {
	return ProcessInstanceMigrationFailedEvent
}

type MigrationBatchCompleted struct {
	BaseEvent

	PlanID    string        `json:"plan_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
}

func (e MigrationBatchCompleted) GetType() EventType {
	return MigrationBatchCompletedEvent
}

func NewBaseEvent(eventType EventType, processInstanceID string) BaseEvent {
	return BaseEvent{
		ID:                uuid.New().String(),
		Type:              eventType,
		Timestamp:         time.Now().UTC(),
		ProcessInstanceID: processInstanceID,
		Metadata:          make(map[string]any),
	}
}

// New returns an empty event of the given type, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case ProcessInstanceStartedEvent:
		return &ProcessInstanceStarted{}, true
	case ProcessInstanceEndedEvent:
		return &ProcessInstanceEnded{}, true
	case MigrationPlanCreatedEvent:
		return &MigrationPlanCreated{}, true
	case ProcessInstanceMigratedEvent:
		return &ProcessInstanceMigrated{}, true
	case ProcessInstanceMigrationFailedEvent:
		return &ProcessInstanceMigrationFailed{}, true
	case MigrationBatchCompletedEvent:
		return &MigrationBatchCompleted{}, true
	default:
		return nil, false
	}
}
