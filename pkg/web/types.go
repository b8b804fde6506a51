// Package web provides HTTP request and response types for the migration API.
package web

import (
	"github.com/dukex/procshift/pkg/migration"
)

// CreateMigrationPlanRequest represents the request body for building a new migration plan.
type CreateMigrationPlanRequest struct {
	SourceDefinitionID string                  `json:"source_definition_id" validate:"required"`
	TargetDefinitionID string                  `json:"target_definition_id" validate:"required"`
	Instructions       []migration.Instruction `json:"instructions"         validate:"required,min=1,dive"`
}

// ExecuteMigrationPlanRequest represents the request body for executing a plan.
// An empty list migrates every instance of the plan's source definition.
type ExecuteMigrationPlanRequest struct {
	ProcessInstanceIDs []string `json:"process_instance_ids" validate:"omitempty,dive,required"`
}

// StartProcessInstanceRequest represents the request body for starting a process instance.
type StartProcessInstanceRequest struct {
	DefinitionID     string         `json:"definition_id"                validate:"required"`
	StartActivityIDs []string       `json:"start_activity_ids,omitempty" validate:"omitempty,dive,required"`
	Variables        map[string]any `json:"variables,omitempty"`
}

// EventRequest represents the request body for correlating a message or a signal.
type EventRequest struct {
	Name string `json:"name" validate:"required"`
}
