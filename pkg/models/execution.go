package models

// Execution is a token in the live execution tree of a process instance.
//
// Executions form a tree through ParentID back-references; the root execution
// has an empty ParentID, represents the process scope itself and has an empty
// ActivityID.
type Execution struct {
	ID                string `json:"id"                  validate:"required"`
	ParentID          string `json:"parent_id,omitempty"`
	ProcessInstanceID string `json:"process_instance_id" validate:"required"`
	DefinitionID      string `json:"definition_id"       validate:"required"`
	ActivityID        string `json:"activity_id,omitempty"`
	VariableScopeID   string `json:"variable_scope_id"   validate:"required"`
	IsScope           bool   `json:"is_scope"`
}

// IsRoot reports whether the execution is the process instance execution.
func (e Execution) IsRoot() bool {
	return e.ParentID == ""
}

// ActivityInstance is the business-facing projection of one or more executions
// at a single activity. Its ID is assigned once and never regenerated by
// internal token restructuring.
//
// The root activity instance shares its ID with the process instance and its
// ActivityID is the process definition ID.
type ActivityInstance struct {
	ID          string `json:"id"                     validate:"required"`
	ActivityID  string `json:"activity_id"            validate:"required"`
	ParentID    string `json:"parent_id,omitempty"`
	ExecutionID string `json:"execution_id"           validate:"required"`
}

// IsRoot reports whether the activity instance is the process-level one.
func (a ActivityInstance) IsRoot() bool {
	return a.ParentID == ""
}
