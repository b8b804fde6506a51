// Package models defines the runtime records of a process instance: the
// execution tree, activity instances, event subscriptions, jobs and variables.
package models

import "time"

// InstanceState represents the lifecycle state of a process instance.
type InstanceState string

const (
	InstanceStateActive InstanceState = "active" // Has at least one live execution
	InstanceStateEnded  InstanceState = "ended"  // Completed normally, tree is empty
)

// ProcessInstance is the root record correlating a running instance to exactly
// one process definition version at any time.
type ProcessInstance struct {
	ID           string        `json:"id"                      validate:"required"`
	DefinitionID string        `json:"definition_id"           validate:"required"`
	State        InstanceState `json:"state"                   validate:"required"`
	BusinessKey  string        `json:"business_key,omitempty"`
	Revision     uint64        `json:"revision"` // Optimistic concurrency version, 0 means not persisted
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
}

// IsEnded reports whether the instance completed.
func (p ProcessInstance) IsEnded() bool {
	return p.State == InstanceStateEnded
}

// Equal compares two instance records ignoring the revision, which is owned by
// the store.
func (p ProcessInstance) Equal(o ProcessInstance) bool {
	if p.ID != o.ID || p.DefinitionID != o.DefinitionID || p.State != o.State || p.BusinessKey != o.BusinessKey {
		return false
	}

	if !p.StartedAt.Equal(o.StartedAt) {
		return false
	}

	switch {
	case p.EndedAt == nil && o.EndedAt == nil:
		return true
	case p.EndedAt == nil || o.EndedAt == nil:
		return false
	default:
		return p.EndedAt.Equal(*o.EndedAt)
	}
}
