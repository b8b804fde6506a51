package models

import "time"

// EventKind identifies the trigger type an event subscription waits for.
type EventKind string

const (
	EventKindMessage     EventKind = "message"
	EventKindSignal      EventKind = "signal"
	EventKindTimer       EventKind = "timer"
	EventKindConditional EventKind = "conditional"
)

// IsValid reports whether k is a known event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventKindMessage, EventKindSignal, EventKindTimer, EventKindConditional:
		return true
	default:
		return false
	}
}

// EventSubscription is a persisted registration awaiting an external trigger.
// Timer events are backed by a Job instead of a subscription.
type EventSubscription struct {
	ID                string    `json:"id"                  validate:"required"`
	Kind              EventKind `json:"kind"                validate:"required"`
	EventName         string    `json:"event_name"`
	ActivityID        string    `json:"activity_id"         validate:"required"`
	ExecutionID       string    `json:"execution_id"        validate:"required"`
	ProcessInstanceID string    `json:"process_instance_id" validate:"required"`
	CreatedAt         time.Time `json:"created_at"`
}

// Equal compares two subscriptions field by field.
func (s EventSubscription) Equal(o EventSubscription) bool {
	return s.ID == o.ID &&
		s.Kind == o.Kind &&
		s.EventName == o.EventName &&
		s.ActivityID == o.ActivityID &&
		s.ExecutionID == o.ExecutionID &&
		s.ProcessInstanceID == o.ProcessInstanceID &&
		s.CreatedAt.Equal(o.CreatedAt)
}
