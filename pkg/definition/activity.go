package definition

import (
	"slices"

	"github.com/dukex/procshift/pkg/models"
)

// ActivityKind is the capability kind of an activity.
type ActivityKind string

const (
	KindStartEvent             ActivityKind = "start_event"
	KindEndEvent               ActivityKind = "end_event"
	KindUserTask               ActivityKind = "user_task"
	KindReceiveTask            ActivityKind = "receive_task"
	KindServiceTask            ActivityKind = "service_task"
	KindIntermediateCatchEvent ActivityKind = "intermediate_catch_event"
	KindBoundaryEvent          ActivityKind = "boundary_event"
	KindGateway                ActivityKind = "gateway"
	KindSubProcess             ActivityKind = "sub_process"
	KindMultiInstanceBody      ActivityKind = "multi_instance_body"
)

// MultiInstanceBodySuffix is appended to the id of a multi-instance activity to
// form the id of its synthesized body.
const MultiInstanceBodySuffix = "#multiInstanceBody"

// IsValid reports whether k is a known, declarable kind. Multi-instance bodies
// are synthesized and cannot be declared.
func (k ActivityKind) IsValid() bool {
	switch k {
	case KindStartEvent, KindEndEvent, KindUserTask, KindReceiveTask, KindServiceTask,
		KindIntermediateCatchEvent, KindBoundaryEvent, KindGateway, KindSubProcess:
		return true
	default:
		return false
	}
}

// IsCatchEvent reports whether activities of this kind wait for a trigger.
func (k ActivityKind) IsCatchEvent() bool {
	return k == KindIntermediateCatchEvent || k == KindBoundaryEvent
}

// IsWaitState reports whether a token rests on activities of this kind until
// something external happens.
func (k ActivityKind) IsWaitState() bool {
	return k == KindUserTask || k == KindReceiveTask || k == KindIntermediateCatchEvent
}

// Family groups kinds that may be mapped onto each other.
func (k ActivityKind) Family() string {
	switch k {
	case KindUserTask, KindReceiveTask:
		return "wait_task"
	default:
		return string(k)
	}
}

// CompatibleWith reports whether an activity of kind k may be migrated to an
// activity of kind other.
func (k ActivityKind) CompatibleWith(other ActivityKind) bool {
	return k.Family() == other.Family()
}

// EventTrigger is the trigger declared by a catch event.
type EventTrigger struct {
	Kind  models.EventKind        `json:"kind"            yaml:"kind"`
	Name  string                  `json:"name,omitempty"  yaml:"name,omitempty"` // Message or signal name, or condition
	Timer *models.TimerDefinition `json:"timer,omitempty" yaml:"timer,omitempty"`
}

// Activity is a node of a process definition.
type Activity struct {
	ID              string        `json:"id"                         yaml:"id"`
	Name            string        `json:"name,omitempty"             yaml:"name,omitempty"`
	Kind            ActivityKind  `json:"kind"                       yaml:"kind"`
	ParentID        string        `json:"parent,omitempty"           yaml:"parent,omitempty"` // Empty means the process scope
	MultiInstance   bool          `json:"multi_instance,omitempty"   yaml:"multi_instance,omitempty"`
	LoopCardinality int           `json:"loop_cardinality,omitempty" yaml:"loop_cardinality,omitempty"`
	AttachedTo      string        `json:"attached_to,omitempty"      yaml:"attached_to,omitempty"`
	NonInterrupting bool          `json:"non_interrupting,omitempty" yaml:"non_interrupting,omitempty"`
	Trigger         *EventTrigger `json:"trigger,omitempty"          yaml:"trigger,omitempty"`
	Outgoing        []string      `json:"outgoing,omitempty"         yaml:"outgoing,omitempty"`
}

// IsMultiInstanceBody reports whether the activity is a synthesized body.
func (a Activity) IsMultiInstanceBody() bool {
	return a.Kind == KindMultiInstanceBody
}

// InnerActivityID returns the id of the activity a multi-instance body wraps.
func (a Activity) InnerActivityID() string {
	if !a.IsMultiInstanceBody() {
		return a.ID
	}

	return a.ID[:len(a.ID)-len(MultiInstanceBodySuffix)]
}

// HasTrigger reports whether the activity declares an event trigger.
func (a Activity) HasTrigger() bool {
	return a.Trigger != nil
}

func (a Activity) clone() Activity {
	out := a
	out.Outgoing = slices.Clone(a.Outgoing)

	if a.Trigger != nil {
		trigger := *a.Trigger
		if a.Trigger.Timer != nil {
			timer := *a.Trigger.Timer
			trigger.Timer = &timer
		}

		out.Trigger = &trigger
	}

	return out
}

// MultiInstanceBodyID returns the id of the body wrapping activityID.
func MultiInstanceBodyID(activityID string) string {
	return activityID + MultiInstanceBodySuffix
}
