// Package migration moves running process instances from one process
// definition version to another according to a validated activity mapping.
package migration

import (
	"maps"

	"github.com/dukex/procshift/pkg/definition"
)

// Instruction maps one source activity onto one target activity.
type Instruction struct {
	SourceActivityID string `json:"source_activity_id" yaml:"source_activity_id" validate:"required"`
	TargetActivityID string `json:"target_activity_id" yaml:"target_activity_id" validate:"required"`

	// UpdateEventTrigger renames migrated subscriptions to the target's
	// declared event name and re-evaluates migrated timer jobs.
	UpdateEventTrigger bool `json:"update_event_trigger,omitempty" yaml:"update_event_trigger,omitempty"`

	// Variables are merged into the variable scope of every execution migrated
	// by this instruction.
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

func (i Instruction) clone() Instruction {
	i.Variables = maps.Clone(i.Variables)

	return i
}

// MapEqualActivities returns an instruction for every activity whose id exists
// in both definitions with a compatible kind. Start and end events and
// gateways are skipped since tokens never rest on them.
func MapEqualActivities(source, target *definition.Definition) []Instruction {
	var out []Instruction

	for _, a := range source.Activities() {
		switch a.Kind {
		case definition.KindStartEvent, definition.KindEndEvent, definition.KindGateway:
			continue
		}

		t, ok := target.Activity(a.ID)
		if !ok || !a.Kind.CompatibleWith(t.Kind) {
			continue
		}

		out = append(out, Instruction{SourceActivityID: a.ID, TargetActivityID: t.ID})
	}

	return out
}
