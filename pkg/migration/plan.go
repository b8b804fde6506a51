package migration

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/procshift/pkg/definition"
)

// Plan is a validated, immutable mapping from a source definition to a target
// definition. It can be applied to any number of instances.
type Plan struct {
	id                 string
	sourceDefinitionID string
	targetDefinitionID string
	instructions       []Instruction
	bySource           map[string]int
	createdAt          time.Time
}

func (p *Plan) ID() string                 { return p.id }
func (p *Plan) SourceDefinitionID() string { return p.sourceDefinitionID }
func (p *Plan) TargetDefinitionID() string { return p.targetDefinitionID }
func (p *Plan) CreatedAt() time.Time       { return p.createdAt }

// Instructions returns a copy of the instructions in declaration order.
func (p *Plan) Instructions() []Instruction {
	out := make([]Instruction, len(p.instructions))
	for i, in := range p.instructions {
		out[i] = in.clone()
	}

	return out
}

// InstructionFor returns the instruction migrating sourceActivityID.
func (p *Plan) InstructionFor(sourceActivityID string) (Instruction, bool) {
	i, ok := p.bySource[sourceActivityID]
	if !ok {
		return Instruction{}, false
	}

	return p.instructions[i].clone(), true
}

// targetOf returns the target activity of a mapped source activity. The
// process scope "" always maps onto itself.
func (p *Plan) targetOf(sourceActivityID string) (string, bool) {
	if sourceActivityID == "" {
		return "", true
	}

	i, ok := p.bySource[sourceActivityID]
	if !ok {
		return "", false
	}

	return p.instructions[i].TargetActivityID, true
}

func (p *Plan) isTargeted(targetActivityID string) bool {
	return slices.ContainsFunc(p.instructions, func(in Instruction) bool {
		return in.TargetActivityID == targetActivityID
	})
}

type planJSON struct {
	ID                 string        `json:"id"`
	SourceDefinitionID string        `json:"source_definition_id"`
	TargetDefinitionID string        `json:"target_definition_id"`
	Instructions       []Instruction `json:"instructions"`
	CreatedAt          time.Time     `json:"created_at"`
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planJSON{
		ID:                 p.id,
		SourceDefinitionID: p.sourceDefinitionID,
		TargetDefinitionID: p.targetDefinitionID,
		Instructions:       p.instructions,
		CreatedAt:          p.createdAt,
	})
}

// BuildPlan resolves both definitions through provider and validates the
// instructions against them.
func BuildPlan(
	ctx context.Context,
	provider definition.Provider,
	sourceDefinitionID, targetDefinitionID string,
	instructions []Instruction,
) (*Plan, error) {
	source, err := provider.GetDefinition(ctx, sourceDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source definition: %w", err)
	}

	target, err := provider.GetDefinition(ctx, targetDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target definition: %w", err)
	}

	return NewPlan(source, target, instructions)
}

// NewPlan validates instructions against source and target and returns the
// plan, or a *ValidationError listing every violation found.
func NewPlan(source, target *definition.Definition, instructions []Instruction) (*Plan, error) {
	violations := validate(source, target, instructions)
	if len(violations) > 0 {
		return nil, &ValidationError{
			SourceDefinitionID: source.ID(),
			TargetDefinitionID: target.ID(),
			Violations:         violations,
		}
	}

	plan := &Plan{
		id:                 uuid.NewString(),
		sourceDefinitionID: source.ID(),
		targetDefinitionID: target.ID(),
		instructions:       make([]Instruction, len(instructions)),
		bySource:           make(map[string]int, len(instructions)),
		createdAt:          time.Now().UTC(),
	}

	for i, in := range instructions {
		plan.instructions[i] = in.clone()
		plan.bySource[in.SourceActivityID] = i
	}

	return plan, nil
}

func validate(source, target *definition.Definition, instructions []Instruction) []Violation {
	var violations []Violation

	add := func(i int, in Instruction, kind ViolationKind, format string, args ...any) {
		violations = append(violations, Violation{
			Index:            i,
			SourceActivityID: in.SourceActivityID,
			TargetActivityID: in.TargetActivityID,
			Kind:             kind,
			Message:          fmt.Sprintf(format, args...),
		})
	}

	mapping := map[string]string{}
	firstSource := map[string]int{}
	firstTarget := map[string]int{}

	for i, in := range instructions {
		if in.SourceActivityID == "" || in.TargetActivityID == "" {
			add(i, in, ViolationMissingActivityID, "source and target activity ids are required")
			continue
		}

		if first, ok := firstSource[in.SourceActivityID]; ok {
			add(i, in, ViolationDuplicateSource, "source activity %s is already mapped by instruction %d", in.SourceActivityID, first)
		} else {
			firstSource[in.SourceActivityID] = i
			mapping[in.SourceActivityID] = in.TargetActivityID
		}

		if first, ok := firstTarget[in.TargetActivityID]; ok {
			add(i, in, ViolationAmbiguousTarget, "target activity %s is already targeted by instruction %d", in.TargetActivityID, first)
		} else {
			firstTarget[in.TargetActivityID] = i
		}
	}

	for i, in := range instructions {
		if in.SourceActivityID == "" || in.TargetActivityID == "" {
			continue
		}

		s, sourceFound := source.Activity(in.SourceActivityID)
		if !sourceFound {
			add(i, in, ViolationSourceNotFound, "activity %s does not exist in %s", in.SourceActivityID, source.ID())
		}

		t, targetFound := target.Activity(in.TargetActivityID)
		if !targetFound {
			add(i, in, ViolationTargetNotFound, "activity %s does not exist in %s", in.TargetActivityID, target.ID())
		}

		if !sourceFound || !targetFound {
			continue
		}

		if !migratable(s.Kind) || !migratable(t.Kind) {
			add(i, in, ViolationNotMigratable, "%s activities cannot be migrated to %s activities", s.Kind, t.Kind)
			continue
		}

		if s.IsMultiInstanceBody() != t.IsMultiInstanceBody() || s.MultiInstance != t.MultiInstance {
			add(i, in, ViolationMultiplicity, "%s cannot be mapped to %s", multiplicity(s), multiplicity(t))
			continue
		}

		if !s.Kind.CompatibleWith(t.Kind) {
			add(i, in, ViolationIncompatibleKind, "%s cannot be mapped to %s", s.Kind, t.Kind)
			continue
		}

		if s.Kind.IsCatchEvent() && triggerKind(s) != triggerKind(t) {
			add(i, in, ViolationIncompatibleTrigger, "%s trigger cannot be mapped to %s trigger", triggerKind(s), triggerKind(t))
		}

		if in.UpdateEventTrigger && !t.HasTrigger() {
			add(i, in, ViolationNoTriggerToUpdate, "target activity %s declares no event trigger", t.ID)
		}

		if s.Kind == definition.KindBoundaryEvent {
			if host, ok := mapping[s.AttachedTo]; !ok || host != t.AttachedTo {
				add(i, in, ViolationBoundaryHostNotMapped,
					"host %s of boundary event %s must be mapped to %s", s.AttachedTo, s.ID, t.AttachedTo)
			}
		}

		if s.MultiInstance && !s.IsMultiInstanceBody() {
			sourceBody, targetBody := definition.MultiInstanceBodyID(s.ID), definition.MultiInstanceBodyID(t.ID)
			if mapped, ok := mapping[sourceBody]; !ok || mapped != targetBody {
				add(i, in, ViolationBodyNotMapped,
					"multi-instance body %s must be mapped to %s", sourceBody, targetBody)

				continue
			}
		}

		if msg, ok := checkParentScope(source, target, mapping, firstTarget, i, s, t); !ok {
			add(i, in, ViolationInconsistentParent, "%s", msg)
		}
	}

	slices.SortStableFunc(violations, func(a, b Violation) int {
		return cmp.Compare(a.Index, b.Index)
	})

	return violations
}

// checkParentScope requires the nearest mapped scope around the source activity
// to map onto the target activity's flow scope or one of its ancestors. Scopes
// between the two are introduced by the migration and must not be targeted by
// another instruction.
func checkParentScope(
	source, target *definition.Definition,
	mapping map[string]string,
	targeted map[string]int,
	index int,
	s, t definition.Activity,
) (string, bool) {
	ancestor, ancestorTarget := "", ""

	for _, scope := range source.Ancestors(s.ID) {
		if mapped, ok := mapping[scope]; ok {
			ancestor, ancestorTarget = scope, mapped
			break
		}
	}

	introduced, ok := introducedScopes(target, t.ID, ancestorTarget)
	if !ok {
		return fmt.Sprintf("enclosing scope %s is mapped to %s, which does not contain %s",
			scopeName(ancestor), scopeName(ancestorTarget), t.ID), false
	}

	for _, scope := range introduced {
		if i, ok := targeted[scope]; ok && i != index {
			return fmt.Sprintf("scope %s would be introduced around %s but is the target of instruction %d",
				scope, t.ID, i), false
		}
	}

	return "", true
}

// introducedScopes returns the flow scopes strictly between ancestorScope and
// activityID in def, innermost first. ok is false when ancestorScope does not
// contain the activity.
func introducedScopes(def *definition.Definition, activityID, ancestorScope string) ([]string, bool) {
	var out []string

	for scope := def.FlowScope(activityID); scope != ancestorScope; scope = def.FlowScope(scope) {
		if scope == "" {
			return nil, false
		}

		out = append(out, scope)
	}

	return out, true
}

func migratable(kind definition.ActivityKind) bool {
	switch kind {
	case definition.KindStartEvent, definition.KindEndEvent, definition.KindGateway:
		return false
	default:
		return true
	}
}

func multiplicity(a definition.Activity) string {
	switch {
	case a.IsMultiInstanceBody():
		return "multi-instance body"
	case a.MultiInstance:
		return "multi-instance activity"
	default:
		return "single-instance activity"
	}
}

func triggerKind(a definition.Activity) string {
	if a.Trigger == nil {
		return "no"
	}

	return string(a.Trigger.Kind)
}

func scopeName(id string) string {
	if id == "" {
		return "<process>"
	}

	return id
}
