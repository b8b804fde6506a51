package migration

import (
	"fmt"
	"strings"
)

// ViolationKind classifies why an instruction was rejected.
type ViolationKind string

const (
	ViolationSourceNotFound        ViolationKind = "source_not_found"
	ViolationTargetNotFound        ViolationKind = "target_not_found"
	ViolationMissingActivityID     ViolationKind = "missing_activity_id"
	ViolationNotMigratable         ViolationKind = "not_migratable"
	ViolationIncompatibleKind      ViolationKind = "incompatible_kind"
	ViolationIncompatibleTrigger   ViolationKind = "incompatible_trigger"
	ViolationMultiplicity          ViolationKind = "multiplicity_mismatch"
	ViolationInconsistentParent    ViolationKind = "inconsistent_parent_scope"
	ViolationBoundaryHostNotMapped ViolationKind = "boundary_host_not_mapped"
	ViolationBodyNotMapped         ViolationKind = "multi_instance_body_not_mapped"
	ViolationNoTriggerToUpdate     ViolationKind = "no_trigger_to_update"
	ViolationDuplicateSource       ViolationKind = "duplicate_source"
	ViolationAmbiguousTarget       ViolationKind = "ambiguous_target"
)

// Violation describes one defect of the instruction at Index.
type Violation struct {
	Index            int           `json:"index"`
	SourceActivityID string        `json:"source_activity_id,omitempty"`
	TargetActivityID string        `json:"target_activity_id,omitempty"`
	Kind             ViolationKind `json:"kind"`
	Message          string        `json:"message"`
}

func (v Violation) Error() string {
	return fmt.Sprintf("instruction %d (%s -> %s): %s", v.Index, v.SourceActivityID, v.TargetActivityID, v.Message)
}

// ValidationError aggregates every violation found while building a plan.
type ValidationError struct {
	SourceDefinitionID string      `json:"source_definition_id"`
	TargetDefinitionID string      `json:"target_definition_id"`
	Violations         []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "invalid migration plan from %s to %s: %d violation(s)",
		e.SourceDefinitionID, e.TargetDefinitionID, len(e.Violations))

	for _, v := range e.Violations {
		b.WriteString("\n  ")
		b.WriteString(v.Error())
	}

	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrPlanInvalid
}

// Unwrap exposes each violation to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v
	}

	return out
}

// Has reports whether a violation of kind was recorded.
func (e *ValidationError) Has(kind ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}

	return false
}
