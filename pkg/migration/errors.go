package migration

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPlanInvalid is matched by every *ValidationError.
	ErrPlanInvalid = errors.New("invalid migration plan")

	// ErrIncompleteMapping indicates an active activity without an instruction.
	ErrIncompleteMapping = errors.New("incomplete migration mapping")

	// ErrInconsistentScope indicates the execution tree could not be rebuilt for
	// the target definition. A validated plan should never produce it.
	ErrInconsistentScope = errors.New("inconsistent execution scope")

	// ErrOptimisticLock indicates the instance changed between load and commit.
	ErrOptimisticLock = errors.New("process instance was modified concurrently")

	// ErrPersistence indicates the store failed to load or commit the instance.
	ErrPersistence = errors.New("migration persistence failure")

	// ErrDefinitionMismatch indicates the instance is not on the plan's source
	// definition.
	ErrDefinitionMismatch = errors.New("process instance is not on the plan's source definition")

	// ErrInstanceEnded indicates the instance already completed.
	ErrInstanceEnded = errors.New("process instance has ended")

	// ErrPlanNotFound indicates an unknown plan id.
	ErrPlanNotFound = errors.New("migration plan not found")
)

// IncompleteMappingError lists the active activities no instruction covers.
type IncompleteMappingError struct {
	InstanceID          string
	ActivityIDs         []string
	ActivityInstanceIDs []string
}

func (e *IncompleteMappingError) Error() string {
	return fmt.Sprintf("process instance %s: no instruction for active activities [%s]",
		e.InstanceID, strings.Join(e.ActivityIDs, ", "))
}

func (e *IncompleteMappingError) Is(target error) bool {
	return target == ErrIncompleteMapping
}

// InconsistentScopeError reports an execution the migrator could not place in
// the target scope hierarchy.
type InconsistentScopeError struct {
	InstanceID  string
	ExecutionID string
	ActivityID  string
	Reason      string
	Err         error
}

func (e *InconsistentScopeError) Error() string {
	msg := fmt.Sprintf("process instance %s: execution %s at %s: %s", e.InstanceID, e.ExecutionID, e.ActivityID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *InconsistentScopeError) Unwrap() error {
	return e.Err
}

func (e *InconsistentScopeError) Is(target error) bool {
	return target == ErrInconsistentScope
}

// OptimisticLockError is returned when the commit lost a race. Retrying from a
// fresh snapshot may succeed.
type OptimisticLockError struct {
	InstanceID       string
	ExpectedRevision uint64
	Err              error
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("process instance %s: modified concurrently since revision %d: %v",
		e.InstanceID, e.ExpectedRevision, e.Err)
}

func (e *OptimisticLockError) Unwrap() error {
	return e.Err
}

func (e *OptimisticLockError) Is(target error) bool {
	return target == ErrOptimisticLock
}

// PersistenceFailure wraps a store error raised while loading or committing.
type PersistenceFailure struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("%s failed for process instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *PersistenceFailure) Unwrap() error {
	return e.Err
}

func (e *PersistenceFailure) Is(target error) bool {
	return target == ErrPersistence
}

// IsIncompleteMapping checks if an error reports an uncovered active activity.
func IsIncompleteMapping(err error) bool {
	return errors.Is(err, ErrIncompleteMapping)
}

// IsInconsistentScope checks if an error reports an unplaceable execution.
func IsInconsistentScope(err error) bool {
	return errors.Is(err, ErrInconsistentScope)
}

// IsOptimisticLock checks if an error is a lost commit race.
func IsOptimisticLock(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}

// IsPersistenceFailure checks if an error came from the store.
func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsPlanInvalid checks if an error is a plan validation failure.
func IsPlanInvalid(err error) bool {
	return errors.Is(err, ErrPlanInvalid)
}

// IsRetryable reports whether retrying the instance from a fresh snapshot may
// succeed.
func IsRetryable(err error) bool {
	return IsOptimisticLock(err)
}
