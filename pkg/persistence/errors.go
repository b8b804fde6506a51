package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrInstanceNotFound indicates a process instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("process instance not found")

	// ErrConflict indicates the persisted revision differs from the expected one.
	ErrConflict = errors.New("optimistic concurrency conflict")

	// ErrInvalidInstanceID indicates an instance id that cannot be stored safely.
	ErrInvalidInstanceID = errors.New("invalid process instance id")
)

// ConflictError is an error indicating a changeset was committed against a
// revision that is no longer the persisted one.
type ConflictError struct {
	InstanceID       string
	ExpectedRevision uint64
	ActualRevision   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"optimistic concurrency conflict on process instance %s: expected revision %d, found %d",
		e.InstanceID,
		e.ExpectedRevision,
		e.ActualRevision,
	)
}

// Is makes every ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string // Operation being performed (e.g., "LoadSnapshot", "Commit")
	InstanceID string // Process instance ID if applicable
	Err        error  // Underlying error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for process instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for instance errors.
func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsConflict checks if an error indicates an optimistic concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
