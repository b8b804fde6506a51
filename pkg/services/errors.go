// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/migration"
	"github.com/dukex/procshift/pkg/persistence"
	"github.com/dukex/procshift/pkg/runtime"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrDefinitionIDRequired = errors.New("source and target definition ids are required")
	ErrInstanceIDRequired   = errors.New("process instance id is required")
	ErrPlanIDRequired       = errors.New("migration plan id is required")
	ErrInstructionsRequired = errors.New("migration plan must have at least one instruction")

	// Unknown resources (404 Not Found).
	ErrPlanNotFound       = migration.ErrPlanNotFound
	ErrDefinitionNotFound = definition.ErrDefinitionNotFound
	ErrInstanceNotFound   = persistence.ErrInstanceNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrDefinitionIDRequired) ||
		errors.Is(err, ErrInstanceIDRequired) ||
		errors.Is(err, ErrPlanIDRequired) ||
		errors.Is(err, ErrInstructionsRequired) ||
		errors.Is(err, runtime.ErrNotCompletable) ||
		errors.Is(err, runtime.ErrNoStartEvent) ||
		migration.IsPlanInvalid(err)
}

// IsNotFoundError checks if an error refers to an unknown resource and should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, definition.ErrActivityNotFound) ||
		runtime.IsNotFound(err) ||
		persistence.IsInstanceNotFound(err)
}

// IsConflictError checks if an error conflicts with the current instance state and should return HTTP 409.
func IsConflictError(err error) bool {
	return migration.IsOptimisticLock(err) ||
		persistence.IsConflict(err) ||
		errors.Is(err, runtime.ErrInstanceEnded) ||
		errors.Is(err, migration.ErrInstanceEnded)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
