package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrInstanceEnded            = errors.New("process instance has ended")
	ErrActivityInstanceNotFound = errors.New("activity instance not found")
	ErrJobNotFound              = errors.New("job not found")
	ErrNoMatchingSubscription   = errors.New("no matching event subscription")
	ErrNotCompletable           = errors.New("activity cannot be completed")
	ErrNoStartEvent             = errors.New("process definition has no start event")
	ErrStepLimit                = errors.New("step limit exceeded")
)

// OperationError wraps runtime errors with the operation and instance they
// happened on.
type OperationError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed for process instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if an error reports an unknown activity instance, job or
// subscription.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrActivityInstanceNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrNoMatchingSubscription)
}
