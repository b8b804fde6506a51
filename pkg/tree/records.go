package tree

import (
	"fmt"
	"time"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/models"
)

// TriggerRecords builds the record that makes an execution wait for the trigger
// declared by activity: a timer job for timer triggers, an event subscription
// otherwise. Exactly one of the returned pointers is non-nil when err is nil.
func TriggerRecords(
	activity definition.Activity,
	execution models.Execution,
	now time.Time,
	newID models.IDGenerator,
) (*models.EventSubscription, *models.Job, error) {
	if activity.Trigger == nil {
		return nil, nil, fmt.Errorf("activity %s declares no trigger", activity.ID)
	}

	if activity.Trigger.Kind == models.EventKindTimer {
		due, err := activity.Trigger.Timer.NextDue(now)
		if err != nil {
			return nil, nil, fmt.Errorf("activity %s: %w", activity.ID, err)
		}

		return nil, &models.Job{
			ID:                newID(),
			Kind:              models.JobKindTimer,
			DueTime:           due,
			ActivityID:        activity.ID,
			ExecutionID:       execution.ID,
			ProcessInstanceID: execution.ProcessInstanceID,
			Retries:           models.DefaultJobRetries,
		}, nil
	}

	return &models.EventSubscription{
		ID:                newID(),
		Kind:              activity.Trigger.Kind,
		EventName:         activity.Trigger.Name,
		ActivityID:        activity.ID,
		ExecutionID:       execution.ID,
		ProcessInstanceID: execution.ProcessInstanceID,
		CreatedAt:         now.UTC(),
	}, nil, nil
}

// AddTriggerRecords creates the trigger records of activity for execution and
// stores them in the tree.
func (t *Tree) AddTriggerRecords(activity definition.Activity, execution models.Execution, now time.Time, newID models.IDGenerator) error {
	sub, job, err := TriggerRecords(activity, execution, now, newID)
	if err != nil {
		return err
	}

	if sub != nil {
		t.PutEventSubscription(*sub)
	}

	if job != nil {
		t.PutJob(*job)
	}

	return nil
}

// NewActivityInstanceID builds the id of a new activity instance at activityID.
func NewActivityInstanceID(activityID string, newID models.IDGenerator) string {
	return activityID + ":" + newID()
}
