package migration

import (
	"fmt"
	"time"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/models"
)

// MigrateEventSubscription moves sub onto target. The id and kind are kept.
// The event name changes only when the instruction asks for trigger updates,
// so a migrated subscription keeps firing on the name it was created with.
func MigrateEventSubscription(sub models.EventSubscription, in Instruction, target definition.Activity) models.EventSubscription {
	sub.ActivityID = target.ID

	if in.UpdateEventTrigger && target.Trigger != nil && target.Trigger.Kind == sub.Kind {
		sub.EventName = target.Trigger.Name
	}

	return sub
}

// MigrateJob moves job onto target. The id is kept and the due time is
// preserved verbatim unless the instruction asks for trigger updates on a
// timer job, in which case it is computed from the target timer relative to
// now.
func MigrateJob(job models.Job, in Instruction, target definition.Activity, now time.Time) (models.Job, error) {
	job.ActivityID = target.ID

	if !in.UpdateEventTrigger || job.Kind != models.JobKindTimer {
		return job, nil
	}

	if target.Trigger == nil || target.Trigger.Kind != models.EventKindTimer || target.Trigger.Timer == nil {
		return job, fmt.Errorf("activity %s declares no timer to re-evaluate job %s", target.ID, job.ID)
	}

	due, err := target.Trigger.Timer.NextDue(now)
	if err != nil {
		return job, fmt.Errorf("failed to re-evaluate job %s: %w", job.ID, err)
	}

	job.DueTime = due

	return job, nil
}
