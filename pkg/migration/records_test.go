package migration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/models"
)

func TestMigrateEventSubscription(t *testing.T) {
	sub := models.EventSubscription{
		ID:         "sub-1",
		Kind:       models.EventKindMessage,
		EventName:  "Old",
		ActivityID: "boundary",
	}

	target := definition.Activity{
		ID:      "newBoundary",
		Kind:    definition.KindBoundaryEvent,
		Trigger: &definition.EventTrigger{Kind: models.EventKindMessage, Name: "New"},
	}

	kept := MigrateEventSubscription(sub, Instruction{}, target)
	assert.Equal(t, "sub-1", kept.ID)
	assert.Equal(t, "newBoundary", kept.ActivityID)
	assert.Equal(t, "Old", kept.EventName)

	updated := MigrateEventSubscription(sub, Instruction{UpdateEventTrigger: true}, target)
	assert.Equal(t, "New", updated.EventName)

	target.Trigger.Kind = models.EventKindSignal
	mismatch := MigrateEventSubscription(sub, Instruction{UpdateEventTrigger: true}, target)
	assert.Equal(t, "Old", mismatch.EventName)

	assert.Equal(t, "boundary", sub.ActivityID)
}

func TestMigrateJob(t *testing.T) {
	now := time.Date(2016, 2, 10, 8, 0, 0, 0, time.UTC)
	due := now.Add(24 * time.Hour)

	job := models.Job{ID: "job-1", Kind: models.JobKindTimer, DueTime: due, ActivityID: "timer"}

	target := definition.Activity{
		ID:      "newTimer",
		Kind:    definition.KindBoundaryEvent,
		Trigger: &definition.EventTrigger{Kind: models.EventKindTimer, Timer: &models.TimerDefinition{Cycle: "0 9 * * *"}},
	}

	kept, err := MigrateJob(job, Instruction{}, target, now)
	require.NoError(t, err)
	assert.Equal(t, "newTimer", kept.ActivityID)
	assert.Equal(t, due, kept.DueTime)

	reevaluated, err := MigrateJob(job, Instruction{UpdateEventTrigger: true}, target, now)
	require.NoError(t, err)
	assert.Equal(t, "job-1", reevaluated.ID)
	assert.Equal(t, time.Date(2016, 2, 10, 9, 0, 0, 0, time.UTC), reevaluated.DueTime)

	async := models.Job{ID: "job-2", Kind: models.JobKindAsyncContinuation, DueTime: due, ActivityID: "task"}
	moved, err := MigrateJob(async, Instruction{UpdateEventTrigger: true}, definition.Activity{ID: "newTask"}, now)
	require.NoError(t, err)
	assert.Equal(t, due, moved.DueTime)

	_, err = MigrateJob(job, Instruction{UpdateEventTrigger: true}, definition.Activity{ID: "userTask"}, now)
	assert.Error(t, err)

	target.Trigger.Timer = &models.TimerDefinition{Duration: "not a duration"}
	_, err = MigrateJob(job, Instruction{UpdateEventTrigger: true}, target, now)
	assert.ErrorIs(t, err, models.ErrInvalidTimer)
}
