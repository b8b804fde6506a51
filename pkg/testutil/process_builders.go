// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/models"
)

const (
	MessageName = "Message"
	SignalName  = "Signal"
	TimerDate   = "2016-02-11T12:13:14Z"
)

// StartedAt is the fixed start time of test instances.
var StartedAt = time.Date(2016, 2, 1, 9, 0, 0, 0, time.UTC)

// UserTaskProcess is start -> userTask -> end.
func UserTaskProcess(key string) definition.Document {
	return definition.Document{
		Key:     key,
		Version: 1,
		Activities: []definition.Activity{
			{ID: "startEvent", Kind: definition.KindStartEvent, Outgoing: []string{"userTask"}},
			{ID: "userTask", Kind: definition.KindUserTask, Outgoing: []string{"endEvent"}},
			{ID: "endEvent", Kind: definition.KindEndEvent},
		},
	}
}

// BoundaryEventProcess is UserTaskProcess with a boundary event of the given
// kind attached to userTask; firing it leads to afterBoundaryTask.
func BoundaryEventProcess(key string, kind models.EventKind) definition.Document {
	doc := UserTaskProcess(key)

	boundary := definition.Activity{
		ID:         "boundary",
		Kind:       definition.KindBoundaryEvent,
		AttachedTo: "userTask",
		Trigger:    Trigger(kind),
		Outgoing:   []string{"afterBoundaryTask"},
	}

	doc.Activities = append(doc.Activities,
		boundary,
		definition.Activity{ID: "afterBoundaryTask", Kind: definition.KindUserTask, Outgoing: []string{"endEvent"}},
	)

	return doc
}

// SubProcessProcess is start -> subProcess(start -> userTask -> end) -> end.
func SubProcessProcess(key string) definition.Document {
	return definition.Document{
		Key:     key,
		Version: 1,
		Activities: []definition.Activity{
			{ID: "startEvent", Kind: definition.KindStartEvent, Outgoing: []string{"subProcess"}},
			{ID: "subProcess", Kind: definition.KindSubProcess, Outgoing: []string{"endEvent"}},
			{ID: "subProcessStart", Kind: definition.KindStartEvent, ParentID: "subProcess", Outgoing: []string{"userTask"}},
			{ID: "userTask", Kind: definition.KindUserTask, ParentID: "subProcess", Outgoing: []string{"subProcessEnd"}},
			{ID: "subProcessEnd", Kind: definition.KindEndEvent, ParentID: "subProcess"},
			{ID: "endEvent", Kind: definition.KindEndEvent},
		},
	}
}

// ParallelTasksProcess forks into userTask1 and userTask2 through a gateway.
func ParallelTasksProcess(key string) definition.Document {
	return definition.Document{
		Key:     key,
		Version: 1,
		Activities: []definition.Activity{
			{ID: "startEvent", Kind: definition.KindStartEvent, Outgoing: []string{"fork"}},
			{ID: "fork", Kind: definition.KindGateway, Outgoing: []string{"userTask1", "userTask2"}},
			{ID: "userTask1", Kind: definition.KindUserTask, Outgoing: []string{"endEvent1"}},
			{ID: "userTask2", Kind: definition.KindUserTask, Outgoing: []string{"endEvent2"}},
			{ID: "endEvent1", Kind: definition.KindEndEvent},
			{ID: "endEvent2", Kind: definition.KindEndEvent},
		},
	}
}

// MultiInstanceProcess runs userTask cardinality times in parallel.
func MultiInstanceProcess(key string, cardinality int) definition.Document {
	doc := UserTaskProcess(key)
	doc.Activities[1].MultiInstance = true
	doc.Activities[1].LoopCardinality = cardinality

	return doc
}

// Trigger returns a trigger of kind using the shared test names.
func Trigger(kind models.EventKind) *definition.EventTrigger {
	switch kind {
	case models.EventKindTimer:
		return &definition.EventTrigger{Kind: kind, Timer: &models.TimerDefinition{Date: TimerDate}}
	case models.EventKindSignal:
		return &definition.EventTrigger{Kind: kind, Name: SignalName}
	default:
		return &definition.EventTrigger{Kind: kind, Name: MessageName}
	}
}

// Version returns doc with its version changed.
func Version(doc definition.Document, version int) definition.Document {
	doc.Version = version
	return doc
}

// CreateTestSnapshot creates the snapshot of an instance of
// BoundaryEventProcess("process", message) waiting in userTask: a root
// execution, a scope execution for userTask, their activity instances and the
// message subscription of the boundary event.
func CreateTestSnapshot(overrides ...func(*models.Snapshot)) *models.Snapshot {
	instanceID := uuid.New().String()
	taskExecutionID := uuid.New().String()
	definitionID := "process:1"

	s := models.NewSnapshot(models.ProcessInstance{
		ID:           instanceID,
		DefinitionID: definitionID,
		State:        models.InstanceStateActive,
		StartedAt:    StartedAt,
	})

	s.Executions[instanceID] = models.Execution{
		ID:                instanceID,
		ProcessInstanceID: instanceID,
		DefinitionID:      definitionID,
		VariableScopeID:   instanceID,
		IsScope:           true,
	}
	s.Executions[taskExecutionID] = models.Execution{
		ID:                taskExecutionID,
		ParentID:          instanceID,
		ProcessInstanceID: instanceID,
		DefinitionID:      definitionID,
		ActivityID:        "userTask",
		VariableScopeID:   taskExecutionID,
		IsScope:           true,
	}

	s.ActivityInstances[instanceID] = models.ActivityInstance{ID: instanceID, ActivityID: definitionID, ExecutionID: instanceID}

	taskInstanceID := "userTask:" + uuid.New().String()
	s.ActivityInstances[taskInstanceID] = models.ActivityInstance{
		ID:          taskInstanceID,
		ActivityID:  "userTask",
		ParentID:    instanceID,
		ExecutionID: taskExecutionID,
	}

	subscriptionID := uuid.New().String()
	s.EventSubscriptions[subscriptionID] = models.EventSubscription{
		ID:                subscriptionID,
		Kind:              models.EventKindMessage,
		EventName:         MessageName,
		ActivityID:        "boundary",
		ExecutionID:       taskExecutionID,
		ProcessInstanceID: instanceID,
		CreatedAt:         StartedAt,
	}

	s.Variables[instanceID] = map[string]any{"customer": "ACME"}

	for _, override := range overrides {
		override(s)
	}

	return s
}

// WithRevision sets the persisted revision of the snapshot.
func WithRevision(revision uint64) func(*models.Snapshot) {
	return func(s *models.Snapshot) {
		s.Instance.Revision = revision
	}
}

// WithTimerJob adds a timer job owned by the userTask execution.
func WithTimerJob(activityID string, due time.Time) func(*models.Snapshot) {
	return func(s *models.Snapshot) {
		ex := ExecutionAt(s, "userTask").ID

		id := uuid.New().String()
		s.Jobs[id] = models.Job{
			ID:                id,
			Kind:              models.JobKindTimer,
			DueTime:           due,
			ActivityID:        activityID,
			ExecutionID:       ex,
			ProcessInstanceID: s.Instance.ID,
			Retries:           models.DefaultJobRetries,
		}
	}
}

// ExecutionAt returns the first execution of s at activityID, ordered by id.
func ExecutionAt(s *models.Snapshot, activityID string) models.Execution {
	var found models.Execution

	for _, e := range s.Executions {
		if e.ActivityID == activityID && (found.ID == "" || e.ID < found.ID) {
			found = e
		}
	}

	return found
}

// ActivityInstanceAt returns the first activity instance of s at activityID,
// ordered by id.
func ActivityInstanceAt(s *models.Snapshot, activityID string) models.ActivityInstance {
	var found models.ActivityInstance

	for _, ai := range s.ActivityInstances {
		if ai.ActivityID == activityID && (found.ID == "" || ai.ID < found.ID) {
			found = ai
		}
	}

	return found
}
