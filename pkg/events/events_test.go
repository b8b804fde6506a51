package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessInstanceMigrated_JSONSerialization(t *testing.T) {
	original := &ProcessInstanceMigrated{
		BaseEvent:          NewBaseEvent(ProcessInstanceMigratedEvent, "pi-123"),
		PlanID:             "plan-1",
		SourceDefinitionID: "order:1",
		TargetDefinitionID: "order:2",
		Revision:           4,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"process_instance.migrated"`)
	assert.Contains(t, string(jsonData), `"process_instance_id":"pi-123"`)
	assert.Contains(t, string(jsonData), `"target_definition_id":"order:2"`)

	decoded, ok := New(original.GetType())
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(jsonData, decoded))

	migrated, ok := decoded.(*ProcessInstanceMigrated)
	require.True(t, ok)
	assert.Equal(t, original.PlanID, migrated.PlanID)
	assert.Equal(t, original.Revision, migrated.Revision)
	assert.Equal(t, original.ID, migrated.ID)
}

func TestNew_KnowsEveryEventType(t *testing.T) {
	for _, event := range []interface{ GetType() EventType }{
		ProcessInstanceStarted{},
		ProcessInstanceEnded{},
		MigrationPlanCreated{},
		ProcessInstanceMigrated{},
		ProcessInstanceMigrationFailed{},
		MigrationBatchCompleted{},
	} {
		decoded, ok := New(event.GetType())
		require.True(t, ok, event.GetType())
		assert.Equal(t, event.GetType(), decoded.(interface{ GetType() EventType }).GetType())
	}

	_, ok := New("workflow.triggered")
	assert.False(t, ok)
}
