package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/procshift/pkg/channels/gochannel"
	"github.com/dukex/procshift/pkg/eventbus"
	"github.com/dukex/procshift/pkg/events"
)

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	received := make(chan *events.ProcessInstanceMigrated, 1)

	require.NoError(t, bus.Handle(events.ProcessInstanceMigratedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ProcessInstanceMigrated)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// Unhandled types are acknowledged and dropped.
	require.NoError(t, bus.Publish(ctx, "pi-1", events.ProcessInstanceEnded{
		BaseEvent: events.NewBaseEvent(events.ProcessInstanceEndedEvent, "pi-1"),
	}))

	require.NoError(t, bus.Publish(ctx, "pi-1", events.ProcessInstanceMigrated{
		BaseEvent:          events.NewBaseEvent(events.ProcessInstanceMigratedEvent, "pi-1"),
		PlanID:             "plan-1",
		TargetDefinitionID: "order:2",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "pi-1", event.ProcessInstanceID)
		assert.Equal(t, "plan-1", event.PlanID)
		assert.Equal(t, "order:2", event.TargetDefinitionID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNopPublisher(t *testing.T) {
	var publisher eventbus.EventPublisher = eventbus.NopPublisher{}

	assert.NoError(t, publisher.Publish(context.Background(), "pi-1", events.ProcessInstanceStarted{}))
}
