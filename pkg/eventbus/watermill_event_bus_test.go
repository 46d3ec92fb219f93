package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirandagan/llmflow/pkg/channels/gochannel"
	"github.com/tirandagan/llmflow/pkg/eventbus"
	"github.com/tirandagan/llmflow/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan *events.JobSubmitted, 1)

	err := bus.Handle(events.JobSubmittedEvent, func(_ context.Context, event any) error {
		submitted, ok := event.(*events.JobSubmitted)
		if ok {
			received <- submitted
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	submitted := events.JobSubmitted{
		BaseEvent:    events.NewBaseEvent(events.JobSubmittedEvent, "job-1"),
		WorkflowName: "place-report",
		Input:        map[string]any{"city": "Seattle"},
		UserID:       "user-1",
	}

	require.NoError(t, bus.Publish(ctx, "job-1", submitted))

	select {
	case got := <-received:
		assert.Equal(t, "job-1", got.JobID)
		assert.Equal(t, "place-report", got.WorkflowName)
		assert.Equal(t, "Seattle", got.Input["city"])
		assert.Equal(t, "user-1", got.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job.submitted event")
	}
}

func TestUnhandledEventTypeIsAcked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan *events.JobFinished, 1)

	err := bus.Handle(events.JobFinishedEvent, func(_ context.Context, event any) error {
		finished, ok := event.(*events.JobFinished)
		if ok {
			received <- finished
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for job.started; the bus acks and moves on.
	started := events.JobStarted{
		BaseEvent:    events.NewBaseEvent(events.JobStartedEvent, "job-2"),
		WorkflowName: "place-report",
	}
	require.NoError(t, bus.Publish(ctx, "job-2", started))

	finished := events.JobFinished{
		BaseEvent:    events.NewBaseEvent(events.JobFinishedEvent, "job-2"),
		WorkflowName: "place-report",
		Status:       "completed",
		DurationMS:   1500,
	}
	require.NoError(t, bus.Publish(ctx, "job-2", finished))

	select {
	case got := <-received:
		assert.Equal(t, "completed", got.Status)
		assert.Equal(t, int64(1500), got.DurationMS)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job.finished event")
	}
}

func TestGenerateIDUnique(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
