package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
)

func TestAgentEventBroker_DeliversToSubscribersOfItsSession(t *testing.T) {
	broker := NewAgentEventBroker()

	chA, cancelA := broker.Subscribe("sess-a")
	defer cancelA()
	chB, cancelB := broker.Subscribe("sess-b")
	defer cancelB()

	broker.Publish(context.Background(), "sess-a", entity.AgentEvent{Type: entity.EventDone})

	select {
	case ev := <-chA:
		require.Equal(t, entity.EventDone, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sess-a event")
	}

	select {
	case <-chB:
		t.Fatal("sess-b subscriber should not receive sess-a's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAgentEventBroker_CancelStopsDelivery(t *testing.T) {
	broker := NewAgentEventBroker()

	ch, cancel := broker.Subscribe("sess-a")
	cancel()

	broker.Publish(context.Background(), "sess-a", entity.AgentEvent{Type: entity.EventDone})

	select {
	case _, ok := <-ch:
		require.False(t, ok, "channel should not yield after cancel")
	default:
	}
}

func TestAgentEventBroker_FullBufferDropsRatherThanBlocks(t *testing.T) {
	broker := NewAgentEventBroker()
	ch, cancel := broker.Subscribe("sess-a")
	defer cancel()

	for i := 0; i < 64; i++ {
		broker.Publish(context.Background(), "sess-a", entity.AgentEvent{Type: entity.EventTextDelta})
	}

	require.Len(t, ch, 32)
}
