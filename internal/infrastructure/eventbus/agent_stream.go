package eventbus

import (
	"context"
	"sync"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
)

// AgentEventBroker fans a session's per-step entity.AgentEvent stream
// out to any number of live subscribers (typically one HTTP long-poll
// or websocket client per open UI tab) — the bridge between
// orchestrator.Loop's StepStream calls and httpapi's streaming
// endpoint. It is independent of Bus/Fabric: those carry the coarse,
// durable trace record, while this carries the ephemeral, UI-shaped
// event a disconnected client is allowed to simply miss.
//
// Grounded on InMemoryBus's per-key subscriber map (bus.go) and its
// non-blocking, buffer-bounded send — a slow subscriber drops future
// events rather than stalling the loop that published them.
type AgentEventBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan entity.AgentEvent]struct{}
}

// NewAgentEventBroker creates an empty broker.
func NewAgentEventBroker() *AgentEventBroker {
	return &AgentEventBroker{subs: make(map[string]map[chan entity.AgentEvent]struct{})}
}

// Subscribe registers a new subscriber for sessionID and returns its
// channel plus a cancel func the caller must invoke when done
// listening (closing the connection, request context done, etc.).
func (b *AgentEventBroker) Subscribe(sessionID string) (<-chan entity.AgentEvent, func()) {
	ch := make(chan entity.AgentEvent, 32)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan entity.AgentEvent]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[sessionID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Publish implements orchestrator.StepStream: it delivers ev to every
// current subscriber of sessionID, dropping it for any subscriber whose
// channel is full rather than blocking the runtime loop.
func (b *AgentEventBroker) Publish(ctx context.Context, sessionID string, ev entity.AgentEvent) {
	b.mu.Lock()
	subs := b.subs[sessionID]
	chans := make([]chan entity.AgentEvent, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}
