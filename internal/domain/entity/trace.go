package entity

import "time"

// TraceKind classifies a TraceEvent per spec §3's trace taxonomy.
type TraceKind string

const (
	TraceLLMRequest   TraceKind = "llm_request"
	TraceLLMResponse  TraceKind = "llm_response"
	TraceToolCall     TraceKind = "tool_call"
	TraceToolResult   TraceKind = "tool_result"
	TraceHookDecision TraceKind = "hook_decision"
	TraceStateChange  TraceKind = "state_change"
	TraceCompaction   TraceKind = "compaction"
	TraceLeaseEvent   TraceKind = "lease_event"
	TraceError        TraceKind = "error"
)

// TraceEvent is one append-only record in a session's trace stream. Seq
// is monotonically increasing per session and is the ordering key for
// stream_trace — never CreatedAt, which can collide at sub-millisecond
// granularity under parallel tool dispatch.
type TraceEvent struct {
	sessionID string
	traceID   string
	seq       uint64
	kind      TraceKind
	payload   []byte // redacted, size-capped JSON blob
	createdAt time.Time
}

// NewTraceEvent creates a trace event. seq must be assigned by the
// caller (the event bus owns the per-session sequence counter).
func NewTraceEvent(sessionID, traceID string, seq uint64, kind TraceKind, payload []byte) *TraceEvent {
	return &TraceEvent{
		sessionID: sessionID,
		traceID:   traceID,
		seq:       seq,
		kind:      kind,
		payload:   payload,
		createdAt: time.Now(),
	}
}

// ReconstructTraceEvent rebuilds a trace event from persisted state.
func ReconstructTraceEvent(sessionID, traceID string, seq uint64, kind TraceKind, payload []byte, createdAt time.Time) *TraceEvent {
	return &TraceEvent{sessionID: sessionID, traceID: traceID, seq: seq, kind: kind, payload: payload, createdAt: createdAt}
}

func (t *TraceEvent) SessionID() string  { return t.sessionID }
func (t *TraceEvent) TraceID() string    { return t.traceID }
func (t *TraceEvent) Seq() uint64        { return t.seq }
func (t *TraceEvent) Kind() TraceKind    { return t.kind }
func (t *TraceEvent) Payload() []byte    { return t.payload }
func (t *TraceEvent) CreatedAt() time.Time { return t.createdAt }

// Size returns the byte footprint counted against stream_trace's
// max_bytes budget.
func (t *TraceEvent) Size() int { return len(t.payload) }
