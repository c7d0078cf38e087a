package eventbus

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/repository"
	"github.com/fenwicklabs/brainloop/pkg/safego"
)

// tracerName identifies this package's otel tracer, independent of
// whatever TracerProvider the host process installs via
// otel.SetTracerProvider — a fabric built before that call still emits
// through the no-op provider rather than panicking.
const tracerName = "github.com/fenwicklabs/brainloop/internal/infrastructure/eventbus"

// Fabric implements the Event/Trace Fabric (spec.md §4.12) over the
// teacher's Bus: Emit dispatches to in-process subscribers synchronously
// via DispatchSync (bypassing the buffered Publish path, since a dropped
// trace subscriber must never silently miss an event the way a full
// event buffer would let Publish drop one) and persists the
// corresponding TraceEvent into the structured, queryable TraceStore
// asynchronously, so a slow or unavailable store never blocks the
// orchestrator loop that emitted it (spec.md §3 invariant v). When bus
// is a *PersistentBus, DispatchSync also appends the raw event to its
// WAL before dispatch, so a crash between emit and the async
// TraceStore write still leaves a recoverable record (spec.md §4.1's
// per-key atomicity is the TraceStore's own contract; the WAL is a
// second, independent durability line in front of it).
type Fabric struct {
	bus    Bus
	traces repository.TraceStore
	logger *zap.Logger
	tracer trace.Tracer
}

// NewFabric creates an event/trace fabric. bus supplies the subscriber
// registry and panic-isolated dispatch; traces is the append-only
// keyspace Emit persists into.
func NewFabric(bus Bus, traces repository.TraceStore, logger *zap.Logger) *Fabric {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fabric{
		bus:    bus,
		traces: traces,
		logger: logger.With(zap.String("component", "event-fabric")),
		tracer: otel.Tracer(tracerName),
	}
}

// Subscribe registers a handler for kind, or "*" for every kind.
func (f *Fabric) Subscribe(kind string, handler Handler) { f.bus.Subscribe(kind, handler) }

// Emit implements orchestrator.EventSink and every other caller's
// narrow event-emission need (hook runner, bridge, executor). payload
// must include "session_id" for the emitted event to also be persisted
// as a trace record; events without one (e.g. a pre-session bootstrap
// notification) are dispatched to subscribers but not traced.
func (f *Fabric) Emit(ctx context.Context, kind string, payload map[string]any) {
	sessionID, _ := payload["session_id"].(string)

	ctx, span := f.tracer.Start(ctx, kind, trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	event := NewEvent(kind, payload)
	f.bus.DispatchSync(ctx, event)

	if sessionID == "" || f.traces == nil {
		return
	}
	safego.Go(f.logger, "trace-persist", func() { f.persist(sessionID, kind, payload) })
}

func (f *Fabric) persist(sessionID, kind string, payload map[string]any) {
	ctx := context.Background()
	seq, err := f.traces.NextSeq(ctx, sessionID)
	if err != nil {
		f.logger.Warn("failed to allocate trace seq", zap.String("kind", kind), zap.Error(err))
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Warn("failed to marshal trace payload", zap.String("kind", kind), zap.Error(err))
		return
	}
	traceID, _ := payload["trace_id"].(string)
	trace := entity.NewTraceEvent(sessionID, traceID, seq, entity.TraceKind(kind), body)
	if err := f.traces.AppendTrace(ctx, sessionID, trace); err != nil {
		f.logger.Warn("failed to persist trace event", zap.String("kind", kind), zap.Error(err))
	}
}

// TracePage is the bounded slice stream_trace returns (spec.md §4.12),
// so debug surfaces can never trigger an unbounded read.
type TracePage struct {
	Events         []*entity.TraceEvent
	Truncated      bool
	CutBy          string
	ReturnedEvents int
	ReturnedBytes  int
}

// StreamTrace returns a bounded page of sessionID's trace starting after
// afterSeq.
func (f *Fabric) StreamTrace(ctx context.Context, sessionID string, afterSeq uint64, maxEvents, maxBytes int) (TracePage, error) {
	events, truncated, cutBy, err := f.traces.ReadTrace(ctx, sessionID, afterSeq, maxEvents, maxBytes)
	if err != nil {
		return TracePage{}, err
	}
	bytes := 0
	for _, e := range events {
		bytes += e.Size()
	}
	return TracePage{Events: events, Truncated: truncated, CutBy: cutBy, ReturnedEvents: len(events), ReturnedBytes: bytes}, nil
}
