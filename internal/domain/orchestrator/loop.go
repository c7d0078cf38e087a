package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/hook"
	"github.com/fenwicklabs/brainloop/internal/domain/llm"
	"github.com/fenwicklabs/brainloop/internal/domain/session"
	"github.com/fenwicklabs/brainloop/internal/domain/toolcontract"
	"github.com/fenwicklabs/brainloop/internal/domain/toolprovider"
	"github.com/fenwicklabs/brainloop/internal/domain/transform"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// EventSink receives lifecycle notifications the loop cannot route
// through the hook runner (loop.no_progress, retry_circuit_open,
// llm.route.blocked) — a narrow interface so this package never depends
// on the concrete event bus infrastructure.
type EventSink interface {
	Emit(ctx context.Context, kind string, payload map[string]any)
}

// StepStream receives the per-step, UI-facing event shape spec.md §6's
// brain.step.stream surface exposes (tool calls, tool results, step
// completion, terminal done/error) — distinct from EventSink's coarse
// lifecycle notifications, which carry no per-tool-call detail. A nil
// StepStream (the default) disables streaming without changing Loop's
// control flow; set one with SetStream.
type StepStream interface {
	Publish(ctx context.Context, sessionID string, ev entity.AgentEvent)
}

// TargetExtractor pulls the capability-routing target out of a tool
// call's arguments (e.g. a URL, tab id, or file path), used both for
// provider routing and for the no-progress fingerprint's normalized
// target.
type TargetExtractor func(toolName string, args map[string]any) string

// EvidenceChecker reports whether a tool result carries verifiable
// forward evidence for the no-progress tracker, per the capability's
// verification policy.
type EvidenceChecker func(result map[string]any, policy entity.CapabilityPolicy) bool

// Loop implements the Runtime Loop (spec.md §4.11): per-turn context
// assembly, provider call with retry, tool dispatch through the provider
// registry with capability-policy gating, no-progress fingerprinting,
// and retry-vs-compaction ordering on context overflow.
//
// Grounded on the teacher's domain/service/agent_loop.go ReAct loop:
// same assemble->call->parse->dispatch-tools->append shape, the same
// "retry before compact" guardrail philosophy, generalized from the
// teacher's single fixed LLMClient to the full provider/profile/hook
// pipeline spec.md §4.11 requires.
type Loop struct {
	sessions  *session.Manager
	contracts *toolcontract.Registry
	providers *toolprovider.Registry
	llmRunner *llm.Runner
	hooks     *hook.Runner
	events    EventSink
	stream    StepStream
	tracker   *ProgressTracker
	target    TargetExtractor
	evidence  EvidenceChecker
	logger    *zap.Logger

	MaxSteps          int
	CompactionRetries int // retry attempts against overflow before compaction runs
}

// SetStream attaches the per-step UI event stream. Passing nil disables
// streaming, which is also the zero-value Loop's default.
func (l *Loop) SetStream(stream StepStream) { l.stream = stream }

// publishStep is a no-op when no StepStream is attached.
func (l *Loop) publishStep(ctx context.Context, sessionID string, ev entity.AgentEvent) {
	if l.stream == nil {
		return
	}
	ev.Timestamp = time.Now()
	l.stream.Publish(ctx, sessionID, ev)
}

// NewLoop creates a runtime loop.
func NewLoop(sessions *session.Manager, contracts *toolcontract.Registry, providers *toolprovider.Registry, llmRunner *llm.Runner, hooks *hook.Runner, events EventSink, target TargetExtractor, evidence EvidenceChecker, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if target == nil {
		target = func(_ string, args map[string]any) string {
			if t, ok := args["target"].(string); ok {
				return t
			}
			return ""
		}
	}
	if evidence == nil {
		evidence = func(result map[string]any, _ entity.CapabilityPolicy) bool {
			ok, _ := result["verified"].(bool)
			return ok
		}
	}
	return &Loop{
		sessions: sessions, contracts: contracts, providers: providers,
		llmRunner: llmRunner, hooks: hooks, events: events,
		tracker: NewProgressTracker(0, 0), target: target, evidence: evidence,
		logger: logger.With(zap.String("component", "runtime-loop")),
		CompactionRetries: 1,
	}
}

// Run drives one session from its current leaf until a terminal status
// is reached (spec.md §4.11's per-turn algorithm, looped).
func (l *Loop) Run(ctx context.Context, sm *StateMachine, sess *entity.Session, role llm.Role) (TerminalStatus, error) {
	if err := sm.Transition(StateRunning); err != nil {
		return TerminalNone, err
	}

	overflowRetries := 0
	for {
		if sm.MaxStepsReached() {
			return l.finish(sm, TerminalMaxSteps)
		}
		if sm.State() != StateRunning {
			return l.finish(sm, TerminalStopped)
		}

		branch, err := l.sessions.BuildSessionContext(ctx, sess, sess.LeafID(), session.ContextOptions{})
		if err != nil {
			return l.finish(sm, TerminalFailedExecute)
		}
		messages := transform.Transform(branch, transform.Abandoned)

		resp, err := l.llmRunner.Complete(ctx, role, llm.Request{Messages: messages})
		if err != nil {
			if pkgerrors.Code(err) == pkgerrors.CodeNoProvider {
				l.events.Emit(ctx, "llm.route.blocked", map[string]any{"error": err.Error()})
			} else {
				l.events.Emit(ctx, "retry_circuit_open", map[string]any{"error": err.Error()})
			}
			l.publishStep(ctx, sess.ID(), entity.AgentEvent{Type: entity.EventError, Error: err.Error()})
			return l.finish(sm, TerminalFailedExecute)
		}

		if resp.StopReason == "overflow" {
			if overflowRetries < l.CompactionRetries {
				overflowRetries++
				_ = sm.EnterSubState(SubRetry)
				sm.RecordRetry()
				continue
			}
			_ = sm.EnterSubState(SubCompaction)
			if _, err := l.hooks.Run(ctx, "compaction.summary", map[string]any{"session_id": sess.ID()}); err != nil {
				return l.finish(sm, TerminalFailedExecute)
			}
			overflowRetries = 0
			_ = sm.EnterSubState(SubNone)
			continue
		}
		overflowRetries = 0

		assistantEntry, err := l.sessions.AppendEntry(ctx, sess, sess.LeafID(), entity.RoleAssistant, valueobject.NewMessageContent(resp.Text, valueobject.ContentTypeText))
		if err != nil {
			return l.finish(sm, TerminalFailedExecute)
		}
		if resp.Text != "" {
			l.publishStep(ctx, sess.ID(), entity.AgentEvent{Type: entity.EventTextDelta, Content: resp.Text})
		}

		if len(resp.ToolCalls) == 0 {
			l.publishStep(ctx, sess.ID(), entity.AgentEvent{Type: entity.EventDone})
			return l.finish(sm, TerminalDone)
		}

		for _, call := range resp.ToolCalls {
			status, err := l.dispatchToolCall(ctx, sm, sess, assistantEntry.ID(), call)
			if err != nil {
				l.publishStep(ctx, sess.ID(), entity.AgentEvent{Type: entity.EventError, Error: err.Error()})
				return l.finish(sm, TerminalFailedExecute)
			}
			if status != TerminalNone {
				return l.finish(sm, status)
			}
		}

		step := sm.Snapshot().Step + 1
		sm.SetStep(step)
		l.publishStep(ctx, sess.ID(), entity.AgentEvent{
			Type:     entity.EventStepDone,
			StepInfo: &entity.StepInfo{Step: step, TokensUsed: resp.Usage.TotalTokens, State: string(sm.State())},
		})
	}
}

func (l *Loop) dispatchToolCall(ctx context.Context, sm *StateMachine, sess *entity.Session, parentEntryID string, call llm.ToolCallRequest) (TerminalStatus, error) {
	contract, err := l.contracts.Resolve(call.Name)
	if err != nil {
		return TerminalFailedExecute, err
	}

	callEntry, err := l.sessions.AppendToolCall(ctx, sess, parentEntryID, valueobject.MessageContent{}, entity.ToolCallRef{
		ID: call.ID, Name: contract.CanonicalName(), Arguments: call.Arguments,
	})
	if err != nil {
		return TerminalFailedExecute, err
	}

	policy, err := l.providers.Policy(contract.Capability())
	if err != nil {
		return TerminalFailedExecute, err
	}

	patched, err := l.hooks.Run(ctx, "tool.before_call", map[string]any{"tool": contract.CanonicalName(), "args": call.Arguments})
	if err != nil {
		return TerminalFailedExecute, err
	}
	args, _ := patched["args"].(map[string]any)
	if args == nil {
		args = call.Arguments
	}

	l.publishStep(ctx, sess.ID(), entity.AgentEvent{
		Type: entity.EventToolCall,
		ToolCall: &entity.ToolCallEvent{ID: call.ID, Name: contract.CanonicalName(), Arguments: args},
	})

	targetStr := l.target(contract.CanonicalName(), args)
	start := time.Now()
	result, err := l.providers.Route(ctx, contract.Capability(), targetStr, args)
	success := err == nil
	var errCode string
	if err != nil {
		errCode = string(pkgerrors.Code(err))
	}

	afterPatched, hookErr := l.hooks.Run(ctx, "tool.after_result", map[string]any{
		"tool": contract.CanonicalName(), "success": success, "result": result,
	})
	if hookErr != nil {
		return TerminalFailedExecute, hookErr
	}
	if patchedResult, ok := afterPatched["result"].(map[string]any); ok {
		result = patchedResult
	}

	hadEvidence := success && l.evidence(result, policy)
	sig := Signature{
		CanonicalTool:    contract.CanonicalName(),
		NormalizedTarget: targetStr,
		ExpectedEvidenceDigest: fmt.Sprintf("%v", policy.Verification),
	}
	if noProgress, reason := l.tracker.Observe(sig, hadEvidence); noProgress {
		l.events.Emit(ctx, "loop.no_progress", map[string]any{"reason": reason, "tool": contract.CanonicalName()})
		if policy.Mutating {
			return TerminalFailedVerify, nil
		}
		return TerminalProgressUncertain, nil
	}

	output := fmt.Sprintf("%v", result["output"])
	if _, err := l.sessions.AppendToolResult(ctx, sess, callEntry.ID(), entity.ToolResultRef{
		ToolCallID: call.ID, Output: output, Success: success, ErrorCode: errCode,
	}); err != nil {
		return TerminalFailedExecute, err
	}
	l.publishStep(ctx, sess.ID(), entity.AgentEvent{
		Type: entity.EventToolResult,
		ToolCall: &entity.ToolCallEvent{
			ID: call.ID, Name: contract.CanonicalName(), Arguments: args,
			Output: output, Success: success, Duration: time.Since(start),
		},
	})
	return TerminalNone, nil
}

// Regenerate replays from fromEntryID. If fromEntryID is the session's
// current leaf-lineage latest assistant entry, it continues on the same
// session with a new leaf; otherwise (a historical assistant entry) it
// forks a new session pinned there, per spec.md §4.11. A placeholder
// event is emitted immediately so a UI can show a spinner before the
// first token arrives.
func (l *Loop) Regenerate(ctx context.Context, sess *entity.Session, fromEntryID string, isLatestAssistant bool) (*entity.Session, error) {
	l.events.Emit(ctx, "run.regenerate.placeholder", map[string]any{"session_id": sess.ID(), "from_entry": fromEntryID})
	l.tracker.Reset()

	if isLatestAssistant {
		sess.MoveLeaf(fromEntryID)
		return sess, nil
	}
	return l.sessions.Fork(ctx, sess, fromEntryID, sess.Title()+" (regenerated)")
}

func (l *Loop) finish(sm *StateMachine, status TerminalStatus) (TerminalStatus, error) {
	if err := sm.FinishWithTerminal(status); err != nil {
		return status, err
	}
	return status, nil
}
