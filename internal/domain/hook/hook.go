// Package hook implements the Hook Runner (spec.md §4.7): a
// phase-namespaced dispatch table where listeners are ordered by
// priority (descending, ties by registration order) and may continue,
// patch the in-flight payload, or block the operation outright.
//
// Grounded on the teacher's domain/service/hooks.go AgentHook/HookChain
// pattern (NoOpHook embeddable default, chain-of-hooks fan-out), extended
// from the teacher's fixed eight-method interface to an open phase
// namespace (e.g. "llm.before_request", "tool.after_result") since
// spec.md's phase list is considerably larger and grows with new domains.
package hook

import (
	"context"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// Decision is a listener's verdict for one phase invocation.
type Decision struct {
	// Block, when true, short-circuits the phase and surfaces Code/Message
	// as a non-retryable error. BlockCode/BlockMessage are ignored otherwise.
	Block        bool
	BlockCode    pkgerrors.ErrorCode
	BlockMessage string

	// Patch holds field updates to merge into the in-flight payload.
	// Patches from listeners that run later (lower priority, or equal
	// priority and registered later) win on overlapping fields, except
	// for fields in the non-patchable set.
	Patch map[string]any
}

// Continue is the zero-value decision: do nothing.
var Continue = Decision{}

// Listener is one hook registered against a phase.
type Listener struct {
	Name     string
	Priority int
	Timeout  time.Duration
	Fn       func(ctx context.Context, payload map[string]any) Decision
}

// phaseDefaults gives fast phases 200ms and slower ones 500ms, per
// spec.md §4.7, when a listener does not set its own Timeout.
var phaseDefaults = map[string]time.Duration{
	"llm.before_request": 500 * time.Millisecond,
	"llm.after_response":  500 * time.Millisecond,
	"cdp.before_action":   200 * time.Millisecond,
	"cdp.after_action":    200 * time.Millisecond,
	"cdp.after_verify":    500 * time.Millisecond,
	"bridge.before_invoke": 200 * time.Millisecond,
	"bridge.after_invoke":  200 * time.Millisecond,
}

const defaultFastTimeout = 200 * time.Millisecond

// nonPatchableFields lists payload fields no listener's Patch may touch,
// regardless of phase — lease decisions, verification results, and
// authentication headers must only be set by the component that
// computed them.
var nonPatchableFields = map[string]bool{
	"lease_decision":      true,
	"verification_result": true,
	"auth_headers":        true,
}

// Runner dispatches hook invocations for registered phases.
type Runner struct {
	mu      sync.RWMutex
	seq     int
	phases  map[string][]registered
}

type registered struct {
	Listener
	seq int
}

// NewRunner creates an empty hook runner.
func NewRunner() *Runner {
	return &Runner{phases: make(map[string][]registered)}
}

// Register adds a listener to a phase (namespaced "<domain>.<phase>").
// Listeners run ordered by descending Priority; equal priority runs in
// registration order.
func (r *Runner) Register(phase string, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.phases[phase] = append(r.phases[phase], registered{Listener: l, seq: r.seq})
	sort.SliceStable(r.phases[phase], func(i, j int) bool {
		a, b := r.phases[phase][i], r.phases[phase][j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.seq < b.seq
	})
}

// Run dispatches phase against payload, returning the merged patch and
// an error if any listener blocked. on_error phases are expected to be
// called by the caller's own recovery path — Run does not special-case
// the phase name, but callers must never let an on_error listener's
// Decision mask a terminal failure already in flight (spec.md §4.7); that
// enforcement lives in the caller, since only the caller knows whether
// the failure is terminal.
func (r *Runner) Run(ctx context.Context, phase string, payload map[string]any) (map[string]any, error) {
	r.mu.RLock()
	listeners := make([]registered, len(r.phases[phase]))
	copy(listeners, r.phases[phase])
	r.mu.RUnlock()

	merged := map[string]any{}
	for k, v := range payload {
		merged[k] = v
	}

	timeout := phaseDefaults[phase]
	if timeout == 0 {
		timeout = defaultFastTimeout
	}

	for _, l := range listeners {
		lt := l.Timeout
		if lt == 0 {
			lt = timeout
		}
		decision, err := r.invoke(ctx, l, merged, lt)
		if err != nil {
			return merged, pkgerrors.Wrap(pkgerrors.CodeHookBlock, "hook "+l.Name+" on "+phase+" timed out", err)
		}
		if decision.Block {
			code := decision.BlockCode
			if code == "" {
				code = pkgerrors.CodeHookBlock
			}
			return merged, pkgerrors.New(code, decision.BlockMessage)
		}
		for k, v := range decision.Patch {
			if nonPatchableFields[k] {
				continue
			}
			merged[k] = v
		}
	}
	return merged, nil
}

func (r *Runner) invoke(ctx context.Context, l registered, payload map[string]any, timeout time.Duration) (Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan Decision, 1)
	go func() {
		resultCh <- l.Fn(callCtx, payload)
	}()

	select {
	case d := <-resultCh:
		return d, nil
	case <-callCtx.Done():
		return Decision{}, callCtx.Err()
	}
}
