// Package orchestrator implements the Runtime Loop and its per-session
// state machine (spec.md §4.11).
//
// Grounded on the teacher's domain/service/state_machine.go: validated
// transition table keyed by from-state, thread-safe mutation with an
// OnTransition listener list, a Snapshot for introspection. Generalized
// from the teacher's single-run Idle→Streaming→...→Complete/Error/Aborted
// chain to spec.md's per-session Idle→Running→{Paused|Stopped|Idle}
// machine with Running's own Retry/Compaction substates.
package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunState is the coarse per-session loop state.
type RunState string

const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
	StatePaused  RunState = "paused"
	StateStopped RunState = "stopped"
)

// SubState further qualifies StateRunning.
type SubState string

const (
	SubNone       SubState = ""
	SubRetry      SubState = "retry"
	SubCompaction SubState = "compaction"
)

// TerminalStatus is attached when Running transitions back to Idle.
type TerminalStatus string

const (
	TerminalNone              TerminalStatus = ""
	TerminalDone              TerminalStatus = "done"
	TerminalFailedExecute     TerminalStatus = "failed_execute"
	TerminalFailedVerify      TerminalStatus = "failed_verify"
	TerminalProgressUncertain TerminalStatus = "progress_uncertain"
	TerminalMaxSteps          TerminalStatus = "max_steps"
	TerminalStopped           TerminalStatus = "stopped"
)

// AutoRepairEligible reports whether a terminal status may trigger an
// auto-repair regenerate, per spec.md §4.11's boundary rule: triggered
// only by failed_execute/failed_verify/loop.no_progress (surfaced here as
// progress_uncertain), never by max_steps/stopped/timeout.
func (t TerminalStatus) AutoRepairEligible() bool {
	switch t {
	case TerminalFailedExecute, TerminalFailedVerify, TerminalProgressUncertain:
		return true
	default:
		return false
	}
}

var validTransitions = map[RunState]map[RunState]bool{
	StateIdle:    {StateRunning: true},
	StateRunning: {StatePaused: true, StateStopped: true, StateIdle: true},
	StatePaused:  {StateRunning: true, StateStopped: true},
	StateStopped: {},
}

// Snapshot captures the loop's runtime state at a point in time.
type Snapshot struct {
	State      RunState
	SubState   SubState
	Terminal   TerminalStatus
	Step       int
	MaxSteps   int
	TokensUsed int64
	RetryCount int
	Elapsed    time.Duration
}

// StateMachine manages transitions for one session's runtime loop.
type StateMachine struct {
	mu         sync.RWMutex
	state      RunState
	sub        SubState
	terminal   TerminalStatus
	step       int
	maxSteps   int
	tokensUsed int64
	retryCount int
	startTime  time.Time
	logger     *zap.Logger
	listeners  []func(from, to RunState, snap Snapshot)
}

// NewStateMachine creates a state machine starting in Idle.
func NewStateMachine(maxSteps int, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{state: StateIdle, maxSteps: maxSteps, startTime: time.Now(), logger: logger}
}

// State returns the current coarse state.
func (sm *StateMachine) State() RunState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Snapshot returns a point-in-time copy of the loop's state.
func (sm *StateMachine) Snapshot() Snapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.snapshotLocked()
}

func (sm *StateMachine) snapshotLocked() Snapshot {
	return Snapshot{
		State:      sm.state,
		SubState:   sm.sub,
		Terminal:   sm.terminal,
		Step:       sm.step,
		MaxSteps:   sm.maxSteps,
		TokensUsed: sm.tokensUsed,
		RetryCount: sm.retryCount,
		Elapsed:    time.Since(sm.startTime),
	}
}

// Transition attempts to move to a new coarse state, rejecting any
// transition not present in validTransitions.
func (sm *StateMachine) Transition(to RunState) error {
	sm.mu.Lock()
	from := sm.state
	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		sm.mu.Unlock()
		return fmt.Errorf("invalid loop state transition: %s -> %s", from, to)
	}
	sm.state = to
	if to != StateRunning {
		sm.sub = SubNone
	}
	snap := sm.snapshotLocked()
	listeners := make([]func(from, to RunState, snap Snapshot), len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	sm.logger.Debug("loop state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	for _, fn := range listeners {
		fn(from, to, snap)
	}
	return nil
}

// EnterSubState sets a substate while remaining in StateRunning. It is a
// no-op error if the machine is not currently running.
func (sm *StateMachine) EnterSubState(sub SubState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateRunning {
		return fmt.Errorf("cannot enter substate %s while in %s", sub, sm.state)
	}
	sm.sub = sub
	return nil
}

// FinishWithTerminal moves Running back to Idle carrying a terminal
// status (spec.md §4.11's Running->Idle transition).
func (sm *StateMachine) FinishWithTerminal(status TerminalStatus) error {
	sm.mu.Lock()
	sm.terminal = status
	sm.mu.Unlock()
	return sm.Transition(StateIdle)
}

// OnTransition registers a listener invoked on every coarse transition.
func (sm *StateMachine) OnTransition(fn func(from, to RunState, snap Snapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

func (sm *StateMachine) SetStep(step int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.step = step
}

func (sm *StateMachine) AddTokens(n int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tokensUsed += n
}

func (sm *StateMachine) RecordRetry() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.retryCount++
}

// Terminal returns the last terminal status recorded.
func (sm *StateMachine) Terminal() TerminalStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.terminal
}

// MaxStepsReached reports whether the step counter has hit the configured cap.
func (sm *StateMachine) MaxStepsReached() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.maxSteps > 0 && sm.step >= sm.maxSteps
}
