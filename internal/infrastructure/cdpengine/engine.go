package cdpengine

import (
	"context"
	"sync"
	"time"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// dispatchContext bundles what action dispatch needs without exposing
// the engine's lease/lock bookkeeping to the free functions in
// action.go.
type dispatchContext struct {
	ctx    context.Context
	driver Driver
	table  *refTable
}

// tabState is the engine's per-tab bookkeeping: the bound driver, the
// most recent ref table, the active lease (if any), and the
// cancellation the tab's pending commands share so Detach can abort
// them uniformly.
type tabState struct {
	driver Driver
	table  *refTable
	lease  *entity.Lease
	done   <-chan struct{}
	cancel context.CancelFunc
}

// Engine is the browser Execution Engine: snapshot, act, verify, with
// lease enforcement gating every mutating action and detach cancelling
// whatever is in flight for a tab.
type Engine struct {
	mu   sync.Mutex
	tabs map[string]*tabState
}

// NewEngine constructs an empty engine. Tabs register themselves via
// Attach as the orchestrator opens them.
func NewEngine() *Engine {
	return &Engine{tabs: make(map[string]*tabState)}
}

// Attach binds driver to tabID for subsequent Capture/Act/Verify/Detach
// calls. A prior binding for the same tab, if any, is detached first.
func (e *Engine) Attach(ctx context.Context, tabID string, driver Driver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.tabs[tabID]; ok {
		old.cancel()
	}
	tabCtx, cancel := context.WithCancel(ctx)
	e.tabs[tabID] = &tabState{driver: driver, done: tabCtx.Done(), cancel: cancel}
}

// Capture takes a fresh snapshot of tabID and stores its ref table for
// the next Act call.
func (e *Engine) Capture(ctx context.Context, tabID string) (*entity.Snapshot, error) {
	state, err := e.stateFor(tabID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTabCancellation(ctx, state.done)
	defer cancel()
	snap, table, err := Capture(ctx, state.driver, tabID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	state.table = table
	e.mu.Unlock()
	return snap, nil
}

// Act dispatches act against tabID's current ref table. Mutating
// actions (everything but a bare read) require ownerID to hold the
// tab's active lease; a missing or mismatched lease is a hard E_LEASE
// failure and the action is never attempted.
func (e *Engine) Act(ctx context.Context, tabID, ownerID string, act Action) error {
	state, err := e.stateFor(tabID)
	if err != nil {
		return err
	}
	if err := e.checkLease(state, ownerID); err != nil {
		return err
	}
	if state.table == nil {
		return pkgerrors.New(pkgerrors.CodeArgs, "no snapshot taken for this tab yet")
	}
	ctx, cancel := withTabCancellation(ctx, state.done)
	defer cancel()
	dctx := dispatchContext{ctx: ctx, driver: state.driver, table: state.table}
	return dispatchAction(dctx, act)
}

// Verify polls pred against tabID's live driver.
func (e *Engine) Verify(ctx context.Context, tabID string, pred Predicate, cfg PollConfig) (VerifyResult, error) {
	state, err := e.stateFor(tabID)
	if err != nil {
		return VerifyResult{}, err
	}
	ctx, cancel := withTabCancellation(ctx, state.done)
	defer cancel()
	return Verify(ctx, state.driver, pred, cfg)
}

// withTabCancellation derives a context that is cancelled when either
// parent is done or the tab is detached, so a Detach call aborts
// whatever command is currently in flight against that tab with a
// uniform context.Canceled rather than leaving it to race the torn-down
// driver.
func withTabCancellation(parent context.Context, tabDone <-chan struct{}) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancel(parent)
	stop := make(chan struct{})
	go func() {
		select {
		case <-tabDone:
			cancel()
		case <-stop:
		}
	}()
	return child, func() {
		close(stop)
		cancel()
	}
}

// Lease grants a fresh lease on tabID to ownerID, replacing any
// existing lease (the caller is expected to have already arbitrated
// ownership at the domain layer; the engine enforces, it does not
// arbitrate).
func (e *Engine) Lease(tabID, ownerID, sessionID string, ttl time.Duration) (*entity.Lease, error) {
	state, err := e.stateFor(tabID)
	if err != nil {
		return nil, err
	}
	lease := entity.NewLease(tabID, ownerID, sessionID, ttl)
	e.mu.Lock()
	state.lease = lease
	e.mu.Unlock()
	return lease, nil
}

// Detach tears down tabID's driver binding and cancels any command
// still in flight against it with a uniform error code.
func (e *Engine) Detach(ctx context.Context, tabID string) error {
	e.mu.Lock()
	state, ok := e.tabs[tabID]
	if ok {
		delete(e.tabs, tabID)
	}
	e.mu.Unlock()
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no driver attached for tab: "+tabID)
	}
	state.cancel()
	if err := state.driver.Detach(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, "detach failed", err)
	}
	return nil
}

func (e *Engine) stateFor(tabID string) (*tabState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.tabs[tabID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no driver attached for tab: "+tabID)
	}
	return state, nil
}

// checkLease enforces spec.md's "writers must present a lease owner
// matching the tab's active lease" rule. A tab with no active lease at
// all rejects every write — leases must be explicitly acquired first.
func (e *Engine) checkLease(state *tabState, ownerID string) error {
	e.mu.Lock()
	lease := state.lease
	e.mu.Unlock()
	if lease == nil {
		return pkgerrors.New(pkgerrors.CodeLease, "tab has no active lease")
	}
	if !lease.IsHeldBy(ownerID) {
		return pkgerrors.New(pkgerrors.CodeLease, "lease is held by another owner or has expired")
	}
	return nil
}
