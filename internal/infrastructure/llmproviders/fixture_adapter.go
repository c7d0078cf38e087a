package llmproviders

import (
	"context"
	"fmt"
	"sync"

	"github.com/fenwicklabs/brainloop/internal/domain/llm"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// Fixture is one scripted response (or failure) a FixtureAdapter
// returns for the Nth call made against it.
type Fixture struct {
	Response llm.Response
	Err      error // if set, Complete returns this instead of Response
}

// FixtureAdapter is a deterministic, network-free llm.Adapter driven
// by a pre-scripted call sequence — the runtime orchestrator's and LLM
// runner's test double, grounded on the same role the teacher's
// provider factories play (implementing the Adapter/Provider contract)
// but returning fixed data instead of calling out, so retry/escalation
// and hook-ordering tests can assert exact call counts without a live
// network or a flaky mock HTTP server.
type FixtureAdapter struct {
	mu        sync.Mutex
	name      string
	models    []string
	available bool
	fixtures  []Fixture
	calls     int
	requests  []llm.Request
}

// NewFixtureAdapter builds a fixture adapter that returns fixtures in
// order, repeating the last one once the script is exhausted.
func NewFixtureAdapter(name string, fixtures ...Fixture) *FixtureAdapter {
	return &FixtureAdapter{name: name, available: true, fixtures: fixtures}
}

var _ llm.Adapter = (*FixtureAdapter)(nil)

func (f *FixtureAdapter) Name() string { return f.name }

// WithModels restricts SupportsModel to an explicit allowlist.
func (f *FixtureAdapter) WithModels(models ...string) *FixtureAdapter {
	f.models = models
	return f
}

// SetAvailable toggles IsAvailable, for exercising E_NO_PROVIDER paths.
func (f *FixtureAdapter) SetAvailable(available bool) *FixtureAdapter {
	f.available = available
	return f
}

func (f *FixtureAdapter) SupportsModel(model string) bool {
	if len(f.models) == 0 {
		return true
	}
	for _, m := range f.models {
		if m == model {
			return true
		}
	}
	return false
}

func (f *FixtureAdapter) IsAvailable(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

// Complete returns the next scripted fixture, recording the request
// for later assertion via Requests/Calls.
func (f *FixtureAdapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	idx := f.calls
	if idx >= len(f.fixtures) {
		idx = len(f.fixtures) - 1
	}
	f.calls++

	if idx < 0 {
		return llm.Response{}, pkgerrors.New(pkgerrors.CodeNoProvider, fmt.Sprintf("fixture adapter %q has no scripted responses", f.name))
	}
	fx := f.fixtures[idx]
	if fx.Err != nil {
		return llm.Response{}, fx.Err
	}
	return fx.Response, nil
}

// Calls reports how many times Complete has been invoked.
func (f *FixtureAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Requests returns every request Complete has observed, in order.
func (f *FixtureAdapter) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// RetryableFixtureError wraps a *pkgerrors.AppError so its Retryable()
// method satisfies llm.RetryableError, for scripting a fixture that
// should feed the retry/escalation policy rather than fail a run
// outright.
type RetryableFixtureError struct {
	Cause *pkgerrors.AppError
}

func (e *RetryableFixtureError) Error() string   { return e.Cause.Error() }
func (e *RetryableFixtureError) Unwrap() error   { return e.Cause }
func (e *RetryableFixtureError) Retryable() bool { return true }
