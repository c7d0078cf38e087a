package bridge

import (
	"fmt"

	"golang.org/x/time/rate"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// ConcurrencyGate enforces spec.md §4.9's "reject with E_BUSY once
// active_invocations >= max_concurrency": a counting semaphore over the
// connection's in-flight invocations, plus a token-bucket limiter (the
// teacher's pack favors golang.org/x/time/rate for pacing; this gate is
// its only user in the module) that throttles how fast
// new invocations may even attempt to acquire a slot, so a burst of
// legitimate retries can't starve the gate the instant capacity frees
// up.
type ConcurrencyGate struct {
	slots   chan struct{}
	limiter *rate.Limiter
	max     int
}

// NewConcurrencyGate builds a gate allowing at most maxConcurrency
// in-flight invocations, admitted no faster than ratePerSecond per
// second (burst = maxConcurrency).
func NewConcurrencyGate(maxConcurrency int, ratePerSecond float64) *ConcurrencyGate {
	return &ConcurrencyGate{
		slots:   make(chan struct{}, maxConcurrency),
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), maxConcurrency),
		max:     maxConcurrency,
	}
}

// TryAcquire reserves one invocation slot without blocking. Returns
// CodeBusy if either the concurrency cap or the admission rate would be
// exceeded.
func (g *ConcurrencyGate) TryAcquire() error {
	if !g.limiter.Allow() {
		return pkgerrors.New(pkgerrors.CodeBusy, "invocation admission rate exceeded")
	}
	select {
	case g.slots <- struct{}{}:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeBusy, fmt.Sprintf("max_concurrency (%d) reached", g.max))
	}
}

// Release frees one invocation slot.
func (g *ConcurrencyGate) Release() {
	select {
	case <-g.slots:
	default:
	}
}

// Active reports the current number of in-flight invocations.
func (g *ConcurrencyGate) Active() int {
	return len(g.slots)
}
