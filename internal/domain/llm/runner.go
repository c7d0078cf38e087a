package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/hook"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// Runner drives one LLM completion through retry + upgrade-only
// escalation, dispatching llm.before_request/after_response/on_error
// hooks around the call (spec.md §4.4, §4.7).
type Runner struct {
	registry *Registry
	resolver *ProfileResolver
	hooks    *hook.Runner
	logger   *zap.Logger
}

// NewRunner creates an LLM runner.
func NewRunner(registry *Registry, resolver *ProfileResolver, hooks *hook.Runner, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{registry: registry, resolver: resolver, hooks: hooks, logger: logger.With(zap.String("component", "llm-runner"))}
}

// Complete resolves role to a profile, retries with exponential backoff
// on retryable failures up to the profile's RetryCap, and escalates
// upgrade-only to the profile's EscalateTo role if the retry budget is
// exhausted. A Retry-After beyond RetryMaxDelay fails execute
// immediately rather than sleeping past the cap.
func (r *Runner) Complete(ctx context.Context, role Role, req Request) (Response, error) {
	tried := map[Role]bool{}
	currentRole := role

	for {
		tried[currentRole] = true
		profile, ok := r.resolver.Resolve(currentRole)
		if !ok {
			return Response{}, pkgerrors.New(pkgerrors.CodeNoProvider, "no llm profile for role "+string(currentRole))
		}

		resp, err := r.completeWithRetry(ctx, currentRole, profile, req)
		if err == nil {
			return resp, nil
		}

		nextRole, _, canEscalate := r.resolver.Escalation(currentRole, tried)
		if !canEscalate {
			if r.hooks != nil {
				_, _ = r.hooks.Run(ctx, "llm.on_error", map[string]any{"role": string(currentRole), "error": err.Error()})
			}
			return Response{}, err
		}
		r.logger.Warn("escalating llm route", zap.String("from", string(currentRole)), zap.String("to", string(nextRole)), zap.Error(err))
		currentRole = nextRole
	}
}

func (r *Runner) completeWithRetry(ctx context.Context, role Role, profile Profile, req Request) (Response, error) {
	adapter, ok := r.registry.Get(profile.Provider)
	if !ok {
		return Response{}, pkgerrors.New(pkgerrors.CodeNoProvider, "no adapter registered for provider "+profile.Provider)
	}
	breaker := r.registry.Breaker(profile.Provider)

	retryCap := profile.RetryCap
	if retryCap <= 0 {
		retryCap = 1
	}
	baseDelay := profile.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	maxDelay := profile.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < retryCap; attempt++ {
		if breaker != nil && !breaker.Allow() {
			return Response{}, pkgerrors.New(pkgerrors.CodeServiceUnavail, "circuit open for provider "+profile.Provider)
		}

		req.Model = profile.Model
		if req.Timeout == 0 {
			req.Timeout = profile.Timeout
		}
		if req.Sampling == (Sampling{}) {
			req.Sampling = Sampling{
				Temperature: profile.Sampling.Temperature(),
				TopP:        profile.Sampling.TopP(),
				MaxTokens:   profile.Sampling.MaxTokens(),
				Stream:      profile.Sampling.Stream(),
			}
		}

		if r.hooks != nil {
			if _, err := r.hooks.Run(ctx, "llm.before_request", map[string]any{"role": string(role), "model": req.Model}); err != nil {
				return Response{}, err
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if req.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		}
		resp, err := adapter.Complete(callCtx, req)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			if r.hooks != nil {
				if _, herr := r.hooks.Run(ctx, "llm.after_response", map[string]any{"role": string(role), "text": resp.Text}); herr != nil {
					return Response{}, herr
				}
			}
			return resp, nil
		}

		lastErr = err
		if breaker != nil {
			breaker.RecordFailure()
		}
		if !isRetryable(err) {
			return Response{}, err
		}

		if resp.RetryAfter > maxDelay {
			return Response{}, pkgerrors.Wrap(pkgerrors.CodeTimeout, "retry-after exceeds cap, failing execute", err)
		}

		delay := resp.RetryAfter
		if delay == 0 {
			delay = backoff(baseDelay, maxDelay, attempt)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	return Response{}, fmt.Errorf("retry budget exhausted for provider %s: %w", profile.Provider, lastErr)
}

func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > ceiling {
		d = ceiling
	}
	return d
}

func isRetryable(err error) bool {
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return pkgerrors.IsRetryable(err)
}
