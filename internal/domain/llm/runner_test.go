package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/hook"
)

type fixtureAdapter struct {
	name       string
	failTimes  int
	calls      int
	retryable  bool
}

func (f *fixtureAdapter) Name() string { return f.name }
func (f *fixtureAdapter) SupportsModel(string) bool { return true }
func (f *fixtureAdapter) IsAvailable(context.Context) bool { return true }
func (f *fixtureAdapter) Complete(_ context.Context, req Request) (Response, error) {
	f.calls++
	if f.calls <= f.failTimes {
		if f.retryable {
			return Response{}, &retryableErr{msg: "transient"}
		}
		return Response{}, &retryableErr{msg: "fatal", notRetryable: true}
	}
	return Response{Text: "ok from " + f.name}, nil
}

type retryableErr struct {
	msg          string
	notRetryable bool
}

func (e *retryableErr) Error() string   { return e.msg }
func (e *retryableErr) Retryable() bool { return !e.notRetryable }

func TestRunner_SucceedsAfterRetry(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	adapter := &fixtureAdapter{name: "fixture", failTimes: 1, retryable: true}
	reg.Add(adapter)

	resolver := NewProfileResolver(map[Role]Profile{
		RoleDefault: {Provider: "fixture", Model: "m1", RetryCap: 3, RetryBaseDelay: time.Millisecond, RetryMaxDelay: 10 * time.Millisecond},
	})
	runner := NewRunner(reg, resolver, hook.NewRunner(), zap.NewNop())

	resp, err := runner.Complete(context.Background(), RoleDefault, Request{})
	require.NoError(t, err)
	require.Equal(t, "ok from fixture", resp.Text)
	require.Equal(t, 2, adapter.calls)
}

func TestRunner_EscalatesUpgradeOnly(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	weak := &fixtureAdapter{name: "weak", failTimes: 99, retryable: true}
	strong := &fixtureAdapter{name: "strong", failTimes: 0}
	reg.Add(weak)
	reg.Add(strong)

	resolver := NewProfileResolver(map[Role]Profile{
		RoleWorker:  {Provider: "weak", Model: "m1", RetryCap: 1, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond, EscalateTo: RolePlanner},
		RolePlanner: {Provider: "strong", Model: "m2", RetryCap: 1, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond},
	})
	runner := NewRunner(reg, resolver, hook.NewRunner(), zap.NewNop())

	resp, err := runner.Complete(context.Background(), RoleWorker, Request{})
	require.NoError(t, err)
	require.Equal(t, "ok from strong", resp.Text)
}

func TestRunner_NonRetryableFailsImmediately(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	adapter := &fixtureAdapter{name: "fixture", failTimes: 99, retryable: false}
	reg.Add(adapter)

	resolver := NewProfileResolver(map[Role]Profile{
		RoleDefault: {Provider: "fixture", Model: "m1", RetryCap: 5, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond},
	})
	runner := NewRunner(reg, resolver, hook.NewRunner(), zap.NewNop())

	_, err := runner.Complete(context.Background(), RoleDefault, Request{})
	require.Error(t, err)
	require.Equal(t, 1, adapter.calls)
}
