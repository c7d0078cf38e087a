package llmproviders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/brainloop/internal/domain/llm"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func TestFixtureAdapter_ReturnsScriptedResponsesInOrder(t *testing.T) {
	adapter := NewFixtureAdapter("test",
		Fixture{Response: llm.Response{Text: "first"}},
		Fixture{Response: llm.Response{Text: "second"}},
	)

	resp1, err := adapter.Complete(context.Background(), llm.Request{Model: "fixture-model"})
	require.NoError(t, err)
	require.Equal(t, "first", resp1.Text)

	resp2, err := adapter.Complete(context.Background(), llm.Request{Model: "fixture-model"})
	require.NoError(t, err)
	require.Equal(t, "second", resp2.Text)

	require.Equal(t, 2, adapter.Calls())
	require.Len(t, adapter.Requests(), 2)
}

func TestFixtureAdapter_RepeatsLastFixtureOnceExhausted(t *testing.T) {
	adapter := NewFixtureAdapter("test", Fixture{Response: llm.Response{Text: "only"}})

	for i := 0; i < 3; i++ {
		resp, err := adapter.Complete(context.Background(), llm.Request{})
		require.NoError(t, err)
		require.Equal(t, "only", resp.Text)
	}
	require.Equal(t, 3, adapter.Calls())
}

func TestFixtureAdapter_ScriptedErrorIsReturned(t *testing.T) {
	adapter := NewFixtureAdapter("test", Fixture{Err: pkgerrors.New(pkgerrors.CodeServiceUnavail, "boom")})

	_, err := adapter.Complete(context.Background(), llm.Request{})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeServiceUnavail, pkgerrors.Code(err))
	require.True(t, pkgerrors.IsRetryable(err))
}

func TestFixtureAdapter_SupportsModelRespectsAllowlist(t *testing.T) {
	adapter := NewFixtureAdapter("test").WithModels("model-a", "model-b")
	require.True(t, adapter.SupportsModel("model-a"))
	require.False(t, adapter.SupportsModel("model-c"))
}

func TestFixtureAdapter_IsAvailableTogglesExplicitly(t *testing.T) {
	adapter := NewFixtureAdapter("test")
	require.True(t, adapter.IsAvailable(context.Background()))
	adapter.SetAvailable(false)
	require.False(t, adapter.IsAvailable(context.Background()))
}

func TestRetryableFixtureError_SatisfiesLLMRetryableError(t *testing.T) {
	var target llm.RetryableError = &RetryableFixtureError{Cause: pkgerrors.New(pkgerrors.CodeInvalidInput, "nope")}
	require.True(t, target.Retryable())
}
