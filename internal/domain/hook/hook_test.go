package hook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func TestRunner_PriorityOrderAndPatchMerge(t *testing.T) {
	r := NewRunner()
	var order []string

	r.Register("tool.before_call", Listener{
		Name: "low", Priority: 1,
		Fn: func(_ context.Context, _ map[string]any) Decision {
			order = append(order, "low")
			return Decision{Patch: map[string]any{"note": "from-low"}}
		},
	})
	r.Register("tool.before_call", Listener{
		Name: "high", Priority: 10,
		Fn: func(_ context.Context, _ map[string]any) Decision {
			order = append(order, "high")
			return Decision{Patch: map[string]any{"note": "from-high"}}
		},
	})

	out, err := r.Run(context.Background(), "tool.before_call", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, []string{"high", "low"}, order)
	require.Equal(t, "from-low", out["note"]) // later-writer (by priority order) wins
}

func TestRunner_RegistrationOrderTiebreak(t *testing.T) {
	r := NewRunner()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		n := name
		r.Register("run.before_start", Listener{
			Name: n, Priority: 5,
			Fn: func(_ context.Context, _ map[string]any) Decision {
				order = append(order, n)
				return Continue
			},
		})
	}
	_, err := r.Run(context.Background(), "run.before_start", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRunner_BlockShortCircuits(t *testing.T) {
	r := NewRunner()
	var calledSecond bool
	r.Register("tool.before_call", Listener{
		Name: "blocker", Priority: 10,
		Fn: func(_ context.Context, _ map[string]any) Decision {
			return Decision{Block: true, BlockCode: pkgerrors.CodeHookBlock, BlockMessage: "nope"}
		},
	})
	r.Register("tool.before_call", Listener{
		Name: "second", Priority: 1,
		Fn: func(_ context.Context, _ map[string]any) Decision {
			calledSecond = true
			return Continue
		},
	})

	_, err := r.Run(context.Background(), "tool.before_call", nil)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeHookBlock, pkgerrors.Code(err))
	require.False(t, calledSecond)
}

func TestRunner_NonPatchableFieldIgnored(t *testing.T) {
	r := NewRunner()
	r.Register("cdp.after_verify", Listener{
		Name: "tamperer", Priority: 1,
		Fn: func(_ context.Context, _ map[string]any) Decision {
			return Decision{Patch: map[string]any{"verification_result": "forged", "note": "ok"}}
		},
	})
	out, err := r.Run(context.Background(), "cdp.after_verify", map[string]any{"verification_result": "real"})
	require.NoError(t, err)
	require.Equal(t, "real", out["verification_result"])
	require.Equal(t, "ok", out["note"])
}

func TestRunner_TimeoutIsFailure(t *testing.T) {
	r := NewRunner()
	r.Register("cdp.before_action", Listener{
		Name: "slow", Priority: 1, Timeout: 10 * time.Millisecond,
		Fn: func(_ context.Context, _ map[string]any) Decision {
			time.Sleep(100 * time.Millisecond)
			return Continue
		},
	})
	_, err := r.Run(context.Background(), "cdp.before_action", nil)
	require.Error(t, err)
}
