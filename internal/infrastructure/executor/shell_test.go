package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func testRegistry() *CommandRegistry {
	return NewCommandRegistry([]CommandSpec{
		{ID: "echo", Executable: "echo", MaxUserArgs: 4, Risk: RiskLow, AllowInStrict: true},
		{ID: "bash", Executable: "bash", StaticArgs: []string{"-c"}, MaxUserArgs: 1, Risk: RiskHigh, AllowInStrict: false},
	})
}

func TestCommandRunner_RunExecutesAllowedCommand(t *testing.T) {
	runner := NewCommandRunner(testRegistry(), t.TempDir(), 5*time.Second, 1<<16, false, nil)

	res, err := runner.Run(context.Background(), "echo", []string{"hello"})
	require.NoError(t, err)
	require.Equal(t, "hello\n", res.Stdout)
	require.Equal(t, 0, res.ExitCode)
}

func TestCommandRunner_RunRejectsUnknownCommand(t *testing.T) {
	runner := NewCommandRunner(testRegistry(), t.TempDir(), 5*time.Second, 1<<16, false, nil)

	_, err := runner.Run(context.Background(), "rm", nil)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeTool, pkgerrors.Code(err))
}

func TestCommandRunner_RunRejectsTooManyArgs(t *testing.T) {
	runner := NewCommandRunner(testRegistry(), t.TempDir(), 5*time.Second, 1<<16, false, nil)

	_, err := runner.Run(context.Background(), "echo", []string{"a", "b", "c", "d", "e"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeArgs, pkgerrors.Code(err))
}

func TestCommandRunner_RunRejectsStrictModeDisallowedCommand(t *testing.T) {
	runner := NewCommandRunner(testRegistry(), t.TempDir(), 5*time.Second, 1<<16, true, nil)

	_, err := runner.Run(context.Background(), "bash", []string{"echo hi"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeCmd, pkgerrors.Code(err))
}

func TestCommandRunner_RunKillsOnTimeout(t *testing.T) {
	registry := NewCommandRegistry([]CommandSpec{
		{ID: "sleep", Executable: "sleep", MaxUserArgs: 1, Risk: RiskLow, AllowInStrict: true},
	})
	runner := NewCommandRunner(registry, t.TempDir(), 50*time.Millisecond, 1<<16, false, nil)

	res, err := runner.Run(context.Background(), "sleep", []string{"5"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeTimeout, pkgerrors.Code(err))
	require.True(t, res.Killed)
}

func TestCommandRunner_RunTruncatesOversizedOutput(t *testing.T) {
	registry := NewCommandRegistry([]CommandSpec{
		{ID: "bash", Executable: "bash", StaticArgs: []string{"-c"}, MaxUserArgs: 1, Risk: RiskHigh, AllowInStrict: true},
	})
	runner := NewCommandRunner(registry, t.TempDir(), 5*time.Second, 8, false, nil)

	res, err := runner.Run(context.Background(), "bash", []string{"echo 0123456789"})
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Len(t, res.Stdout, 8)
}
