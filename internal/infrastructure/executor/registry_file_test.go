package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testRegistryYAML = `
commands:
  - id: echo
    executable: echo
    max_user_args: 4
    risk: low
    allow_in_strict: true
`

func TestLoadCommandRegistryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistryYAML), 0o644))

	registry, err := LoadCommandRegistryFile(path)
	require.NoError(t, err)

	spec, ok := registry.Resolve("echo")
	require.True(t, ok)
	require.Equal(t, "echo", spec.Executable)
	require.Equal(t, RiskLow, spec.Risk)
}

func TestLoadCommandRegistryFile_EmptyRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("commands: []\n"), 0o644))

	_, err := LoadCommandRegistryFile(path)
	require.Error(t, err)
}

func TestLoadCommandRegistryFile_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("commands: [this is not valid"), 0o644))

	_, err := LoadCommandRegistryFile(path)
	require.Error(t, err)
}

func TestWatchCommandRegistryFile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistryYAML), 0o644))

	reloaded := make(chan *CommandRegistry, 1)
	stop, err := WatchCommandRegistryFile(path, nil, func(r *CommandRegistry) {
		reloaded <- r
	})
	require.NoError(t, err)
	defer stop()

	updated := `
commands:
  - id: echo
    executable: echo
    max_user_args: 8
    risk: low
    allow_in_strict: true
  - id: ls
    executable: ls
    max_user_args: 2
    risk: low
    allow_in_strict: true
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case registry := <-reloaded:
		_, ok := registry.Resolve("ls")
		require.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for registry reload")
	}
}

func TestCommandRunner_SetRegistrySwapsLiveWhitelist(t *testing.T) {
	runner := NewCommandRunner(testRegistry(), t.TempDir(), 5*time.Second, 1<<16, false, nil)

	_, err := runner.Run(context.Background(), "ls", nil)
	require.Error(t, err)

	runner.SetRegistry(NewCommandRegistry([]CommandSpec{
		{ID: "ls", Executable: "ls", MaxUserArgs: 2, Risk: RiskLow, AllowInStrict: true},
	}))

	_, err = runner.Run(context.Background(), "ls", nil)
	require.NoError(t, err)
}
