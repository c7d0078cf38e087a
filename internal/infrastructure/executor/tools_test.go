package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func newTestExecutor(t *testing.T) (*LocalExecutor, string) {
	root := t.TempDir()
	guard, err := NewFSGuard([]string{root})
	require.NoError(t, err)
	runner := NewCommandRunner(DefaultCommandRegistry(), root, 5*time.Second, 1<<16, false, nil)
	return NewLocalExecutor(guard, runner), root
}

func TestCanonicalName_ResolvesAliases(t *testing.T) {
	require.Equal(t, "fs.read_text", CanonicalName("read_file"))
	require.Equal(t, "fs.write_text", CanonicalName("write_file"))
	require.Equal(t, "fs.patch_text", CanonicalName("edit_file"))
	require.Equal(t, "command.run", CanonicalName("bash"))
	require.Equal(t, "fs.read_text", CanonicalName("fs.read_text"))
}

func TestLocalExecutor_WriteThenReadText(t *testing.T) {
	exec, root := newTestExecutor(t)
	path := filepath.Join(root, "note.txt")

	_, err := exec.WriteText(path, "hello world", WriteCreate)
	require.NoError(t, err)

	res, err := exec.ReadText(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", res.Content)
	require.False(t, res.Truncated)
}

func TestLocalExecutor_WriteCreateRejectsExistingFile(t *testing.T) {
	exec, root := newTestExecutor(t)
	path := filepath.Join(root, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := exec.WriteText(path, "y", WriteCreate)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeArgs, pkgerrors.Code(err))
}

func TestLocalExecutor_WriteAppendAddsToExistingFile(t *testing.T) {
	exec, root := newTestExecutor(t)
	path := filepath.Join(root, "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0644))

	_, err := exec.WriteText(path, "second\n", WriteAppend)
	require.NoError(t, err)

	res, err := exec.ReadText(path)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", res.Content)
}

func TestLocalExecutor_ReadTextRejectsPathOutsideRoot(t *testing.T) {
	exec, _ := newTestExecutor(t)
	outside := t.TempDir()
	outsideFile := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(outsideFile, []byte("s"), 0644))

	_, err := exec.ReadText(outsideFile)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodePath, pkgerrors.Code(err))
}

func TestLocalExecutor_PatchTextAppliesValidDiff(t *testing.T) {
	exec, root := newTestExecutor(t)
	path := filepath.Join(root, "code.go")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\nline three"), 0644))

	diff := "@@ -1,3 +1,3 @@\n line one\n-line two\n+line TWO\n line three\n"
	_, err := exec.PatchText(path, diff)
	require.NoError(t, err)

	res, err := exec.ReadText(path)
	require.NoError(t, err)
	require.Equal(t, "line one\nline TWO\nline three", res.Content)
}

func TestLocalExecutor_PatchTextRejectsContextMismatch(t *testing.T) {
	exec, root := newTestExecutor(t)
	path := filepath.Join(root, "code.go")
	require.NoError(t, os.WriteFile(path, []byte("completely different"), 0644))

	diff := "@@ -1,3 +1,3 @@\n line one\n-line two\n+line TWO\n line three\n"
	_, err := exec.PatchText(path, diff)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodePatch, pkgerrors.Code(err))
}

func TestLocalExecutor_RunCommandExecutesRegisteredCommand(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res, err := exec.RunCommand(context.Background(), "ls", nil)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
}
