package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// canonicalNames maps every alias spec.md §6 lists to the canonical tool
// name the Local Executor actually dispatches on.
var canonicalNames = map[string]string{
	"read_file":  "fs.read_text",
	"write_file": "fs.write_text",
	"edit_file":  "fs.patch_text",
	"bash":       "command.run",
}

// CanonicalName resolves a tool call's name (which may be an alias) to
// its canonical form.
func CanonicalName(name string) string {
	if canon, ok := canonicalNames[name]; ok {
		return canon
	}
	return name
}

// WriteMode selects fs.write_text's overwrite behavior.
type WriteMode string

const (
	WriteOverwrite WriteMode = "overwrite"
	WriteAppend    WriteMode = "append"
	WriteCreate    WriteMode = "create"
)

const maxReadBytes = 1 << 20 // 1MiB; larger reads report truncated=true

// LocalExecutor implements the canonical tool set the Executor Bridge
// dispatches fs.* and command.run calls to (spec.md §4.10): a
// root-confined filesystem surface plus a whitelisted command runner.
type LocalExecutor struct {
	guard   *FSGuard
	runner  *CommandRunner
}

// NewLocalExecutor wires a filesystem guard and command runner into one
// executor.
func NewLocalExecutor(guard *FSGuard, runner *CommandRunner) *LocalExecutor {
	return &LocalExecutor{guard: guard, runner: runner}
}

// ReadTextResult is fs.read_text's payload.
type ReadTextResult struct {
	Content   string
	Truncated bool
	SizeBytes int64
}

// ReadText implements fs.read_text (alias read_file).
func (e *LocalExecutor) ReadText(path string) (*ReadTextResult, error) {
	real, err := e.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(real)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodePath, fmt.Sprintf("file %q does not exist", path), err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePath, "could not stat file", err)
	}
	if info.IsDir() {
		return nil, pkgerrors.New(pkgerrors.CodePath, fmt.Sprintf("%q is a directory", path))
	}

	f, err := os.Open(real)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePath, "could not open file", err)
	}
	defer f.Close()

	buf := make([]byte, maxReadBytes)
	n, err := f.Read(buf)
	if err != nil && err.Error() != "EOF" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTool, "failed to read file", err)
	}
	truncated := info.Size() > int64(n)
	return &ReadTextResult{Content: string(buf[:n]), Truncated: truncated, SizeBytes: info.Size()}, nil
}

// WriteTextResult is fs.write_text's payload.
type WriteTextResult struct {
	BytesWritten int
}

// WriteText implements fs.write_text (alias write_file).
func (e *LocalExecutor) WriteText(path, content string, mode WriteMode) (*WriteTextResult, error) {
	real, err := e.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	switch mode {
	case WriteCreate:
		if _, err := os.Stat(real); err == nil {
			return nil, pkgerrors.New(pkgerrors.CodeArgs, fmt.Sprintf("%q already exists", path))
		}
		f, err := os.OpenFile(real, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePath, "could not create file", err)
		}
		defer f.Close()
		n, err := f.WriteString(content)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTool, "failed to write file", err)
		}
		return &WriteTextResult{BytesWritten: n}, nil
	case WriteAppend:
		f, err := os.OpenFile(real, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePath, "could not open file for append", err)
		}
		defer f.Close()
		n, err := f.WriteString(content)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTool, "failed to append to file", err)
		}
		return &WriteTextResult{BytesWritten: n}, nil
	case WriteOverwrite, "":
		if err := os.WriteFile(real, []byte(content), 0644); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePath, "could not write file", err)
		}
		return &WriteTextResult{BytesWritten: len(content)}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeArgs, fmt.Sprintf("unknown write mode %q", mode))
	}
}

// PatchTextResult is fs.patch_text's payload.
type PatchTextResult struct {
	BytesWritten int
	HunksApplied int
}

// PatchText implements fs.patch_text (alias edit_file): parses diff as a
// unified-diff body, validates every hunk against the file's current
// content, and writes the result back only if every hunk applies.
func (e *LocalExecutor) PatchText(path, diff string) (*PatchTextResult, error) {
	real, err := e.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	current, err := os.ReadFile(real)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePath, fmt.Sprintf("could not read %q to patch", path), err)
	}
	hunks, err := ParsePatch(diff)
	if err != nil {
		return nil, err
	}
	patched, err := Apply(string(current), hunks)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(real, []byte(patched), 0644); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePath, "could not write patched file", err)
	}
	return &PatchTextResult{BytesWritten: len(patched), HunksApplied: len(hunks)}, nil
}

// RunCommandResult is command.run's payload.
type RunCommandResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
}

// RunCommand implements command.run (alias bash).
func (e *LocalExecutor) RunCommand(ctx context.Context, commandID string, args []string) (*RunCommandResult, error) {
	res, err := e.runner.Run(ctx, commandID, args)
	if res == nil {
		return nil, err
	}
	return &RunCommandResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode, Truncated: res.Truncated}, err
}

// readTextArgs/writeTextArgs/patchTextArgs/commandRunArgs mirror spec.md
// §6's minimum argument contracts for the four canonical tools.
type readTextArgs struct {
	Path string `json:"path"`
}

type writeTextArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

type patchTextArgs struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

type commandRunArgs struct {
	CommandID string   `json:"commandId"`
	Argv      []string `json:"argv"`
}

// Dispatch implements the bridge's Dispatcher interface: it resolves
// tool (which may be an alias) to its canonical form, unmarshals args
// against that tool's contract, and runs it. Unknown tools and
// malformed arguments surface as CodeTool/CodeArgs respectively so the
// bridge can translate them straight into a Failure frame.
func (e *LocalExecutor) Dispatch(ctx context.Context, tool string, args json.RawMessage) (any, error) {
	switch CanonicalName(tool) {
	case "fs.read_text":
		var a readTextArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeArgs, "invalid fs.read_text arguments", err)
		}
		return e.ReadText(a.Path)
	case "fs.write_text":
		var a writeTextArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeArgs, "invalid fs.write_text arguments", err)
		}
		return e.WriteText(a.Path, a.Content, WriteMode(a.Mode))
	case "fs.patch_text":
		var a patchTextArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeArgs, "invalid fs.patch_text arguments", err)
		}
		return e.PatchText(a.Path, a.Patch)
	case "command.run":
		var a commandRunArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeArgs, "invalid command.run arguments", err)
		}
		return e.RunCommand(ctx, a.CommandID, a.Argv)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeTool, fmt.Sprintf("unknown canonical tool %q", tool))
	}
}
