package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// CommandResult is the byte-capped outcome of a CommandRunner.Run call.
type CommandResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Killed    bool
	Truncated bool
}

// CommandRunner executes canonical commands under the registry's specs,
// generalizing the teacher's sandbox.ProcessSandbox.Execute — same
// process-group isolation (Setpgid) and timeout-as-kill, but resolved
// against a CommandSpec instead of a flat AllowedBins name check, and
// with stdout/stderr capped at maxOutputBytes rather than buffered
// without limit.
type CommandRunner struct {
	registry       atomic.Pointer[CommandRegistry]
	workDir        string
	timeout        time.Duration
	maxOutputBytes int
	strictMode     bool
	logger         *zap.Logger
}

// NewCommandRunner builds a runner rooted at workDir. strictMode, when
// true, rejects any CommandSpec whose AllowInStrict is false.
func NewCommandRunner(registry *CommandRegistry, workDir string, timeout time.Duration, maxOutputBytes int, strictMode bool, logger *zap.Logger) *CommandRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CommandRunner{
		workDir:        workDir,
		timeout:        timeout,
		maxOutputBytes: maxOutputBytes,
		strictMode:     strictMode,
		logger:         logger.With(zap.String("component", "command-runner")),
	}
	r.registry.Store(registry)
	return r
}

// SetRegistry swaps the live whitelist, e.g. when
// WatchCommandRegistryFile observes an edited whitelist file. Safe to
// call while commands are in flight: Run reads the registry pointer once
// per call via atomic.Pointer, so an in-progress Run keeps the spec it
// resolved.
func (r *CommandRunner) SetRegistry(registry *CommandRegistry) {
	r.registry.Store(registry)
}

// Run executes the canonical command commandID with caller-supplied
// userArgs appended after the spec's StaticArgs.
func (r *CommandRunner) Run(ctx context.Context, commandID string, userArgs []string) (*CommandResult, error) {
	spec, ok := r.registry.Load().Resolve(commandID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeTool, fmt.Sprintf("unknown command %q", commandID))
	}
	if r.strictMode && !spec.AllowInStrict {
		return nil, pkgerrors.New(pkgerrors.CodeCmd, fmt.Sprintf("command %q is disabled in strict mode", commandID))
	}
	if len(userArgs) > spec.MaxUserArgs {
		return nil, pkgerrors.New(pkgerrors.CodeArgs, fmt.Sprintf("command %q accepts at most %d arguments, got %d", commandID, spec.MaxUserArgs, len(userArgs)))
	}

	cmdPath, err := exec.LookPath(spec.Executable)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeCmd, fmt.Sprintf("executable %q not found", spec.Executable), err)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(append([]string{}, spec.StaticArgs...), userArgs...)
	cmd := exec.CommandContext(execCtx, cmdPath, args...)
	cmd.Dir = r.workDir
	cmd.Env = r.buildEnvironment()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	r.logger.Info("executing command", zap.String("command_id", commandID), zap.String("executable", spec.Executable))
	runErr := cmd.Run()

	result := &CommandResult{Duration: time.Since(start)}
	result.Stdout, result.Truncated = capBytes(stdout.String(), r.maxOutputBytes)
	stderrCapped, truncStderr := capBytes(stderr.String(), r.maxOutputBytes)
	result.Stderr = stderrCapped
	result.Truncated = result.Truncated || truncStderr

	if execCtx.Err() == context.DeadlineExceeded {
		result.Killed = true
		result.ExitCode = -1
		return result, pkgerrors.New(pkgerrors.CodeTimeout, fmt.Sprintf("command %q exceeded %s", commandID, r.timeout))
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, pkgerrors.Wrap(pkgerrors.CodeCmd, "command execution failed", runErr)
		}
	}
	return result, nil
}

func capBytes(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max], true
}

func (r *CommandRunner) buildEnvironment() []string {
	sysPath := os.Getenv("PATH")
	if sysPath == "" {
		sysPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		home = r.workDir
	}
	return []string{
		"PATH=" + sysPath,
		"HOME=" + home,
		"TMPDIR=" + os.TempDir(),
		"LANG=en_US.UTF-8",
		"LC_ALL=en_US.UTF-8",
	}
}
