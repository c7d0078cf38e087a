package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// FSGuard confines file access to a fixed set of roots, new code since
// the teacher's sandbox.ProcessSandbox only isolates the process group
// (Setpgid) and never checks paths at all — it trusts WorkDir and
// whatever absolute path a tool call supplies.
type FSGuard struct {
	roots []string
}

// NewFSGuard builds a guard over the given roots. Each root is resolved
// to its real (symlink-free) absolute path at construction time so later
// containment checks compare like with like.
func NewFSGuard(roots []string) (*FSGuard, error) {
	resolved := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", r, err)
		}
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", r, err)
		}
		resolved = append(resolved, real)
	}
	return &FSGuard{roots: resolved}, nil
}

// Resolve validates path against the guard's roots and returns its real,
// symlink-free absolute form. A path that escapes every root — whether
// directly (`../..`) or via a symlink whose target lands outside — is
// rejected with CodePath. The target need not exist yet (write/create
// callers resolve the parent directory instead and re-join the leaf).
func (g *FSGuard) Resolve(path string) (string, error) {
	if path == "" {
		return "", pkgerrors.New(pkgerrors.CodeArgs, "path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodePath, "could not resolve path", err)
	}

	real, err := filepath.EvalSymlinks(abs)
	if os.IsNotExist(err) {
		parentReal, perr := filepath.EvalSymlinks(filepath.Dir(abs))
		if perr != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodePath, "parent directory does not exist", perr)
		}
		if !g.contains(parentReal) {
			return "", pkgerrors.New(pkgerrors.CodePath, fmt.Sprintf("path %q escapes the allowed roots", path))
		}
		return filepath.Join(parentReal, filepath.Base(abs)), nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodePath, "could not resolve path", err)
	}

	if !g.contains(real) {
		return "", pkgerrors.New(pkgerrors.CodePath, fmt.Sprintf("path %q escapes the allowed roots", path))
	}
	return real, nil
}

func (g *FSGuard) contains(real string) bool {
	for _, root := range g.roots {
		if real == root || strings.HasPrefix(real, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
