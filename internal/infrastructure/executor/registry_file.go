package executor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// commandRegistryFile is the on-disk shape of an operator-editable command
// whitelist, grounded on the teacher's internal/infrastructure/sideload
// manifest.yaml (a yaml-tagged capability declaration read with
// gopkg.in/yaml.v3) — the same idea applied to command.run's whitelist
// instead of a module manifest.
type commandRegistryFile struct {
	Commands []CommandSpec `yaml:"commands"`
}

// LoadCommandRegistryFile reads a whitelist from path, replacing the
// built-in DefaultCommandRegistry for deployments that want to tune the
// canonical command set without a rebuild.
func LoadCommandRegistryFile(path string) (*CommandRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command registry file %s: %w", path, err)
	}
	var file commandRegistryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse command registry file %s: %w", path, err)
	}
	if len(file.Commands) == 0 {
		return nil, fmt.Errorf("command registry file %s declares no commands", path)
	}
	return NewCommandRegistry(file.Commands), nil
}

// WatchCommandRegistryFile watches path for writes (the editor-save /
// atomic-rename patterns both surface as fsnotify.Write or
// fsnotify.Create on most filesystems) and calls onReload with the
// freshly parsed registry. Grounded on the teacher's
// internal/infrastructure/plugin.Loader.handleWatchEvent hot-reload
// switch, narrowed to one file instead of a directory of plugins. A
// parse failure on reload is logged and the previous registry keeps
// serving — a typo in the whitelist file must never leave the executor
// with no registry at all.
//
// The returned stop function closes the underlying watcher; callers
// should defer it.
func WatchCommandRegistryFile(path string, logger *zap.Logger, onReload func(*CommandRegistry)) (stop func() error, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create command registry watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch command registry dir %s: %w", dir, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				registry, err := LoadCommandRegistryFile(path)
				if err != nil {
					logger.Warn("command registry reload failed, keeping previous registry",
						zap.String("path", path), zap.Error(err))
					continue
				}
				logger.Info("command registry reloaded", zap.String("path", path))
				onReload(registry)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("command registry watcher error", zap.Error(werr))
			}
		}
	}()

	return watcher.Close, nil
}
