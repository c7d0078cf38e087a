package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name, used for the home
// directory (~/.brainloop) and the BRAINLOOP_ env var prefix.
const AppName = "brainloop"

// HomeDir returns the user's brainloop configuration home: ~/.brainloop
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures ~/.brainloop exists with a default config.yaml.
// Safe to call repeatedly — it never overwrites an existing file, per
// spec.md §4.1's "archive, never silently clobber" bootstrap philosophy
// carried down to the config layer (the store's own legacy-keyspace
// bootstrap lives in internal/infrastructure/store/bootstrap.go).
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", root, err)
	}

	path := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		logger.Debug("brainloop home directory OK", zap.String("home", root))
		return nil
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		logger.Warn("failed to write default config", zap.String("path", path), zap.Error(err))
		return nil
	}
	logger.Info("brainloop bootstrap complete", zap.String("home", root), zap.String("config", path))
	return nil
}

const defaultConfig = `# brainloop configuration — auto-generated on first launch, edit freely.

gateway:
  host: 0.0.0.0
  port: 18789

database:
  type: sqlite
  dsn: brainloop.db

log:
  level: info
  format: json

bridge:
  listen_addr: "127.0.0.1:8765"
  dial_url: "ws://127.0.0.1:8765/ws"
  shared_token: ""
  max_concurrency: 4
  admission_rate: 50
  dedup_ttl_sec: 30
  dedup_max_entries: 512
  dedup_max_bytes: 8388608

cdp:
  debug_url: "http://127.0.0.1:9222"

llm:
  profiles:
    default:
      provider: fixture
      model: ""
      timeout: 60s
      retry_cap: 3
      retry_base_delay: 500ms
      retry_max_delay: 10s
      escalate_to: ""
  http_providers: []

runtime:
  max_steps: 40
  compaction_retries: 1

executor:
  roots: ["."]
  strict_mode: true
  max_output_bytes: 1048576
  max_timeout_ms: 120000
`
