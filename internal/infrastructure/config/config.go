package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime's layered configuration, loaded by viper from
// YAML plus environment overrides — the same layering the teacher's
// config package established (defaults -> global ~/.brainloop/ ->
// project-local -> env), narrowed to the settings spec.md's components
// actually take.
type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	CDP      CDPConfig      `mapstructure:"cdp"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Eventbus EventbusConfig `mapstructure:"eventbus"`
}

// GatewayConfig configures the gin+websocket listener cmd/gateway binds.
type GatewayConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig selects the Session Store's gorm dialector (spec.md §4.1).
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite | postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BridgeConfig configures the Executor Bridge (spec.md §4.9/§6), shared
// by cmd/executor (which hosts it) and cmd/gateway (which dials it).
type BridgeConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	DialURL        string   `mapstructure:"dial_url"`
	SharedToken    string   `mapstructure:"shared_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxConcurrency int      `mapstructure:"max_concurrency"`
	AdmissionRate  float64  `mapstructure:"admission_rate"`
	DedupTTLSec    int      `mapstructure:"dedup_ttl_sec"`
	DedupMaxEntry  int      `mapstructure:"dedup_max_entries"`
	DedupMaxBytes  int      `mapstructure:"dedup_max_bytes"`
}

// CDPConfig points the Execution Engine at a debuggable browser target.
type CDPConfig struct {
	DebugURL string `mapstructure:"debug_url"` // e.g. http://127.0.0.1:9222
}

// LLMConfig resolves roles to provider profiles (spec.md §4.4).
type LLMConfig struct {
	Profiles map[string]ProfileConfig `mapstructure:"profiles"`
	HTTP     []HTTPProviderConfig     `mapstructure:"http_providers"`
}

// ProfileConfig is one role's YAML-configurable profile.
type ProfileConfig struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryCap       int           `mapstructure:"retry_cap"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	EscalateTo     string        `mapstructure:"escalate_to"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	TopP           float64       `mapstructure:"top_p"`
	Stream         bool          `mapstructure:"stream"`
}

// HTTPProviderConfig configures one OpenAI-wire-compatible adapter
// instance (spec.md §4.4's Adapter contract over HTTP).
type HTTPProviderConfig struct {
	Name    string   `mapstructure:"name"`
	BaseURL string   `mapstructure:"base_url"`
	APIKey  string   `mapstructure:"api_key"`
	Models  []string `mapstructure:"models"`
}

// RuntimeConfig tunes the Runtime Loop (spec.md §4.11).
type RuntimeConfig struct {
	MaxSteps          int `mapstructure:"max_steps"`
	CompactionRetries int `mapstructure:"compaction_retries"`
}

// ExecutorConfig configures the Local Executor daemon (spec.md §4.10).
type ExecutorConfig struct {
	Roots          []string `mapstructure:"roots"`
	StrictMode     bool     `mapstructure:"strict_mode"`
	WorkDir        string   `mapstructure:"work_dir"`
	MaxOutputBytes int      `mapstructure:"max_output_bytes"`
	MaxTimeoutMs   int      `mapstructure:"max_timeout_ms"`
	// CommandsFile, if set, loads the command.run whitelist from a
	// YAML file (executor.CommandRegistryFile) instead of
	// executor.DefaultCommandRegistry, and is watched for edits so the
	// whitelist can be tightened or extended without a restart.
	CommandsFile string `mapstructure:"commands_file"`
}

// EventbusConfig configures the Event/Trace Fabric's underlying bus
// (spec.md §4.12). WALDir, when set, makes New construct a
// WAL-backed eventbus.PersistentBus instead of a plain InMemoryBus, so
// emitted events survive a crash between emission and the Session
// Store's own async trace write; empty disables the WAL and falls
// back to the plain in-memory bus.
type EventbusConfig struct {
	WALDir      string `mapstructure:"wal_dir"`
	BufferSize  int    `mapstructure:"buffer_size"`
	MaxWALBytes int64  `mapstructure:"max_wal_bytes"`
}

// Load reads config.yaml layered default -> global ~/.brainloop/ ->
// project-local -> environment (prefix BRAINLOOP_), matching the
// teacher's own layered Load().
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), "."+AppName)
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("BRAINLOOP")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 18789)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "brainloop.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("bridge.listen_addr", "127.0.0.1:8765")
	v.SetDefault("bridge.dial_url", "ws://127.0.0.1:8765/ws")
	v.SetDefault("bridge.max_concurrency", 4)
	v.SetDefault("bridge.admission_rate", 50.0)
	v.SetDefault("bridge.dedup_ttl_sec", 30)
	v.SetDefault("bridge.dedup_max_entries", 512)
	v.SetDefault("bridge.dedup_max_bytes", 8<<20)

	v.SetDefault("cdp.debug_url", "http://127.0.0.1:9222")

	v.SetDefault("runtime.max_steps", 40)
	v.SetDefault("runtime.compaction_retries", 1)

	v.SetDefault("executor.roots", []string{"."})
	v.SetDefault("executor.strict_mode", true)
	v.SetDefault("executor.max_output_bytes", 1<<20)
	v.SetDefault("executor.max_timeout_ms", 120000)

	v.SetDefault("eventbus.wal_dir", filepath.Join(".", "data", "eventbus"))
	v.SetDefault("eventbus.buffer_size", 256)
	v.SetDefault("eventbus.max_wal_bytes", 10<<20)
}
